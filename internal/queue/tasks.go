package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/models"
	"village-chatbot-backend/services"
)

const (
	TaskRunIndexing = "index:run"
)

type IndexRunPayload struct {
	Mode  string `json:"mode"`
	RunID string `json:"run_id"`
}

// NewIndexRunTask builds the task the admin endpoints enqueue to start an
// indexing run. No retry: a run that fails mid-way must not silently
// restart, the admin re-triggers it after looking at the progress message.
func NewIndexRunTask(mode, runID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexRunPayload{
		Mode:  mode,
		RunID: runID,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskRunIndexing,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor holds the worker-side handlers.
type TaskProcessor struct {
	indexer  *services.Indexer
	progress *services.ProgressStore
}

func NewTaskProcessor(indexer *services.Indexer, progress *services.ProgressStore) *TaskProcessor {
	return &TaskProcessor{
		indexer:  indexer,
		progress: progress,
	}
}

// ProcessIndexRun executes one indexing run under the single-run lock.
// If another run holds the lock the task is dropped, not retried: the
// admin endpoint already reported the conflict.
func (p *TaskProcessor) ProcessIndexRun(ctx context.Context, t *asynq.Task) error {
	var payload IndexRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	acquired, err := p.progress.TryLock(ctx, payload.RunID)
	if err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	if !acquired {
		logger.Warn("Skipping indexing run, another run holds the lock", "run_id", payload.RunID)
		return nil
	}
	defer func() {
		if err := p.progress.Unlock(context.Background(), payload.RunID); err != nil {
			logger.Error("Failed to release index lock", "run_id", payload.RunID, "error", err)
		}
	}()

	logger.Info("Starting indexing run", "mode", payload.Mode, "run_id", payload.RunID)

	if err := p.indexer.Run(ctx, payload.Mode, payload.RunID); err != nil {
		logger.Error("Indexing run failed", "run_id", payload.RunID, "error", err)
		// Publish the failure so /index-progress shows it.
		p.progress.Set(context.Background(), models.IndexProgress{
			Percent: 100,
			Message: fmt.Sprintf("Indexing gagal: %v", err),
			Running: false,
			RunID:   payload.RunID,
			Mode:    payload.Mode,
		})
		return err
	}
	return nil
}
