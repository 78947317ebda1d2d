package services

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/models"
)

const (
	progressKey = "indexer:progress"
	lockKey     = "indexer:lock"

	// A run that somehow dies without unlocking must not block indexing
	// forever, so the lock carries a generous expiry.
	lockTTL = 2 * time.Hour
)

// ProgressStore shares indexing state between the worker (writer) and the
// API server (reader) through Redis. It also owns the single-run lock.
type ProgressStore struct {
	rdb *redis.Client
}

func NewProgressStore(rdb *redis.Client) *ProgressStore {
	return &ProgressStore{rdb: rdb}
}

// TryLock claims the single-run lock for runID. Returns false when another
// run already holds it.
func (p *ProgressStore) TryLock(ctx context.Context, runID string) (bool, error) {
	return p.rdb.SetNX(ctx, lockKey, runID, lockTTL).Result()
}

// Unlock releases the lock, but only if runID still owns it.
func (p *ProgressStore) Unlock(ctx context.Context, runID string) error {
	owner, err := p.rdb.Get(ctx, lockKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != runID {
		logger.Warn("Index lock owned by another run, not releasing", "owner", owner, "run_id", runID)
		return nil
	}
	return p.rdb.Del(ctx, lockKey).Err()
}

// Set publishes the current run state.
func (p *ProgressStore) Set(ctx context.Context, progress models.IndexProgress) error {
	return p.rdb.HSet(ctx, progressKey, map[string]any{
		"percent": progress.Percent,
		"message": progress.Message,
		"running": strconv.FormatBool(progress.Running),
		"run_id":  progress.RunID,
		"mode":    progress.Mode,
	}).Err()
}

// Get reads the last published run state. Before any run it returns the
// zero progress.
func (p *ProgressStore) Get(ctx context.Context) (models.IndexProgress, error) {
	fields, err := p.rdb.HGetAll(ctx, progressKey).Result()
	if err != nil {
		return models.IndexProgress{}, err
	}
	if len(fields) == 0 {
		return models.IndexProgress{Message: "Belum ada proses indexing."}, nil
	}

	percent, _ := strconv.Atoi(fields["percent"])
	running, _ := strconv.ParseBool(fields["running"])

	return models.IndexProgress{
		Percent: percent,
		Message: fields["message"],
		Running: running,
		RunID:   fields["run_id"],
		Mode:    fields["mode"],
	}, nil
}
