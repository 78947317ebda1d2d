package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"village-chatbot-backend/internal/logger"
	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/models"
)

// runProgress is the slice of the progress store the index watcher reads.
type runProgress interface {
	Get(ctx context.Context) (models.IndexProgress, error)
}

// maintainableCache groups the cache operations the background jobs need.
type maintainableCache interface {
	Clear(ctx context.Context) (int64, error)
	SweepExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the server's background jobs: watching for finished
// indexing runs and sweeping expired cache entries.
type Scheduler struct {
	scheduler *gocron.Scheduler
	progress  runProgress
	holder    *vectorstore.Holder
	cache     maintainableCache

	lastRunID string
}

func NewScheduler(progress runProgress, holder *vectorstore.Holder, cache maintainableCache) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &Scheduler{
		scheduler: s,
		progress:  progress,
		holder:    holder,
		cache:     cache,
	}
}

// Start registers the jobs and begins running them asynchronously.
func (s *Scheduler) Start(sweepInterval time.Duration) error {
	s.seedLastRun()

	if _, err := s.scheduler.Every(10 * time.Second).Tag("index-watcher").Do(s.watchIndexRuns); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(sweepInterval).Tag("cache-sweep").Do(s.sweepCache); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	logger.Info("Background scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// seedLastRun records the run that finished before this process started.
// Without it every restart would mistake the last finished run for fresh
// news and clear the whole response cache once.
func (s *Scheduler) seedLastRun() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	progress, err := s.progress.Get(ctx)
	if err != nil {
		logger.Warn("Failed to seed index watcher state", "error", err)
		return
	}
	if !progress.Running {
		s.lastRunID = progress.RunID
	}
}

// watchIndexRuns reloads the index snapshot and clears the response cache
// when a run the server has not seen yet reaches its terminal state. The
// worker process does the indexing, so this poll is how the server learns
// about new knowledge.
func (s *Scheduler) watchIndexRuns() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	progress, err := s.progress.Get(ctx)
	if err != nil {
		logger.Warn("Index watcher failed to read progress", "error", err)
		return
	}

	if progress.Running || progress.RunID == "" || progress.RunID == s.lastRunID {
		return
	}

	logger.Info("Detected finished indexing run, reloading index", "run_id", progress.RunID)
	if err := s.holder.Reload(); err != nil {
		logger.Error("Failed to reload index after run", "run_id", progress.RunID, "error", err)
		return
	}

	deleted, err := s.cache.Clear(ctx)
	if err != nil {
		logger.Error("Failed to clear cache after run", "error", err)
	} else {
		logger.Info("Cache cleared after indexing run", "entries", deleted)
	}

	s.lastRunID = progress.RunID
}

func (s *Scheduler) sweepCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := s.cache.SweepExpired(ctx)
	if err != nil {
		logger.Warn("Cache sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("Swept expired cache entries", "deleted", deleted)
	}
}
