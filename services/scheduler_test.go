package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"village-chatbot-backend/internal/vectorstore"
	"village-chatbot-backend/models"
)

type fakeRunProgress struct {
	progress models.IndexProgress
}

func (f *fakeRunProgress) Get(_ context.Context) (models.IndexProgress, error) {
	return f.progress, nil
}

type cacheJobRecorder struct {
	clears int
	sweeps int
}

func (c *cacheJobRecorder) Clear(_ context.Context) (int64, error) {
	c.clears++
	return 0, nil
}

func (c *cacheJobRecorder) SweepExpired(_ context.Context) (int64, error) {
	c.sweeps++
	return 0, nil
}

func TestWatcherIgnoresRunFinishedBeforeStartup(t *testing.T) {
	progress := &fakeRunProgress{progress: models.IndexProgress{
		Percent: 100,
		Running: false,
		RunID:   "old-run",
	}}
	cache := &cacheJobRecorder{}
	s := NewScheduler(progress, vectorstore.NewHolder(t.TempDir()), cache)

	// The run finished before this process existed; seeing it again after
	// seeding must not clear the cache.
	s.seedLastRun()
	s.watchIndexRuns()
	assert.Zero(t, cache.clears)

	// A genuinely new finished run is handled exactly once.
	progress.progress.RunID = "new-run"
	s.watchIndexRuns()
	assert.Equal(t, 1, cache.clears)

	s.watchIndexRuns()
	assert.Equal(t, 1, cache.clears)
}

func TestWatcherWaitsForRunningRunToFinish(t *testing.T) {
	progress := &fakeRunProgress{progress: models.IndexProgress{
		Percent: 40,
		Running: true,
		RunID:   "run-1",
	}}
	cache := &cacheJobRecorder{}
	s := NewScheduler(progress, vectorstore.NewHolder(t.TempDir()), cache)

	s.seedLastRun()
	s.watchIndexRuns()
	assert.Zero(t, cache.clears, "a run still in flight is not acted on")

	progress.progress.Running = false
	progress.progress.Percent = 100
	s.watchIndexRuns()
	assert.Equal(t, 1, cache.clears)
}
