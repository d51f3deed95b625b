package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProgressTrackingLifecycle(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t)

	mgr.StartProgressTracking("R1", 10, "")
	status := mgr.GetProgressStatus("R1")
	require.NotNil(t, status)
	assert.Equal(t, "Initializing", status.CurrentStep)
	assert.Equal(t, 10, status.TotalSteps)
	assert.Equal(t, "running", status.Status)
	assert.Zero(t, status.OverallProgress)

	completed := 3
	stepProgress := 50.0
	mgr.UpdateProgress("R1", ProgressUpdate{
		CompletedSteps:      &completed,
		CurrentStepProgress: &stepProgress,
	})

	status = mgr.GetProgressStatus("R1")
	require.NotNil(t, status)
	assert.InDelta(t, 35.0, status.OverallProgress, 1e-9)

	// Restarting tracking overwrites the previous tracker
	mgr.StartProgressTracking("R1", 4, "users")
	status = mgr.GetProgressStatus("R1")
	assert.Equal(t, 4, status.TotalSteps)
	assert.Zero(t, status.CompletedSteps)
}

func TestUpdateProgressWithoutTracker(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t)

	completed := 1
	mgr.UpdateProgress("nope", ProgressUpdate{CompletedSteps: &completed})
	assert.Nil(t, mgr.GetProgressStatus("nope"))
}

func TestOverallProgressNonDecreasing(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t)
	mgr.StartProgressTracking("R2", 5, "s1")

	updates := []struct {
		completed int
		step      float64
	}{
		{0, 10}, {0, 80}, {1, 0}, {1, 50}, {2, 25}, {4, 100}, {5, 0},
	}

	last := -1.0
	for _, u := range updates {
		u := u
		mgr.UpdateProgress("R2", ProgressUpdate{
			CompletedSteps:      &u.completed,
			CurrentStepProgress: &u.step,
		})
		status := mgr.GetProgressStatus("R2")
		require.NotNil(t, status)
		assert.GreaterOrEqual(t, status.OverallProgress, last)
		last = status.OverallProgress
	}
	assert.InDelta(t, 100.0, last, 1e-9)
}

func TestTrackerThroughputAndETA(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("throughput and minutes rendering", func(t *testing.T) {
		tracker := &ProgressTracker{TotalSteps: 10, CompletedSteps: 4, StartTime: start}
		tracker.recompute(start.Add(8 * time.Minute))

		// 4 steps in 8 minutes: 0.5 steps/minute, 6 steps left = 12 minutes
		assert.InDelta(t, 0.5, tracker.ThroughputPerMinute, 1e-9)
		assert.Equal(t, "12.0 minutes", tracker.EstimatedTimeRemaining)
		assert.InDelta(t, 40.0, tracker.OverallProgress, 1e-9)
	})

	t.Run("hours rendering", func(t *testing.T) {
		tracker := &ProgressTracker{TotalSteps: 100, CompletedSteps: 10, StartTime: start}
		tracker.recompute(start.Add(60 * time.Minute))

		// 0.1667 steps/minute leaves 90 steps = 540 minutes = 9 hours
		assert.Equal(t, "9.0 hours", tracker.EstimatedTimeRemaining)
	})

	t.Run("no elapsed time means no estimate", func(t *testing.T) {
		tracker := &ProgressTracker{TotalSteps: 10, CompletedSteps: 4, StartTime: start}
		tracker.recompute(start)

		assert.Zero(t, tracker.ThroughputPerMinute)
		assert.Empty(t, tracker.EstimatedTimeRemaining)
	})

	t.Run("partial step counts toward throughput", func(t *testing.T) {
		tracker := &ProgressTracker{TotalSteps: 10, CompletedSteps: 2, CurrentStepProgress: 50, StartTime: start}
		tracker.recompute(start.Add(5 * time.Minute))

		assert.InDelta(t, 0.5, tracker.ThroughputPerMinute, 1e-9)
		assert.InDelta(t, 25.0, tracker.OverallProgress, 1e-9)
	})
}

func TestCleanupRemovesTracker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	mgr := NewManager(store, zap.NewNop())

	mgr.StartProgressTracking("R3", 2, "s1")
	require.NotNil(t, mgr.GetProgressStatus("R3"))

	mgr.CleanupCompletedMigration("R3")
	assert.Nil(t, mgr.GetProgressStatus("R3"))
}
