package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	return store, dir
}

func testCheckpoint(id, migrationID string, createdAt time.Time) *Checkpoint {
	cp := &Checkpoint{
		CheckpointID:      id,
		MigrationRecordID: migrationID,
		StepName:          "issues[0:100]",
		Status:            StatusPending,
		CreatedAt:         createdAt,
		EntitiesProcessed: 25,
		EntitiesTotal:     100,
	}
	cp.recomputeProgress()
	return cp
}

func TestNewFileStoreCreatesLayout(t *testing.T) {
	t.Parallel()

	_, dir := newTestStore(t)

	for _, sub := range []string{"active", "completed", "failed", "recovery_plans"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// Idempotent on an existing layout
	_, err := NewFileStore(dir, zap.NewNop())
	assert.NoError(t, err)
}

func TestFileStoreSaveAndMove(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t)
	cp := testCheckpoint("cp-1", "R1", time.Now())

	require.NoError(t, store.Save(cp))
	assert.FileExists(t, filepath.Join(dir, "active", "cp-1.json"))

	require.NoError(t, store.Move("cp-1", StateActive, StateCompleted))
	assert.NoFileExists(t, filepath.Join(dir, "active", "cp-1.json"))
	assert.FileExists(t, filepath.Join(dir, "completed", "cp-1.json"))

	// Moving an already-moved checkpoint is a no-op, not an error
	assert.NoError(t, store.Move("cp-1", StateActive, StateCompleted))
}

func TestFileStoreListForMigration(t *testing.T) {
	t.Parallel()

	store, dir := newTestStore(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	second := testCheckpoint("cp-2", "R1", base.Add(time.Minute))
	second.Status = StatusCompleted
	require.NoError(t, store.Save(second))
	require.NoError(t, store.Move("cp-2", StateActive, StateCompleted))

	first := testCheckpoint("cp-1", "R1", base)
	first.Status = StatusFailed
	require.NoError(t, store.Save(first))
	require.NoError(t, store.Move("cp-1", StateActive, StateFailed))

	other := testCheckpoint("cp-3", "R2", base)
	other.Status = StatusCompleted
	require.NoError(t, store.Save(other))
	require.NoError(t, store.Move("cp-3", StateActive, StateCompleted))

	// A malformed file is skipped, not fatal
	require.NoError(t, os.WriteFile(filepath.Join(dir, "completed", "junk.json"), []byte("{not json"), 0o644))

	got, err := store.ListForMigration("R1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cp-1", got[0].CheckpointID)
	assert.Equal(t, "cp-2", got[1].CheckpointID)
	assert.Equal(t, StatusFailed, got[0].Status)
	assert.Equal(t, StatusCompleted, got[1].Status)

	empty, err := store.ListForMigration("R-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFileStorePlans(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	plan := NewRecoveryPlan("cp-9", FailureAuth, "401 unauthorized", nil)
	require.NoError(t, store.SavePlan(plan))

	loaded, err := store.LoadPlan(plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.PlanID, loaded.PlanID)
	assert.Equal(t, ActionManualIntervention, loaded.RecommendedAction)
	assert.Equal(t, plan.ManualSteps, loaded.ManualSteps)

	_, err = store.LoadPlan("no-such-plan")
	assert.Error(t, err)
}
