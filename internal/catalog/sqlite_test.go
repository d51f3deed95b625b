package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()

	c, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testRun(id string, startedAt time.Time) *Run {
	return &Run{
		MigrationRecordID: id,
		SourceEndpoint:    "https://tracker.example.com",
		TargetEndpoint:    "https://pm.example.com",
		EntityTypes:       "users,projects,issues",
		Status:            RunRunning,
		StartedAt:         startedAt,
	}
}

func TestCatalogSaveAndGet(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)

	run := testRun("run-1", time.Now())
	require.NoError(t, c.SaveRun(run))

	got, err := c.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.SourceEndpoint, got.SourceEndpoint)
	assert.Equal(t, RunRunning, got.Status)

	missing, err := c.GetRun("run-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCatalogUpsert(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)

	run := testRun("run-2", time.Now())
	require.NoError(t, c.SaveRun(run))

	run.Status = RunCompleted
	run.EntitiesMigrated = 1234
	require.NoError(t, c.SaveRun(run))

	got, err := c.GetRun("run-2")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, int64(1234), got.EntitiesMigrated)
}

func TestCatalogLatestRun(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)

	empty, err := c.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, empty)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.SaveRun(testRun("run-old", base)))
	require.NoError(t, c.SaveRun(testRun("run-new", base.Add(time.Hour))))

	latest, err := c.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-new", latest.MigrationRecordID)
}

func TestCatalogListRunsByStatus(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	running := testRun("run-a", base)
	require.NoError(t, c.SaveRun(running))

	done := testRun("run-b", base.Add(time.Minute))
	done.Status = RunCompleted
	require.NoError(t, c.SaveRun(done))

	got, err := c.ListRunsByStatus(RunRunning)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-a", got[0].MigrationRecordID)
}

func TestCatalogClosed(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)
	require.NoError(t, c.Close())

	assert.Error(t, c.SaveRun(testRun("run-x", time.Now())))
	_, err := c.GetRun("run-x")
	assert.Error(t, err)
}
