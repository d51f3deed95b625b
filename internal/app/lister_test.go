package app

import (
	"context"
	"fmt"
	"testing"

	"issuemigrate/internal/tracker"
	"issuemigrate/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource serves a fixed number of entities per type
type fakeSource struct {
	counts map[string]int64
}

func (f *fakeSource) CountEntities(_ context.Context, entityType string) (int64, error) {
	return f.counts[entityType], nil
}

func (f *fakeSource) ListEntities(_ context.Context, entityType string, offset, limit int) ([]tracker.Entity, error) {
	total := int(f.counts[entityType])
	if offset >= total {
		return nil, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	entities := make([]tracker.Entity, 0, end-offset)
	for i := offset; i < end; i++ {
		id := fmt.Sprintf("%s-%d", entityType, i)
		entities = append(entities, tracker.Entity{ID: id, Type: entityType, Fields: map[string]any{"id": id}})
	}
	return entities, nil
}

func TestEnqueueBatches(t *testing.T) {
	t.Parallel()

	lister := &EntityLister{
		source: &fakeSource{counts: map[string]int64{"issues": 25}},
		logger: zap.NewNop(),
	}

	tasks := make(chan worker.Task, 10)
	var pages []int64

	err := lister.EnqueueBatches(context.Background(), "run-1", "issues", 25, 10, nil, tasks,
		func(paged int64) { pages = append(pages, paged) })
	require.NoError(t, err)
	close(tasks)

	var got []worker.Task
	for task := range tasks {
		got = append(got, task)
	}

	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Offset)
	assert.Equal(t, 10, got[1].Offset)
	assert.Equal(t, 20, got[2].Offset)
	assert.Len(t, got[2].Entities, 5)
	assert.Equal(t, "issues-20", got[2].Entities[0].ID)
	assert.Equal(t, []int64{10, 20, 25}, pages)
}

func TestEnqueueBatchesSkipsCoveredOffsets(t *testing.T) {
	t.Parallel()

	lister := &EntityLister{
		source: &fakeSource{counts: map[string]int64{"issues": 30}},
		logger: zap.NewNop(),
	}

	tasks := make(chan worker.Task, 10)
	skip := map[int]bool{0: true, 10: true}

	err := lister.EnqueueBatches(context.Background(), "run-1", "issues", 30, 10, skip, tasks, nil)
	require.NoError(t, err)
	close(tasks)

	var got []worker.Task
	for task := range tasks {
		got = append(got, task)
	}

	require.Len(t, got, 1)
	assert.Equal(t, 20, got[0].Offset)
}

func TestEnqueueBatchesCancelled(t *testing.T) {
	t.Parallel()

	lister := &EntityLister{
		source: &fakeSource{counts: map[string]int64{"issues": 50}},
		logger: zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered channel with no consumer: only cancellation can unblock
	tasks := make(chan worker.Task)
	err := lister.EnqueueBatches(ctx, "run-1", "issues", 50, 10, nil, tasks, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoveredOffsetsSnapshotDecoding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100, mustSnapshotInt(t, float64(100)))
	assert.Equal(t, 7, mustSnapshotInt(t, 7))
	assert.Equal(t, 3, mustSnapshotInt(t, int64(3)))

	_, ok := snapshotInt("nope")
	assert.False(t, ok)
}

func mustSnapshotInt(t *testing.T, v any) int {
	t.Helper()
	n, ok := snapshotInt(v)
	require.True(t, ok)
	return n
}
