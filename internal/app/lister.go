package app

import (
	"context"
	"fmt"

	"issuemigrate/internal/tracker"
	"issuemigrate/internal/worker"

	"go.uber.org/zap"
)

// EntityLister pages entities out of the source tracker and enqueues them as
// batch tasks for the worker pool.
type EntityLister struct {
	source tracker.Source
	logger *zap.Logger
}

// Count returns the total number of entities of a type in the source
func (l *EntityLister) Count(ctx context.Context, entityType string) (int64, error) {
	total, err := l.source.CountEntities(ctx, entityType)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", entityType, err)
	}
	return total, nil
}

// EnqueueBatches pages through one entity type and enqueues a task per batch.
// Offsets present in skip are already covered by completed checkpoints of a
// previous run and are not re-fetched. onPage is invoked after each page with
// the number of entities paged so far, for progress reporting.
func (l *EntityLister) EnqueueBatches(
	ctx context.Context,
	migrationRecordID, entityType string,
	total int64,
	batchSize int,
	skip map[int]bool,
	tasks chan<- worker.Task,
	onPage func(paged int64),
) error {
	var paged int64

	for offset := 0; int64(offset) < total; offset += batchSize {
		if skip[offset] {
			paged += int64(batchSize)
			if paged > total {
				paged = total
			}
			l.logger.Debug("Skipping batch covered by checkpoint",
				zap.String("entity_type", entityType),
				zap.Int("offset", offset),
			)
			if onPage != nil {
				onPage(paged)
			}
			continue
		}

		entities, err := l.source.ListEntities(ctx, entityType, offset, batchSize)
		if err != nil {
			return fmt.Errorf("failed to list %s at offset %d: %w", entityType, offset, err)
		}
		if len(entities) == 0 {
			break
		}

		task := worker.Task{
			MigrationRecordID: migrationRecordID,
			EntityType:        entityType,
			Offset:            offset,
			BatchSize:         batchSize,
			Entities:          entities,
		}

		select {
		case tasks <- task:
			l.logger.Debug("Enqueued batch",
				zap.String("entity_type", entityType),
				zap.Int("offset", offset),
				zap.Int("entities", len(entities)),
			)
		case <-ctx.Done():
			return ctx.Err()
		}

		paged += int64(len(entities))
		if onPage != nil {
			onPage(paged)
		}
	}

	return nil
}
