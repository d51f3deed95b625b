package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"issuemigrate/internal/checkpoint"
	"issuemigrate/internal/metrics"
	"issuemigrate/internal/storage"
	"issuemigrate/internal/tracker"

	"go.uber.org/zap"
)

// BatchProcessor migrates one batch of entities, wrapping the work in a
// checkpoint. Failures are classified into recovery plans and the processor
// honors the recommendation: skip_and_continue drops the entity,
// abort_migration cancels the whole run, and retry_from_checkpoint or
// manual_intervention fail the batch so a later --resume (or the operator)
// picks it up from the last completed checkpoint.
type BatchProcessor struct {
	config     Config
	target     tracker.Target
	checkpoint *checkpoint.Manager
	archive    storage.Archive
	metrics    *metrics.Collector
	logger     *zap.Logger
	pool       *Pool
}

// Process migrates a single batch
func (p *BatchProcessor) Process(ctx context.Context, task Task) {
	startTime := time.Now()
	stepName := fmt.Sprintf("%s[%d:%d]", task.EntityType, task.Offset, task.Offset+len(task.Entities))

	checkpointID := p.checkpoint.CreateCheckpoint(checkpoint.CreateOptions{
		MigrationRecordID: task.MigrationRecordID,
		StepName:          stepName,
		StepDescription:   fmt.Sprintf("Migrate %d %s starting at offset %d", len(task.Entities), task.EntityType, task.Offset),
		EntitiesTotal:     int64(len(task.Entities)),
		CurrentEntityType: task.EntityType,
		DataSnapshot: checkpoint.Metadata{
			"entity_type": task.EntityType,
			"offset":      task.Offset,
			"batch_size":  task.BatchSize,
		},
	})
	p.checkpoint.StartCheckpoint(checkpointID)

	if p.config.DryRun {
		p.logger.Info("Would migrate batch",
			zap.String("step", stepName),
			zap.Int("entities", len(task.Entities)),
		)
		p.checkpoint.CompleteCheckpoint(checkpointID, 0, checkpoint.Metadata{"dry_run": true})
		return
	}

	var processed, skipped int64
	for _, entity := range task.Entities {
		err := p.writeEntity(ctx, entity)
		if err == nil {
			processed++
			continue
		}

		if ctx.Err() != nil {
			// Shutdown in flight; the batch stays incomplete and the run
			// resumes from the previous completed checkpoint.
			p.failBatch(checkpointID, processed, "migration cancelled", startTime)
			return
		}

		failureType := classifyError(err)
		action, proceed := p.fileRecoveryPlan(checkpointID, failureType, err)

		if proceed && action == checkpoint.ActionSkipAndContinue {
			p.logger.Warn("Skipping entity per recovery plan",
				zap.String("entity_id", entity.ID),
				zap.String("entity_type", entity.Type),
				zap.Error(err),
			)
			skipped++
			p.pool.skipped.Add(1)
			p.metrics.AddSkipped(1)
			continue
		}

		p.failBatch(checkpointID, processed, err.Error(), startTime)

		if action == checkpoint.ActionAbortMigration {
			p.logger.Error("Aborting migration per recovery plan", zap.String("step", stepName))
			p.pool.abort()
		}
		return
	}

	md := checkpoint.Metadata{}
	if skipped > 0 {
		md["entities_skipped"] = skipped
	}
	if p.archive != nil {
		md["archived"] = p.archiveBatch(ctx, task, checkpointID)
	}

	p.checkpoint.CompleteCheckpoint(checkpointID, processed, md)
	p.pool.migrated.Add(processed)
	p.metrics.AddMigrated(processed)
	p.metrics.IncCheckpoint(string(checkpoint.StatusCompleted))
	p.metrics.ObserveBatchDuration(time.Since(startTime))

	p.logger.Info("Batch completed",
		zap.String("step", stepName),
		zap.Int64("migrated", processed),
		zap.Int64("skipped", skipped),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// writeEntity writes one entity with exponential-backoff retries for
// transient failures.
func (p *BatchProcessor) writeEntity(ctx context.Context, entity tracker.Entity) error {
	var lastErr error
	for attempt := 1; attempt <= p.config.Retries; attempt++ {
		err := p.target.CreateEntity(ctx, entity)
		if err == nil {
			return nil
		}

		lastErr = err
		p.logger.Warn("Entity write attempt failed",
			zap.String("entity_id", entity.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if !isRetriableError(err) || ctx.Err() != nil {
			break
		}

		if attempt < p.config.Retries {
			time.Sleep(p.calculateBackoff(attempt))
		}
	}

	return lastErr
}

// fileRecoveryPlan records the failure and asks the manager how to respond
func (p *BatchProcessor) fileRecoveryPlan(checkpointID, failureType string, err error) (checkpoint.RecoveryAction, bool) {
	planID := p.checkpoint.CreateRecoveryPlan(checkpointID, failureType, err.Error(), nil)
	action := checkpoint.Classify(failureType, err.Error())
	p.metrics.IncRecoveryPlan(string(action))

	proceed := p.checkpoint.ExecuteRecoveryPlan(planID)
	return action, proceed
}

func (p *BatchProcessor) failBatch(checkpointID string, processed int64, errorMessage string, startTime time.Time) {
	p.checkpoint.FailCheckpoint(checkpointID, errorMessage, nil)
	p.pool.failed.Add(1)
	p.metrics.AddFailed(1)
	p.metrics.IncCheckpoint(string(checkpoint.StatusFailed))
	p.metrics.ObserveBatchDuration(time.Since(startTime))
}

// archiveBatch stores the batch's entities as one JSON object keyed by run
// and checkpoint id. Archive failures never fail the batch.
func (p *BatchProcessor) archiveBatch(ctx context.Context, task Task, checkpointID string) bool {
	data, err := json.Marshal(task.Entities)
	if err != nil {
		p.logger.Error("Failed to serialize batch for archive", zap.Error(err))
		return false
	}

	key := fmt.Sprintf("%s/%s.json", task.MigrationRecordID, checkpointID)
	if err := p.archive.Put(ctx, key, data); err != nil {
		p.logger.Error("Failed to archive batch", zap.String("key", key), zap.Error(err))
		return false
	}

	return true
}

// classifyError derives a failure type from the error text for the recovery
// planner. The mapping errs toward retryable classifications.
func classifyError(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		return checkpoint.FailureTimeout
	case strings.Contains(errStr, "connection"):
		return checkpoint.FailureConnection
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "502") || strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return checkpoint.FailureNetwork
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "unauthorized"):
		return checkpoint.FailureAuth
	case strings.Contains(errStr, "403") || strings.Contains(errStr, "forbidden"):
		return checkpoint.FailurePermission
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "422") ||
		strings.Contains(errStr, "validation") || strings.Contains(errStr, "invalid"):
		return checkpoint.FailureValidation
	case strings.Contains(errStr, "corrupt"):
		return checkpoint.FailureCorruption
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "internal server error"):
		return checkpoint.FailureSystem
	default:
		return checkpoint.FailureUnknown
	}
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		// HTTP 5xx server errors
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout")
}

func (p *BatchProcessor) calculateBackoff(attempt int) time.Duration {
	base := time.Duration(p.config.RetryBackoffMs) * time.Millisecond
	return base * time.Duration(math.Pow(2, float64(attempt-1)))
}
