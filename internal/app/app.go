package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"issuemigrate/internal/catalog"
	"issuemigrate/internal/checkpoint"
	"issuemigrate/internal/config"
	"issuemigrate/internal/metrics"
	"issuemigrate/internal/storage"
	"issuemigrate/internal/tracker"
	"issuemigrate/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Migrator represents the main migration application
type Migrator struct {
	cfg        *config.Config
	logger     *zap.Logger
	source     tracker.Source
	target     tracker.Target
	checkpoint *checkpoint.Manager
	catalog    catalog.Catalog
	archive    storage.Archive
	metrics    *metrics.Collector
}

// New creates a new migrator instance
func New(cfg *config.Config, logger *zap.Logger) (*Migrator, error) {
	srcClient, err := tracker.NewRESTClient(tracker.Config{
		BaseURL:  cfg.Source.Endpoint,
		APIToken: cfg.Source.APIToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}

	dstClient, err := tracker.NewRESTClient(tracker.Config{
		BaseURL:  cfg.Target.Endpoint,
		APIToken: cfg.Target.APIToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create target client: %w", err)
	}

	store, err := checkpoint.NewFileStore(cfg.Migration.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	runCatalog, err := catalog.NewSQLiteCatalog(cfg.Migration.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to open run catalog: %w", err)
	}

	var archive storage.Archive
	if cfg.Archive.Enabled {
		archive, err = storage.NewMinIOArchive(context.Background(), storage.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			Secure:    cfg.Archive.Secure,
		})
		if err != nil {
			runCatalog.Close()
			return nil, fmt.Errorf("failed to create archive client: %w", err)
		}
	}

	return &Migrator{
		cfg:        cfg,
		logger:     logger,
		source:     srcClient,
		target:     dstClient,
		checkpoint: checkpoint.NewManager(store, logger),
		catalog:    runCatalog,
		archive:    archive,
		metrics:    metrics.New(),
	}, nil
}

// Run executes the migration process
func (m *Migrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run, err := m.resolveRun()
	if err != nil {
		return err
	}

	m.logger.Info("Starting migration",
		zap.String("migration_record_id", run.MigrationRecordID),
		zap.String("source", m.cfg.Source.Endpoint),
		zap.String("target", m.cfg.Target.Endpoint),
		zap.Strings("entity_types", m.cfg.Migration.EntityTypes),
		zap.Int("concurrency", m.cfg.Migration.Concurrency),
		zap.Bool("dry_run", m.cfg.Migration.DryRun),
	)

	// Start metrics server in a goroutine with error handling
	go func() {
		if err := m.metrics.StartServer(m.cfg.Migration.MetricsAddr); err != nil {
			m.logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	// Offsets already covered by completed checkpoints of a prior execution
	covered := m.coveredOffsets(run.MigrationRecordID)

	m.checkpoint.StartProgressTracking(run.MigrationRecordID, len(m.cfg.Migration.EntityTypes), "Initializing")

	tasks := make(chan worker.Task, m.cfg.Migration.Concurrency*2)

	pool := worker.NewPool(m.cfg.Migration.Concurrency, worker.Config{
		Retries:        m.cfg.Migration.Retries,
		RetryBackoffMs: m.cfg.Migration.RetryBackoffMs,
		DryRun:         m.cfg.Migration.DryRun,
	}, m.target, m.checkpoint, m.archive, m.metrics, m.logger, cancel)

	var wg sync.WaitGroup
	pool.Start(ctx, tasks, &wg)

	lister := &EntityLister{
		source: m.source,
		logger: m.logger,
	}

	listErr := m.enqueueAll(ctx, run, lister, covered, tasks)

	close(tasks)
	wg.Wait()

	migrated, failed, skipped := pool.Totals()
	run.EntitiesMigrated += migrated
	run.EntitiesFailed += failed

	if status := m.checkpoint.GetProgressStatus(run.MigrationRecordID); status != nil {
		m.metrics.SetOverallProgress(status.OverallProgress)
	}

	switch {
	case listErr != nil && ctx.Err() == nil:
		run.Status = catalog.RunFailed
		m.saveRun(run)
		return fmt.Errorf("failed to list source entities: %w", listErr)

	case ctx.Err() != nil:
		run.Status = catalog.RunFailed
		m.saveRun(run)
		m.logger.Warn("Migration stopped before completion",
			zap.String("migration_record_id", run.MigrationRecordID),
			zap.Int64("migrated", migrated),
			zap.Int64("failed", failed),
		)
		return ctx.Err()

	case failed > 0:
		run.Status = catalog.RunFailed
		m.saveRun(run)
		m.logger.Warn("Migration finished with failed batches; re-run with --resume after addressing recovery plans",
			zap.Int64("migrated", migrated),
			zap.Int64("failed", failed),
			zap.Int64("skipped", skipped),
		)
		return nil

	default:
		run.Status = catalog.RunCompleted
		m.saveRun(run)
		m.checkpoint.CleanupCompletedMigration(run.MigrationRecordID)
		m.logger.Info("Migration completed",
			zap.Int64("migrated", migrated),
			zap.Int64("skipped", skipped),
		)
		return nil
	}
}

// resolveRun creates a new run record, or revives the latest one when
// --resume is set and a previous execution left checkpoints behind.
func (m *Migrator) resolveRun() (*catalog.Run, error) {
	if m.cfg.Migration.Resume {
		last, err := m.catalog.LatestRun()
		if err != nil {
			return nil, fmt.Errorf("failed to look up previous run: %w", err)
		}
		if last != nil && last.Status != catalog.RunCompleted {
			if point := m.checkpoint.GetResumePoint(last.MigrationRecordID); point != nil {
				m.logger.Info("Resuming previous migration",
					zap.String("migration_record_id", last.MigrationRecordID),
					zap.String("resume_step", point.StepName),
				)
			} else {
				m.logger.Info("No resume point found, re-running previous migration from scratch",
					zap.String("migration_record_id", last.MigrationRecordID),
				)
			}
			last.Status = catalog.RunRunning
			m.saveRun(last)
			return last, nil
		}
		m.logger.Info("No resumable run found, starting fresh")
	}

	run := &catalog.Run{
		MigrationRecordID: uuid.NewString(),
		SourceEndpoint:    m.cfg.Source.Endpoint,
		TargetEndpoint:    m.cfg.Target.Endpoint,
		EntityTypes:       strings.Join(m.cfg.Migration.EntityTypes, ","),
		Status:            catalog.RunRunning,
		StartedAt:         time.Now(),
	}
	if err := m.catalog.SaveRun(run); err != nil {
		return nil, fmt.Errorf("failed to record migration run: %w", err)
	}

	return run, nil
}

// coveredOffsets maps each entity type to the batch offsets already covered
// by completed checkpoints, read back from their data snapshots.
func (m *Migrator) coveredOffsets(migrationRecordID string) map[string]map[int]bool {
	covered := make(map[string]map[int]bool)

	for _, cp := range m.checkpoint.GetCheckpointsForMigration(migrationRecordID) {
		if cp.Status != checkpoint.StatusCompleted {
			continue
		}

		entityType, ok := cp.DataSnapshot["entity_type"].(string)
		if !ok {
			continue
		}
		offset, ok := snapshotInt(cp.DataSnapshot["offset"])
		if !ok {
			continue
		}

		if covered[entityType] == nil {
			covered[entityType] = make(map[int]bool)
		}
		covered[entityType][offset] = true
	}

	return covered
}

func (m *Migrator) enqueueAll(
	ctx context.Context,
	run *catalog.Run,
	lister *EntityLister,
	covered map[string]map[int]bool,
	tasks chan<- worker.Task,
) error {
	for i, entityType := range m.cfg.Migration.EntityTypes {
		total, err := lister.Count(ctx, entityType)
		if err != nil {
			return err
		}

		m.logger.Info("Migrating entity type",
			zap.String("entity_type", entityType),
			zap.Int64("total", total),
		)

		step := entityType
		zero := 0.0
		m.checkpoint.UpdateProgress(run.MigrationRecordID, checkpoint.ProgressUpdate{
			CurrentStep:         &step,
			CurrentStepProgress: &zero,
		})

		err = lister.EnqueueBatches(ctx, run.MigrationRecordID, entityType, total,
			m.cfg.Migration.BatchSize, covered[entityType], tasks,
			func(paged int64) {
				if total == 0 {
					return
				}
				pct := float64(paged) / float64(total) * 100
				m.checkpoint.UpdateProgress(run.MigrationRecordID, checkpoint.ProgressUpdate{
					CurrentStepProgress: &pct,
				})
			})
		if err != nil {
			return err
		}

		completed := i + 1
		reset := 0.0
		m.checkpoint.UpdateProgress(run.MigrationRecordID, checkpoint.ProgressUpdate{
			CompletedSteps:      &completed,
			CurrentStepProgress: &reset,
		})
	}

	return nil
}

func (m *Migrator) saveRun(run *catalog.Run) {
	if err := m.catalog.SaveRun(run); err != nil {
		m.logger.Error("Failed to update run catalog",
			zap.String("migration_record_id", run.MigrationRecordID),
			zap.Error(err),
		)
	}
}

func snapshotInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Close cleans up resources
func (m *Migrator) Close() error {
	if m.catalog != nil {
		return m.catalog.Close()
	}
	return nil
}
