package checkpoint

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager coordinates checkpoint, recovery-plan, and progress-tracker
// lifecycles. It is the only surface callers interact with.
//
// The manager owns the in-memory indices of active checkpoints and progress
// trackers; the store owns the on-disk representation. Persistence is
// best-effort: save/move failures are logged and the in-memory state remains
// authoritative until the next restart. Lookup misses (unknown checkpoint or
// plan ids) are logged no-ops — a bookkeeping miss never aborts a migration.
//
// Concurrent calls for distinct checkpoint ids are safe. Callers must not
// invoke start/complete/fail concurrently for the same checkpoint id.
type Manager struct {
	store  Store
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]*Checkpoint

	trackerMu sync.Mutex
	trackers  map[string]*ProgressTracker

	now func() time.Time
}

// CreateOptions carries the caller-supplied fields for a new checkpoint
type CreateOptions struct {
	MigrationRecordID string
	StepName          string
	StepDescription   string
	EntitiesProcessed int64
	EntitiesTotal     int64
	CurrentEntityID   string
	CurrentEntityType string
	DataSnapshot      Metadata
	Metadata          Metadata
}

// ProgressUpdate carries the optional fields of an UpdateProgress call;
// nil fields are left unchanged.
type ProgressUpdate struct {
	CurrentStep         *string
	CurrentStepProgress *float64
	CompletedSteps      *int
}

// NewManager creates a checkpoint manager backed by the given store
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		logger:   logger,
		active:   make(map[string]*Checkpoint),
		trackers: make(map[string]*ProgressTracker),
		now:      time.Now,
	}
}

// CreateCheckpoint registers a new pending checkpoint for a migration step and
// returns its id. The checkpoint exists in memory even if persistence fails.
func (m *Manager) CreateCheckpoint(opts CreateOptions) string {
	cp := &Checkpoint{
		CheckpointID:      uuid.NewString(),
		MigrationRecordID: opts.MigrationRecordID,
		StepName:          opts.StepName,
		StepDescription:   opts.StepDescription,
		Status:            StatusPending,
		CreatedAt:         m.now(),
		EntitiesProcessed: opts.EntitiesProcessed,
		EntitiesTotal:     opts.EntitiesTotal,
		CurrentEntityID:   opts.CurrentEntityID,
		CurrentEntityType: opts.CurrentEntityType,
		DataSnapshot:      cloneMetadata(opts.DataSnapshot),
		Metadata:          cloneMetadata(opts.Metadata),
	}
	cp.recomputeProgress()

	m.mu.Lock()
	m.active[cp.CheckpointID] = cp
	snapshot := cp.clone()
	m.mu.Unlock()

	m.persist(snapshot)

	m.logger.Info("Checkpoint created",
		zap.String("checkpoint_id", cp.CheckpointID),
		zap.String("migration_record_id", opts.MigrationRecordID),
		zap.String("step", opts.StepName),
	)

	return cp.CheckpointID
}

// StartCheckpoint marks a checkpoint as in progress
func (m *Manager) StartCheckpoint(checkpointID string) {
	m.mu.Lock()
	cp, ok := m.active[checkpointID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("Cannot start unknown checkpoint", zap.String("checkpoint_id", checkpointID))
		return
	}
	cp.Status = StatusInProgress
	snapshot := cp.clone()
	m.mu.Unlock()

	m.persist(snapshot)

	m.logger.Debug("Checkpoint started", zap.String("checkpoint_id", checkpointID))
}

// CompleteCheckpoint marks a checkpoint as completed and relocates it to
// completed storage. A negative entitiesProcessed leaves the recorded count
// unchanged; metadata entries are merged into the existing bag.
func (m *Manager) CompleteCheckpoint(checkpointID string, entitiesProcessed int64, metadata Metadata) {
	m.mu.Lock()
	cp, ok := m.active[checkpointID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("Cannot complete unknown checkpoint", zap.String("checkpoint_id", checkpointID))
		return
	}

	now := m.now()
	cp.Status = StatusCompleted
	cp.CompletedAt = &now
	if entitiesProcessed >= 0 {
		cp.EntitiesProcessed = entitiesProcessed
		cp.recomputeProgress()
	}
	mergeMetadata(cp, metadata)

	snapshot := cp.clone()
	delete(m.active, checkpointID)
	m.mu.Unlock()

	m.persist(snapshot)
	m.relocate(checkpointID, StateActive, StateCompleted)

	m.logger.Info("Checkpoint completed",
		zap.String("checkpoint_id", checkpointID),
		zap.Int64("entities_processed", snapshot.EntitiesProcessed),
		zap.Float64("progress", snapshot.ProgressPercentage),
	)
}

// FailCheckpoint marks a checkpoint as failed, records the error message in
// its metadata, and relocates it to failed storage.
func (m *Manager) FailCheckpoint(checkpointID, errorMessage string, metadata Metadata) {
	m.mu.Lock()
	cp, ok := m.active[checkpointID]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("Cannot fail unknown checkpoint", zap.String("checkpoint_id", checkpointID))
		return
	}

	now := m.now()
	cp.Status = StatusFailed
	cp.FailedAt = &now
	mergeMetadata(cp, metadata)
	if cp.Metadata == nil {
		cp.Metadata = Metadata{}
	}
	cp.Metadata["error_message"] = errorMessage

	snapshot := cp.clone()
	delete(m.active, checkpointID)
	m.mu.Unlock()

	m.persist(snapshot)
	m.relocate(checkpointID, StateActive, StateFailed)

	m.logger.Warn("Checkpoint failed",
		zap.String("checkpoint_id", checkpointID),
		zap.String("error", errorMessage),
	)
}

// GetResumePoint returns the latest completed checkpoint for a migration run,
// or nil when the run has no safe restart position. Only completed
// checkpoints qualify: in-progress or failed ones may reflect partial writes.
func (m *Manager) GetResumePoint(migrationRecordID string) *Checkpoint {
	var resume *Checkpoint
	for _, cp := range m.GetCheckpointsForMigration(migrationRecordID) {
		if cp.Status != StatusCompleted {
			continue
		}
		if resume == nil || cp.CreatedAt.After(resume.CreatedAt) {
			resume = cp
		}
	}

	if resume != nil {
		m.logger.Info("Resume point located",
			zap.String("migration_record_id", migrationRecordID),
			zap.String("checkpoint_id", resume.CheckpointID),
			zap.String("step", resume.StepName),
		)
	}

	return resume
}

// CanResumeMigration reports whether the run has a resume point
func (m *Manager) CanResumeMigration(migrationRecordID string) bool {
	return m.GetResumePoint(migrationRecordID) != nil
}

// GetCheckpointsForMigration returns the full checkpoint history of a run,
// all statuses, ascending by created_at. Used for diagnostics and reporting.
func (m *Manager) GetCheckpointsForMigration(migrationRecordID string) []*Checkpoint {
	m.mu.Lock()
	result := make([]*Checkpoint, 0)
	for _, cp := range m.active {
		if cp.MigrationRecordID == migrationRecordID {
			result = append(result, cp.clone())
		}
	}
	m.mu.Unlock()

	stored, err := m.store.ListForMigration(migrationRecordID)
	if err != nil {
		m.logger.Error("Failed to scan stored checkpoints",
			zap.String("migration_record_id", migrationRecordID),
			zap.Error(err),
		)
	} else {
		result = append(result, stored...)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result
}

// CreateRecoveryPlan classifies a failure, persists the resulting plan, and
// returns its id. Classification is total, so this succeeds for any input.
func (m *Manager) CreateRecoveryPlan(checkpointID, failureType, errorMessage string, manualSteps []string) string {
	plan := NewRecoveryPlan(checkpointID, failureType, errorMessage, manualSteps)

	if err := m.store.SavePlan(plan); err != nil {
		m.logger.Error("Failed to persist recovery plan",
			zap.String("plan_id", plan.PlanID),
			zap.Error(err),
		)
	}

	m.logger.Info("Recovery plan created",
		zap.String("plan_id", plan.PlanID),
		zap.String("checkpoint_id", checkpointID),
		zap.String("failure_type", failureType),
		zap.String("recommended_action", string(plan.RecommendedAction)),
	)

	return plan.PlanID
}

// ExecuteRecoveryPlan loads a plan and dispatches on its recommended action.
// The actual retry/rollback/skip mechanics belong to the migration driver;
// the manager records and advises. Returns false when the plan demands human
// attention or an abort, or cannot be loaded.
func (m *Manager) ExecuteRecoveryPlan(planID string) bool {
	plan, err := m.store.LoadPlan(planID)
	if err != nil {
		m.logger.Error("Failed to load recovery plan", zap.String("plan_id", planID), zap.Error(err))
		return false
	}

	switch plan.RecommendedAction {
	case ActionRetryFromCheckpoint, ActionRollbackToCheckpoint, ActionSkipAndContinue:
		m.logger.Info("Executing recovery plan",
			zap.String("plan_id", planID),
			zap.String("action", string(plan.RecommendedAction)),
			zap.String("checkpoint_id", plan.CheckpointID),
		)
		return true

	case ActionAbortMigration:
		m.logger.Error("Recovery plan recommends aborting the migration",
			zap.String("plan_id", planID),
			zap.String("checkpoint_id", plan.CheckpointID),
			zap.String("error", plan.ErrorMessage),
		)
		return false

	case ActionManualIntervention:
		m.logger.Warn("Recovery plan requires manual intervention",
			zap.String("plan_id", planID),
			zap.String("checkpoint_id", plan.CheckpointID),
			zap.Strings("manual_steps", plan.ManualSteps),
		)
		return false

	default:
		m.logger.Error("Recovery plan carries unknown action",
			zap.String("plan_id", planID),
			zap.String("action", string(plan.RecommendedAction)),
		)
		return false
	}
}

// StartProgressTracking creates a fresh progress tracker for a run,
// overwriting any existing one for the same id.
func (m *Manager) StartProgressTracking(migrationRecordID string, totalSteps int, currentStep string) {
	if currentStep == "" {
		currentStep = "Initializing"
	}

	now := m.now()
	tracker := &ProgressTracker{
		MigrationRecordID: migrationRecordID,
		TotalSteps:        totalSteps,
		CurrentStep:       currentStep,
		StartTime:         now,
		LastUpdate:        now,
		Status:            "running",
	}

	m.trackerMu.Lock()
	m.trackers[migrationRecordID] = tracker
	m.trackerMu.Unlock()

	m.logger.Info("Progress tracking started",
		zap.String("migration_record_id", migrationRecordID),
		zap.Int("total_steps", totalSteps),
	)
}

// UpdateProgress applies the provided fields and recomputes the derived
// overall progress, throughput, and ETA. Logged no-op if no tracker exists.
func (m *Manager) UpdateProgress(migrationRecordID string, update ProgressUpdate) {
	m.trackerMu.Lock()
	defer m.trackerMu.Unlock()

	tracker, ok := m.trackers[migrationRecordID]
	if !ok {
		m.logger.Warn("No progress tracker for migration", zap.String("migration_record_id", migrationRecordID))
		return
	}

	if update.CurrentStep != nil {
		tracker.CurrentStep = *update.CurrentStep
	}
	if update.CurrentStepProgress != nil {
		tracker.CurrentStepProgress = *update.CurrentStepProgress
	}
	if update.CompletedSteps != nil {
		tracker.CompletedSteps = *update.CompletedSteps
	}

	tracker.recompute(m.now())
}

// GetProgressStatus returns a copy of the run's tracker, or nil if none exists
func (m *Manager) GetProgressStatus(migrationRecordID string) *ProgressTracker {
	m.trackerMu.Lock()
	defer m.trackerMu.Unlock()

	tracker, ok := m.trackers[migrationRecordID]
	if !ok {
		return nil
	}
	return tracker.clone()
}

// CleanupCompletedMigration drops the run's progress tracker and relocates any
// lingering active checkpoints into completed storage. Once the run is
// declared done, still-active checkpoints are treated as implicitly successful.
func (m *Manager) CleanupCompletedMigration(migrationRecordID string) {
	m.trackerMu.Lock()
	delete(m.trackers, migrationRecordID)
	m.trackerMu.Unlock()

	m.mu.Lock()
	var lingering []*Checkpoint
	for id, cp := range m.active {
		if cp.MigrationRecordID == migrationRecordID {
			now := m.now()
			cp.Status = StatusCompleted
			cp.CompletedAt = &now
			lingering = append(lingering, cp.clone())
			delete(m.active, id)
		}
	}
	m.mu.Unlock()

	for _, cp := range lingering {
		m.persist(cp)
		m.relocate(cp.CheckpointID, StateActive, StateCompleted)
	}

	m.logger.Info("Migration cleaned up",
		zap.String("migration_record_id", migrationRecordID),
		zap.Int("lingering_checkpoints", len(lingering)),
	)
}

// persist saves a checkpoint, logging and swallowing failures: durability is
// best-effort and the in-memory record stays authoritative.
func (m *Manager) persist(cp *Checkpoint) {
	if err := m.store.Save(cp); err != nil {
		m.logger.Error("Failed to persist checkpoint",
			zap.String("checkpoint_id", cp.CheckpointID),
			zap.Error(err),
		)
	}
}

func (m *Manager) relocate(checkpointID string, from, to State) {
	if err := m.store.Move(checkpointID, from, to); err != nil {
		m.logger.Error("Failed to relocate checkpoint",
			zap.String("checkpoint_id", checkpointID),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}

func mergeMetadata(cp *Checkpoint, metadata Metadata) {
	if len(metadata) == 0 {
		return
	}
	if cp.Metadata == nil {
		cp.Metadata = Metadata{}
	}
	for k, v := range metadata {
		cp.Metadata[k] = v
	}
}
