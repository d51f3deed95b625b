package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const planDir = "recovery_plans"

// FileStore implements Store with one JSON file per record, organized into
// lifecycle subdirectories under a base directory:
//
//	<base>/active/<checkpoint_id>.json
//	<base>/completed/<checkpoint_id>.json
//	<base>/failed/<checkpoint_id>.json
//	<base>/recovery_plans/<plan_id>.json
//
// Files are indented JSON so operators can inspect them directly.
type FileStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewFileStore creates the base directory and its lifecycle subdirectories.
// Safe to call on an existing layout.
func NewFileStore(baseDir string, logger *zap.Logger) (*FileStore, error) {
	for _, sub := range []string{string(StateActive), string(StateCompleted), string(StateFailed), planDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", sub, err)
		}
	}

	return &FileStore{
		baseDir: baseDir,
		logger:  logger,
	}, nil
}

func (s *FileStore) checkpointPath(state State, checkpointID string) string {
	return filepath.Join(s.baseDir, string(state), checkpointID+".json")
}

// Save writes or overwrites the checkpoint's file in the active directory.
// It never changes the record's in-memory state.
func (s *FileStore) Save(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint %s: %w", cp.CheckpointID, err)
	}

	path := s.checkpointPath(StateActive, cp.CheckpointID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", cp.CheckpointID, err)
	}

	return nil
}

// Move relocates a checkpoint file between lifecycle directories. A missing
// source file is logged and ignored so the operation is idempotent under retry.
func (s *FileStore) Move(checkpointID string, from, to State) error {
	src := s.checkpointPath(from, checkpointID)
	dst := s.checkpointPath(to, checkpointID)

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("Checkpoint file missing during move",
				zap.String("checkpoint_id", checkpointID),
				zap.String("from", string(from)),
				zap.String("to", string(to)),
			)
			return nil
		}
		return fmt.Errorf("failed to move checkpoint %s from %s to %s: %w", checkpointID, from, to, err)
	}

	return nil
}

// ListForMigration scans the completed and failed directories and returns
// every checkpoint belonging to the migration run, sorted by created_at
// ascending. Malformed files are skipped with a warning; the scan favors
// availability of the remaining records over strict consistency.
func (s *FileStore) ListForMigration(migrationRecordID string) ([]*Checkpoint, error) {
	var result []*Checkpoint

	for _, state := range []State{StateCompleted, StateFailed} {
		dir := filepath.Join(s.baseDir, string(state))
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s checkpoints: %w", state, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			cp, err := s.readCheckpoint(path)
			if err != nil {
				s.logger.Warn("Skipping malformed checkpoint file",
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}

			if cp.MigrationRecordID == migrationRecordID {
				result = append(result, cp)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (s *FileStore) readCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}

	return &cp, nil
}

// SavePlan persists a recovery plan. Plans have a single directory and no
// lifecycle transitions.
func (s *FileStore) SavePlan(plan *RecoveryPlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize recovery plan %s: %w", plan.PlanID, err)
	}

	path := filepath.Join(s.baseDir, planDir, plan.PlanID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write recovery plan %s: %w", plan.PlanID, err)
	}

	return nil
}

// LoadPlan reads a previously saved recovery plan by id
func (s *FileStore) LoadPlan(planID string) (*RecoveryPlan, error) {
	path := filepath.Join(s.baseDir, planDir, planID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recovery plan %s: %w", planID, err)
	}

	var plan RecoveryPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse recovery plan %s: %w", planID, err)
	}

	return &plan, nil
}
