package catalog

import (
	"time"
)

// RunStatus represents the status of a migration run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one end-to-end migration execution. Its id groups every checkpoint
// written by that execution.
type Run struct {
	MigrationRecordID string    `json:"migration_record_id"`
	SourceEndpoint    string    `json:"source_endpoint"`
	TargetEndpoint    string    `json:"target_endpoint"`
	EntityTypes       string    `json:"entity_types"`
	Status            RunStatus `json:"status"`
	EntitiesMigrated  int64     `json:"entities_migrated"`
	EntitiesFailed    int64     `json:"entities_failed"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Catalog defines the interface for migration-run persistence
type Catalog interface {
	GetRun(migrationRecordID string) (*Run, error)
	SaveRun(run *Run) error
	LatestRun() (*Run, error)
	ListRunsByStatus(status RunStatus) ([]*Run, error)
	Close() error
}
