package worker

import (
	"issuemigrate/internal/tracker"
)

// Task is one batch of entities to migrate, checkpointed as a single step
type Task struct {
	MigrationRecordID string
	EntityType        string
	Offset            int
	BatchSize         int
	Entities          []tracker.Entity
}

// Config contains worker configuration
type Config struct {
	Retries        int
	RetryBackoffMs int
	DryRun         bool
}
