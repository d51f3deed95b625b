package checkpoint

// State names a lifecycle directory in the store
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Store defines the interface for checkpoint and recovery-plan persistence
type Store interface {
	// Checkpoint operations
	Save(cp *Checkpoint) error
	Move(checkpointID string, from, to State) error
	ListForMigration(migrationRecordID string) ([]*Checkpoint, error)

	// Recovery plan operations
	SavePlan(plan *RecoveryPlan) error
	LoadPlan(planID string) (*RecoveryPlan, error)
}
