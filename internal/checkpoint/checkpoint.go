package checkpoint

import (
	"time"
)

// Status represents the lifecycle status of a checkpoint
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Metadata is an open key-value bag attached to checkpoints and plans.
// Values must be JSON-representable (string, number, bool, nil, nested
// map/slice); the engine never interprets the contents.
type Metadata map[string]any

// Checkpoint records the progress of one step of one migration run
type Checkpoint struct {
	CheckpointID       string     `json:"checkpoint_id"`
	MigrationRecordID  string     `json:"migration_record_id"`
	StepName           string     `json:"step_name"`
	StepDescription    string     `json:"step_description"`
	Status             Status     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	FailedAt           *time.Time `json:"failed_at,omitempty"`
	EntitiesProcessed  int64      `json:"entities_processed"`
	EntitiesTotal      int64      `json:"entities_total"`
	ProgressPercentage float64    `json:"progress_percentage"`
	CurrentEntityID    string     `json:"current_entity_id,omitempty"`
	CurrentEntityType  string     `json:"current_entity_type,omitempty"`
	DataSnapshot       Metadata   `json:"data_snapshot,omitempty"`
	Metadata           Metadata   `json:"metadata,omitempty"`
}

// recomputeProgress refreshes the derived progress percentage. Called after
// every change to entities_processed or entities_total.
func (c *Checkpoint) recomputeProgress() {
	if c.EntitiesTotal > 0 {
		c.ProgressPercentage = float64(c.EntitiesProcessed) / float64(c.EntitiesTotal) * 100
	} else {
		c.ProgressPercentage = 0
	}
}

// clone returns a deep enough copy for handing out across the manager
// boundary without sharing the metadata maps.
func (c *Checkpoint) clone() *Checkpoint {
	cp := *c
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	if c.FailedAt != nil {
		t := *c.FailedAt
		cp.FailedAt = &t
	}
	cp.DataSnapshot = cloneMetadata(c.DataSnapshot)
	cp.Metadata = cloneMetadata(c.Metadata)
	return &cp
}

func cloneMetadata(m Metadata) Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
