package tracker

import (
	"context"
)

// Entity is one unit of migrated data (a user, a project, an issue). Its
// fields are opaque to the migration engine; only the id and type matter for
// bookkeeping.
type Entity struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// Source is the read side of a migration: the issue tracker being migrated
// away from. Implementations fetch records in pages and may fail at any call.
type Source interface {
	// CountEntities returns the total number of entities of a type
	CountEntities(ctx context.Context, entityType string) (int64, error)

	// ListEntities returns one page of entities of a type
	ListEntities(ctx context.Context, entityType string, offset, limit int) ([]Entity, error)
}

// Target is the write side of a migration: the project-management system
// being migrated into.
type Target interface {
	// CreateEntity writes one entity into the target system
	CreateEntity(ctx context.Context, entity Entity) error
}

// Config contains tracker client configuration
type Config struct {
	BaseURL  string
	APIToken string
}
