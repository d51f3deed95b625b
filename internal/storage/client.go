package storage

import (
	"context"
)

// Archive stores batch snapshots on an S3-compatible endpoint. Each completed
// batch is archived as one JSON object keyed by run and checkpoint id, which
// gives a rollback recommendation something concrete to roll back from.
type Archive interface {
	// Put stores an archive object
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves an archive object
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys under a prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config contains archive client configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}
