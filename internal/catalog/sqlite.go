package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCatalog implements Catalog using SQLite
type SQLiteCatalog struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteCatalog creates a new SQLite run catalog
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Configure SQLite for concurrent access
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=2000&_foreign_keys=on&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	catalog := &SQLiteCatalog{
		db:     db,
		closed: false,
	}
	if err := catalog.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return catalog, nil
}

func (c *SQLiteCatalog) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		migration_record_id TEXT PRIMARY KEY,
		source_endpoint TEXT NOT NULL,
		target_endpoint TEXT NOT NULL,
		entity_types TEXT NOT NULL,
		status TEXT NOT NULL,
		entities_migrated INTEGER DEFAULT 0,
		entities_failed INTEGER DEFAULT 0,
		started_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := c.db.Exec(query)
	return err
}

// GetRun retrieves a run record, or nil if the id is unknown
func (c *SQLiteCatalog) GetRun(migrationRecordID string) (*Run, error) {
	if c.closed {
		return nil, fmt.Errorf("run catalog is closed")
	}

	var result *Run
	err := c.retryOnBusy(func() error {
		var err error
		result, err = c.getRunInternal(migrationRecordID)
		return err
	})
	return result, err
}

func (c *SQLiteCatalog) getRunInternal(migrationRecordID string) (*Run, error) {
	query := `
	SELECT migration_record_id, source_endpoint, target_endpoint, entity_types,
	       status, entities_migrated, entities_failed, started_at, updated_at
	FROM runs WHERE migration_record_id = ?
	`

	row := c.db.QueryRow(query, migrationRecordID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// SaveRun inserts or updates a run record
func (c *SQLiteCatalog) SaveRun(run *Run) error {
	if c.closed {
		return fmt.Errorf("run catalog is closed")
	}

	// Serialize writes to avoid SQLITE_BUSY from multiple concurrent writers
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.retryOnBusy(func() error {
		return c.saveRunWithTransaction(run)
	})
}

func (c *SQLiteCatalog) saveRunWithTransaction(run *Run) error {
	run.UpdatedAt = time.Now()

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Ignored if Commit() succeeds

	query := `
    INSERT INTO runs
    (migration_record_id, source_endpoint, target_endpoint, entity_types,
     status, entities_migrated, entities_failed, started_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(migration_record_id) DO UPDATE SET
        source_endpoint = excluded.source_endpoint,
        target_endpoint = excluded.target_endpoint,
        entity_types = excluded.entity_types,
        status = excluded.status,
        entities_migrated = excluded.entities_migrated,
        entities_failed = excluded.entities_failed,
        updated_at = excluded.updated_at
    `

	_, err = tx.Exec(query,
		run.MigrationRecordID,
		run.SourceEndpoint,
		run.TargetEndpoint,
		run.EntityTypes,
		run.Status,
		run.EntitiesMigrated,
		run.EntitiesFailed,
		run.StartedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to execute insert: %w", err)
	}

	return tx.Commit()
}

// LatestRun returns the most recently started run, or nil when the catalog
// is empty. Used by --resume to pick up the previous execution.
func (c *SQLiteCatalog) LatestRun() (*Run, error) {
	if c.closed {
		return nil, fmt.Errorf("run catalog is closed")
	}

	query := `
	SELECT migration_record_id, source_endpoint, target_endpoint, entity_types,
	       status, entities_migrated, entities_failed, started_at, updated_at
	FROM runs ORDER BY started_at DESC LIMIT 1
	`

	row := c.db.QueryRow(query)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// ListRunsByStatus returns all runs with the given status, oldest first
func (c *SQLiteCatalog) ListRunsByStatus(status RunStatus) ([]*Run, error) {
	query := `
	SELECT migration_record_id, source_endpoint, target_endpoint, entity_types,
	       status, entities_migrated, entities_failed, started_at, updated_at
	FROM runs WHERE status = ?
	ORDER BY started_at ASC
	`

	rows, err := c.db.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	err := row.Scan(
		&run.MigrationRecordID,
		&run.SourceEndpoint,
		&run.TargetEndpoint,
		&run.EntityTypes,
		&run.Status,
		&run.EntitiesMigrated,
		&run.EntitiesFailed,
		&run.StartedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// retryOnBusy retries the operation if SQLite is busy
func (c *SQLiteCatalog) retryOnBusy(operation func() error) error {
	maxRetries := 10
	baseDelay := 50 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if isSQLiteBusyError(err) {
			if attempt < maxRetries-1 {
				// Exponential backoff with a little jitter to reduce contention
				delay := baseDelay * time.Duration(1<<uint(attempt))
				jitter := time.Duration(attempt*10) * time.Millisecond
				time.Sleep(delay + jitter)
				continue
			}
		}

		return err
	}

	return nil
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY") ||
		strings.Contains(errorStr, "database is closed")
}

// Close closes the database connection
func (c *SQLiteCatalog) Close() error {
	c.closed = true
	return c.db.Close()
}
