// Package database wraps a sqlite connection with the PRAGMA tuning and
// schema bootstrap the core's repositories depend on.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go driver, registered as "sqlite"
)

// Profile selects a PRAGMA tuning preset for a given database's workload.
type Profile string

const (
	// ProfileStandard is a balanced profile for the main application
	// database (facilities, monthly parameters, constants, alerts).
	ProfileStandard Profile = "standard"
	// ProfileLedger favors durability over throughput for append-mostly
	// audit tables.
	ProfileLedger Profile = "ledger"
	// ProfileCache favors throughput over durability for the
	// storage-calculation cache.
	ProfileCache Profile = "cache"
)

// Config configures a DB connection.
type Config struct {
	Path    string
	Profile Profile
	Name    string // logical name, used only in logging/diagnostics
}

// DB wraps a sqlite connection tuned for its declared Profile.
type DB struct {
	conn    *sql.DB
	path    string
	name    string
	profile Profile
}

// New opens (creating if absent) a sqlite database at cfg.Path, tuned
// according to cfg.Profile.
func New(cfg Config) (*DB, error) {
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("database %s: create directory: %w", cfg.Name, err)
	}

	conn, err := sql.Open("sqlite", cfg.Path+buildConnectionString(cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("database %s: open: %w", cfg.Name, err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("database %s: ping: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Profile)

	db := &DB{conn: conn, path: cfg.Path, name: cfg.Name, profile: cfg.Profile}
	return db, nil
}

// buildConnectionString appends PRAGMA query parameters tuned to profile.
func buildConnectionString(profile Profile) string {
	base := "?_pragma=foreign_keys(1)"
	switch profile {
	case ProfileLedger:
		return base + "&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	case ProfileCache:
		return base + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)"
	default:
		return base + "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
}

func configureConnectionPool(conn *sql.DB, profile Profile) {
	switch profile {
	case ProfileCache:
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	default:
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
	}
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying *sql.DB.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the logical name this database was opened with.
func (db *DB) Name() string {
	return db.name
}

// Path returns the filesystem path of the database file.
func (db *DB) Path() string {
	return db.path
}

// Profile returns the tuning profile this database was opened with.
func (db *DB) Profile() Profile {
	return db.profile
}

// Migrate applies schema inside one transaction. It is idempotent:
// CREATE TABLE/INDEX use IF NOT EXISTS, and re-running is a no-op.
func (db *DB) Migrate(schema string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("database %s: begin migration: %w", db.name, err)
	}
	if _, err := tx.Exec(schema); err != nil {
		tx.Rollback()
		return fmt.Errorf("database %s: migrate: %w", db.name, err)
	}
	return tx.Commit()
}

// Begin starts a new transaction.
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows.
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// HealthCheck runs PRAGMA integrity_check and reports the result string.
func (db *DB) HealthCheck() (string, error) {
	var result string
	if err := db.conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return "", fmt.Errorf("database %s: integrity check: %w", db.name, err)
	}
	return result, nil
}

// WALCheckpoint forces a WAL checkpoint with the given mode (PASSIVE,
// FULL, RESTART, TRUNCATE).
func (db *DB) WALCheckpoint(mode string) error {
	_, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	return err
}

// Stats mirrors sql.DBStats for diagnostics endpoints.
type Stats struct {
	OpenConnections int
	InUse           int
	Idle            int
}

// GetStats returns current connection-pool statistics.
func (db *DB) GetStats() Stats {
	s := db.conn.Stats()
	return Stats{OpenConnections: s.OpenConnections, InUse: s.InUse, Idle: s.Idle}
}
