package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New creates and initializes a new SQLite database connection.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		grid_row INTEGER NOT NULL,
		grid_col INTEGER NOT NULL,
		min_lon REAL NOT NULL,
		min_lat REAL NOT NULL,
		max_lon REAL NOT NULL,
		max_lat REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT DEFAULT '',
		error_kind TEXT DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (grid_row, grid_col)
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		tiles_processed INTEGER NOT NULL DEFAULT 0,
		tiles_succeeded INTEGER NOT NULL DEFAULT 0,
		tiles_failed INTEGER NOT NULL DEFAULT 0,
		reason TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS poles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		detection_count INTEGER NOT NULL DEFAULT 0,
		superseded INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tile_id INTEGER NOT NULL,
		pole_id INTEGER NOT NULL,
		class TEXT NOT NULL,
		confidence REAL NOT NULL,
		x1 REAL NOT NULL,
		y1 REAL NOT NULL,
		x2 REAL NOT NULL,
		y2 REAL NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		dedup_key TEXT NOT NULL UNIQUE,
		FOREIGN KEY (tile_id) REFERENCES tiles(id),
		FOREIGN KEY (pole_id) REFERENCES poles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tiles_status ON tiles(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_poles_lat_lon ON poles(lat, lon);
	CREATE INDEX IF NOT EXISTS idx_detections_pole_id ON detections(pole_id);
	CREATE INDEX IF NOT EXISTS idx_detections_tile_id ON detections(tile_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
