package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/worktree-tools/ccmanager/internal/session"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// FileName is the default database file name under the config directory.
const FileName = "history.db"

// StateDB wraps a SQLite database holding the state transition history.
// Thread-safe for concurrent use from multiple goroutines within one process.
// Multiple OS processes can safely read/write via WAL mode + busy timeout.
type StateDB struct {
	db *sql.DB
}

// TransitionRow represents one recorded state transition.
type TransitionRow struct {
	ID        int64
	SessionID string
	Worktree  string
	Branch    string
	OldState  string
	NewState  string
	At        time.Time
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: foreign keys: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	// Checkpoint WAL to merge it back into the main database file
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist and runs any pending migrations.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// metadata table
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	// transitions table
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			worktree   TEXT NOT NULL DEFAULT '',
			branch     TEXT NOT NULL DEFAULT '',
			old_state  TEXT NOT NULL,
			new_state  TEXT NOT NULL,
			at         INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create transitions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transitions_session
		ON transitions (session_id, at)
	`); err != nil {
		return fmt.Errorf("statedb: index transitions: %w", err)
	}

	// Set schema version
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// RecordTransition appends one state change to the history.
// Satisfies session.TransitionSink.
func (s *StateDB) RecordTransition(change session.StateChange) error {
	_, err := s.db.Exec(`
		INSERT INTO transitions (session_id, worktree, branch, old_state, new_state, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		change.SessionID, change.Worktree, change.Branch,
		string(change.OldState), string(change.NewState),
		change.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("statedb: record transition: %w", err)
	}
	return nil
}

// History returns the most recent transitions, newest first.
// sessionID filters to one session when non-empty. limit <= 0 means no limit.
func (s *StateDB) History(sessionID string, limit int) ([]TransitionRow, error) {
	query := `
		SELECT id, session_id, worktree, branch, old_state, new_state, at
		FROM transitions
	`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("statedb: query history: %w", err)
	}
	defer rows.Close()

	var result []TransitionRow
	for rows.Next() {
		var r TransitionRow
		var atNanos int64
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Worktree, &r.Branch,
			&r.OldState, &r.NewState, &atNanos,
		); err != nil {
			return nil, err
		}
		r.At = time.Unix(0, atNanos)
		result = append(result, r)
	}
	return result, rows.Err()
}

// PruneBefore removes transitions older than cutoff. Returns rows removed.
func (s *StateDB) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM transitions WHERE at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("statedb: prune: %w", err)
	}
	return res.RowsAffected()
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
