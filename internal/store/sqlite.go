package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/HakAl/spindle/internal/config"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	retention *config.RetentionConfig
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dbPath string, retention *config.RetentionConfig) (*SQLiteStore, error) {
	// Open database with WAL mode and recommended pragmas
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Force a connection to ensure the file is created
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Captured thinking text may be sensitive; restrict file access
	if err := setSecureFilePermissions(dbPath); err != nil {
		_ = err // Best effort - Windows handles this via ACLs
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{
		db:        db,
		retention: retention,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// setSecureFilePermissions sets restrictive permissions on the database file.
func setSecureFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}

	// WAL and SHM files may not exist yet; ignore errors
	os.Chmod(path+"-wal", 0600)
	os.Chmod(path+"-shm", 0600)

	return nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version WHERE id = 1").Scan(&version)
	if err != nil {
		if _, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				version INTEGER NOT NULL,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			);
			INSERT OR IGNORE INTO schema_version (id, version) VALUES (1, 0);
		`); err != nil {
			return fmt.Errorf("creating schema_version: %w", err)
		}
		version = 0
	}

	migrations := []string{
		migrationV1, // Initial schema
	}

	for i := version; i < len(migrations); i++ {
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("UPDATE schema_version SET version = ?, applied_at = datetime('now') WHERE id = 1", i+1); err != nil {
			return fmt.Errorf("updating version to %d: %w", i+1, err)
		}
	}

	return nil
}

const migrationV1 = `
-- Spindles table
CREATE TABLE IF NOT EXISTS spindles (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	connection_id TEXT NOT NULL,
	block_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	started_at TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	truncated INTEGER DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	expires_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_spindles_completed ON spindles(completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_spindles_session ON spindles(session_id, completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_spindles_connection ON spindles(connection_id);
CREATE INDEX IF NOT EXISTS idx_spindles_expires ON spindles(expires_at) WHERE expires_at IS NOT NULL;
`

// SaveSpindle inserts a new spindle.
func (s *SQLiteStore) SaveSpindle(ctx context.Context, sp *Spindle) error {
	var expiresAt *string
	if s.retention != nil && s.retention.SpindlesTTLDays > 0 {
		t := time.Now().AddDate(0, 0, s.retention.SpindlesTTLDays).UTC().Format(time.RFC3339Nano)
		expiresAt = &t
	} else if sp.ExpiresAt != nil {
		t := sp.ExpiresAt.UTC().Format(time.RFC3339Nano)
		expiresAt = &t
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spindles (id, session_id, connection_id, block_index, content, started_at, completed_at, truncated, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID,
		sp.SessionID,
		sp.ConnectionID,
		sp.BlockIndex,
		sp.Content,
		sp.StartedAt.UTC().Format(time.RFC3339Nano),
		sp.CompletedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(sp.Truncated),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting spindle: %w", err)
	}
	return nil
}

// GetSpindle returns a single spindle by ID.
func (s *SQLiteStore) GetSpindle(ctx context.Context, id string) (*Spindle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, connection_id, block_index, content, started_at, completed_at, truncated, created_at, expires_at
		FROM spindles WHERE id = ?`, id)
	sp, err := scanSpindle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("spindle %s not found", id)
	}
	return sp, err
}

// ListSpindles returns spindles matching the filter, newest first.
func (s *SQLiteStore) ListSpindles(ctx context.Context, filter SpindleFilter) ([]*Spindle, error) {
	query := `
		SELECT id, session_id, connection_id, block_index, content, started_at, completed_at, truncated, created_at, expires_at
		FROM spindles WHERE 1=1`
	var args []interface{}

	if filter.SessionID != nil {
		query += " AND session_id = ?"
		args = append(args, *filter.SessionID)
	}
	if filter.ConnectionID != nil {
		query += " AND connection_id = ?"
		args = append(args, *filter.ConnectionID)
	}
	if filter.StartTime != nil {
		query += " AND completed_at >= ?"
		args = append(args, filter.StartTime.UTC().Format(time.RFC3339Nano))
	}
	if filter.EndTime != nil {
		query += " AND completed_at <= ?"
		args = append(args, filter.EndTime.UTC().Format(time.RFC3339Nano))
	}

	query += " ORDER BY completed_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing spindles: %w", err)
	}
	defer rows.Close()

	var spindles []*Spindle
	for rows.Next() {
		sp, err := scanSpindle(rows)
		if err != nil {
			return nil, err
		}
		spindles = append(spindles, sp)
	}
	return spindles, rows.Err()
}

// GetStats returns aggregate spindle statistics.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(truncated), 0),
		       COALESCE(SUM(LENGTH(content)), 0),
		       COUNT(DISTINCT session_id)
		FROM spindles`).Scan(
		&stats.TotalSpindles,
		&stats.TruncatedSpindles,
		&stats.TotalContentBytes,
		&stats.Sessions,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return stats, nil
}

// RunRetention deletes expired spindles.
func (s *SQLiteStore) RunRetention(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, "DELETE FROM spindles WHERE expires_at IS NOT NULL AND expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired spindles: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSpindle(row scanner) (*Spindle, error) {
	var sp Spindle
	var sessionID sql.NullString
	var startedAt, completedAt, createdAt string
	var expiresAt sql.NullString
	var truncated int

	err := row.Scan(&sp.ID, &sessionID, &sp.ConnectionID, &sp.BlockIndex, &sp.Content,
		&startedAt, &completedAt, &truncated, &createdAt, &expiresAt)
	if err != nil {
		return nil, err
	}

	if sessionID.Valid {
		sp.SessionID = &sessionID.String
	}
	sp.Truncated = truncated != 0
	sp.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	sp.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
	sp.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	if expiresAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, expiresAt.String); err == nil {
			sp.ExpiresAt = &t
		}
	}

	return &sp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
