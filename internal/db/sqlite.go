package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fit_sessions (
	id                 TEXT PRIMARY KEY,
	current_generation INTEGER NOT NULL,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS fit_session_artifacts (
	session_id TEXT NOT NULL REFERENCES fit_sessions(id) ON DELETE CASCADE,
	generation INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	content    BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, generation, kind)
);`

// SQLite is a Store backed by a local SQLite file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; the pragmas above are per connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CommitGeneration writes artifacts and flips the session's generation in one transaction.
func (s *SQLite) CommitGeneration(ctx context.Context, c Commit) error {
	if err := validateCommit(c); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()
	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT current_generation FROM fit_sessions WHERE id = ?`, c.SessionID,
	).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fit_sessions (id, current_generation, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			c.SessionID, c.Generation, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create session %s: %w", c.SessionID, err)
		}
	case err != nil:
		return fmt.Errorf("failed to read session %s: %w", c.SessionID, err)
	case current >= c.Generation:
		return fmt.Errorf("session %s at generation %d, commit %d: %w", c.SessionID, current, c.Generation, ErrStaleGeneration)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE fit_sessions SET current_generation = ?, updated_at = ? WHERE id = ?`,
			c.Generation, now, c.SessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to advance session %s: %w", c.SessionID, err)
		}
	}

	for kind, content := range c.Artifacts {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO fit_session_artifacts (session_id, generation, kind, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			c.SessionID, c.Generation, kind, content, now,
		)
		if err != nil {
			return fmt.Errorf("failed to save artifact %s: %w", kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit generation %d of session %s: %w", c.Generation, c.SessionID, err)
	}
	return nil
}

// GetSession retrieves a session record by id.
func (s *SQLite) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, current_generation, created_at, updated_at FROM fit_sessions WHERE id = ?`,
		sessionID,
	).Scan(&rec.ID, &rec.CurrentGeneration, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return &rec, nil
}

// LoadArtifacts retrieves every artifact of one generation.
func (s *SQLite) LoadArtifacts(ctx context.Context, sessionID string, generation int64) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, content FROM fit_session_artifacts WHERE session_id = ? AND generation = ?`,
		sessionID, generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts of session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]byte)
	for rows.Next() {
		var kind string
		var content []byte
		if err := rows.Scan(&kind, &content); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out[kind] = content
	}
	return out, rows.Err()
}

// ListSessions returns all committed sessions.
func (s *SQLite) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, current_generation, created_at, updated_at FROM fit_sessions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var created, updated int64
		if err := rows.Scan(&rec.ID, &rec.CurrentGeneration, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		rec.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneGenerations deletes artifacts older than keep.
func (s *SQLite) PruneGenerations(ctx context.Context, sessionID string, keep int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM fit_session_artifacts WHERE session_id = ? AND generation < ?`,
		sessionID, keep,
	)
	if err != nil {
		return fmt.Errorf("failed to prune session %s: %w", sessionID, err)
	}
	return nil
}

// DeleteSession removes a session and its artifacts.
func (s *SQLite) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fit_session_artifacts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete artifacts of session %s: %w", sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fit_sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return tx.Commit()
}
