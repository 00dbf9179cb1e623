// Package db provides session artifact storage on PostgreSQL or SQLite.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fit_sessions (
	id                 TEXT PRIMARY KEY,
	current_generation BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS fit_session_artifacts (
	session_id TEXT NOT NULL REFERENCES fit_sessions(id) ON DELETE CASCADE,
	generation BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	content    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (session_id, generation, kind)
);`

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// Connect establishes a connection pool to the database and creates the tables if needed
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// CommitGeneration writes artifacts and flips the session's generation in one transaction
func (db *DB) CommitGeneration(ctx context.Context, c Commit) error {
	if err := validateCommit(c); err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT current_generation FROM fit_sessions WHERE id = $1 FOR UPDATE`,
		c.SessionID,
	).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO fit_sessions (id, current_generation) VALUES ($1, $2)`,
			c.SessionID, c.Generation,
		)
		if err != nil {
			return fmt.Errorf("failed to create session %s: %w", c.SessionID, err)
		}
	case err != nil:
		return fmt.Errorf("failed to read session %s: %w", c.SessionID, err)
	case current >= c.Generation:
		return fmt.Errorf("session %s at generation %d, commit %d: %w", c.SessionID, current, c.Generation, ErrStaleGeneration)
	default:
		_, err = tx.Exec(ctx,
			`UPDATE fit_sessions SET current_generation = $2, updated_at = NOW() WHERE id = $1`,
			c.SessionID, c.Generation,
		)
		if err != nil {
			return fmt.Errorf("failed to advance session %s: %w", c.SessionID, err)
		}
	}

	for kind, content := range c.Artifacts {
		_, err = tx.Exec(ctx,
			`INSERT INTO fit_session_artifacts (session_id, generation, kind, content)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (session_id, generation, kind) DO UPDATE SET content = $4, created_at = NOW()`,
			c.SessionID, c.Generation, kind, content,
		)
		if err != nil {
			return fmt.Errorf("failed to save artifact %s: %w", kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit generation %d of session %s: %w", c.Generation, c.SessionID, err)
	}
	return nil
}

// GetSession retrieves a session record by id
func (db *DB) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	var rec SessionRecord
	err := db.pool.QueryRow(ctx,
		`SELECT id, current_generation, created_at, updated_at FROM fit_sessions WHERE id = $1`,
		sessionID,
	).Scan(&rec.ID, &rec.CurrentGeneration, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &rec, nil
}

// LoadArtifacts retrieves every artifact of one generation
func (db *DB) LoadArtifacts(ctx context.Context, sessionID string, generation int64) (map[string][]byte, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT kind, content FROM fit_session_artifacts WHERE session_id = $1 AND generation = $2`,
		sessionID, generation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts of session %s: %w", sessionID, err)
	}
	defer rows.Close()

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

// ListSessions returns all committed sessions
func (db *DB) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, current_generation, created_at, updated_at FROM fit_sessions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.CurrentGeneration, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneGenerations deletes artifacts older than keep
func (db *DB) PruneGenerations(ctx context.Context, sessionID string, keep int64) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM fit_session_artifacts WHERE session_id = $1 AND generation < $2`,
		sessionID, keep,
	)
	if err != nil {
		return fmt.Errorf("failed to prune session %s: %w", sessionID, err)
	}
	return nil
}

// DeleteSession removes a session; artifacts cascade
func (db *DB) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM fit_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}
