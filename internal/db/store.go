package db

import (
	"context"
	"fmt"
	"strings"
)

// Store persists session artifacts keyed by (session, generation) together with each
// session's current generation.
type Store interface {
	// CommitGeneration writes the artifacts and moves the session to c.Generation in one
	// transaction. It returns ErrStaleGeneration if the session is already at or past it.
	CommitGeneration(ctx context.Context, c Commit) error
	// GetSession returns the session record, or nil if the session was never committed.
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	// LoadArtifacts returns every artifact of one generation, keyed by kind.
	LoadArtifacts(ctx context.Context, sessionID string, generation int64) (map[string][]byte, error)
	// ListSessions returns all committed sessions ordered by id.
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	// PruneGenerations deletes artifacts of generations older than keep.
	PruneGenerations(ctx context.Context, sessionID string, keep int64) error
	// DeleteSession removes a session and all its artifacts.
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

// Open connects to the store named by url: a postgres:// or postgresql:// URL selects
// PostgreSQL, anything else is a SQLite file path.
func Open(ctx context.Context, url string) (Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return Connect(ctx, url)
	}
	if url == "" {
		return nil, fmt.Errorf("no database location configured")
	}
	return OpenSQLite(ctx, url)
}

func validateCommit(c Commit) error {
	if c.SessionID == "" {
		return fmt.Errorf("commit without session id")
	}
	if c.Generation <= 0 {
		return fmt.Errorf("commit for session %s has invalid generation %d", c.SessionID, c.Generation)
	}
	return nil
}
