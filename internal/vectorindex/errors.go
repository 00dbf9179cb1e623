package vectorindex

import (
	"errors"
	"fmt"
)

// ErrStaleStage is returned when a staged snapshot is published after another writer has
// already moved the scope past its base generation.
var ErrStaleStage = errors.New("staged snapshot is stale")

// IndexConsistencyError reports a persisted index whose vector file and chunk metadata disagree.
// Searches never observe a partially written scope, so this only surfaces when loading from disk.
type IndexConsistencyError struct {
	Scope      string
	Generation int64
	Message    string
	Cause      error
}

func (e *IndexConsistencyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("index %s generation %d inconsistent: %s: %v", e.Scope, e.Generation, e.Message, e.Cause)
	}
	return fmt.Sprintf("index %s generation %d inconsistent: %s", e.Scope, e.Generation, e.Message)
}

func (e *IndexConsistencyError) Unwrap() error {
	return e.Cause
}

// ScopeError reports an invalid scope identifier
type ScopeError struct {
	Scope   string
	Message string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("invalid scope %q: %s", e.Scope, e.Message)
}
