// Package status tracks the processing stage of uploads and materials additions.
package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonathan/career-fit/internal/types"
)

// ErrUploadNotFound is returned for an upload id that was never started or has expired.
var ErrUploadNotFound = errors.New("upload not found")

// Tracker records the stage of each upload. Transitions only move forward; see
// types.CanTransition.
type Tracker interface {
	// Start registers a new upload in the uploading stage.
	Start(ctx context.Context, uploadID, sessionID, kind string) error
	// Advance moves an upload to stage. Backward or post-terminal moves return *types.TransitionError.
	Advance(ctx context.Context, uploadID string, stage types.Stage, detail string) error
	// Fail moves an upload to the error stage with cause's message.
	Fail(ctx context.Context, uploadID string, cause error) error
	// Get returns the current status of an upload.
	Get(ctx context.Context, uploadID string) (*types.UploadStatus, error)
}

// apply computes the next status for a transition request.
func apply(cur types.UploadStatus, stage types.Stage, detail, errMsg string, now time.Time) (types.UploadStatus, error) {
	if !types.CanTransition(cur.Stage, stage) {
		return cur, &types.TransitionError{UploadID: cur.UploadID, From: cur.Stage, To: stage}
	}
	next := cur
	next.Stage = stage
	next.Detail = detail
	next.Error = errMsg
	next.UpdatedAt = now
	return next, nil
}

// MemoryTracker keeps statuses in process memory. A status not updated within ttl expires,
// matching the Redis tracker's key expiry.
type MemoryTracker struct {
	mu        sync.RWMutex
	statuses  map[string]types.UploadStatus
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker creates an empty in-memory tracker. A ttl of zero keeps statuses forever.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{
		statuses: make(map[string]types.UploadStatus),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (t *MemoryTracker) expired(st types.UploadStatus, now time.Time) bool {
	return t.ttl > 0 && now.Sub(st.UpdatedAt) > t.ttl
}

// sweep drops expired statuses at most once per ttl. Callers hold the write lock.
func (t *MemoryTracker) sweep(now time.Time) {
	if t.ttl <= 0 || now.Sub(t.lastSweep) < t.ttl {
		return
	}
	for id, st := range t.statuses {
		if t.expired(st, now) {
			delete(t.statuses, id)
		}
	}
	t.lastSweep = now
}

// Len returns the number of statuses held, expired ones included until the next sweep.
func (t *MemoryTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.statuses)
}

// Start registers a new upload.
func (t *MemoryTracker) Start(_ context.Context, uploadID, sessionID, kind string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.sweep(now)
	t.statuses[uploadID] = types.UploadStatus{
		UploadID:  uploadID,
		SessionID: sessionID,
		Kind:      kind,
		Stage:     types.StageUploading,
		UpdatedAt: now,
	}
	return nil
}

// Advance moves an upload forward.
func (t *MemoryTracker) Advance(_ context.Context, uploadID string, stage types.Stage, detail string) error {
	return t.transition(uploadID, stage, detail, "")
}

// Fail moves an upload to the error stage.
func (t *MemoryTracker) Fail(_ context.Context, uploadID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return t.transition(uploadID, types.StageError, "", msg)
}

func (t *MemoryTracker) transition(uploadID string, stage types.Stage, detail, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	cur, ok := t.statuses[uploadID]
	if !ok || t.expired(cur, now) {
		return ErrUploadNotFound
	}
	next, err := apply(cur, stage, detail, errMsg, now)
	if err != nil {
		return err
	}
	t.statuses[uploadID] = next
	return nil
}

// Get returns a copy of the upload's status.
func (t *MemoryTracker) Get(_ context.Context, uploadID string) (*types.UploadStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[uploadID]
	if !ok || t.expired(st, t.now()) {
		return nil, ErrUploadNotFound
	}
	return &st, nil
}
