package session

import "errors"

var (
	// ErrSessionBusy is returned when a session already has the maximum number of queued runs.
	ErrSessionBusy = errors.New("session has too many pending runs")
	// ErrSessionNotFound is returned for a session id that was never uploaded.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotReady is returned when a session has no committed analysis yet.
	ErrSessionNotReady = errors.New("session has no completed analysis yet")
	// ErrClosed is returned once the manager is shutting down.
	ErrClosed = errors.New("session manager is closed")
)
