package embedding

import "fmt"

// EmbeddingError represents a provider failure or timeout.
// Retryable errors are retried with backoff up to a bounded number of attempts.
type EmbeddingError struct {
	Provider  string
	Message   string
	Retryable bool
	Attempts  int
	Cause     error
}

func (e *EmbeddingError) Error() string {
	msg := fmt.Sprintf("embedding error (%s): %s", e.Provider, e.Message)
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}
