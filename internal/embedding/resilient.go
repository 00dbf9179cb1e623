package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RetryConfig bounds how long and how often a provider call is attempted.
type RetryConfig struct {
	Timeout           time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BatchSize         int
	RequestsPerSecond float64
	Burst             int
}

// DefaultRetryConfig returns conservative defaults for a hosted embedding API.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:           30 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BatchSize:         GeminiBatchLimit,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// Resilient wraps a Provider with batching, rate limiting, per-call timeouts and bounded
// retries. It also verifies that every returned vector has the expected dimension and is
// normalized.
type Resilient struct {
	next    Provider
	cfg     RetryConfig
	limiter *rate.Limiter
	log     zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilient wraps next using cfg; zero fields fall back to DefaultRetryConfig values.
func NewResilient(next Provider, cfg RetryConfig, log zerolog.Logger) *Resilient {
	def := DefaultRetryConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = cfg.Burst
		if burst <= 0 {
			burst = 1
		}
	}

	return &Resilient{
		next:    next,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("component", "embedding").Str("provider", next.Name()).Logger(),
		sleep:   sleepContext,
	}
}

// Embed embeds texts in batches, retrying transient failures.
func (r *Resilient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := r.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Dimensions returns the wrapped provider's vector size
func (r *Resilient) Dimensions() int {
	return r.next.Dimensions()
}

// Name returns the wrapped provider's name
func (r *Resilient) Name() string {
	return r.next.Name()
}

func (r *Resilient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	backoff := r.cfg.InitialBackoff
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &EmbeddingError{Provider: r.next.Name(), Message: "rate limiter wait aborted", Attempts: attempt, Cause: err}
		}

		vectors, err := r.call(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var embErr *EmbeddingError
		retryable := ctx.Err() == nil && (!errors.As(err, &embErr) || embErr.Retryable)
		if !retryable || attempt == r.cfg.MaxAttempts {
			break
		}

		r.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Int("batch", len(batch)).Msg("embedding failed, retrying")
		if err := r.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	var embErr *EmbeddingError
	if errors.As(lastErr, &embErr) {
		wrapped := *embErr
		wrapped.Attempts = attempts
		return nil, &wrapped
	}
	return nil, &EmbeddingError{Provider: r.next.Name(), Message: "embedding failed", Attempts: attempts, Cause: lastErr}
}

func (r *Resilient) call(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	vectors, err := r.next.Embed(callCtx, batch)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &EmbeddingError{Provider: r.next.Name(), Message: fmt.Sprintf("timed out after %s", r.cfg.Timeout), Retryable: true, Cause: err}
		}
		return nil, err
	}

	if len(vectors) != len(batch) {
		return nil, &EmbeddingError{Provider: r.next.Name(), Message: fmt.Sprintf("expected %d vectors, got %d", len(batch), len(vectors)), Retryable: true}
	}
	dims := r.next.Dimensions()
	for i, v := range vectors {
		if len(v) == 0 || (dims > 0 && len(v) != dims) {
			return nil, &EmbeddingError{Provider: r.next.Name(), Message: fmt.Sprintf("vector %d has dimension %d, want %d", i, len(v), dims)}
		}
		Normalize(v)
	}
	return vectors, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
