package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/career-fit/internal/types"
)

func norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

func TestHashingProvider_Deterministic(t *testing.T) {
	p := NewHashingProvider(128)
	ctx := context.Background()

	a, err := p.Embed(ctx, []string{"Trained PyTorch models for ranking"})
	require.NoError(t, err)
	b, err := p.Embed(ctx, []string{"Trained PyTorch models for ranking"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a[0], 128)
	assert.InDelta(t, 1.0, norm(a[0]), 1e-6)
}

func TestHashingProvider_Similarity(t *testing.T) {
	p := NewHashingProvider(0)
	vecs, err := p.Embed(context.Background(), []string{
		"machine learning model training pipelines",
		"training machine learning models",
		"options pricing stochastic calculus",
	})
	require.NoError(t, err)

	related := Dot(vecs[0], vecs[1])
	unrelated := Dot(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	assert.Equal(t, DefaultHashingDimensions, p.Dimensions())
}

func TestHashingProvider_EmptyText(t *testing.T) {
	vecs, err := NewHashingProvider(16).Embed(context.Background(), []string{"!!!"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm(vecs[0]))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"c++", "and", "c#", "on", "net", "2"}, Tokenize("C++ and C#, on .NET 2."))
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

// flakyProvider fails the first failures calls with err
type flakyProvider struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	dims     int
	batches  []int
	block    bool
}

func (f *flakyProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.batches = append(f.batches, len(texts))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if call <= f.failures {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[i%f.dims] = 2
		out[i] = v
	}
	return out, nil
}

func (f *flakyProvider) Dimensions() int { return f.dims }
func (f *flakyProvider) Name() string    { return "flaky" }

func newTestResilient(p Provider, cfg RetryConfig) *Resilient {
	r := NewResilient(p, cfg, zerolog.Nop())
	r.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

func TestResilient_RetriesTransientErrors(t *testing.T) {
	p := &flakyProvider{failures: 2, err: &EmbeddingError{Provider: "flaky", Message: "503", Retryable: true}, dims: 4}
	r := newTestResilient(p, RetryConfig{MaxAttempts: 3})

	vecs, err := r.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, p.calls)
	assert.InDelta(t, 1.0, norm(vecs[0]), 1e-6)
}

func TestResilient_GivesUpAfterMaxAttempts(t *testing.T) {
	p := &flakyProvider{failures: 10, err: errors.New("connection reset"), dims: 4}
	r := newTestResilient(p, RetryConfig{MaxAttempts: 3})

	_, err := r.Embed(context.Background(), []string{"a"})
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, 3, embErr.Attempts)
	assert.Equal(t, 3, p.calls)
}

func TestResilient_DoesNotRetryPermanentErrors(t *testing.T) {
	p := &flakyProvider{failures: 10, err: &EmbeddingError{Provider: "flaky", Message: "invalid key", Retryable: false}, dims: 4}
	r := newTestResilient(p, RetryConfig{MaxAttempts: 5})

	_, err := r.Embed(context.Background(), []string{"a"})
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.False(t, embErr.Retryable)
	assert.Equal(t, 1, p.calls)
}

func TestResilient_TimeoutIsBounded(t *testing.T) {
	p := &flakyProvider{block: true, dims: 4}
	r := newTestResilient(p, RetryConfig{MaxAttempts: 2, Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := r.Embed(context.Background(), []string{"a"})
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, embErr.Error(), "timed out")
	assert.Equal(t, 2, p.calls)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResilient_SplitsBatches(t *testing.T) {
	p := &flakyProvider{dims: 4}
	r := newTestResilient(p, RetryConfig{BatchSize: 2})

	vecs, err := r.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, []int{2, 2, 1}, p.batches)
}

type wrongDimsProvider struct{ flakyProvider }

func (w *wrongDimsProvider) Dimensions() int { return 8 }

func TestResilient_RejectsDimensionMismatch(t *testing.T) {
	p := &wrongDimsProvider{flakyProvider{dims: 4}}
	r := newTestResilient(p, RetryConfig{MaxAttempts: 3})

	_, err := r.Embed(context.Background(), []string{"a"})
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Contains(t, embErr.Error(), "dimension")
}

func TestResilient_CanceledContext(t *testing.T) {
	p := &flakyProvider{failures: 10, err: errors.New("boom"), dims: 4}
	r := newTestResilient(p, RetryConfig{MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Embed(ctx, []string{"a"})
	assert.Error(t, err)
	assert.LessOrEqual(t, p.calls, 1)
}

func TestEmbedChunks(t *testing.T) {
	p := NewHashingProvider(64)
	chunks := []types.Chunk{
		{ID: "a", Text: "trained ranking models in pytorch"},
		{ID: "b", Text: "built low latency order routing"},
	}
	require.NoError(t, EmbedChunks(context.Background(), p, chunks))
	for _, c := range chunks {
		require.Len(t, c.Embedding, 64)
		assert.InDelta(t, 1.0, norm(c.Embedding), 1e-5)
	}

	assert.NoError(t, EmbedChunks(context.Background(), p, nil))
}
