package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/classify"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/ingestion"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

const sampleResume = `Experience
Senior Machine Learning Engineer, Acme
- Fine-tuned LLM models with PyTorch for low latency inference
- Deployed model serving on Kubernetes with Docker and gRPC
- Built feature store and training pipeline with MLflow

Projects
- Built a backtesting engine for volatility signals`

const sampleAddOn = `Additional work
- Designed statistical arbitrage signals with time series econometrics
- Researched alpha from factor models and volatility surfaces`

// recordingExtractor wraps the heuristic extractor and records the chunks it is given
type recordingExtractor struct {
	mu    sync.Mutex
	seen  [][]string
	inner classify.Extractor
	err   error
}

func (r *recordingExtractor) Extract(ctx context.Context, chunks []types.Chunk) (types.Extraction, error) {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	r.mu.Lock()
	r.seen = append(r.seen, ids)
	r.mu.Unlock()
	if r.err != nil {
		return types.Extraction{}, r.err
	}
	return r.inner.Extract(ctx, chunks)
}

func (r *recordingExtractor) Name() string { return "recording" }

// countingProvider counts embedded texts
type countingProvider struct {
	mu    sync.Mutex
	texts int
	inner embedding.Provider
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.texts += len(texts)
	c.mu.Unlock()
	return c.inner.Embed(ctx, texts)
}

func (c *countingProvider) Dimensions() int { return c.inner.Dimensions() }
func (c *countingProvider) Name() string    { return "counting" }

func testOptions(reg *vectorindex.Registry, ext classify.Extractor, emb embedding.Provider) RunOptions {
	return RunOptions{
		SessionID: "s1",
		Text:      sampleResume,
		Source:    types.SourceResume,
		Chunking:  chunking.Options{Size: 160, Overlap: 30},
		Embedder:  emb,
		Extractor: ext,
		Registry:  reg,
		Log:       zerolog.Nop(),
	}
}

func TestRun_FreshUpload(t *testing.T) {
	reg := vectorindex.NewRegistry(nil, zerolog.Nop())
	var stages []types.Stage
	var events []ProgressEvent

	opts := testOptions(reg, classify.NewHeuristicExtractor(), embedding.NewHashingProvider(128))
	opts.OnStage = func(stage types.Stage, _ string) error {
		stages = append(stages, stage)
		return nil
	}
	opts.OnProgress = func(e ProgressEvent) { events = append(events, e) }

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []types.Stage{types.StageParsing, types.StageChunking, types.StageEmbedding, types.StageIndexing}, stages)
	assert.NotEmpty(t, events)
	require.Len(t, res.Segments, 1)
	assert.Greater(t, len(res.Chunks), 1)
	assert.Equal(t, len(res.Chunks), res.EmbeddedChunks)
	assert.NotEmpty(t, res.Extraction.Units)
	assert.True(t, res.Scoring.Distribution.Valid())
	assert.InDelta(t, 1.0, res.Scoring.Distribution.Sum(), 1e-3)

	primary, ok := res.Scoring.Distribution.Primary()
	require.True(t, ok)
	assert.Equal(t, types.RoleMLE, primary)

	// staged, not published
	assert.Equal(t, 0, reg.Current(vectorindex.SessionScope("s1")).Len())
	assert.Equal(t, len(res.Chunks), res.Staged.Snapshot().Len())
}

func TestRun_Deterministic(t *testing.T) {
	run := func() *Result {
		reg := vectorindex.NewRegistry(nil, zerolog.Nop())
		res, err := Run(context.Background(), testOptions(reg, classify.NewHeuristicExtractor(), embedding.NewHashingProvider(128)))
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()

	require.Equal(t, len(a.Chunks), len(b.Chunks))
	for i := range a.Chunks {
		assert.Equal(t, a.Chunks[i].ID, b.Chunks[i].ID)
	}
	assert.Equal(t, a.Scoring.Distribution, b.Scoring.Distribution)
}

func TestRun_IncrementalReusesPriorWork(t *testing.T) {
	reg := vectorindex.NewRegistry(nil, zerolog.Nop())
	rec := &recordingExtractor{inner: classify.NewHeuristicExtractor()}
	emb := &countingProvider{inner: embedding.NewHashingProvider(128)}

	first, err := Run(context.Background(), testOptions(reg, rec, emb))
	require.NoError(t, err)
	require.NoError(t, reg.Commit(context.Background(), first.Staged))

	opts := testOptions(reg, rec, emb)
	opts.Text = sampleAddOn
	opts.Source = types.SourceAddOn
	opts.Previous = &Previous{
		Segments:   first.Segments,
		Extraction: first.Extraction,
		Index:      reg.Current(vectorindex.SessionScope("s1")),
	}
	embeddedBefore := emb.texts

	second, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, second.Segments, 2)
	// earlier chunk ids are unchanged by the addition
	for i, c := range first.Chunks {
		assert.Equal(t, c.ID, second.Chunks[i].ID)
	}
	added := len(second.Chunks) - len(first.Chunks)
	require.Greater(t, added, 0)
	assert.Equal(t, added, second.EmbeddedChunks)
	assert.Equal(t, added, emb.texts-embeddedBefore)

	require.Len(t, rec.seen, 2)
	assert.Len(t, rec.seen[1], added)
	assert.Equal(t, len(first.Extraction.Units), second.ReusedUnits)

	// the addition is quant research material, so QR gains share
	assert.Greater(t, second.Scoring.Distribution.Get(types.RoleQR), first.Scoring.Distribution.Get(types.RoleQR))
	assert.True(t, second.Scoring.Distribution.Valid())
}

func TestRun_ParseError(t *testing.T) {
	reg := vectorindex.NewRegistry(nil, zerolog.Nop())
	opts := testOptions(reg, classify.NewHeuristicExtractor(), embedding.NewHashingProvider(64))
	opts.Text = "   \n\t\n"

	_, err := Run(context.Background(), opts)
	var pe *ingestion.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestRun_ExtractorFailure(t *testing.T) {
	reg := vectorindex.NewRegistry(nil, zerolog.Nop())
	rec := &recordingExtractor{err: errors.New("oracle unavailable")}
	opts := testOptions(reg, rec, embedding.NewHashingProvider(64))

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle unavailable")
	assert.Equal(t, 0, reg.Current(vectorindex.SessionScope("s1")).Len())
}

func TestRun_StageCallbackAborts(t *testing.T) {
	reg := vectorindex.NewRegistry(nil, zerolog.Nop())
	opts := testOptions(reg, classify.NewHeuristicExtractor(), embedding.NewHashingProvider(64))
	opts.OnStage = func(stage types.Stage, _ string) error {
		if stage == types.StageEmbedding {
			return errors.New("upload cancelled")
		}
		return nil
	}

	_, err := Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRun_CanceledContext(t *testing.T) {
	reg := vectorindex.NewRegistry(nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testOptions(reg, classify.NewHeuristicExtractor(), embedding.NewHashingProvider(64)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeExtraction(t *testing.T) {
	chunks := []types.Chunk{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	prev := types.Extraction{
		Units: []types.EvidenceUnit{
			{Text: "kept", OriginatingChunkIDs: []string{"a"}},
			{Text: "gone", OriginatingChunkIDs: []string{"x"}},
			{Text: "shared", OriginatingChunkIDs: []string{"b"}, Ownership: types.OwnershipPrimary},
		},
		CoveredChunkIDs: []string{"a", "b", "x"},
	}
	fresh := types.Extraction{
		Units: []types.EvidenceUnit{
			{Text: "shared", OriginatingChunkIDs: []string{"c"}, Ownership: types.OwnershipPrimary},
			{Text: "new", OriginatingChunkIDs: []string{"c"}},
			{Text: "kept", OriginatingChunkIDs: []string{"a"}},
		},
		CoveredChunkIDs:  []string{"c"},
		Incomplete:       true,
		IncompleteReason: "1 of 1 extraction batches failed validation",
	}

	out, reused := mergeExtraction(prev, fresh, chunks)
	assert.Equal(t, 2, reused)
	require.Len(t, out.Units, 4)
	assert.Equal(t, "kept", out.Units[0].Text)
	assert.Equal(t, []string{"b"}, out.Units[1].OriginatingChunkIDs)
	assert.Equal(t, "shared", out.Units[2].Text)
	assert.Equal(t, []string{"c"}, out.Units[2].OriginatingChunkIDs)
	assert.Equal(t, "new", out.Units[3].Text)
	assert.Equal(t, []string{"a", "b", "c"}, out.CoveredChunkIDs)
	assert.True(t, out.Incomplete)
}

func TestMergeExtraction_ReusedUnitsKeepChunkIDs(t *testing.T) {
	chunks := []types.Chunk{{ID: "a"}, {ID: "n"}}
	prev := types.Extraction{
		Units:           []types.EvidenceUnit{{Text: "Built pricing models", OriginatingChunkIDs: []string{"a"}}},
		CoveredChunkIDs: []string{"a"},
	}
	fresh := types.Extraction{
		Units:           []types.EvidenceUnit{{Text: "Built pricing models", OriginatingChunkIDs: []string{"n"}}},
		CoveredChunkIDs: []string{"n"},
	}

	out, reused := mergeExtraction(prev, fresh, chunks)
	assert.Equal(t, 1, reused)
	require.Len(t, out.Units, 2)
	assert.Equal(t, []string{"a"}, out.Units[0].OriginatingChunkIDs)
	assert.Equal(t, []string{"n"}, out.Units[1].OriginatingChunkIDs)
	assert.Equal(t, []string{"a"}, prev.Units[0].OriginatingChunkIDs)
}
