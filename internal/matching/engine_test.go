package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/classify"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// axisEmbedder maps each role query onto its own axis
type axisEmbedder struct {
	calls int
}

func (a *axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	a.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		found := false
		for _, r := range types.AllRoles() {
			if text == RoleQuery(r) {
				out[i] = axis(r.Index())
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unexpected text %q", text)
		}
	}
	return out, nil
}

func (a *axisEmbedder) Dimensions() int { return 5 }
func (a *axisEmbedder) Name() string    { return "axis" }

func axis(i int) []float32 {
	v := make([]float32, 5)
	v[i] = 1
	return v
}

func vec(weights ...float32) []float32 {
	v := make([]float32, 5)
	copy(v, weights)
	return embedding.Normalize(v)
}

type fakeMatcher struct {
	result *classify.OracleMatch
	err    error
	jd     []types.Chunk
}

func (f *fakeMatcher) Match(_ context.Context, _ []types.ClusterGroup, jd []types.Chunk) (*classify.OracleMatch, error) {
	f.jd = jd
	return f.result, f.err
}

func snapshot(t *testing.T, scope string, chunks ...types.Chunk) *vectorindex.Snapshot {
	t.Helper()
	s, err := vectorindex.NewSnapshot(scope, 1, chunks)
	require.NoError(t, err)
	return s
}

// fixture: MLE demand fully covered, SWE demand covered at 0.6, no QR demand
func fixture(t *testing.T) Input {
	jd := snapshot(t, "jd-global",
		types.Chunk{ID: "j1", Text: "train models", Source: types.SourceJD, Embedding: axis(0)},
		types.Chunk{ID: "j2", Text: "build services", Source: types.SourceJD, Embedding: axis(2)},
	)
	resume := snapshot(t, "session/s1",
		types.Chunk{ID: "r1", Text: "trained models", Source: types.SourceResume, Embedding: axis(0)},
		types.Chunk{ID: "r2", Text: "some services", Source: types.SourceResume, Embedding: vec(0, 0.8, 0.6)},
	)
	units := []types.EvidenceUnit{
		{Text: "trained models", OriginatingChunkIDs: []string{"r1"}, RoleTiers: []types.RoleTier{{Role: types.RoleMLE, Tier: 1}}},
		{Text: "some services", OriginatingChunkIDs: []string{"r2"}, RoleTiers: []types.RoleTier{{Role: types.RoleSWE, Tier: 1}}},
		{Text: "alpha", OriginatingChunkIDs: []string{"r2"}, RoleTiers: []types.RoleTier{{Role: types.RoleQR, Tier: 2}}},
	}
	return Input{
		SessionID:    "s1",
		JDRef:        "jd-1",
		Distribution: types.RoleFitDistribution{types.RoleMLE: 0.4, types.RoleSWE: 0.4, types.RoleQR: 0.2},
		Units:        units,
		Resume:       resume,
		JD:           jd,
	}
}

func newEngine(oracle classify.Matcher, method string) *Engine {
	return NewEngine(&axisEmbedder{}, oracle, Config{TopK: 2, MinRelevance: 0.1, Method: method}, zerolog.Nop())
}

func pct(t *testing.T, res *types.MatchResult, role types.RoleID) *float64 {
	t.Helper()
	for _, cm := range res.PerCluster {
		if cm.Role == role {
			return cm.MatchPct
		}
	}
	t.Fatalf("role %s missing from result", role)
	return nil
}

func TestCombine_ReconciledExample(t *testing.T) {
	per := map[types.RoleID]*float64{
		types.RoleMLE: types.Float(0.65),
		types.RoleDS:  types.Float(0.15),
		types.RoleSWE: types.Float(0.10),
	}
	dist := types.RoleFitDistribution{types.RoleMLE: 0.55, types.RoleDS: 0.25, types.RoleSWE: 0.20}

	overall, nullRoles := Combine(per, dist)
	require.NotNil(t, overall)
	assert.Empty(t, nullRoles)

	// 0.55×0.65 + 0.25×0.15 + 0.20×0.10
	assert.InDelta(t, 0.415, *overall, 1e-9)
	assert.NotEqual(t, 0.225, *overall)
	assert.GreaterOrEqual(t, *overall, 0.10)
	assert.LessOrEqual(t, *overall, 0.65)
}

func TestCombine_NullRolesRenormalize(t *testing.T) {
	per := map[types.RoleID]*float64{
		types.RoleMLE: types.Float(0.8),
		types.RoleDS:  nil,
	}
	dist := types.RoleFitDistribution{types.RoleMLE: 0.6, types.RoleDS: 0.4}

	overall, nullRoles := Combine(per, dist)
	require.NotNil(t, overall)
	assert.InDelta(t, 0.8, *overall, 1e-12)
	assert.Equal(t, []types.RoleID{types.RoleDS}, nullRoles)
}

func TestCombine_AllNull(t *testing.T) {
	overall, nullRoles := Combine(map[types.RoleID]*float64{types.RoleQR: nil}, types.RoleFitDistribution{types.RoleQR: 1})
	assert.Nil(t, overall)
	assert.Equal(t, []types.RoleID{types.RoleQR}, nullRoles)

	overall, _ = Combine(nil, nil)
	assert.Nil(t, overall)
}

func TestCombine_Bounded(t *testing.T) {
	values := []float64{0, 0.1, 0.33, 0.5, 0.9, 1}
	for i := range values {
		for j := range values {
			per := map[types.RoleID]*float64{types.RoleMLE: types.Float(values[i]), types.RoleQD: types.Float(values[j])}
			dist := types.RoleFitDistribution{types.RoleMLE: 0.7, types.RoleQD: 0.3}
			overall, _ := Combine(per, dist)
			require.NotNil(t, overall)
			assert.GreaterOrEqual(t, *overall, min(values[i], values[j])-1e-12)
			assert.LessOrEqual(t, *overall, max(values[i], values[j])+1e-12)
		}
	}
}

func TestCoverage(t *testing.T) {
	demand := []types.ScoredChunk{
		{Chunk: types.Chunk{ID: "a", Embedding: axis(0)}, Score: 0.9},
		{Chunk: types.Chunk{ID: "b", Embedding: axis(1)}, Score: 0.3},
	}
	supply := []types.Chunk{{ID: "s", Embedding: axis(0)}}

	got, used := Coverage(demand, supply)
	// (0.9×1 + 0.3×0) / 1.2
	assert.InDelta(t, 0.75, got, 1e-9)
	require.Len(t, used, 1)
	assert.Equal(t, "s", used[0].Chunk.ID)

	got, used = Coverage(demand, nil)
	assert.Equal(t, 0.0, got)
	assert.Empty(t, used)

	// Opposed vectors do not count negatively
	got, _ = Coverage(demand[:1], []types.Chunk{{ID: "n", Embedding: []float32{-1, 0, 0, 0, 0}}})
	assert.Equal(t, 0.0, got)
}

func TestEngine_Coverage(t *testing.T) {
	res, err := newEngine(nil, MethodCoverage).Match(context.Background(), fixture(t))
	require.NoError(t, err)

	assert.Equal(t, MethodCoverage, res.Debug.Method)
	assert.Equal(t, 2, res.Debug.JDChunkCount)
	require.Len(t, res.PerCluster, 3)

	require.NotNil(t, pct(t, res, types.RoleMLE))
	assert.InDelta(t, 1.0, *pct(t, res, types.RoleMLE), 1e-6)
	require.NotNil(t, pct(t, res, types.RoleSWE))
	assert.InDelta(t, 0.6, *pct(t, res, types.RoleSWE), 1e-6)
	assert.Nil(t, pct(t, res, types.RoleQR))
	assert.Equal(t, []types.RoleID{types.RoleQR}, res.Debug.NullRoles)

	// QR is null, so MLE and SWE weights renormalize to 0.5 each
	require.NotNil(t, res.Overall)
	assert.InDelta(t, 0.8, *res.Overall, 1e-6)
	assert.False(t, res.CannotEvaluate)

	assert.Len(t, res.Evidence.JDChunks, 2)
	assert.Len(t, res.Evidence.ResumeChunks, 2)
}

func TestEngine_FallbackSupplyByRoleQuery(t *testing.T) {
	in := fixture(t)
	in.Units = nil

	res, err := newEngine(nil, MethodCoverage).Match(context.Background(), in)
	require.NoError(t, err)

	// Without cited chunks, the top-2 resume chunks for each role query are used
	assert.InDelta(t, 1.0, *pct(t, res, types.RoleMLE), 1e-6)
	assert.InDelta(t, 0.6, *pct(t, res, types.RoleSWE), 1e-6)
}

func TestEngine_EmptyJD(t *testing.T) {
	in := fixture(t)
	in.JD = snapshot(t, "jd-adhoc")

	res, err := newEngine(nil, MethodCoverage).Match(context.Background(), in)
	require.NoError(t, err)

	assert.Nil(t, res.Overall)
	assert.True(t, res.CannotEvaluate)
	assert.Equal(t, ReasonNoJDChunks, res.Reason)
	require.Len(t, res.PerCluster, 3)
	for _, cm := range res.PerCluster {
		assert.Nil(t, cm.MatchPct)
	}
}

func TestEngine_NoRelevantJDEvidence(t *testing.T) {
	in := fixture(t)
	in.Distribution = types.RoleFitDistribution{types.RoleQR: 1}

	res, err := newEngine(nil, MethodCoverage).Match(context.Background(), in)
	require.NoError(t, err)

	assert.Nil(t, res.Overall)
	assert.True(t, res.CannotEvaluate)
	assert.Equal(t, ReasonNoJDEvidence, res.Reason)
}

func TestEngine_ZeroDistribution(t *testing.T) {
	in := fixture(t)
	in.Distribution = types.RoleFitDistribution{}

	res, err := newEngine(nil, MethodCoverage).Match(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, res.Overall)
	assert.Empty(t, res.PerCluster)
	assert.Equal(t, ReasonNoEvidence, res.Reason)
}

func TestEngine_NoJobDescription(t *testing.T) {
	in := fixture(t)
	in.JD = nil
	_, err := newEngine(nil, MethodCoverage).Match(context.Background(), in)
	assert.ErrorIs(t, err, ErrNoJobDescription)
}

func TestEngine_RoleQueriesAreCached(t *testing.T) {
	emb := &axisEmbedder{}
	e := NewEngine(emb, nil, Config{TopK: 2, MinRelevance: 0.1}, zerolog.Nop())

	_, err := e.Match(context.Background(), fixture(t))
	require.NoError(t, err)
	first := emb.calls
	_, err = e.Match(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Equal(t, first, emb.calls)
}

func TestEngine_OracleNumbersAreReconciled(t *testing.T) {
	oracle := &fakeMatcher{result: &classify.OracleMatch{
		PerCluster: map[types.RoleID]*float64{
			types.RoleMLE: types.Float(0.65),
			types.RoleSWE: types.Float(0.10),
			types.RoleQR:  nil,
		},
		Overall: types.Float(0.225),
	}}

	res, err := newEngine(oracle, MethodOracle).Match(context.Background(), fixture(t))
	require.NoError(t, err)

	assert.Equal(t, MethodOracle, res.Debug.Method)
	assert.False(t, res.Debug.OracleIncomplete)
	require.NotNil(t, res.Debug.OracleOverall)
	assert.InDelta(t, 0.225, *res.Debug.OracleOverall, 1e-12)

	// Overall recombined from the per-cluster numbers: (0.4×0.65 + 0.4×0.10) / 0.8
	require.NotNil(t, res.Overall)
	assert.InDelta(t, 0.375, *res.Overall, 1e-9)
	assert.Nil(t, pct(t, res, types.RoleQR))
	assert.Len(t, oracle.jd, 2)
}

func TestEngine_OracleCannotFillNullRole(t *testing.T) {
	oracle := &fakeMatcher{result: &classify.OracleMatch{
		PerCluster: map[types.RoleID]*float64{
			types.RoleMLE: types.Float(0.5),
			types.RoleSWE: types.Float(0.5),
			types.RoleQR:  types.Float(0),
		},
	}}

	res, err := newEngine(oracle, MethodOracle).Match(context.Background(), fixture(t))
	require.NoError(t, err)

	assert.Equal(t, MethodOracle, res.Debug.Method)
	assert.Nil(t, pct(t, res, types.RoleQR))
	assert.Contains(t, res.Debug.NullRoles, types.RoleQR)
	require.NotNil(t, res.Overall)
	assert.InDelta(t, 0.5, *res.Overall, 1e-9)
}

func TestEngine_OracleFitAnalysisIsDisplayOnly(t *testing.T) {
	numbers := map[types.RoleID]*float64{
		types.RoleMLE: types.Float(0.6),
		types.RoleSWE: types.Float(0.2),
		types.RoleQR:  nil,
	}
	plain, err := newEngine(&fakeMatcher{result: &classify.OracleMatch{PerCluster: numbers}}, MethodOracle).
		Match(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Nil(t, plain.Analysis)

	withAnalysis, err := newEngine(&fakeMatcher{result: &classify.OracleMatch{
		PerCluster: numbers,
		RecommendedRoles: []types.RoleRecommendation{
			{Role: types.RoleSWE, Score: 0.4, Reasons: []string{"services"}},
			{Role: types.RoleMLE, Score: 0.9, Reasons: []string{"trained models"}},
		},
		Requirements: types.Requirements{MustHave: []string{"model training"}},
		Gap:          types.GapAnalysis{Missing: []string{"on-call"}, AskUserQuestions: []string{"Have you run services on call?"}},
	}}, MethodOracle).Match(context.Background(), fixture(t))
	require.NoError(t, err)

	require.NotNil(t, withAnalysis.Analysis)
	assert.Equal(t, types.RoleMLE, withAnalysis.Analysis.RecommendedRoles[0].Role)
	assert.Equal(t, []string{"on-call"}, withAnalysis.Analysis.Gap.Missing)
	require.NotNil(t, plain.Overall)
	require.NotNil(t, withAnalysis.Overall)
	assert.InDelta(t, *plain.Overall, *withAnalysis.Overall, 1e-12)

	coverage, err := newEngine(nil, MethodCoverage).Match(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Nil(t, coverage.Analysis)
}

func TestEngine_OracleFailureFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		oracle classify.Matcher
	}{
		{"schema failure", &fakeMatcher{err: &classify.ClassificationSchemaError{Operation: "classify_match", Attempts: 2}}},
		{"transport failure", &fakeMatcher{err: errors.New("timeout")}},
		{"omitted cluster", &fakeMatcher{result: &classify.OracleMatch{PerCluster: map[types.RoleID]*float64{types.RoleMLE: types.Float(0.1)}}}},
		{"no oracle configured", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newEngine(tt.oracle, MethodOracle).Match(context.Background(), fixture(t))
			require.NoError(t, err)

			assert.True(t, res.Debug.OracleIncomplete)
			assert.Equal(t, MethodCoverage, res.Debug.Method)
			require.NotNil(t, res.Overall)
			assert.InDelta(t, 0.8, *res.Overall, 1e-6)
		})
	}
}

func TestEngine_JDFromText(t *testing.T) {
	e := NewEngine(embedding.NewHashingProvider(64), nil, DefaultConfig(), zerolog.Nop())

	opts := chunking.Options{Size: 40, Overlap: 10}
	snap, err := e.JDFromText(context.Background(), "We need an engineer to build low latency trading systems in C++.", opts)
	require.NoError(t, err)
	assert.Greater(t, snap.Len(), 1)
	assert.Equal(t, 64, snap.Dims())
	for _, c := range snap.Chunks() {
		assert.Equal(t, types.SourceJD, c.Source)
	}

	empty, err := e.JDFromText(context.Background(), "   ", opts)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}
