// Package matching computes per-cluster and overall match between a session and a job description.
//
// The overall match is always recombined from the per-cluster numbers reported to the caller,
// weighted by the resume's role-fit distribution, so it is bounded by their min and max.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jonathan/career-fit/internal/chunking"
	"github.com/jonathan/career-fit/internal/classify"
	"github.com/jonathan/career-fit/internal/embedding"
	"github.com/jonathan/career-fit/internal/types"
	"github.com/jonathan/career-fit/internal/vectorindex"
)

// ErrNoJobDescription is returned when a match is requested without a job description.
var ErrNoJobDescription = errors.New("no job description provided")

// Match methods
const (
	MethodCoverage = "coverage"
	MethodOracle   = "oracle"
)

// Reasons reported with a null overall match
const (
	ReasonNoJDChunks   = "job description yielded no chunks"
	ReasonNoEvidence   = "resume has no classified evidence"
	ReasonNoJDEvidence = "job description has no evidence relevant to any resume cluster"
)

// Config controls retrieval and the match method.
type Config struct {
	// TopK is the number of chunks retrieved per role on each side
	TopK int
	// MinRelevance is the lowest role-query similarity for a JD chunk to count as demand
	MinRelevance float64
	// Method is MethodCoverage or MethodOracle
	Method string
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{TopK: 8, MinRelevance: 0.1, Method: MethodCoverage}
}

// Input is everything the engine needs from a session and a job description.
type Input struct {
	SessionID    string
	JDRef        string
	Distribution types.RoleFitDistribution
	Units        []types.EvidenceUnit
	Clusters     []types.ClusterGroup
	Resume       *vectorindex.Snapshot
	JD           *vectorindex.Snapshot
}

// Engine matches sessions against job descriptions.
type Engine struct {
	embedder embedding.Provider
	oracle   classify.Matcher
	cfg      Config
	log      zerolog.Logger

	mu      sync.Mutex
	queries map[types.RoleID][]float32
}

// NewEngine creates a match engine. oracle may be nil, in which case the oracle method
// falls back to coverage.
func NewEngine(embedder embedding.Provider, oracle classify.Matcher, cfg Config, log zerolog.Logger) *Engine {
	d := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = d.TopK
	}
	if cfg.Method == "" {
		cfg.Method = d.Method
	}
	return &Engine{
		embedder: embedder,
		oracle:   oracle,
		cfg:      cfg,
		log:      log.With().Str("component", "matching").Logger(),
		queries:  make(map[types.RoleID][]float32),
	}
}

// RoleQuery returns the fixed retrieval text for role.
func RoleQuery(role types.RoleID) string {
	return role.Label() + ": " + strings.Join(classify.Keywords(role), ", ")
}

// roleVector returns the cached embedding of role's query
func (e *Engine) roleVector(ctx context.Context, role types.RoleID) ([]float32, error) {
	e.mu.Lock()
	v, ok := e.queries[role]
	e.mu.Unlock()
	if ok {
		return v, nil
	}

	vecs, err := e.embedder.Embed(ctx, []string{RoleQuery(role)})
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s role query: %w", role, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding provider returned %d vectors for one role query", len(vecs))
	}

	e.mu.Lock()
	e.queries[role] = vecs[0]
	e.mu.Unlock()
	return vecs[0], nil
}

// JDFromText chunks and embeds pasted job description text into a temporary snapshot that is
// never registered or persisted.
func (e *Engine) JDFromText(ctx context.Context, text string, opts chunking.Options) (*vectorindex.Snapshot, error) {
	opts.DocID = "adhoc"
	chunks, err := chunking.Chunk(text, types.SourceJD, opts)
	if err != nil {
		return nil, err
	}
	if err := embedding.EmbedChunks(ctx, e.embedder, chunks); err != nil {
		return nil, err
	}
	return vectorindex.NewSnapshot("jd-adhoc", 0, chunks)
}

type roleMatch struct {
	pct      *float64
	jdHits   []types.ScoredChunk
	evidence []types.EvidenceChunk
}

// Match computes the reconciled match of a session against a job description.
func (e *Engine) Match(ctx context.Context, in Input) (*types.MatchResult, error) {
	if in.JD == nil {
		return nil, ErrNoJobDescription
	}

	result := &types.MatchResult{
		SessionID:  in.SessionID,
		JDRef:      in.JDRef,
		PerCluster: []types.ClusterMatch{},
		Evidence:   types.MatchEvidence{ResumeChunks: []types.EvidenceChunk{}, JDChunks: []types.EvidenceChunk{}},
		Debug:      types.MatchDebug{Method: MethodCoverage, JDChunkCount: in.JD.Len()},
	}

	var roles []types.RoleID
	for _, r := range types.AllRoles() {
		if in.Distribution.Get(r) > 0 {
			roles = append(roles, r)
		}
	}

	if in.JD.Len() == 0 {
		for _, r := range roles {
			result.PerCluster = append(result.PerCluster, types.ClusterMatch{Role: r, Label: r.Label(), Weight: in.Distribution.Get(r), Evidence: []types.EvidenceChunk{}})
			result.Debug.NullRoles = append(result.Debug.NullRoles, r)
		}
		result.CannotEvaluate = true
		result.Reason = ReasonNoJDChunks
		return result, nil
	}
	if len(roles) == 0 {
		result.CannotEvaluate = true
		result.Reason = ReasonNoEvidence
		return result, nil
	}

	resume := in.Resume
	if resume == nil {
		resume, _ = vectorindex.NewSnapshot("empty", 0, nil)
	}

	matches := make(map[types.RoleID]*roleMatch, len(roles))
	resumeSeen := make(map[string]int)
	jdSeen := make(map[string]int)
	for _, r := range roles {
		m, err := e.matchRole(ctx, r, in.Units, resume, in.JD)
		if err != nil {
			return nil, err
		}
		matches[r] = m

		for _, ev := range m.evidence {
			if i, ok := resumeSeen[ev.ChunkID]; ok {
				result.Evidence.ResumeChunks[i].Score = max(result.Evidence.ResumeChunks[i].Score, ev.Score)
				continue
			}
			resumeSeen[ev.ChunkID] = len(result.Evidence.ResumeChunks)
			result.Evidence.ResumeChunks = append(result.Evidence.ResumeChunks, ev)
		}
		for _, hit := range m.jdHits {
			if i, ok := jdSeen[hit.Chunk.ID]; ok {
				result.Evidence.JDChunks[i].Score = max(result.Evidence.JDChunks[i].Score, hit.Score)
				continue
			}
			jdSeen[hit.Chunk.ID] = len(result.Evidence.JDChunks)
			result.Evidence.JDChunks = append(result.Evidence.JDChunks, evidenceChunk(hit))
		}
	}

	if e.cfg.Method == MethodOracle {
		e.applyOracle(ctx, in, roles, matches, result)
	}

	per := make(map[types.RoleID]*float64, len(roles))
	for _, r := range roles {
		m := matches[r]
		per[r] = m.pct
		jdEvidence := make([]types.EvidenceChunk, 0, len(m.jdHits))
		for _, hit := range m.jdHits {
			jdEvidence = append(jdEvidence, evidenceChunk(hit))
		}
		result.PerCluster = append(result.PerCluster, types.ClusterMatch{
			Role:     r,
			Label:    r.Label(),
			Weight:   in.Distribution.Get(r),
			MatchPct: m.pct,
			Evidence: jdEvidence,
		})
	}

	overall, nullRoles := Combine(per, in.Distribution)
	result.Overall = overall
	result.Debug.NullRoles = nullRoles
	if overall == nil {
		result.CannotEvaluate = true
		result.Reason = ReasonNoJDEvidence
	}

	e.log.Debug().
		Str("session_id", in.SessionID).
		Str("jd", in.JDRef).
		Str("method", result.Debug.Method).
		Int("roles", len(roles)).
		Int("null_roles", len(nullRoles)).
		Msg("match computed")
	return result, nil
}

// matchRole computes the coverage of role's JD demand by the resume's supply.
func (e *Engine) matchRole(ctx context.Context, role types.RoleID, units []types.EvidenceUnit, resume, jd *vectorindex.Snapshot) (*roleMatch, error) {
	q, err := e.roleVector(ctx, role)
	if err != nil {
		return nil, err
	}

	hits, err := jd.Search(q, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("job description search for %s failed: %w", role, err)
	}
	demand := hits[:0:0]
	for _, h := range hits {
		if h.Score >= e.cfg.MinRelevance && h.Score > 0 {
			demand = append(demand, h)
		}
	}
	if len(demand) == 0 {
		return &roleMatch{jdHits: []types.ScoredChunk{}, evidence: []types.EvidenceChunk{}}, nil
	}

	supply := citedChunks(role, units, resume)
	if len(supply) == 0 {
		fallback, err := resume.Search(q, e.cfg.TopK)
		if err != nil {
			return nil, fmt.Errorf("resume search for %s failed: %w", role, err)
		}
		for _, h := range fallback {
			supply = append(supply, h.Chunk)
		}
	}

	pct, best := Coverage(demand, supply)
	evidence := make([]types.EvidenceChunk, 0, len(best))
	for _, b := range best {
		evidence = append(evidence, evidenceChunk(b))
	}
	return &roleMatch{pct: &pct, jdHits: demand, evidence: evidence}, nil
}

// Coverage returns Σ rel_j · max(0, max_i cos(j, i)) / Σ rel_j over demand chunks j with relevance
// rel_j = their role-query score, and supply chunks i. It also returns, for each supply chunk
// that was the best match of some demand chunk, that chunk with its best similarity.
func Coverage(demand []types.ScoredChunk, supply []types.Chunk) (float64, []types.ScoredChunk) {
	var num, den float64
	bestFor := make(map[string]int)
	var used []types.ScoredChunk
	for _, j := range demand {
		if j.Score <= 0 {
			continue
		}
		den += j.Score

		bestSim := 0.0
		bestIdx := -1
		for i, s := range supply {
			if sim := embedding.Dot(j.Chunk.Embedding, s.Embedding); sim > bestSim {
				bestSim, bestIdx = sim, i
			}
		}
		num += j.Score * bestSim

		if bestIdx >= 0 {
			s := supply[bestIdx]
			if k, ok := bestFor[s.ID]; ok {
				used[k].Score = max(used[k].Score, bestSim)
			} else {
				bestFor[s.ID] = len(used)
				used = append(used, types.ScoredChunk{Chunk: s, Score: bestSim})
			}
		}
	}
	if den == 0 {
		return 0, used
	}
	return clamp01(num / den), used
}

// Combine re-normalizes dist over the roles with a non-nil match and returns the weighted
// sum, plus the roles that were null. The result is nil when no role has both a match and
// positive weight.
func Combine(per map[types.RoleID]*float64, dist types.RoleFitDistribution) (*float64, []types.RoleID) {
	var weightSum, total float64
	var nullRoles []types.RoleID
	for _, r := range types.AllRoles() {
		pct, ok := per[r]
		if !ok {
			continue
		}
		if pct == nil {
			nullRoles = append(nullRoles, r)
			continue
		}
		w := dist.Get(r)
		if w <= 0 {
			continue
		}
		weightSum += w
		total += w * clamp01(*pct)
	}
	if weightSum == 0 {
		return nil, nullRoles
	}
	return types.Float(clamp01(total / weightSum)), nullRoles
}

// applyOracle replaces non-null coverage numbers with the oracle's, unless the oracle fails or
// omits a role, in which case the coverage numbers stand and the result is flagged.
func (e *Engine) applyOracle(ctx context.Context, in Input, roles []types.RoleID, matches map[types.RoleID]*roleMatch, result *types.MatchResult) {
	if e.oracle == nil {
		result.Debug.OracleIncomplete = true
		return
	}

	jdChunks := make([]types.Chunk, 0, len(result.Evidence.JDChunks))
	for _, ev := range result.Evidence.JDChunks {
		if c, ok := in.JD.Chunk(ev.ChunkID); ok {
			jdChunks = append(jdChunks, c)
		}
	}
	if len(jdChunks) == 0 {
		all := in.JD.Chunks()
		jdChunks = all[:min(len(all), e.cfg.TopK)]
	}

	om, err := e.oracle.Match(ctx, in.Clusters, jdChunks)
	if err != nil {
		e.log.Warn().Err(err).Str("session_id", in.SessionID).Msg("oracle match failed, keeping coverage numbers")
		result.Debug.OracleIncomplete = true
		return
	}
	for _, r := range roles {
		if _, ok := om.PerCluster[r]; !ok {
			e.log.Warn().Str("role", string(r)).Msg("oracle omitted a cluster, keeping coverage numbers")
			result.Debug.OracleIncomplete = true
			return
		}
	}

	// a role without retrievable JD chunks stays null whatever the oracle says
	for _, r := range roles {
		if matches[r].pct == nil {
			continue
		}
		if v := om.PerCluster[r]; v != nil {
			matches[r].pct = types.Float(clamp01(*v))
		} else {
			matches[r].pct = nil
		}
	}
	result.Debug.Method = MethodOracle
	result.Debug.OracleOverall = om.Overall
	if analysis := om.Analysis(); !analysis.IsZero() {
		result.Analysis = &analysis
	}
}

func evidenceChunk(h types.ScoredChunk) types.EvidenceChunk {
	return types.EvidenceChunk{ChunkID: h.Chunk.ID, Text: h.Chunk.Text, Source: h.Chunk.Source, Score: h.Score}
}

// citedChunks returns the resume chunks cited by units tagging role, in snapshot order
func citedChunks(role types.RoleID, units []types.EvidenceUnit, resume *vectorindex.Snapshot) []types.Chunk {
	cited := make(map[string]bool)
	for _, u := range units {
		if !u.Tagged(role) {
			continue
		}
		for _, id := range u.OriginatingChunkIDs {
			cited[id] = true
		}
	}
	if len(cited) == 0 {
		return nil
	}
	var out []types.Chunk
	for _, c := range resume.Chunks() {
		if cited[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
