// Package classify turns chunks into role-tagged evidence units and judges cluster matches.
// The oracle-backed implementations treat model output as untrusted: every response is
// validated against an embedded schema before it is decoded.
package classify

import (
	"context"
	"sort"

	"github.com/jonathan/career-fit/internal/types"
)

// Extractor produces evidence units from chunks.
type Extractor interface {
	// Extract classifies chunks. A schema failure that survives the strict retry yields a
	// partial Extraction with Incomplete set, not an error. Errors mean the oracle could not
	// be reached at all.
	Extract(ctx context.Context, chunks []types.Chunk) (types.Extraction, error)
	Name() string
}

// Matcher is the oracle's per-cluster judgement of resume evidence against job description chunks.
type Matcher interface {
	Match(ctx context.Context, clusters []types.ClusterGroup, jdChunks []types.Chunk) (*OracleMatch, error)
}

// OracleMatch is a schema-validated match judgement. Nil entries mean the oracle found no
// requirement for the role.
type OracleMatch struct {
	PerCluster map[types.RoleID]*float64 `json:"cluster_matches"`
	Overall    *float64                  `json:"overall_match_pct"`

	RecommendedRoles []types.RoleRecommendation `json:"recommended_roles"`
	Requirements     types.Requirements         `json:"requirements"`
	Gap              types.GapAnalysis          `json:"gap"`
}

// Analysis returns the qualitative part of the judgement, with recommendations ordered by
// descending score.
func (m *OracleMatch) Analysis() types.FitAnalysis {
	a := types.FitAnalysis{
		RecommendedRoles: append([]types.RoleRecommendation(nil), m.RecommendedRoles...),
		Requirements:     m.Requirements,
		Gap:              m.Gap,
	}
	sort.SliceStable(a.RecommendedRoles, func(i, j int) bool {
		return a.RecommendedRoles[i].Score > a.RecommendedRoles[j].Score
	})
	return a
}
