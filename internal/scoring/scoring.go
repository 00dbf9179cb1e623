// Package scoring turns evidence units into a role-fit distribution.
package scoring

import (
	"sort"

	"github.com/jonathan/career-fit/internal/types"
)

// Mode names the scoring rule used for a distribution.
type Mode string

// Scoring modes
const (
	ModeTiered     Mode = "tiered"
	ModeEqualSplit Mode = "equal_split"
)

// TierWeights maps a tier to its contribution before the ownership multiplier.
var TierWeights = map[types.Tier]float64{
	types.Tier1: 1.0,
	types.Tier2: 0.6,
	types.Tier3: 0.3,
}

// OwnershipMultipliers scale a contribution by how directly the work belongs to the candidate.
// Missing ownership counts as primary.
var OwnershipMultipliers = map[types.Ownership]float64{
	types.OwnershipUnknown:       1.0,
	types.OwnershipPrimary:       1.0,
	types.OwnershipParallel:      0.8,
	types.OwnershipEarlierCareer: 0.7,
	types.OwnershipAddOn:         0.6,
	types.OwnershipCoursework:    0.4,
}

// Scores holds un-normalized weighted scores per role.
type Scores map[types.RoleID]float64

// Result is the outcome of scoring one extraction.
type Result struct {
	Mode         Mode                      `json:"mode"`
	Scores       Scores                    `json:"scores"`
	Distribution types.RoleFitDistribution `json:"distribution"`
}

// SelectMode returns ModeTiered when every role tag carries a tier, ModeEqualSplit otherwise.
// An extraction with no tags at all scores the same under both; it is reported as tiered.
func SelectMode(units []types.EvidenceUnit) Mode {
	for _, u := range units {
		for _, rt := range u.RoleTiers {
			if !rt.Tier.Valid() {
				return ModeEqualSplit
			}
		}
	}
	return ModeTiered
}

// Contribution returns TierWeight(tier) × OwnershipMultiplier(ownership).
func Contribution(tier types.Tier, ownership types.Ownership) float64 {
	mult, ok := OwnershipMultipliers[ownership]
	if !ok {
		mult = 1.0
	}
	return TierWeights[tier] * mult
}

// WeightedScores sums tiered contributions per role. A unit tagging a role at several tiers
// contributes once per tag.
func WeightedScores(units []types.EvidenceUnit) Scores {
	scores := zeroScores()
	for _, u := range units {
		for _, rt := range u.RoleTiers {
			if !rt.Role.Valid() {
				continue
			}
			scores[rt.Role] += Contribution(rt.Tier, u.Ownership)
		}
	}
	return scores
}

// EqualSplitScores gives each unit one vote split evenly across its distinct roles.
// Units with no roles contribute nothing.
func EqualSplitScores(units []types.EvidenceUnit) Scores {
	scores := zeroScores()
	for _, u := range units {
		roles := validRoles(u.Roles())
		if len(roles) == 0 {
			continue
		}
		share := 1.0 / float64(len(roles))
		for _, r := range roles {
			scores[r] += share
		}
	}
	return scores
}

// Normalize divides every score by the total. A zero total yields all zeros, never NaN.
func Normalize(scores Scores) types.RoleFitDistribution {
	dist := make(types.RoleFitDistribution, len(types.AllRoles()))
	total := 0.0
	for _, r := range types.AllRoles() {
		if v := scores[r]; v > 0 {
			total += v
		}
	}
	for _, r := range types.AllRoles() {
		v := scores[r]
		if total == 0 || v <= 0 {
			dist[r] = 0
			continue
		}
		dist[r] = v / total
	}
	return dist
}

// Compute scores an extraction with the mode its tags allow.
func Compute(units []types.EvidenceUnit) Result {
	mode := SelectMode(units)
	var scores Scores
	if mode == ModeTiered {
		scores = WeightedScores(units)
	} else {
		scores = EqualSplitScores(units)
	}
	return Result{Mode: mode, Scores: scores, Distribution: Normalize(scores)}
}

// BuildClusterGroups builds the display view: one group per role tagged by any unit, in
// canonical role order. Items are ordered by best tier then text, and evidence lists the
// originating chunks found in chunks.
func BuildClusterGroups(units []types.EvidenceUnit, dist types.RoleFitDistribution, chunks []types.Chunk) []types.ClusterGroup {
	byID := make(map[string]types.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	groups := make([]types.ClusterGroup, 0)
	for _, role := range types.AllRoles() {
		var items []types.EvidenceUnit
		for _, u := range units {
			if u.Tagged(role) {
				items = append(items, u)
			}
		}
		if len(items) == 0 {
			continue
		}

		sort.SliceStable(items, func(i, j int) bool {
			ti, tj := tierRank(items[i].BestTier(role)), tierRank(items[j].BestTier(role))
			if ti != tj {
				return ti < tj
			}
			return items[i].Text < items[j].Text
		})

		seen := make(map[string]bool)
		evidence := make([]types.EvidenceChunk, 0)
		for _, item := range items {
			for _, id := range item.OriginatingChunkIDs {
				c, ok := byID[id]
				if !ok || seen[id] {
					continue
				}
				seen[id] = true
				evidence = append(evidence, types.EvidenceChunk{ChunkID: c.ID, Text: c.Text, Source: c.Source})
			}
		}

		groups = append(groups, types.ClusterGroup{
			Role:     role,
			Label:    role.Label(),
			Weight:   dist.Get(role),
			Items:    items,
			Evidence: evidence,
		})
	}
	return groups
}

// tierRank orders tiers strongest first, with untiered tags last
func tierRank(t types.Tier) int {
	if t.Valid() {
		return int(t)
	}
	return 4
}

func zeroScores() Scores {
	scores := make(Scores, len(types.AllRoles()))
	for _, r := range types.AllRoles() {
		scores[r] = 0
	}
	return scores
}

func validRoles(roles []types.RoleID) []types.RoleID {
	out := roles[:0:0]
	for _, r := range roles {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}
