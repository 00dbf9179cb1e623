package types

import (
	"fmt"
	"math"
	"sort"
)

// RoleTier tags an evidence unit with a role and the strength of support.
type RoleTier struct {
	Role RoleID `json:"role"`
	Tier Tier   `json:"tier,omitempty"`
}

// EvidenceUnit is one atomic skill or experience statement.
type EvidenceUnit struct {
	Text                string     `json:"text"`
	OriginatingChunkIDs []string   `json:"originating_chunk_ids"`
	RoleTiers           []RoleTier `json:"role_tiers"`
	Ownership           Ownership  `json:"ownership,omitempty"`
}

// Roles returns the distinct roles the unit is tagged with, in tag order.
func (e EvidenceUnit) Roles() []RoleID {
	seen := make(map[RoleID]bool, len(e.RoleTiers))
	out := make([]RoleID, 0, len(e.RoleTiers))
	for _, rt := range e.RoleTiers {
		if seen[rt.Role] {
			continue
		}
		seen[rt.Role] = true
		out = append(out, rt.Role)
	}
	return out
}

// BestTier returns the strongest tier the unit carries for role, or TierNone.
func (e EvidenceUnit) BestTier(role RoleID) Tier {
	best := TierNone
	for _, rt := range e.RoleTiers {
		if rt.Role != role {
			continue
		}
		if rt.Tier.Valid() && (best == TierNone || rt.Tier < best) {
			best = rt.Tier
		}
	}
	return best
}

// Tagged reports whether the unit tags role at any tier.
func (e EvidenceUnit) Tagged(role RoleID) bool {
	for _, rt := range e.RoleTiers {
		if rt.Role == role {
			return true
		}
	}
	return false
}

// Validate checks role, tier and ownership values.
func (e EvidenceUnit) Validate() error {
	for _, rt := range e.RoleTiers {
		if !rt.Role.Valid() {
			return fmt.Errorf("evidence unit %q: unknown role %q", e.Text, rt.Role)
		}
		if rt.Tier != TierNone && !rt.Tier.Valid() {
			return fmt.Errorf("evidence unit %q: tier %d out of range", e.Text, rt.Tier)
		}
	}
	if !e.Ownership.Valid() {
		return fmt.Errorf("evidence unit %q: unknown ownership %q", e.Text, e.Ownership)
	}
	return nil
}

// NormalizeChunkIDs sorts and de-duplicates the originating chunk ids.
func (e *EvidenceUnit) NormalizeChunkIDs() {
	if len(e.OriginatingChunkIDs) == 0 {
		e.OriginatingChunkIDs = []string{}
		return
	}
	sort.Strings(e.OriginatingChunkIDs)
	out := e.OriginatingChunkIDs[:1]
	for _, id := range e.OriginatingChunkIDs[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	e.OriginatingChunkIDs = out
}

// Extraction is the evidence extracted from a session's chunks.
type Extraction struct {
	Units            []EvidenceUnit `json:"units"`
	CoveredChunkIDs  []string       `json:"covered_chunk_ids"`
	Incomplete       bool           `json:"incomplete,omitempty"`
	IncompleteReason string         `json:"incomplete_reason,omitempty"`
}

// RoleFitDistribution maps each role to its normalized share of the resume's evidence.
type RoleFitDistribution map[RoleID]float64

// DistributionTolerance is the allowed deviation of a non-zero distribution's sum from 1.
const DistributionTolerance = 1e-3

// Get returns the weight for role, or 0.
func (d RoleFitDistribution) Get(role RoleID) float64 {
	return d[role]
}

// Sum returns the total mass of the distribution.
func (d RoleFitDistribution) Sum() float64 {
	total := 0.0
	for _, v := range d {
		total += v
	}
	return total
}

// IsZero reports whether every role maps to 0.
func (d RoleFitDistribution) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}

// Valid reports whether the distribution is all-zero or non-negative and sums to 1.
func (d RoleFitDistribution) Valid() bool {
	for _, v := range d {
		if v < 0 || math.IsNaN(v) {
			return false
		}
	}
	if d.IsZero() {
		return true
	}
	return math.Abs(d.Sum()-1) <= DistributionTolerance
}

// Primary returns the role with the highest weight, breaking ties by canonical order.
// The second return value is false for an all-zero distribution.
func (d RoleFitDistribution) Primary() (RoleID, bool) {
	var best RoleID
	bestVal := 0.0
	for _, r := range allRoles {
		if v := d[r]; v > bestVal {
			best, bestVal = r, v
		}
	}
	return best, bestVal > 0
}

// Complete returns a copy with every role present.
func (d RoleFitDistribution) Complete() RoleFitDistribution {
	out := make(RoleFitDistribution, len(allRoles))
	for _, r := range allRoles {
		out[r] = d[r]
	}
	return out
}
