package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceUnit_RolesAndTiers(t *testing.T) {
	unit := EvidenceUnit{
		Text: "Trained ranking models in PyTorch",
		RoleTiers: []RoleTier{
			{Role: RoleMLE, Tier: Tier2},
			{Role: RoleDS, Tier: Tier3},
			{Role: RoleMLE, Tier: Tier1},
		},
	}

	assert.Equal(t, []RoleID{RoleMLE, RoleDS}, unit.Roles())
	assert.Equal(t, Tier1, unit.BestTier(RoleMLE))
	assert.Equal(t, Tier3, unit.BestTier(RoleDS))
	assert.Equal(t, TierNone, unit.BestTier(RoleQR))
	assert.True(t, unit.Tagged(RoleDS))
	assert.False(t, unit.Tagged(RoleSWE))
}

func TestEvidenceUnit_Validate(t *testing.T) {
	valid := EvidenceUnit{Text: "x", RoleTiers: []RoleTier{{Role: RoleSWE, Tier: Tier1}}, Ownership: OwnershipParallel}
	assert.NoError(t, valid.Validate())

	badRole := EvidenceUnit{Text: "x", RoleTiers: []RoleTier{{Role: "PM", Tier: Tier1}}}
	assert.Error(t, badRole.Validate())

	badTier := EvidenceUnit{Text: "x", RoleTiers: []RoleTier{{Role: RoleSWE, Tier: 7}}}
	assert.Error(t, badTier.Validate())

	badOwnership := EvidenceUnit{Text: "x", Ownership: "hobby"}
	assert.Error(t, badOwnership.Validate())
}

func TestEvidenceUnit_NormalizeChunkIDs(t *testing.T) {
	unit := EvidenceUnit{OriginatingChunkIDs: []string{"c", "a", "c", "b", "a"}}
	unit.NormalizeChunkIDs()
	assert.Equal(t, []string{"a", "b", "c"}, unit.OriginatingChunkIDs)

	empty := EvidenceUnit{}
	empty.NormalizeChunkIDs()
	assert.NotNil(t, empty.OriginatingChunkIDs)
	assert.Empty(t, empty.OriginatingChunkIDs)
}

func TestEvidenceUnit_JSONRejectsUnknownRole(t *testing.T) {
	var unit EvidenceUnit
	err := json.Unmarshal([]byte(`{"text":"x","role_tiers":[{"role":"CEO","tier":1}]}`), &unit)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"text":"x","originating_chunk_ids":["a"],"role_tiers":[{"role":"DS","tier":2}],"ownership":"coursework"}`), &unit)
	require.NoError(t, err)
	assert.Equal(t, OwnershipCoursework, unit.Ownership)
	assert.Equal(t, Tier2, unit.RoleTiers[0].Tier)
}

func TestRoleFitDistribution(t *testing.T) {
	t.Run("valid normalized", func(t *testing.T) {
		d := RoleFitDistribution{RoleMLE: 0.5, RoleSWE: 0.3, RoleDS: 0.2}
		assert.True(t, d.Valid())
		assert.InDelta(t, 1.0, d.Sum(), 1e-9)

		primary, ok := d.Primary()
		assert.True(t, ok)
		assert.Equal(t, RoleMLE, primary)
	})

	t.Run("all zero is valid", func(t *testing.T) {
		d := RoleFitDistribution{RoleMLE: 0, RoleDS: 0}
		assert.True(t, d.Valid())
		assert.True(t, d.IsZero())
		_, ok := d.Primary()
		assert.False(t, ok)
	})

	t.Run("not normalized", func(t *testing.T) {
		d := RoleFitDistribution{RoleMLE: 0.5, RoleSWE: 0.3}
		assert.False(t, d.Valid())
	})

	t.Run("negative", func(t *testing.T) {
		d := RoleFitDistribution{RoleMLE: 1.2, RoleSWE: -0.2}
		assert.False(t, d.Valid())
	})

	t.Run("primary tie uses canonical order", func(t *testing.T) {
		d := RoleFitDistribution{RoleSWE: 0.5, RoleDS: 0.5}
		primary, _ := d.Primary()
		assert.Equal(t, RoleDS, primary)
	})

	t.Run("complete fills every role", func(t *testing.T) {
		d := RoleFitDistribution{RoleQR: 1}.Complete()
		assert.Len(t, d, 5)
		assert.Equal(t, 0.0, d[RoleMLE])
	})
}

func TestJoinSegments(t *testing.T) {
	segments := []Segment{
		{Source: SourceResume, Text: "resume body"},
		{Source: SourceAddOn, Text: "extra project"},
	}
	assert.Equal(t, "resume body\n\nextra project", JoinSegments(segments))
	assert.Equal(t, "", JoinSegments(nil))
}
