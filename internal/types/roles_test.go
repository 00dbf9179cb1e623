package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoleID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RoleID
		wantErr bool
	}{
		{name: "upper", input: "MLE", want: RoleMLE},
		{name: "lower with spaces", input: " swe ", want: RoleSWE},
		{name: "unknown", input: "PM", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoleID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllRoles_CanonicalOrder(t *testing.T) {
	roles := AllRoles()
	assert.Equal(t, []RoleID{RoleMLE, RoleDS, RoleSWE, RoleQR, RoleQD}, roles)

	// Mutating the copy must not affect the package order
	roles[0] = RoleQD
	assert.Equal(t, RoleMLE, AllRoles()[0])
	assert.Equal(t, 2, RoleSWE.Index())
	assert.Equal(t, -1, RoleID("PM").Index())
}

func TestRoleID_UnmarshalJSON(t *testing.T) {
	var r RoleID
	require.NoError(t, json.Unmarshal([]byte(`"qr"`), &r))
	assert.Equal(t, RoleQR, r)

	assert.Error(t, json.Unmarshal([]byte(`"ANALYST"`), &r))
	assert.Error(t, json.Unmarshal([]byte(`5`), &r))
}

func TestTier_UnmarshalJSON(t *testing.T) {
	var tier Tier
	require.NoError(t, json.Unmarshal([]byte(`2`), &tier))
	assert.Equal(t, Tier2, tier)
	assert.True(t, tier.Valid())

	require.NoError(t, json.Unmarshal([]byte(`0`), &tier))
	assert.False(t, tier.Valid())

	assert.Error(t, json.Unmarshal([]byte(`4`), &tier))
	assert.Error(t, json.Unmarshal([]byte(`"1"`), &tier))
}

func TestOwnership_UnmarshalJSON(t *testing.T) {
	var o Ownership
	require.NoError(t, json.Unmarshal([]byte(`"earlier_career"`), &o))
	assert.Equal(t, OwnershipEarlierCareer, o)

	require.NoError(t, json.Unmarshal([]byte(`""`), &o))
	assert.Equal(t, OwnershipUnknown, o)

	assert.Error(t, json.Unmarshal([]byte(`"hobby"`), &o))
}
