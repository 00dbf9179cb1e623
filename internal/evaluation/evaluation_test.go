package evaluation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/career-fit/internal/types"
)

func TestL1(t *testing.T) {
	a := types.RoleFitDistribution{types.RoleMLE: 0.6, types.RoleSWE: 0.4}
	b := types.RoleFitDistribution{types.RoleMLE: 0.5, types.RoleSWE: 0.3, types.RoleDS: 0.2}

	assert.InDelta(t, 0.4, L1(a, b), 1e-9)
	assert.InDelta(t, L1(a, b), L1(b, a), 1e-12)
	assert.Zero(t, L1(a, a))
}

func TestPrimaryClusterL1(t *testing.T) {
	expected := types.RoleFitDistribution{types.RoleQR: 0.7, types.RoleSWE: 0.3}
	actual := types.RoleFitDistribution{types.RoleQR: 0.45, types.RoleMLE: 0.55}

	l1, role := PrimaryClusterL1(expected, actual)
	assert.Equal(t, types.RoleQR, role)
	assert.InDelta(t, 0.25, l1, 1e-9)

	_, role = PrimaryClusterL1(types.RoleFitDistribution{}, actual)
	assert.Equal(t, types.RoleMLE, role)
}

func TestGradeL1(t *testing.T) {
	tests := []struct {
		l1   float64
		want Grade
	}{
		{0, GradePass},
		{0.2, GradePass},
		{0.21, GradeWarn},
		{0.35, GradeWarn},
		{0.36, GradeFail},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GradeL1(tt.l1), "l1=%v", tt.l1)
	}
}

func TestDeltaDirection(t *testing.T) {
	before := types.RoleFitDistribution{types.RoleQR: 0.10, types.RoleMLE: 0.90}

	tests := []struct {
		name  string
		after types.RoleFitDistribution
		want  Direction
	}{
		{"up", types.RoleFitDistribution{types.RoleQR: 0.30, types.RoleMLE: 0.70}, DirectionUp},
		{"down", types.RoleFitDistribution{types.RoleQR: 0.05, types.RoleMLE: 0.95}, DirectionDown},
		{"within deadband", types.RoleFitDistribution{types.RoleQR: 0.105, types.RoleMLE: 0.895}, DirectionFlat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, dir := DeltaDirection(before, tt.after, types.RoleQR, DefaultDeadband)
			assert.Equal(t, tt.want, dir)
		})
	}
}

func TestDirectionHolds(t *testing.T) {
	assert.True(t, DirectionHolds(0.2, DirectionUp, DefaultDeadband))
	assert.True(t, DirectionHolds(-0.005, DirectionUp, DefaultDeadband))
	assert.False(t, DirectionHolds(-0.05, DirectionUp, DefaultDeadband))
	assert.True(t, DirectionHolds(-0.2, DirectionDown, DefaultDeadband))
	assert.False(t, DirectionHolds(0.05, DirectionDown, DefaultDeadband))
	assert.True(t, DirectionHolds(0.009, DirectionFlat, DefaultDeadband))
	assert.False(t, DirectionHolds(0.02, DirectionFlat, DefaultDeadband))

	d, err := ParseDirection("=")
	require.NoError(t, err)
	assert.Equal(t, DirectionFlat, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	expected := types.RoleFitDistribution{types.RoleMLE: 0.6, types.RoleSWE: 0.4}

	pass := Evaluate(expected, types.RoleFitDistribution{types.RoleMLE: 0.55, types.RoleSWE: 0.35, types.RoleDS: 0.1})
	assert.True(t, pass.Passed)
	assert.Equal(t, GradePass, pass.Grade)
	assert.Equal(t, types.RoleMLE, pass.PrimaryRole)
	assert.Len(t, pass.Actual, len(types.AllRoles()))

	// primary close, overall off
	drift := Evaluate(expected, types.RoleFitDistribution{types.RoleMLE: 0.6, types.RoleQR: 0.4})
	assert.False(t, drift.Passed)
	assert.Equal(t, GradeFail, drift.Grade)
	assert.InDelta(t, 0.8, drift.L1, 1e-9)
}

func TestParseDistribution(t *testing.T) {
	bare, err := ParseDistribution([]byte(`{"mle": 0.75, "SWE": 0.25}`))
	require.NoError(t, err)
	assert.Equal(t, 0.75, bare.Get(types.RoleMLE))
	assert.Len(t, bare, len(types.AllRoles()))

	wrapped, err := ParseDistribution([]byte(`{"session_id":"s1","role_fit_distribution":{"QR":1}}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, wrapped.Get(types.RoleQR))

	_, err = ParseDistribution([]byte(`{"PM": 1}`))
	assert.Error(t, err)
	_, err = ParseDistribution([]byte(`{"MLE": 1.5}`))
	assert.Error(t, err)
	_, err = ParseDistribution([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadDistribution(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expected.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"DS": 0.5, "QD": 0.5}`), 0o600))

	dist, err := LoadDistribution(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, dist.Get(types.RoleQD))

	_, err = LoadDistribution(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
