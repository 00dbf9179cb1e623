// Package evaluation compares role-fit distributions against expected ones for QA runs.
package evaluation

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/jonathan/career-fit/internal/schemas"
	"github.com/jonathan/career-fit/internal/types"
)

// Default thresholds
const (
	// MaxPrimaryL1 is the largest passing error on the expected primary cluster
	MaxPrimaryL1 = 0.2
	// MaxOverallL1 is the largest passing L1 error over all clusters
	MaxOverallL1 = 0.35
	// DefaultDeadband is the delta below which a change counts as flat
	DefaultDeadband = 0.01
)

// Grade is a pass/warn/fail verdict on an error value.
type Grade string

// Grades
const (
	GradePass Grade = "pass"
	GradeWarn Grade = "warn"
	GradeFail Grade = "fail"
)

// Direction is the sign of a change in one role's share.
type Direction string

// Directions, written the way QA manifests write them
const (
	DirectionUp   Direction = "+"
	DirectionDown Direction = "-"
	DirectionFlat Direction = "~"
)

// ParseDirection accepts "+", "-", "~" or "=" and the words up, down and flat.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "+", "up":
		return DirectionUp, nil
	case "-", "down":
		return DirectionDown, nil
	case "~", "=", "flat":
		return DirectionFlat, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// L1 returns the L1 distance between two distributions over all roles. Missing roles count as 0.
func L1(a, b types.RoleFitDistribution) float64 {
	total := 0.0
	for _, r := range types.AllRoles() {
		total += math.Abs(a.Get(r) - b.Get(r))
	}
	return total
}

// PrimaryClusterL1 returns the absolute error on expected's primary role, and that role.
// An all-zero expected distribution uses the first role in canonical order.
func PrimaryClusterL1(expected, actual types.RoleFitDistribution) (float64, types.RoleID) {
	primary, ok := expected.Primary()
	if !ok {
		primary = types.AllRoles()[0]
	}
	return math.Abs(actual.Get(primary) - expected.Get(primary)), primary
}

// GradeL1 grades an error against the pass and warn limits: at most MaxPrimaryL1 passes, at
// most MaxOverallL1 warns.
func GradeL1(l1 float64) Grade {
	switch {
	case l1 <= MaxPrimaryL1:
		return GradePass
	case l1 <= MaxOverallL1:
		return GradeWarn
	default:
		return GradeFail
	}
}

// DeltaDirection returns the change in role's share from before to after and its direction.
// Changes within deadband are flat.
func DeltaDirection(before, after types.RoleFitDistribution, role types.RoleID, deadband float64) (float64, Direction) {
	delta := after.Get(role) - before.Get(role)
	switch {
	case delta > deadband:
		return delta, DirectionUp
	case delta < -deadband:
		return delta, DirectionDown
	default:
		return delta, DirectionFlat
	}
}

// DirectionHolds reports whether delta is consistent with expected. Up and down tolerate a
// change of deadband in the wrong direction; flat requires |delta| <= deadband.
func DirectionHolds(delta float64, expected Direction, deadband float64) bool {
	switch expected {
	case DirectionUp:
		return delta >= -deadband
	case DirectionDown:
		return delta <= deadband
	case DirectionFlat:
		return math.Abs(delta) <= deadband
	}
	return true
}

// Report is the comparison of one actual distribution against an expected one.
type Report struct {
	Expected    types.RoleFitDistribution `json:"expected"`
	Actual      types.RoleFitDistribution `json:"actual"`
	L1          float64                   `json:"l1_overall"`
	PrimaryRole types.RoleID              `json:"primary_role"`
	PrimaryL1   float64                   `json:"l1_primary"`
	Grade       Grade                     `json:"grade"`
	Passed      bool                      `json:"passed"`
}

// Evaluate compares actual against expected. It passes when the primary-cluster error is at
// most MaxPrimaryL1 and the overall error at most MaxOverallL1; the grade is that of the
// primary-cluster error, downgraded to fail when the overall error is out of bounds.
func Evaluate(expected, actual types.RoleFitDistribution) Report {
	expected, actual = expected.Complete(), actual.Complete()
	l1 := L1(expected, actual)
	primaryL1, primary := PrimaryClusterL1(expected, actual)

	grade := GradeL1(primaryL1)
	if l1 > MaxOverallL1 {
		grade = GradeFail
	}
	return Report{
		Expected:    expected,
		Actual:      actual,
		L1:          l1,
		PrimaryRole: primary,
		PrimaryL1:   primaryL1,
		Grade:       grade,
		Passed:      primaryL1 <= MaxPrimaryL1 && l1 <= MaxOverallL1,
	}
}

// ParseDistribution reads a distribution from JSON: either a bare role → weight object or a
// clusters response carrying role_fit_distribution. Role keys are case-insensitive.
func ParseDistribution(data []byte) (types.RoleFitDistribution, error) {
	var wrapped struct {
		Distribution map[string]float64 `json:"role_fit_distribution"`
	}
	raw := map[string]float64{}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Distribution != nil {
		raw = wrapped.Distribution
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse distribution: %w", err)
	}

	dist := make(types.RoleFitDistribution, len(raw))
	for k, v := range raw {
		role, err := types.ParseRoleID(k)
		if err != nil {
			return nil, err
		}
		dist[role] = v
	}

	canonical, err := json.Marshal(dist)
	if err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.Distribution, canonical); err != nil {
		return nil, err
	}
	return dist.Complete(), nil
}

// LoadDistribution reads a distribution file in either form accepted by ParseDistribution.
func LoadDistribution(path string) (types.RoleFitDistribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read distribution %s: %w", path, err)
	}
	return ParseDistribution(data)
}
