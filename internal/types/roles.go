// Package types provides type definitions for structured data used throughout the career-fit system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RoleID identifies one of the fixed role clusters. The set is closed.
type RoleID string

// Role cluster identifiers
const (
	RoleMLE RoleID = "MLE"
	RoleDS  RoleID = "DS"
	RoleSWE RoleID = "SWE"
	RoleQR  RoleID = "QR"
	RoleQD  RoleID = "QD"
)

var allRoles = []RoleID{RoleMLE, RoleDS, RoleSWE, RoleQR, RoleQD}

var roleLabels = map[RoleID]string{
	RoleMLE: "Machine Learning Engineer",
	RoleDS:  "Data Scientist",
	RoleSWE: "Software Engineer",
	RoleQR:  "Quantitative Researcher",
	RoleQD:  "Quantitative Developer",
}

// AllRoles returns the role clusters in canonical order.
func AllRoles() []RoleID {
	out := make([]RoleID, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether r is one of the fixed role clusters.
func (r RoleID) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

// Label returns the human-readable cluster name.
func (r RoleID) Label() string {
	return roleLabels[r]
}

// Index returns the canonical position of r, or -1 for an unknown role.
func (r RoleID) Index() int {
	for i, role := range allRoles {
		if role == r {
			return i
		}
	}
	return -1
}

// ParseRoleID parses a role identifier, case-insensitively.
func ParseRoleID(s string) (RoleID, error) {
	r := RoleID(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (expected one of MLE, DS, SWE, QR, QD)", s)
	}
	return r, nil
}

// UnmarshalJSON rejects roles outside the fixed set. An empty string decodes to the zero value.
func (r *RoleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = ""
		return nil
	}
	parsed, err := ParseRoleID(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Tier is the strength of an evidence unit's support for a role. Zero means no tier was supplied.
type Tier int

// Tier levels
const (
	TierNone Tier = 0
	Tier1    Tier = 1
	Tier2    Tier = 2
	Tier3    Tier = 3
)

// Valid reports whether t is 1, 2 or 3.
func (t Tier) Valid() bool {
	return t >= Tier1 && t <= Tier3
}

// UnmarshalJSON accepts 0-3 (0 meaning absent).
func (t *Tier) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tier must be an integer: %w", err)
	}
	if n < 0 || n > 3 {
		return fmt.Errorf("tier %d out of range 1-3", n)
	}
	*t = Tier(n)
	return nil
}

// Ownership describes how directly an evidence unit belongs to the candidate's primary work.
type Ownership string

// Ownership categories
const (
	OwnershipUnknown       Ownership = ""
	OwnershipPrimary       Ownership = "primary"
	OwnershipParallel      Ownership = "parallel"
	OwnershipEarlierCareer Ownership = "earlier_career"
	OwnershipAddOn         Ownership = "add_on"
	OwnershipCoursework    Ownership = "coursework"
)

// Valid reports whether o is a known ownership category. The empty value is valid and means primary.
func (o Ownership) Valid() bool {
	switch o {
	case OwnershipUnknown, OwnershipPrimary, OwnershipParallel, OwnershipEarlierCareer, OwnershipAddOn, OwnershipCoursework:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown ownership categories.
func (o *Ownership) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Ownership(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return fmt.Errorf("unknown ownership %q", s)
	}
	*o = v
	return nil
}

// Source identifies where a chunk's text came from.
type Source string

// Chunk sources
const (
	SourceResume Source = "resume"
	SourceAddOn  Source = "addon"
	SourceJD     Source = "jd"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceResume || s == SourceAddOn || s == SourceJD
}
