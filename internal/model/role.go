package model

import (
	"fmt"
	"sort"
)

// Role is the closed set of account roles. The set is fixed: adding a role
// means adding a constant here and a case to every switch in this file.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleUser    Role = "user"
	RoleSensor  Role = "sensor"
)

// AllRoles lists every valid role in a stable order.
var AllRoles = []Role{RoleTeacher, RoleUser, RoleSensor}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RoleUser, RoleSensor:
		return true
	default:
		return false
	}
}

// ParseRole converts a raw string into a Role, rejecting anything outside
// the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// RoleSet is an explicit allow-list of roles for one protected operation.
type RoleSet struct {
	teacher bool
	user    bool
	sensor  bool
}

// NewRoleSet builds a RoleSet. It panics on an unknown role or an empty
// list: both are wiring mistakes that must surface at startup.
func NewRoleSet(roles ...Role) RoleSet {
	if len(roles) == 0 {
		panic("model: empty role allow-list")
	}
	var s RoleSet
	for _, r := range roles {
		switch r {
		case RoleTeacher:
			s.teacher = true
		case RoleUser:
			s.user = true
		case RoleSensor:
			s.sensor = true
		default:
			panic(fmt.Sprintf("model: unknown role %q in allow-list", r))
		}
	}
	return s
}

// Allows reports whether r is in the set.
func (s RoleSet) Allows(r Role) bool {
	switch r {
	case RoleTeacher:
		return s.teacher
	case RoleUser:
		return s.user
	case RoleSensor:
		return s.sensor
	default:
		return false
	}
}

// Roles returns the members of the set, sorted by name.
func (s RoleSet) Roles() []Role {
	var out []Role
	for _, r := range AllRoles {
		if s.Allows(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the members of the set as plain strings.
func (s RoleSet) Strings() []string {
	roles := s.Roles()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
