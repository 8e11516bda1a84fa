// Package access holds the role policy: the closed role hierarchy, the
// protected view registry and the default landing view of each role.
package access

import (
	"errors"
	"fmt"
)

// ErrUnknownRole indicates a role value outside the closed role set.
var ErrUnknownRole = errors.New("access: unknown role")

// Role is a privilege tier. The zero value is not a valid role.
type Role string

// Roles ordered from least to most privileged.
const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// hierarchy lists every role in rank order. Index is the rank.
var hierarchy = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

var displayNames = map[Role]string{
	RoleUser:       "User",
	RoleAdmin:      "Admin",
	RoleSuperAdmin: "Super Admin",
}

// Roles returns all roles in rank order.
func Roles() []Role {
	out := make([]Role, len(hierarchy))
	copy(out, hierarchy)
	return out
}

// ParseRole converts a raw value into a Role, failing closed on unknown input.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if _, err := Rank(r); err != nil {
		return "", err
	}
	return r, nil
}

// Rank returns the position of role in the hierarchy.
func Rank(role Role) (int, error) {
	for i, r := range hierarchy {
		if r == role {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, string(role))
}

// Valid reports whether role belongs to the closed set.
func (r Role) Valid() bool {
	_, err := Rank(r)
	return err == nil
}

// AtLeast reports whether r ranks at or above min. Unknown roles never qualify.
func (r Role) AtLeast(min Role) bool {
	have, err := Rank(r)
	if err != nil {
		return false
	}
	need, err := Rank(min)
	if err != nil {
		return false
	}
	return have >= need
}

// DisplayName returns the human label of role. Unknown roles are returned as-is.
func DisplayName(role Role) string {
	if name, ok := displayNames[role]; ok {
		return name
	}
	return string(role)
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}
