// Package role orders the platform's account tiers.
package role

import (
	"fmt"
	"strings"
)

// Role is an account tier. The zero value is not a valid role.
type Role string

const (
	User       Role = "user"
	Member     Role = "member"
	Admin      Role = "admin"
	Superadmin Role = "superadmin"
)

// All lists every role from lowest to highest.
var All = []Role{User, Member, Admin, Superadmin}

// Rank returns the position of r in the hierarchy, or -1 for unknown roles.
func (r Role) Rank() int {
	switch r {
	case User:
		return 0
	case Member:
		return 1
	case Admin:
		return 2
	case Superadmin:
		return 3
	default:
		return -1
	}
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	return r.Rank() >= 0
}

func (r Role) String() string {
	return string(r)
}

// Parse normalizes s into a Role.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// AtLeast reports whether r sits at or above threshold. Unknown roles never
// satisfy a threshold.
func AtLeast(r, threshold Role) bool {
	if !r.Valid() || !threshold.Valid() {
		return false
	}
	return r.Rank() >= threshold.Rank()
}

// IsSameOrHigher reports whether a ranks at or above b.
func IsSameOrHigher(a, b Role) bool {
	return AtLeast(a, b)
}

// IsPrivileged reports whether r is admin or superadmin.
func IsPrivileged(r Role) bool {
	return AtLeast(r, Admin)
}
