package model

import "fmt"

// Role is the access level bound to an API key. Admin keys satisfy every
// role check; the other roles require an exact match.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUser     Role = "user"
	RoleReadOnly Role = "readonly"
)

// ParseRole validates a role string from CLI or API input.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser, RoleReadOnly:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q (valid: admin, user, readonly)", s)
}

// Satisfies reports whether a key holding this role may perform an operation
// requiring the given role.
func (r Role) Satisfies(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}

func (r Role) String() string { return string(r) }
