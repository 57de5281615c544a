package domain

import "fmt"

// Role is a closed enumeration persisted by its numeric id.
type Role int

const (
	RoleCustomer Role = iota + 1
	RoleAdmin
	RoleSupport
	RoleMaintenance
	RoleHR
)

var roleNames = map[Role]string{
	RoleCustomer:    "customer",
	RoleAdmin:       "admin",
	RoleSupport:     "support",
	RoleMaintenance: "maintenance",
	RoleHR:          "hr",
}

// ParseRole resolves a persisted role id.
func ParseRole(id int) (Role, error) {
	role := Role(id)
	if _, ok := roleNames[role]; !ok {
		return 0, invalid("role", fmt.Sprintf("unknown role id %d", id))
	}
	return role, nil
}

// ParseRoleName resolves a role from its lowercase name.
func ParseRoleName(name string) (Role, error) {
	for role, n := range roleNames {
		if n == name {
			return role, nil
		}
	}
	return 0, invalid("role", fmt.Sprintf("unknown role %q", name))
}

// ID returns the stable persisted key.
func (r Role) ID() int { return int(r) }

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// CanBeChangedTo reports whether an account holding r may be moved to target.
// Customers are fixed, and nobody becomes a customer afterwards.
func (r Role) CanBeChangedTo(target Role) bool {
	if !r.Valid() || !target.Valid() {
		return false
	}
	return r != RoleCustomer && target != RoleCustomer
}
