package auth

import "github.com/spec-kit/identity-service/internal/domain"

// HasRole reports whether role is one of allowed. An empty allow list admits
// every role.
func HasRole(role domain.Role, allowed ...domain.Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}

// StaffRoles are every role except Customer.
func StaffRoles() []domain.Role {
	return []domain.Role{domain.RoleAdmin, domain.RoleSupport, domain.RoleMaintenance, domain.RoleHR}
}
