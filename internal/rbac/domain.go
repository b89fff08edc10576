package rbac

import "time"

// AdminRoleName is the distinguished role that implicitly holds every
// permission and cannot be deleted.
const AdminRoleName = "Admin"

// Permission represents an atomic capability.
type Permission struct {
	ID   int64
	Name string
}

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// IsAdmin reports whether this is the protected Admin role.
func (r Role) IsAdmin() bool {
	return r.Name == AdminRoleName
}

// RoleSeed describes a role created at bootstrap when absent.
type RoleSeed struct {
	Name        string
	Permissions []string
}
