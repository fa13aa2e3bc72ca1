package auth

import "personnel/internal/domain/directory"

const (
	PermProfileRead   = "profile.read"
	PermModulesRead   = "modules.read"
	PermUsersRead     = "users.read"
	PermUsersWrite    = "users.write"
	PermUsersPassword = "users.password"
	PermUsersExport   = "users.export"
	PermAuditRead     = "audit.read"
	PermSystemMetrics = "system.metrics"
)

var DefaultPermissions = []string{
	PermProfileRead,
	PermModulesRead,
	PermUsersRead,
	PermUsersWrite,
	PermUsersPassword,
	PermUsersExport,
	PermAuditRead,
	PermSystemMetrics,
}

// RolePermissions grants every directory operation to admin only. Employees
// and managers may see their own profile and the module list.
var RolePermissions = map[string][]string{
	directory.RoleEmployee: {
		PermProfileRead,
		PermModulesRead,
	},
	directory.RoleManager: {
		PermProfileRead,
		PermModulesRead,
	},
	directory.RoleAdmin: DefaultPermissions,
}

func HasPermission(roles []string, permission string) bool {
	for _, role := range roles {
		for _, perm := range RolePermissions[role] {
			if perm == permission {
				return true
			}
		}
	}
	return false
}
