package auth

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

type Permission string

const (
	PermissionViewPayroll    Permission = "view_payroll"
	PermissionManagePayroll  Permission = "manage_payroll"
	PermissionApprovePayroll Permission = "approve_payroll"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionViewPayroll,
		PermissionManagePayroll,
		PermissionApprovePayroll,
	},
	RoleManager: {
		PermissionViewPayroll,
		PermissionManagePayroll,
		PermissionApprovePayroll,
	},
	RoleUser: {
		PermissionViewPayroll,
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role Role, permission Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// ParsePermissions reads an explicit permissions claim. Unknown entries are kept
// so they simply never match.
func ParsePermissions(claim interface{}) []Permission {
	var perms []Permission
	switch v := claim.(type) {
	case []interface{}:
		for _, p := range v {
			if s, ok := p.(string); ok {
				perms = append(perms, Permission(s))
			}
		}
	case []string:
		for _, s := range v {
			perms = append(perms, Permission(s))
		}
	}
	return perms
}
