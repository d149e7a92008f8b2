package domain

// Permission names a capability checked against a role's granted set.
const (
	PermViewDashboard  = "view_dashboard"
	PermManageUsers    = "manage_users"
	PermManageRoles    = "manage_roles"
	PermViewAdminPanel = "view_admin_panel"
	PermEditSettings   = "edit_settings"
	PermViewReports    = "view_reports"
)

// rolePermissions is the static role→permission table. Immutable after
// process start; every role grants at least the dashboard.
var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermViewDashboard,
		PermManageUsers,
		PermManageRoles,
		PermViewAdminPanel,
		PermEditSettings,
		PermViewReports,
	},
	RoleManager: {
		PermViewDashboard,
		PermManageUsers,
		PermViewReports,
	},
	RoleUser: {
		PermViewDashboard,
	},
}

// PermissionsOf returns the permissions granted to role. Unknown or empty
// roles yield an empty set.
func PermissionsOf(role string) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasRole reports whether u is present and holds one of the candidate roles.
// A nil user never matches.
func HasRole(u *User, roles ...string) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// HasPermission reports whether u is present and its role grants at least one
// of the candidate permissions.
func HasPermission(u *User, perms ...string) bool {
	if u == nil {
		return false
	}
	granted, ok := rolePermissions[u.Role]
	if !ok {
		return false
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[p] = struct{}{}
	}
	for _, p := range perms {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}
