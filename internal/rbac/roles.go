package rbac

// Role names travel in access tokens; renaming one invalidates issued tokens.
const (
	RoleOwner      = "owner"
	RoleEditor     = "editor"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
)

type Permission string

const (
	PermFlowsRead  Permission = "flows:read"
	PermFlowsWrite Permission = "flows:write"
	PermCallsRead  Permission = "calls:read"
	PermAuditRead  Permission = "audit:read"
)

// grants lists what each tenant role may do. super_admin is not listed; it
// passes every check.
var grants = map[string][]Permission{
	RoleOwner:  {PermFlowsRead, PermFlowsWrite, PermCallsRead, PermAuditRead},
	RoleEditor: {PermFlowsRead, PermFlowsWrite, PermCallsRead},
	RoleViewer: {PermFlowsRead, PermCallsRead},
}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// Known reports whether role is one this service issues tokens for.
func Known(role string) bool {
	_, ok := grants[role]
	return ok || IsSuperAdmin(role)
}

func Can(role string, p Permission) bool {
	if IsSuperAdmin(role) {
		return true
	}
	for _, g := range grants[role] {
		if g == p {
			return true
		}
	}
	return false
}
