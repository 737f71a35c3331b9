package domain

// Permission is a dotted permission name drawn from a closed catalog
// fixed at build time.
type Permission string

// PermissionCategory buckets a Permission for catalog display.
type PermissionCategory string

const (
	CategoryChat   PermissionCategory = "chat"
	CategoryTools  PermissionCategory = "tools"
	CategoryAdmin  PermissionCategory = "admin"
	CategoryData   PermissionCategory = "data"
	CategorySystem PermissionCategory = "system"
)

// The fixed permission catalog. Custom roles may only draw from this
// set.
const (
	PermChatSend       Permission = "chat.send"
	PermChatStream     Permission = "chat.stream"
	PermChatHistory    Permission = "chat.history"
	PermToolsExecute   Permission = "tools.execute"
	PermToolsShell     Permission = "tools.shell"
	PermToolsFileRead  Permission = "tools.file_read"
	PermToolsFileWrite Permission = "tools.file_write"
	PermToolsNetwork   Permission = "tools.network"
	PermToolsBrowser   Permission = "tools.browser"
	PermToolsEmail     Permission = "tools.email"
	PermToolsCodeExec  Permission = "tools.code_exec"
	PermSkillsAdmin    Permission = "admin.skills"
	PermAuditView      Permission = "admin.audit_view"
	PermConfigAdmin    Permission = "admin.config"
	PermVaultAdmin     Permission = "admin.vault"
	PermMonitor        Permission = "system.monitor"
	PermSystemStart    Permission = "system.start"
	PermSystemUpdate   Permission = "system.update"
	PermDataOwn        Permission = "data.own"
	PermDataAll        Permission = "data.all"
	PermDataExport     Permission = "data.export"
	PermUsersAdmin     Permission = "admin.users"
	PermRolesAdmin     Permission = "admin.roles"
	PermTeamsAdmin     Permission = "admin.teams"
	PermKeysAdmin      Permission = "admin.keys"
)

// PermissionCatalog is the closed set of permissions the system knows
// about; CreateRole rejects anything outside it.
var PermissionCatalog = map[Permission]PermissionCategory{
	PermChatSend:       CategoryChat,
	PermChatStream:     CategoryChat,
	PermChatHistory:    CategoryChat,
	PermToolsExecute:   CategoryTools,
	PermToolsShell:     CategoryTools,
	PermToolsFileRead:  CategoryTools,
	PermToolsFileWrite: CategoryTools,
	PermToolsNetwork:   CategoryTools,
	PermToolsBrowser:   CategoryTools,
	PermToolsEmail:     CategoryTools,
	PermToolsCodeExec:  CategoryTools,
	PermSkillsAdmin:    CategoryAdmin,
	PermAuditView:      CategoryAdmin,
	PermConfigAdmin:    CategoryAdmin,
	PermVaultAdmin:     CategoryAdmin,
	PermMonitor:        CategorySystem,
	PermSystemStart:    CategorySystem,
	PermSystemUpdate:   CategorySystem,
	PermDataOwn:        CategoryData,
	PermDataAll:        CategoryData,
	PermDataExport:     CategoryData,
	PermUsersAdmin:     CategoryAdmin,
	PermRolesAdmin:     CategoryAdmin,
	PermTeamsAdmin:     CategoryAdmin,
	PermKeysAdmin:      CategoryAdmin,
}

// Role is a named set of permissions. System roles are immutable and
// undeletable.
type Role struct {
	Name        string
	Description string
	Permissions map[Permission]struct{}
	IsSystem    bool
}

// HasPermission is a single set-membership test: no inheritance, no
// wildcards, no deny-overrides.
func (r *Role) HasPermission(p Permission) bool {
	_, ok := r.Permissions[p]
	return ok
}

// PermissionSet builds a Role's permission set from a plain slice, the
// shape CreateRole accepts at the API boundary.
func PermissionSet(perms...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// BuiltinRoleNames lists the five system roles preloaded at startup.
var BuiltinRoleNames = []string{"admin", "operator", "user", "viewer", "guest"}

// BuiltinRole returns the definition of one of the five preloaded
// system roles, or nil if name isn't one of them.
func BuiltinRole(name string) *Role {
	switch name {
	case "admin":
		perms := make(map[Permission]struct{}, len(PermissionCatalog))
		for p := range PermissionCatalog {
			perms[p] = struct{}{}
		}
		return &Role{Name: "admin", Description: "Full access to all resources", Permissions: perms, IsSystem: true}
	case "operator":
		return &Role{
			Name:        "operator",
			Description: "Chat, all tools, skill administration, audit view, monitoring",
			Permissions: PermissionSet(PermChatSend, PermChatStream, PermChatHistory, PermToolsExecute,
				PermToolsShell, PermToolsFileRead, PermToolsFileWrite, PermToolsNetwork, PermToolsBrowser,
				PermToolsEmail, PermToolsCodeExec, PermSkillsAdmin, PermAuditView, PermDataOwn, PermDataAll,
				PermMonitor),
			IsSystem: true,
		}
	case "user":
		return &Role{
			Name:        "user",
			Description: "Chat, safe tools subset, own data, monitoring",
			Permissions: PermissionSet(PermChatSend, PermChatStream, PermChatHistory, PermToolsExecute,
				PermToolsFileRead, PermToolsNetwork, PermDataOwn, PermMonitor),
			IsSystem: true,
		}
	case "viewer":
		return &Role{
			Name:        "viewer",
			Description: "Chat, history, and own data",
			Permissions: PermissionSet(PermChatSend, PermChatHistory, PermDataOwn),
			IsSystem:    true,
		}
	case "guest":
		return &Role{
			Name:        "guest",
			Description: "Chat send only",
			Permissions: PermissionSet(PermChatSend),
			IsSystem:    true,
		}
	default:
		return nil
	}
}
