package domain

import (
	"time"

	"github.com/google/uuid"
)

// TeamRole is a membership role scoped to a single team, distinct
// from the global Role Registry.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleMember TeamRole = "member"
	TeamRoleViewer TeamRole = "viewer"
)

// TeamCapability is one action a TeamRole may or may not perform
// within its team.
type TeamCapability string

const (
	CapManageTeam   TeamCapability = "manage_team"
	CapInviteRemove TeamCapability = "invite_remove"
	CapManageSkills TeamCapability = "manage_skills"
	CapViewAudit    TeamCapability = "view_audit"
	CapShareMemory  TeamCapability = "share_memory"
	CapDeleteTeam   TeamCapability = "delete_team"
)

// teamCapabilityMatrix is the fixed capability matrix:
//
//	capability    | owner | admin | member | viewer
//	manage_team   |   x   |   x   |        |
//	invite_remove |   x   |   x   |        |
//	manage_skills |   x   |   x   |        |
//	view_audit    |   x   |   x   |        |   x
//	share_memory  |   x   |   x   |   x    |
//	delete_team   |   x   |       |        |
var teamCapabilityMatrix = map[TeamRole]map[TeamCapability]struct{}{
	TeamRoleOwner: {
		CapManageTeam: {}, CapInviteRemove: {}, CapManageSkills: {},
		CapViewAudit: {}, CapShareMemory: {}, CapDeleteTeam: {},
	},
	TeamRoleAdmin: {
		CapManageTeam: {}, CapInviteRemove: {}, CapManageSkills: {},
		CapViewAudit: {}, CapShareMemory: {},
	},
	TeamRoleMember: {
		CapShareMemory: {},
	},
	TeamRoleViewer: {
		CapViewAudit: {},
	},
}

// Can reports whether role grants capability.
func (r TeamRole) Can(capability TeamCapability) bool {
	_, ok := teamCapabilityMatrix[r][capability]
	return ok
}

// TeamSettings holds the per-team toggles alongside the member cap.
type TeamSettings struct {
	SharedMemoryEnabled bool
	SkillSharingEnabled bool
	AuditVisibility     bool
	MaxMembers          int
}

// DefaultTeamSettings returns the settings a newly created team starts
// with, capped at maxMembers.
func DefaultTeamSettings(maxMembers int) TeamSettings {
	return TeamSettings{
		SharedMemoryEnabled: true,
		SkillSharingEnabled: true,
		AuditVisibility:     true,
		MaxMembers:          maxMembers,
	}
}

// Team is a named grouping of users sharing ownership of resources.
type Team struct {
	ID           uuid.UUID
	Name         string
	Description  string
	OwnerID      uuid.UUID
	CreatedAt    time.Time
	Settings     TeamSettings
	SharedSkills []string
	Active       bool
}

// TeamSummary is the per-user listing view of one team membership.
type TeamSummary struct {
	TeamID      uuid.UUID
	Name        string
	Role        TeamRole
	MemberCount int
}

// Membership binds a user to a team under a TeamRole.
type Membership struct {
	TeamID    uuid.UUID
	UserID    uuid.UUID
	Role      TeamRole
	InviterID uuid.UUID
	JoinedAt  time.Time
}

// InvitationCodeLength is the fixed length of a generated invitation
// code.
const InvitationCodeLength = 8

// Invitation is a single-use code granting membership at a fixed
// TeamRole when accepted.
type Invitation struct {
	Code       string
	TeamID     uuid.UUID
	InviterID  uuid.UUID
	TargetRole TeamRole
	CreatedAt  time.Time
	Used       bool
	UsedBy     uuid.UUID
	UsedAt     *time.Time
}
