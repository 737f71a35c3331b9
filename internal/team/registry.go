// Package team implements the Team Registry: teams, memberships,
// team-role capabilities, invitations, and ownership transfer.
package team

import (
	"crypto/rand"
	"sync"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const invitationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Registry is the Team Registry. A single mutex protects teams,
// memberships, and invitations together since transfer_ownership must
// update three fields atomically.
type Registry struct {
	logger         zerolog.Logger
	clock          clock.Clock
	defaultMaxSize int

	mu          sync.RWMutex
	teams       map[uuid.UUID]*domain.Team
	members     map[uuid.UUID]map[uuid.UUID]*domain.Membership // teamID -> userID -> membership
	userTeams   map[uuid.UUID]map[uuid.UUID]struct{}           // userID -> set of teamIDs
	invitations map[string]*domain.Invitation
}

// NewRegistry constructs an empty Team Registry.
func NewRegistry(logger zerolog.Logger, clk clock.Clock, defaultMaxMembers int) *Registry {
	if defaultMaxMembers <= 0 {
		defaultMaxMembers = 100
	}
	return &Registry{
		logger:         logger,
		clock:          clk,
		defaultMaxSize: defaultMaxMembers,
		teams:          make(map[uuid.UUID]*domain.Team),
		members:        make(map[uuid.UUID]map[uuid.UUID]*domain.Membership),
		userTeams:      make(map[uuid.UUID]map[uuid.UUID]struct{}),
		invitations:    make(map[string]*domain.Invitation),
	}
}

// Create registers a new team and auto-adds owner as team-role owner.
func (r *Registry) Create(name, description string, owner uuid.UUID) *domain.Team {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := &domain.Team{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		OwnerID:     owner,
		CreatedAt:   r.clock.Now().UTC(),
		Settings:    domain.DefaultTeamSettings(r.defaultMaxSize),
		Active:      true,
	}
	r.teams[t.ID] = t
	r.members[t.ID] = map[uuid.UUID]*domain.Membership{
		owner: {TeamID: t.ID, UserID: owner, Role: domain.TeamRoleOwner, JoinedAt: t.CreatedAt},
	}
	r.indexUserTeam(owner, t.ID)

	r.logger.Info().Str("team_id", t.ID.String()).Str("name", name).Msg("team created")
	return cloneTeam(t)
}

func (r *Registry) team(id uuid.UUID) (*domain.Team, error) {
	t, ok := r.teams[id]
	if !ok || !t.Active {
		return nil, securitycore.New(securitycore.NotFound, "team not found").With("team_id", id.String())
	}
	return t, nil
}

// AddMember adds user to team under role. Rejects an unknown team, an
// invalid role, a duplicate user, or a full team.
func (r *Registry) AddMember(teamID, user uuid.UUID, role domain.TeamRole, inviter uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addMemberLocked(teamID, user, role, inviter)
}

func (r *Registry) addMemberLocked(teamID, user uuid.UUID, role domain.TeamRole, inviter uuid.UUID) error {
	if !isValidTeamRole(role) {
		return securitycore.New(securitycore.InvalidArgument, "unknown team role").With("role", string(role))
	}
	if _, err := r.team(teamID); err != nil {
		return err
	}
	roster := r.members[teamID]
	if _, exists := roster[user]; exists {
		return securitycore.New(securitycore.AlreadyExists, "user already a team member").With("user_id", user.String())
	}
	if len(roster) >= r.maxMembers(teamID) {
		return securitycore.New(securitycore.LimitExceeded, "team has reached its member cap").With("team_id", teamID.String())
	}

	roster[user] = &domain.Membership{
		TeamID: teamID, UserID: user, Role: role, InviterID: inviter, JoinedAt: r.clock.Now().UTC(),
	}
	r.indexUserTeam(user, teamID)
	return nil
}

func (r *Registry) indexUserTeam(user, teamID uuid.UUID) {
	set, ok := r.userTeams[user]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.userTeams[user] = set
	}
	set[teamID] = struct{}{}
}

// maxMembers reads the team's own member cap, falling back to the registry
// default if a team was created before settings carried one.
func (r *Registry) maxMembers(teamID uuid.UUID) int {
	if t, ok := r.teams[teamID]; ok && t.Settings.MaxMembers > 0 {
		return t.Settings.MaxMembers
	}
	return r.defaultMaxSize
}

func isValidTeamRole(role domain.TeamRole) bool {
	switch role {
	case domain.TeamRoleOwner, domain.TeamRoleAdmin, domain.TeamRoleMember, domain.TeamRoleViewer:
		return true
	default:
		return false
	}
}

// RemoveMember removes user from team. The owner cannot be removed
// directly — ownership must be transferred first.
func (r *Registry) RemoveMember(teamID, user uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.team(teamID)
	if err != nil {
		return err
	}
	if t.OwnerID == user {
		return securitycore.New(securitycore.PermissionDenied, "cannot remove the team owner; transfer ownership first")
	}
	roster := r.members[teamID]
	if _, ok := roster[user]; !ok {
		return securitycore.New(securitycore.NotFound, "user is not a team member").With("user_id", user.String())
	}
	delete(roster, user)
	delete(r.userTeams[user], teamID)
	return nil
}

// UpdateRole changes a member's team-role. Demoting the owner directly
// is forbidden.
func (r *Registry) UpdateRole(teamID, user uuid.UUID, role domain.TeamRole) error {
	if !isValidTeamRole(role) {
		return securitycore.New(securitycore.InvalidArgument, "unknown team role").With("role", string(role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.team(teamID)
	if err != nil {
		return err
	}
	if t.OwnerID == user && role != domain.TeamRoleOwner {
		return securitycore.New(securitycore.PermissionDenied, "cannot demote the team owner directly")
	}
	m, ok := r.members[teamID][user]
	if !ok {
		return securitycore.New(securitycore.NotFound, "user is not a team member").With("user_id", user.String())
	}
	m.Role = role
	return nil
}

// TransferOwnership atomically demotes the current owner to admin and
// promotes newOwner to owner; all three changes happen or none.
func (r *Registry) TransferOwnership(teamID, newOwner uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.team(teamID)
	if err != nil {
		return err
	}
	roster := r.members[teamID]
	newMember, ok := roster[newOwner]
	if !ok {
		return securitycore.New(securitycore.NotFound, "new owner must already be a team member").With("user_id", newOwner.String())
	}
	oldOwnerMember, ok := roster[t.OwnerID]
	if !ok {
		return securitycore.New(securitycore.NotFound, "current owner membership missing").With("user_id", t.OwnerID.String())
	}

	oldOwnerMember.Role = domain.TeamRoleAdmin
	newMember.Role = domain.TeamRoleOwner
	t.OwnerID = newOwner
	return nil
}

// CreateInvitation mints a single-use invitation code for teamID
// granting targetRole on acceptance.
func (r *Registry) CreateInvitation(teamID, inviter uuid.UUID, targetRole domain.TeamRole) (*domain.Invitation, error) {
	if !isValidTeamRole(targetRole) {
		return nil, securitycore.New(securitycore.InvalidArgument, "unknown team role").With("role", string(targetRole))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.team(teamID); err != nil {
		return nil, err
	}

	code, err := r.generateCode()
	if err != nil {
		return nil, securitycore.Wrap(securitycore.Upstream, "generate invitation code", err)
	}

	inv := &domain.Invitation{
		Code: code, TeamID: teamID, InviterID: inviter, TargetRole: targetRole,
		CreatedAt: r.clock.Now().UTC(),
	}
	r.invitations[code] = inv
	return inv, nil
}

func (r *Registry) generateCode() (string, error) {
	for {
		buf := make([]byte, domain.InvitationCodeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i, b := range buf {
			buf[i] = invitationAlphabet[int(b)%len(invitationAlphabet)]
		}
		code := string(buf)
		if _, exists := r.invitations[code]; !exists {
			return code, nil
		}
	}
}

// AcceptInvitation consumes code and adds user to its team under the
// invitation's target role. Check, add, and consume happen under one
// lock so two racing accepts cannot both spend the code; a failed add
// leaves the code unconsumed.
func (r *Registry) AcceptInvitation(code string, user uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invitations[code]
	if !ok {
		return securitycore.New(securitycore.InvalidArgument, "unknown invitation code")
	}
	if inv.Used {
		return securitycore.New(securitycore.Expired, "invitation code already used").With("code", code)
	}

	if err := r.addMemberLocked(inv.TeamID, user, inv.TargetRole, inv.InviterID); err != nil {
		return err
	}

	now := r.clock.Now().UTC()
	inv.Used = true
	inv.UsedBy = user
	inv.UsedAt = &now
	return nil
}

// Delete soft-deletes a team: records remain, but it drops out of
// listings and out of every member's team list.
func (r *Registry) Delete(teamID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.team(teamID)
	if err != nil {
		return err
	}
	t.Active = false
	for user := range r.members[teamID] {
		delete(r.userTeams[user], teamID)
	}
	return nil
}

// UpdateSettings replaces a team's settings wholesale.
func (r *Registry) UpdateSettings(teamID uuid.UUID, settings domain.TeamSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.team(teamID)
	if err != nil {
		return err
	}
	t.Settings = settings
	return nil
}

// TeamsForUser returns a membership summary for every active team the
// user belongs to. Soft-deleted teams have already been removed from
// the user's team list by Delete.
func (r *Registry) TeamsForUser(user uuid.UUID) []domain.TeamSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.TeamSummary, 0, len(r.userTeams[user]))
	for teamID := range r.userTeams[user] {
		t, ok := r.teams[teamID]
		if !ok || !t.Active {
			continue
		}
		m := r.members[teamID][user]
		if m == nil {
			continue
		}
		out = append(out, domain.TeamSummary{
			TeamID:      t.ID,
			Name:        t.Name,
			Role:        m.Role,
			MemberCount: len(r.members[teamID]),
		})
	}
	return out
}

// ListTeams returns a snapshot of every active team.
func (r *Registry) ListTeams() []*domain.Team {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Team, 0, len(r.teams))
	for _, t := range r.teams {
		if t.Active {
			out = append(out, cloneTeam(t))
		}
	}
	return out
}

// CheckCapability reports whether user's team-role within teamID
// grants capability; false for non-members and unknown teams.
func (r *Registry) CheckCapability(teamID, user uuid.UUID, capability domain.TeamCapability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.teams[teamID]
	if !ok || !t.Active {
		return false
	}
	m, ok := r.members[teamID][user]
	if !ok {
		return false
	}
	return m.Role.Can(capability)
}

// ShareSkill adds skillName to the team's shared-skill list if
// skill-sharing is enabled and it isn't already present.
func (r *Registry) ShareSkill(teamID uuid.UUID, skillName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.team(teamID)
	if err != nil {
		return err
	}
	if !t.Settings.SkillSharingEnabled {
		return securitycore.New(securitycore.PermissionDenied, "skill sharing is disabled for this team").With("team_id", teamID.String())
	}
	for _, s := range t.SharedSkills {
		if s == skillName {
			return nil
		}
	}
	t.SharedSkills = append(t.SharedSkills, skillName)
	return nil
}

// UnshareSkill removes skillName from the team's shared-skill list;
// it is a no-op when the skill was never shared.
func (r *Registry) UnshareSkill(teamID uuid.UUID, skillName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.team(teamID)
	if err != nil {
		return err
	}
	for i, s := range t.SharedSkills {
		if s == skillName {
			t.SharedSkills = append(t.SharedSkills[:i], t.SharedSkills[i+1:]...)
			break
		}
	}
	return nil
}

// Members returns a snapshot of teamID's roster.
func (r *Registry) Members(teamID uuid.UUID) ([]*domain.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := r.team(teamID); err != nil {
		return nil, err
	}
	out := make([]*domain.Membership, 0, len(r.members[teamID]))
	for _, m := range r.members[teamID] {
		mc := *m
		out = append(out, &mc)
	}
	return out, nil
}

// Get returns a team by id.
func (r *Registry) Get(teamID uuid.UUID) (*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, err := r.team(teamID)
	if err != nil {
		return nil, err
	}
	return cloneTeam(t), nil
}

func cloneTeam(t *domain.Team) *domain.Team {
	c := *t
	c.SharedSkills = append([]string(nil), t.SharedSkills...)
	return &c
}
