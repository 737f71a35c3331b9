// Package rbac implements the Role Registry: roles, permissions, and
// the single set-membership authorization decision.
package rbac

import (
	"sync"

	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/rs/zerolog"
)

// RoleUsers is implemented by the Identity Store so the registry can
// enforce "a custom role may be deleted only when no user references
// it" without owning user state
// itself.
type RoleUsers interface {
	CountUsersWithRole(roleName string) int
}

// Service is the Role Registry. Roles are keyed by name; the five
// built-in roles are preloaded at construction and marked system.
type Service struct {
	logger zerolog.Logger
	users  RoleUsers

	mu    sync.RWMutex
	roles map[string]*domain.Role
}

// NewService constructs a Role Registry preloaded with the five
// built-in system roles.
func NewService(logger zerolog.Logger, users RoleUsers) *Service {
	s := &Service{
		logger: logger,
		users:  users,
		roles:  make(map[string]*domain.Role),
	}
	for _, name := range domain.BuiltinRoleNames {
		s.roles[name] = domain.BuiltinRole(name)
	}
	logger.Info().Int("builtin_roles", len(s.roles)).Msg("role registry initialized")
	return s
}

// Exists reports whether a role name is registered, satisfying the
// identity store's RoleExists dependency.
func (s *Service) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[name]
	return ok
}

// Check performs a single set-membership authorization test:
// true iff the user is active, the role exists, and the permission is
// a member of the role's set. No inheritance, no wildcards, no
// deny-overrides.
func (s *Service) Check(user *domain.User, permission domain.Permission) bool {
	if user == nil || !user.Active {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[user.RoleName]
	if !ok {
		return false
	}
	return role.HasPermission(permission)
}

// Permissions returns the full permission set granted to user's role,
// or nil if the role is unknown or the user inactive.
func (s *Service) Permissions(user *domain.User) []domain.Permission {
	if user == nil || !user.Active {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[user.RoleName]
	if !ok {
		return nil
	}
	perms := make([]domain.Permission, 0, len(role.Permissions))
	for p := range role.Permissions {
		perms = append(perms, p)
	}
	return perms
}

// CreateRole registers a custom role. Permissions outside the fixed
// catalog are rejected.
func (s *Service) CreateRole(name, description string, perms []domain.Permission) (*domain.Role, error) {
	for _, p := range perms {
		if _, ok := domain.PermissionCatalog[p]; !ok {
			return nil, securitycore.New(securitycore.InvalidArgument, "permission not in catalog").With("permission", string(p))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[name]; exists {
		return nil, securitycore.New(securitycore.AlreadyExists, "role already exists").With("role_name", name)
	}

	role := &domain.Role{Name: name, Description: description, Permissions: domain.PermissionSet(perms...)}
	s.roles[name] = role
	s.logger.Info().Str("role_name", name).Int("permissions", len(perms)).Msg("role created")
	return cloneRole(role), nil
}

// DeleteRole removes a custom role. System roles are undeletable; a
// referenced custom role is also rejected.
func (s *Service) DeleteRole(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, exists := s.roles[name]
	if !exists {
		return securitycore.New(securitycore.NotFound, "role not found").With("role_name", name)
	}
	if role.IsSystem {
		return securitycore.New(securitycore.PermissionDenied, "system roles cannot be deleted").With("role_name", name)
	}
	if s.users != nil && s.users.CountUsersWithRole(name) > 0 {
		return securitycore.New(securitycore.PermissionDenied, "role is still referenced by users").With("role_name", name)
	}

	delete(s.roles, name)
	s.logger.Info().Str("role_name", name).Msg("role deleted")
	return nil
}

// ListRoles returns a snapshot of every registered role, system and
// custom.
func (s *Service) ListRoles() []*domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, cloneRole(r))
	}
	return out
}

func cloneRole(r *domain.Role) *domain.Role {
	c := *r
	c.Permissions = make(map[domain.Permission]struct{}, len(r.Permissions))
	for p := range r.Permissions {
		c.Permissions[p] = struct{}{}
	}
	return &c
}
