package rbac

import (
	"testing"

	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRoleUsers struct{ counts map[string]int }

func (s stubRoleUsers) CountUsersWithRole(roleName string) int { return s.counts[roleName] }

func activeUser(role string) *domain.User {
	return &domain.User{ID: uuid.New(), Username: "avery", RoleName: role, Active: true}
}

func TestNewService_PreloadsBuiltinRoles(t *testing.T) {
	s := NewService(zerolog.Nop(), nil)
	for _, name := range domain.BuiltinRoleNames {
		assert.True(t, s.Exists(name))
	}
	assert.False(t, s.Exists("nonexistent"))
}

func TestCheck_GuestOnlyHasChatSend(t *testing.T) {
	s := NewService(zerolog.Nop(), nil)
	u := activeUser("guest")
	assert.True(t, s.Check(u, domain.PermChatSend))
	assert.False(t, s.Check(u, domain.PermToolsExecute))
}

func TestCheck_InactiveUserAlwaysDenied(t *testing.T) {
	s := NewService(zerolog.Nop(), nil)
	u := activeUser("admin")
	u.Active = false
	assert.False(t, s.Check(u, domain.PermChatSend))
}

func TestCheck_NoWildcardOrInheritance(t *testing.T) {
	s := NewService(zerolog.Nop(), nil)
	u := activeUser("viewer")
	// viewer has chat.send/chat.history/data.own but nothing else, and
	// there is no broader role it inherits from.
	assert.True(t, s.Check(u, domain.PermDataOwn))
	assert.False(t, s.Check(u, domain.PermDataAll))
}

func TestCreateRole_RejectsPermissionOutsideCatalog(t *testing.T) {
	s := NewService(zerolog.Nop(), nil)
	_, err := s.CreateRole("custom", "custom role", []domain.Permission{"not.a.real.permission"})
	require.Error(t, err)
}

func TestCreateRole_RejectsDuplicateName(t *testing.T) {
	s := NewService(zerolog.Nop(), nil)
	_, err := s.CreateRole("custom", "custom role", []domain.Permission{domain.PermChatSend})
	require.NoError(t, err)
	_, err = s.CreateRole("custom", "again", []domain.Permission{domain.PermChatSend})
	assert.Error(t, err)
}

func TestDeleteRole_SystemRoleImmutable(t *testing.T) {
	s := NewService(zerolog.Nop(), nil)
	err := s.DeleteRole("admin")
	assert.Error(t, err)
}

func TestDeleteRole_RejectsWhileReferenced(t *testing.T) {
	users := stubRoleUsers{counts: map[string]int{"custom": 1}}
	s := NewService(zerolog.Nop(), users)
	_, err := s.CreateRole("custom", "custom role", []domain.Permission{domain.PermChatSend})
	require.NoError(t, err)

	err = s.DeleteRole("custom")
	assert.Error(t, err)
}

func TestDeleteRole_SucceedsWhenUnreferenced(t *testing.T) {
	users := stubRoleUsers{counts: map[string]int{}}
	s := NewService(zerolog.Nop(), users)
	_, err := s.CreateRole("custom", "custom role", []domain.Permission{domain.PermChatSend})
	require.NoError(t, err)

	err = s.DeleteRole("custom")
	assert.NoError(t, err)
	assert.False(t, s.Exists("custom"))
}
