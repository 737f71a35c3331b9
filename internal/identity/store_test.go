package identity

import (
	"testing"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRoleExists struct{ known map[string]bool }

func (s stubRoleExists) Exists(name string) bool { return s.known[name] }

func testConfig() config.IdentityConfig {
	// N=2^10 keeps the tests fast; production defaults (2^14) are set
	// in config.Default and are not re-verified here.
	return config.IdentityConfig{ScryptN: 1 << 10, ScryptR: 8, ScryptP: 1, ScryptKeyLen: 32, SaltBytes: 32}
}

func newTestStore() *Store {
	roles := stubRoleExists{known: map[string]bool{"user": true, "operator": true}}
	return NewStore(zerolog.Nop(), clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, testConfig(), roles)
}

func TestCreateUser_RejectsUnknownRole(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "ghost")
	require.Error(t, err)
}

func TestCreateUser_RejectsDuplicateUsername(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)

	_, err = s.CreateUser("avery", "other@example.com", "hunter22hunter22", "user")
	assert.Error(t, err)
}

func TestAuthenticate_SucceedsWithCorrectPassword(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)

	u, err := s.Authenticate("avery", "hunter22hunter22")
	require.NoError(t, err)
	assert.Equal(t, "avery", u.Username)
}

func TestAuthenticate_FailsWithWrongPassword(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)

	_, err = s.Authenticate("avery", "wrong-password")
	assert.Error(t, err)
}

func TestAuthenticate_FailsForUnknownUsernameWithSameErrorKind(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)

	_, wrongPassErr := s.Authenticate("avery", "wrong-password")
	_, unknownUserErr := s.Authenticate("nobody", "irrelevant")

	require.Error(t, wrongPassErr)
	require.Error(t, unknownUserErr)
	assert.Equal(t, wrongPassErr.Error(), unknownUserErr.Error())
}

func TestAuthenticate_FailsForDeactivatedUser(t *testing.T) {
	s := newTestStore()
	u, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)
	require.NoError(t, s.Deactivate(u.ID))

	_, err = s.Authenticate("avery", "hunter22hunter22")
	assert.Error(t, err)
}

func TestLinkChannel_OverwritesSilentlyAndReturnsPreviousOwner(t *testing.T) {
	s := newTestStore()
	first, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)
	second, err := s.CreateUser("reese", "reese@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)

	prev, err := s.LinkChannel("slack", "U123", first.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, prev)

	prev, err = s.LinkChannel("slack", "U123", second.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, prev)

	resolved, err := s.GetByChannel("slack", "U123")
	require.NoError(t, err)
	assert.Equal(t, second.ID, resolved.ID)
}

func TestChangeRole_RejectsUnknownRole(t *testing.T) {
	s := newTestStore()
	u, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)

	err = s.ChangeRole(u.ID, "ghost")
	assert.Error(t, err)
}

func TestCountUsersWithRole(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateUser("avery", "avery@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)
	_, err = s.CreateUser("reese", "reese@example.com", "hunter22hunter22", "user")
	require.NoError(t, err)

	assert.Equal(t, 2, s.CountUsersWithRole("user"))
	assert.Equal(t, 0, s.CountUsersWithRole("operator"))
}
