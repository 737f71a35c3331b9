package apikey

import (
	"testing"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ProducesPrefixedTokenAndValidates(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewService(zerolog.Nop(), clk)
	userID := uuid.New()

	raw, info, err := s.Generate(userID, "ci key", 30)
	require.NoError(t, err)
	assert.Regexp(t, `^sk_`, raw)
	assert.Equal(t, userID, info.UserID)

	validated, err := s.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, userID, validated.UserID)
}

func TestValidFormat(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewService(zerolog.Nop(), clk)

	raw, _, err := s.Generate(uuid.New(), "shape check", 30)
	require.NoError(t, err)
	assert.True(t, ValidFormat(raw))

	assert.False(t, ValidFormat("pk_"+raw[3:]), "wrong prefix")
	assert.False(t, ValidFormat("sk_tooshort"))
	assert.False(t, ValidFormat("sk_"+raw[3:len(raw)-1]+"!"), "charset violation")
}

func TestGenerate_TTLZeroIsImmediatelyExpired(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewService(zerolog.Nop(), clk)

	raw, _, err := s.Generate(uuid.New(), "short lived", 0)
	require.NoError(t, err)

	_, err = s.Validate(raw)
	assert.Error(t, err)
}

func TestValidate_FailsAfterExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &fixedButAdvanceable{at: now}
	s := NewService(zerolog.Nop(), clk)

	raw, _, err := s.Generate(uuid.New(), "expires soon", 1)
	require.NoError(t, err)

	clk.at = now.AddDate(0, 0, 2)
	_, err = s.Validate(raw)
	assert.Error(t, err)
}

func TestRevoke_IsIdempotentAndRemovesKey(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewService(zerolog.Nop(), clk)

	raw, _, err := s.Generate(uuid.New(), "to revoke", 30)
	require.NoError(t, err)

	assert.True(t, s.Revoke(raw))
	assert.False(t, s.Revoke(raw))

	_, err = s.Validate(raw)
	assert.Error(t, err)
}

func TestList_OnlyReturnsKeysForRequestedUser(t *testing.T) {
	clk := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewService(zerolog.Nop(), clk)

	userA := uuid.New()
	userB := uuid.New()
	_, _, err := s.Generate(userA, "a1", 30)
	require.NoError(t, err)
	_, _, err = s.Generate(userA, "a2", 30)
	require.NoError(t, err)
	_, _, err = s.Generate(userB, "b1", 30)
	require.NoError(t, err)

	listA := s.List(userA)
	assert.Len(t, listA, 2)
	listB := s.List(userB)
	assert.Len(t, listB, 1)
}

type fixedButAdvanceable struct{ at time.Time }

func (f *fixedButAdvanceable) Now() time.Time { return f.at }
