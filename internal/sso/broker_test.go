package sso

import (
	"context"
	"testing"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSSOConfig() config.SSOConfig {
	return config.SSOConfig{
		CallbackBaseURL:  "http://127.0.0.1:8080/auth/callback",
		DefaultScopes:    []string{"openid", "profile", "email"},
		DiscoveryTimeout: 5 * time.Second,
		ExchangeTimeout:  5 * time.Second,
	}
}

func TestRegisterProvider_AppliesDefaultsWhenUnset(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Real{}, testSSOConfig())
	b.RegisterProvider(&Provider{Name: "okta", Type: ProviderOIDC, IssuerURL: "https://example.okta.com"})

	p, err := b.provider("okta")
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "profile", "email"}, p.Scopes)
	assert.Equal(t, "http://127.0.0.1:8080/auth/callback", p.RedirectURL)
}

func TestAuthorizeURL_SAMLProviderIsUnsupported(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Real{}, testSSOConfig())
	b.RegisterProvider(&Provider{Name: "ad-fs", Type: ProviderSAML, SAML: &SAMLConfig{MetadataURL: "https://adfs.example.com/metadata"}})

	_, _, err := b.AuthorizeURL(context.Background(), "ad-fs", "")
	assert.Error(t, err)
}

func TestExchange_SAMLProviderIsUnsupported(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Real{}, testSSOConfig())
	b.RegisterProvider(&Provider{Name: "ad-fs", Type: ProviderSAML})

	_, err := b.Exchange(context.Background(), "ad-fs", "some-code")
	assert.Error(t, err)
}

func TestUserInfo_SAMLProviderIsUnsupported(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Real{}, testSSOConfig())
	b.RegisterProvider(&Provider{Name: "ad-fs", Type: ProviderSAML})

	_, err := b.UserInfo(context.Background(), "ad-fs", Tokens{RawIDToken: "x"})
	assert.Error(t, err)
}

func TestListProviders_ReturnsNameAndType(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Real{}, testSSOConfig())
	b.RegisterProvider(&Provider{Name: "okta", Type: ProviderOIDC, IssuerURL: "https://example.okta.com"})
	b.RegisterProvider(&Provider{Name: "ad-fs", Type: ProviderSAML})

	listed := b.ListProviders()
	require.Len(t, listed, 2)
	types := map[string]ProviderType{}
	for _, p := range listed {
		types[p.Name] = p.Type
	}
	assert.Equal(t, ProviderOIDC, types["okta"])
	assert.Equal(t, ProviderSAML, types["ad-fs"])
}

func TestAuthorizeURL_UnknownProviderFails(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Real{}, testSSOConfig())
	_, _, err := b.AuthorizeURL(context.Background(), "ghost", "")
	assert.Error(t, err)
}

func TestSessionLifecycle_CreateValidateRefreshRevoke(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, testSSOConfig())
	userID := uuid.New()

	sess, err := b.CreateSession(userID, "okta")
	require.NoError(t, err)
	assert.Equal(t, userID, sess.UserID)

	found := b.ValidateSession(sess.AccessToken)
	require.NotNil(t, found)
	assert.Equal(t, sess.ID, found.ID)

	refreshed, err := b.RefreshSession(sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.AccessToken, refreshed.AccessToken)
	assert.Nil(t, b.ValidateSession(sess.AccessToken), "the old access token should no longer resolve once rotated")

	assert.True(t, b.RevokeSession(sess.ID))
	assert.Nil(t, b.ValidateSession(refreshed.AccessToken))
}

func TestValidateSession_ExpiredSessionReturnsNil(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &movableClock{at: now}
	b := NewBroker(zerolog.Nop(), clk, testSSOConfig())

	sess, err := b.CreateSession(uuid.New(), "okta")
	require.NoError(t, err)

	clk.at = now.Add(25 * time.Hour)
	assert.Nil(t, b.ValidateSession(sess.AccessToken))
}

func TestRevokeAllUserSessions_RemovesOnlyThatUsersSessions(t *testing.T) {
	b := NewBroker(zerolog.Nop(), clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, testSSOConfig())
	userA := uuid.New()
	userB := uuid.New()

	_, err := b.CreateSession(userA, "okta")
	require.NoError(t, err)
	_, err = b.CreateSession(userA, "okta")
	require.NoError(t, err)
	sessB, err := b.CreateSession(userB, "okta")
	require.NoError(t, err)

	removed := b.RevokeAllUserSessions(userA)
	assert.Equal(t, 2, removed)
	assert.Empty(t, b.ListUserSessions(userA))
	assert.Len(t, b.ListUserSessions(userB), 1)
	assert.NotNil(t, b.ValidateSession(sessB.AccessToken))
}

type movableClock struct{ at time.Time }

func (c *movableClock) Now() time.Time { return c.at }
