// Package sso implements the SSO Broker: the OIDC authorization-code
// flow as a trust boundary, plus the session lifecycle built on top of
// it.
package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ProviderType distinguishes the wire protocol a configured provider
// speaks.
type ProviderType string

const (
	ProviderOIDC ProviderType = "oidc"
	ProviderSAML ProviderType = "saml"
)

// SAMLConfig is accepted and stored for a SAML-typed provider, but
// AuthorizeURL, Exchange and UserInfo refuse to act on it — wire-level SAML handling is
// delegated to an external library this core does not implement.
type SAMLConfig struct {
	MetadataURL string
	EntityID    string
}

// Provider is a configured SSO identity provider.
type Provider struct {
	Name         string
	Type         ProviderType
	ClientID     string
	ClientSecret string
	IssuerURL    string
	RedirectURL  string
	Scopes       []string
	SAML         *SAMLConfig
}

// SSOUser is the normalized identity the broker hands back after a
// successful userinfo lookup.
type SSOUser struct {
	ExternalID string
	Email      string
	Name       string
	Provider   string
	Groups     []string
	RawClaims  map[string]any
}

// oidcClaims mirrors the subset of standard claims the broker reads
// off a verified ID token or userinfo response.
type oidcClaims struct {
	Subject           string   `json:"sub"`
	Email             string   `json:"email"`
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Groups            []string `json:"groups"`
}

// discovered caches one provider's resolved OIDC endpoints; fetched
// lazily and cached for the process lifetime, guarded by sync.Once so
// concurrent first-callers block on one discovery call instead of
// racing.
type discovered struct {
	once     sync.Once
	err      error
	oidcProv *oidc.Provider
	endpoint oauth2.Endpoint
}

// Broker is the SSO Broker. Session state is protected by its own
// mutex, independent of provider discovery caching.
type Broker struct {
	logger zerolog.Logger
	clock  clock.Clock
	cfg    config.SSOConfig

	providers map[string]*Provider
	disco     map[string]*discovered
	discoMu   sync.Mutex

	sessMu   sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewBroker constructs an empty broker. Providers are registered via
// RegisterProvider.
func NewBroker(logger zerolog.Logger, clk clock.Clock, cfg config.SSOConfig) *Broker {
	return &Broker{
		logger:    logger,
		clock:     clk,
		cfg:       cfg,
		providers: make(map[string]*Provider),
		disco:     make(map[string]*discovered),
		sessions:  make(map[uuid.UUID]*Session),
	}
}

// RegisterProvider adds or replaces a provider configuration.
func (b *Broker) RegisterProvider(p *Provider) {
	if len(p.Scopes) == 0 {
		p.Scopes = b.cfg.DefaultScopes
	}
	if p.RedirectURL == "" {
		p.RedirectURL = b.cfg.CallbackBaseURL
	}
	b.providers[p.Name] = p
}

// ProviderInfo is the listing view of a configured provider.
type ProviderInfo struct {
	Name string
	Type ProviderType
}

// ListProviders returns the name and type of every configured
// provider.
func (b *Broker) ListProviders() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(b.providers))
	for name, p := range b.providers {
		out = append(out, ProviderInfo{Name: name, Type: p.Type})
	}
	return out
}

func (b *Broker) provider(name string) (*Provider, error) {
	p, ok := b.providers[name]
	if !ok {
		return nil, securitycore.New(securitycore.InvalidArgument, "unknown SSO provider").With("provider", name)
	}
	return p, nil
}

// discover resolves and caches provider's OIDC endpoints via
// "<issuer>/.well-known/openid-configuration".
func (b *Broker) discover(ctx context.Context, p *Provider) (*discovered, error) {
	b.discoMu.Lock()
	d, ok := b.disco[p.Name]
	if !ok {
		d = &discovered{}
		b.disco[p.Name] = d
	}
	b.discoMu.Unlock()

	d.once.Do(func() {
		dctx, cancel := context.WithTimeout(ctx, b.cfg.DiscoveryTimeout)
		defer cancel()
		oidcProv, err := oidc.NewProvider(dctx, p.IssuerURL)
		if err != nil {
			d.err = err
			return
		}
		d.oidcProv = oidcProv
		d.endpoint = oidcProv.Endpoint()
	})
	if d.err != nil {
		return nil, securitycore.Wrap(securitycore.Upstream, "OIDC discovery failed", d.err)
	}
	return d, nil
}

func (b *Broker) oauth2Config(p *Provider, d *discovered) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint:     d.endpoint,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
	}
}

// AuthorizeURL returns providerName's authorization endpoint populated
// with response_type=code, client_id, redirect_uri, scope, and a CSRF
// state (generated if state is empty). The caller persists state for
// comparison on callback.
func (b *Broker) AuthorizeURL(ctx context.Context, providerName, state string) (url, usedState string, err error) {
	p, err := b.provider(providerName)
	if err != nil {
		return "", "", err
	}
	if p.Type == ProviderSAML {
		return "", "", unsupportedSAML(providerName)
	}

	d, err := b.discover(ctx, p)
	if err != nil {
		return "", "", err
	}

	if state == "" {
		state, err = randomState()
		if err != nil {
			return "", "", securitycore.Wrap(securitycore.Upstream, "generate CSRF state", err)
		}
	}

	cfg := b.oauth2Config(p, d)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Tokens is the parsed token-endpoint response.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	RawIDToken   string
}

// Exchange posts the authorization code to providerName's token
// endpoint and returns the parsed tokens.
func (b *Broker) Exchange(ctx context.Context, providerName, code string) (Tokens, error) {
	p, err := b.provider(providerName)
	if err != nil {
		return Tokens{}, err
	}
	if p.Type == ProviderSAML {
		return Tokens{}, unsupportedSAML(providerName)
	}

	d, err := b.discover(ctx, p)
	if err != nil {
		return Tokens{}, err
	}

	ectx, cancel := context.WithTimeout(ctx, b.cfg.ExchangeTimeout)
	defer cancel()

	cfg := b.oauth2Config(p, d)
	token, err := cfg.Exchange(ectx, code)
	if err != nil {
		return Tokens{}, securitycore.Wrap(securitycore.Upstream, "exchange authorization code", err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	return Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		RawIDToken:   rawIDToken,
	}, nil
}

// UserInfo fetches the provider's userinfo_endpoint with the access
// token as a Bearer credential and returns the normalized SSOUser.
// external_id is claim "sub"; name falls back to preferred_username.
// Without an access token it falls back to verifying the ID token and
// reading the same claims off it.
func (b *Broker) UserInfo(ctx context.Context, providerName string, tokens Tokens) (SSOUser, error) {
	p, err := b.provider(providerName)
	if err != nil {
		return SSOUser{}, err
	}
	if p.Type == ProviderSAML {
		return SSOUser{}, unsupportedSAML(providerName)
	}

	d, err := b.discover(ctx, p)
	if err != nil {
		return SSOUser{}, err
	}

	uctx, cancel := context.WithTimeout(ctx, b.cfg.ExchangeTimeout)
	defer cancel()

	var claims oidcClaims
	var raw map[string]any

	switch {
	case tokens.AccessToken != "":
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tokens.AccessToken, TokenType: "Bearer"})
		info, err := d.oidcProv.UserInfo(uctx, src)
		if err != nil {
			return SSOUser{}, securitycore.Wrap(securitycore.Upstream, "fetch userinfo", err)
		}
		if err := info.Claims(&claims); err != nil {
			return SSOUser{}, securitycore.Wrap(securitycore.Upstream, "parse userinfo claims", err)
		}
		_ = info.Claims(&raw)
	case tokens.RawIDToken != "":
		verifier := d.oidcProv.Verifier(&oidc.Config{ClientID: p.ClientID})
		idToken, err := verifier.Verify(uctx, tokens.RawIDToken)
		if err != nil {
			return SSOUser{}, securitycore.Wrap(securitycore.Upstream, "verify ID token", err)
		}
		if err := idToken.Claims(&claims); err != nil {
			return SSOUser{}, securitycore.Wrap(securitycore.Upstream, "parse ID token claims", err)
		}
		_ = idToken.Claims(&raw)
	default:
		return SSOUser{}, securitycore.New(securitycore.InvalidArgument, "no access token or id_token in token response")
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	return SSOUser{
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Name:       name,
		Provider:   providerName,
		Groups:     claims.Groups,
		RawClaims:  raw,
	}, nil
}

func unsupportedSAML(provider string) error {
	return securitycore.New(securitycore.InvalidArgument, "SAML providers are not implemented, only declared").With("provider", provider)
}
