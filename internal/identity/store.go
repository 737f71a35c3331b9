// Package identity implements the Identity Store: user accounts,
// scrypt password hashing, and channel-id mapping.
package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"sync"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/scrypt"
)

// RoleExists is implemented by the Role Registry; the Identity Store
// depends on it only to validate role names at create/update time, not
// to make authorization decisions itself.
type RoleExists interface {
	Exists(name string) bool
}

// Store is the Identity Store. A single RWMutex protects
// all maps; no I/O is performed under the lock.
type Store struct {
	logger zerolog.Logger
	clock  clock.Clock
	cfg    config.IdentityConfig
	roles  RoleExists

	mu        sync.RWMutex
	byID      map[uuid.UUID]*domain.User
	byName    map[string]uuid.UUID
	byChannel map[string]uuid.UUID
}

// NewStore constructs an empty Identity Store.
func NewStore(logger zerolog.Logger, clk clock.Clock, cfg config.IdentityConfig, roles RoleExists) *Store {
	return &Store{
		logger:    logger,
		clock:     clk,
		cfg:       cfg,
		roles:     roles,
		byID:      make(map[uuid.UUID]*domain.User),
		byName:    make(map[string]uuid.UUID),
		byChannel: make(map[string]uuid.UUID),
	}
}

// hashPassword derives a scrypt hash under the store's configured cost
// parameters.
func (s *Store) hashPassword(password string, salt []byte) ([]byte, error) {
	n, r, p, keyLen := s.cfg.ScryptN, s.cfg.ScryptR, s.cfg.ScryptP, s.cfg.ScryptKeyLen
	if n == 0 {
		n = 1 << 14
	}
	if r == 0 {
		r = 8
	}
	if p == 0 {
		p = 1
	}
	if keyLen == 0 {
		keyLen = 64
	}
	return scrypt.Key([]byte(password), salt, n, r, p, keyLen)
}

func newSalt(n int) ([]byte, error) {
	if n < 32 {
		n = 32
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// CreateUser registers a new account, rejecting a duplicate username
// or an unknown role.
func (s *Store) CreateUser(username, email, password, roleName string) (*domain.User, error) {
	if s.roles != nil && !s.roles.Exists(roleName) {
		return nil, securitycore.New(securitycore.NotFound, "unknown role").With("role_name", roleName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[username]; exists {
		return nil, securitycore.New(securitycore.AlreadyExists, "username already taken").With("username", username)
	}

	salt, err := newSalt(s.saltBytes())
	if err != nil {
		return nil, securitycore.Wrap(securitycore.Upstream, "generate salt", err)
	}
	hash, err := s.hashPassword(password, salt)
	if err != nil {
		return nil, securitycore.Wrap(securitycore.Upstream, "hash password", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		RoleName:     roleName,
		PasswordHash: hash,
		Salt:         salt,
		Active:       true,
		CreatedAt:    s.clock.Now().UTC(),
		Channels:     make(map[string]string),
		Metadata:     make(map[string]any),
	}

	s.byID[user.ID] = user
	s.byName[user.Username] = user.ID
	s.logger.Info().Str("user_id", user.ID.String()).Str("username", username).Msg("user created")
	return cloneUser(user), nil
}

func (s *Store) saltBytes() int {
	if s.cfg.SaltBytes <= 0 {
		return 32
	}
	return s.cfg.SaltBytes
}

// authFailure is the single error value returned for every
// authentication failure — unknown username, inactive user, or wrong
// password are indistinguishable to the caller.
var authFailure = securitycore.New(securitycore.PermissionDenied, "invalid credentials")

// Authenticate verifies a username/password pair in constant time
// relative to the stored hash, returning the user only if the account
// exists, is active, and the password matches.
func (s *Store) Authenticate(username, password string) (*domain.User, error) {
	// Copy the verification material under the read lock; the scrypt
	// derivation itself runs outside any lock.
	s.mu.RLock()
	id, ok := s.byName[username]
	var salt, stored []byte
	var active bool
	if ok {
		u := s.byID[id]
		salt, stored, active = u.Salt, u.PasswordHash, u.Active
	}
	s.mu.RUnlock()

	if !ok {
		// Hash against a fixed dummy salt so the timing profile matches
		// the success path even when no such user exists.
		_, _ = s.hashPassword(password, dummySalt)
		return nil, authFailure
	}

	candidate, err := s.hashPassword(password, salt)
	if err != nil {
		return nil, securitycore.Wrap(securitycore.Upstream, "hash password", err)
	}

	match := subtle.ConstantTimeCompare(candidate, stored) == 1
	if !match || !active {
		return nil, authFailure
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok || !user.Active {
		return nil, authFailure
	}
	now := s.clock.Now().UTC()
	user.LastLoginAt = &now
	return cloneUser(user), nil
}

var dummySalt = []byte("00000000000000000000000000000000")

// GetByID returns a user by id.
func (s *Store) GetByID(id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, securitycore.New(securitycore.NotFound, "user not found").With("user_id", id.String())
	}
	return cloneUser(user), nil
}

// GetByUsername returns a user by unique username.
func (s *Store) GetByUsername(username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, securitycore.New(securitycore.NotFound, "user not found").With("username", username)
	}
	return cloneUser(s.byID[id]), nil
}

// GetByChannel resolves a (channel, external-id) ingress identity to a
// user.
func (s *Store) GetByChannel(channel, externalID string) (*domain.User, error) {
	key := domain.ChannelKey(channel, externalID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byChannel[key]
	if !ok {
		return nil, securitycore.New(securitycore.NotFound, "no user linked to channel identity").With("channel_key", key)
	}
	return cloneUser(s.byID[id]), nil
}

// LinkChannel maps a (channel, external-id) key to userID. Re-linking
// an already-mapped key overwrites silently (last linker wins), but
// returns the previous owner's id so the caller can audit the change
// itself — the store does not refuse or audit autonomously.
func (s *Store) LinkChannel(channel, externalID string, userID uuid.UUID) (previous uuid.UUID, err error) {
	key := domain.ChannelKey(channel, externalID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[userID]; !ok {
		return uuid.Nil, securitycore.New(securitycore.NotFound, "unknown user").With("user_id", userID.String())
	}

	prev := s.byChannel[key]
	s.byChannel[key] = userID
	s.byID[userID].Channels[channel] = externalID
	return prev, nil
}

// List returns a snapshot of every user.
func (s *Store) List() []*domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, cloneUser(u))
	}
	return out
}

// ChangeRole reassigns a user's role, rejecting an unknown role name.
func (s *Store) ChangeRole(userID uuid.UUID, roleName string) error {
	if s.roles != nil && !s.roles.Exists(roleName) {
		return securitycore.New(securitycore.NotFound, "unknown role").With("role_name", roleName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return securitycore.New(securitycore.NotFound, "user not found").With("user_id", userID.String())
	}
	user.RoleName = roleName
	return nil
}

// Deactivate flips a user's active flag off, causing subsequent
// Authenticate calls to fail.
func (s *Store) Deactivate(userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return securitycore.New(securitycore.NotFound, "user not found").With("user_id", userID.String())
	}
	user.Active = false
	return nil
}

// CountUsersWithRole reports how many users currently reference
// roleName, letting the Role Registry enforce that a custom role may
// only be deleted once unreferenced.
func (s *Store) CountUsersWithRole(roleName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.byID {
		if u.RoleName == roleName {
			n++
		}
	}
	return n
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Channels = make(map[string]string, len(u.Channels))
	for k, v := range u.Channels {
		c.Channels[k] = v
	}
	c.Metadata = make(map[string]any, len(u.Metadata))
	for k, v := range u.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
