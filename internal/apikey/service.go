// Package apikey implements the API Key Service: opaque-token
// issuance, hashed storage, expiry, and revocation.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// rawTokenBytes is the amount of CSPRNG entropy encoded after the
// prefix.
const rawTokenBytes = 32

// Service is the API Key Service. A single mutex protects the hash
// index; keys are looked up by SHA-256(raw_token), never by the raw
// token itself.
type Service struct {
	logger zerolog.Logger
	clock  clock.Clock

	mu   sync.Mutex
	keys map[[32]byte]*domain.APIKey
}

// NewService constructs an empty API Key Service.
func NewService(logger zerolog.Logger, clk clock.Clock) *Service {
	return &Service{logger: logger, clock: clk, keys: make(map[[32]byte]*domain.APIKey)}
}

// Generate issues a new key for user and returns the raw token exactly
// once; only its hash is retained. ttlDays<=0 is treated as
// immediately expired.
func (s *Service) Generate(userID uuid.UUID, name string, ttlDays int) (raw string, record domain.APIKeyInfo, err error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKeyInfo{}, securitycore.Wrap(securitycore.Upstream, "generate key entropy", err)
	}
	raw = domain.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	now := s.clock.Now().UTC()
	var expiresAt time.Time
	if ttlDays > 0 {
		expiresAt = now.AddDate(0, 0, ttlDays)
	} else {
		expiresAt = now // immediately expired
	}

	key := &domain.APIKey{
		Hash:      sha256.Sum256([]byte(raw)),
		UserID:    userID,
		Name:      name,
		CreatedAt: now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}

	s.mu.Lock()
	s.keys[key.Hash] = key
	s.mu.Unlock()

	s.logger.Info().Str("user_id", userID.String()).Str("name", name).Msg("api key generated")
	return raw, toInfo(key), nil
}

// ValidFormat reports whether raw is shaped like an issued key: the
// fixed prefix followed by at least 43 URL-safe base64 characters. It
// says nothing about whether the key was ever issued — transports use
// it to reject garbage before hitting the service.
func ValidFormat(raw string) bool {
	if !strings.HasPrefix(raw, domain.APIKeyPrefix) {
		return false
	}
	body := raw[len(domain.APIKeyPrefix):]
	if len(body) < 43 {
		return false
	}
	for _, c := range body {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// Validate hashes raw and looks up the record, returning nil if absent
// or expired. On success it advances last_used as a best-effort
// single-writer update.
func (s *Service) Validate(raw string) (*domain.APIKeyInfo, error) {
	hash := sha256.Sum256([]byte(raw))

	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[hash]
	if !ok {
		return nil, securitycore.New(securitycore.NotFound, "key not found")
	}
	now := s.clock.Now().UTC().Unix()
	if now >= key.ExpiresAt {
		return nil, securitycore.New(securitycore.Expired, "key has expired")
	}
	key.LastUsedAt = now
	info := toInfo(key)
	return &info, nil
}

// Revoke removes the record for raw, idempotent on an already-absent
// key.
func (s *Service) Revoke(raw string) bool {
	hash := sha256.Sum256([]byte(raw))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[hash]; !ok {
		return false
	}
	delete(s.keys, hash)
	return true
}

// List returns metadata only for every key owned by userID — never
// the token or its hash.
func (s *Service) List(userID uuid.UUID) []domain.APIKeyInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.APIKeyInfo, 0)
	for _, k := range s.keys {
		if k.UserID == userID {
			out = append(out, toInfo(k))
		}
	}
	return out
}

func toInfo(k *domain.APIKey) domain.APIKeyInfo {
	return domain.APIKeyInfo{
		UserID:     k.UserID,
		Name:       k.Name,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
	}
}
