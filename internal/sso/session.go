package sso

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// sessionTTL is how long a freshly created or refreshed session stays
// valid.
const sessionTTL = 24 * time.Hour

// Session is the broker's post-authentication session record.
type Session struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Provider       string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      time.Time
	LastActivityAt time.Time
	CreatedAt      time.Time
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateSession mints a new session for userID after a successful
// authentication.
func (b *Broker) CreateSession(userID uuid.UUID, providerName string) (*Session, error) {
	access, err := randomToken()
	if err != nil {
		return nil, err
	}
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := b.clock.Now().UTC()
	sess := &Session{
		ID:             uuid.New(),
		UserID:         userID,
		Provider:       providerName,
		AccessToken:    access,
		RefreshToken:   refresh,
		ExpiresAt:      now.Add(sessionTTL),
		LastActivityAt: now,
		CreatedAt:      now,
	}

	b.sessMu.Lock()
	b.sessions[sess.ID] = sess
	b.sessMu.Unlock()

	b.logger.Info().Str("session_id", sess.ID.String()).Str("user_id", userID.String()).Msg("sso session created")
	return cloneSession(sess), nil
}

// ValidateSession resolves an access token to its session, returning
// nil if absent or expired.
func (b *Broker) ValidateSession(accessToken string) *Session {
	b.sessMu.RLock()
	defer b.sessMu.RUnlock()

	now := b.clock.Now().UTC()
	for _, s := range b.sessions {
		if s.AccessToken == accessToken {
			if now.After(s.ExpiresAt) {
				return nil
			}
			return cloneSession(s)
		}
	}
	return nil
}

// RefreshSession rotates the access token and extends expiry for the
// session owning refreshToken.
func (b *Broker) RefreshSession(refreshToken string) (*Session, error) {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()

	for _, s := range b.sessions {
		if s.RefreshToken == refreshToken {
			access, err := randomToken()
			if err != nil {
				return nil, err
			}
			now := b.clock.Now().UTC()
			s.AccessToken = access
			s.ExpiresAt = now.Add(sessionTTL)
			s.LastActivityAt = now
			return cloneSession(s), nil
		}
	}
	return nil, nil
}

// RevokeSession deletes a session by id.
func (b *Broker) RevokeSession(id uuid.UUID) bool {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()
	if _, ok := b.sessions[id]; !ok {
		return false
	}
	delete(b.sessions, id)
	return true
}

// ListUserSessions returns every non-expired session for userID.
func (b *Broker) ListUserSessions(userID uuid.UUID) []*Session {
	b.sessMu.RLock()
	defer b.sessMu.RUnlock()

	now := b.clock.Now().UTC()
	out := make([]*Session, 0)
	for _, s := range b.sessions {
		if s.UserID == userID && now.Before(s.ExpiresAt) {
			out = append(out, cloneSession(s))
		}
	}
	return out
}

// RevokeAllUserSessions deletes every session belonging to userID,
// returning the count removed.
func (b *Broker) RevokeAllUserSessions(userID uuid.UUID) int {
	b.sessMu.Lock()
	defer b.sessMu.Unlock()

	n := 0
	for id, s := range b.sessions {
		if s.UserID == userID {
			delete(b.sessions, id)
			n++
		}
	}
	return n
}

func cloneSession(s *Session) *Session {
	c := *s
	return &c
}
