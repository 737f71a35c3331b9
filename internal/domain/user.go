package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity-store account.
//
// PasswordHash and Salt are scrypt material and are never logged or
// serialized to JSON.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	RoleName     string
	PasswordHash []byte `json:"-"`
	Salt         []byte `json:"-"`
	Active       bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	Channels     map[string]string // "<channel>" -> external id
	Metadata     map[string]any
}

// ChannelKey builds the "<channel>:<external-id>" composite key the
// Identity Store uses to resolve channel-ingress identities.
func ChannelKey(channel, externalID string) string {
	return channel + ":" + externalID
}
