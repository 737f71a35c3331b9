package domain

import "github.com/google/uuid"

// APIKeyPrefix is the fixed brand prefix every issued key carries.
const APIKeyPrefix = "sk_"

// APIKey is the metadata record stored for an issued key. The raw
// token is never stored — only its SHA-256 hash.
type APIKey struct {
	Hash       [32]byte
	UserID     uuid.UUID
	Name       string
	CreatedAt  int64 // unix seconds
	ExpiresAt  int64 // unix seconds, epoch
	LastUsedAt int64 // unix seconds, 0 if never used
}

// APIKeyInfo is the metadata view returned by List — never the raw
// token or its hash.
type APIKeyInfo struct {
	UserID     uuid.UUID
	Name       string
	CreatedAt  int64
	ExpiresAt  int64
	LastUsedAt int64
}
