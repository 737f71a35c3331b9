// Package domain contains the core domain models shared by every
// security-core registry.
package domain

// Actor labels who or what caused an audited action.
type Actor string

const (
	ActorUser   Actor = "user"
	ActorAgent  Actor = "agent"
	ActorSystem Actor = "system"
)

// Decision is the outcome recorded for an audited action.
type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionDeny    Decision = "deny"
	DecisionAskUser Decision = "ask_user"
)

// Genesis is the literal previous-hash value for the first entry ever
// appended to a ledger.
const Genesis = "genesis"

// AuditEntry is one immutable, hash-chained ledger record. EntryHash
// covers the canonical JSON preimage of every other field; PrevHash
// ties it to the entry written immediately before it, or to Genesis
// for the very first entry.
type AuditEntry struct {
	Timestamp string          `json:"timestamp"` // RFC3339 UTC, e.g. "2026-07-31T12:00:00Z"
	Action    string          `json:"action"`
	Actor     Actor           `json:"actor"`
	Resource  string          `json:"resource"`
	Decision  Decision        `json:"decision"`
	Policy    string          `json:"policy"`
	Detail    map[string]any  `json:"detail,omitempty"`
	Channel   string          `json:"channel"`
	PrevHash  string          `json:"prev_hash"`
	EntryHash string          `json:"entry_hash"`
}

// AuditFilter narrows a Query; zero values mean
// "unbounded" on that axis.
type AuditFilter struct {
	Actor    Actor
	Resource string
	Decision Decision
	Channel  string
	Since    string // RFC3339 UTC, inclusive
	Until    string // RFC3339 UTC, exclusive
	Limit    int
}

// AuditExportFormat selects the serialization Export produces.
type AuditExportFormat string

const (
	AuditExportJSON AuditExportFormat = "json"
	AuditExportCSV  AuditExportFormat = "csv"
)

// ChainVerification is the result of walking a day's (or a range's)
// journal and recomputing every entry's EntryHash.
type ChainVerification struct {
	Valid        bool
	EntriesCheck int
	BrokenAt     int // 1-based index of the first broken entry, 0 if Valid
	Reason       string
}
