package domain

// ThreatCategory classifies a detected security event.
type ThreatCategory string

const (
	ThreatBruteForce        ThreatCategory = "brute_force"
	ThreatRateAbuse         ThreatCategory = "rate_abuse"
	ThreatToolAbuse         ThreatCategory = "tool_abuse"
	ThreatPrivilegeEscalate ThreatCategory = "privilege_escalation"
	ThreatAnomalousBehavior ThreatCategory = "anomalous_behavior"
	ThreatDataExfiltration  ThreatCategory = "data_exfiltration"
)

// ThreatLevel is the severity assigned to a ThreatEvent.
type ThreatLevel string

const (
	LevelInfo     ThreatLevel = "info"
	LevelLow      ThreatLevel = "low"
	LevelMedium   ThreatLevel = "medium"
	LevelHigh     ThreatLevel = "high"
	LevelCritical ThreatLevel = "critical"
)

// ThreatEvent is one recorded detection. ID follows the
// "threat_NNNNNN" monotonic format.
type ThreatEvent struct {
	ID         string
	Timestamp  int64 // unix seconds
	Category   ThreatCategory
	Level      ThreatLevel
	Descriptor string
	Actor      string
	SourceIP   string
	Channel    string
	Detail     map[string]any
	Mitigated  bool
	Mitigation string
}

// UserBaseline is the rolling per-user behavior profile the anomaly
// detector compares new activity against.
type UserBaseline struct {
	UserID        string
	CommonTools   map[string]struct{}
	CommonHours   map[int]struct{} // hour-of-day, UTC, 0-23
	TotalRequests int64
	LastUpdated   int64 // unix seconds
}

// NewUserBaseline returns an empty baseline ready to accrue activity.
func NewUserBaseline(userID string) *UserBaseline {
	return &UserBaseline{
		UserID:      userID,
		CommonTools: make(map[string]struct{}),
		CommonHours: make(map[int]struct{}),
	}
}
