// Package compliance implements the Compliance Reporter: a pure
// derivation over configuration and the Audit Ledger that produces
// security posture, OWASP Agentic, SOC 2, and ISO 27001 reports.
package compliance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
)

// ChainVerifier is implemented by the Audit Ledger; the reporter only
// needs to know whether today's chain verifies, not how.
type ChainVerifier interface {
	VerifyDate(date string) (domain.ChainVerification, error)
}

// Reporter derives reports from a configuration snapshot and an
// optional ledger handle. It holds no mutable state of its own.
type Reporter struct {
	cfg    config.ComplianceConfig
	ledger ChainVerifier
	clock  clock.Clock
}

// NewReporter constructs a Reporter. ledger may be nil, in which case
// reports omit the audit_integrity section.
func NewReporter(cfg config.ComplianceConfig, ledger ChainVerifier, clk clock.Clock) *Reporter {
	return &Reporter{cfg: cfg, ledger: ledger, clock: clk}
}

// Posture is the security posture report.
type Posture struct {
	Configuration  map[string]bool `json:"configuration"`
	AuditIntegrity *AuditIntegrity `json:"audit_integrity,omitempty"`
	OWASPAgentic   OWASPReport     `json:"owasp_agentic"`
	Score          int             `json:"score"`
	Grade          string          `json:"grade"`
}

// AuditIntegrity reports whether today's ledger chain verifies.
type AuditIntegrity struct {
	ChainValid bool   `json:"chain_valid"`
	CheckedAt  string `json:"checked_at"`
}

// SecurityPosture computes the full posture report.
func (r *Reporter) SecurityPosture() Posture {
	cfg := map[string]bool{
		"sandbox_enabled":          r.cfg.SandboxEnabled,
		"policy_engine_enabled":    r.cfg.PolicyEngineEnabled,
		"canary_tokens_enabled":    r.cfg.CanaryTokensEnabled,
		"egress_filtering_enabled": r.cfg.EgressFilteringEnabled,
		"audit_logging_enabled":    r.cfg.AuditLoggingEnabled,
		"skill_signature_required": r.cfg.SkillSignatureRequired,
		"encryption_at_rest":       true, // always true, not configurable
		"loopback_only":            r.cfg.LoopbackOnly(),
	}

	owasp := r.owaspReport()

	score := 0
	if r.cfg.SandboxEnabled {
		score += 10
	}
	if r.cfg.PolicyEngineEnabled {
		score += 10
	}
	if r.cfg.CanaryTokensEnabled {
		score += 8
	}
	if r.cfg.EgressFilteringEnabled {
		score += 8
	}
	if r.cfg.AuditLoggingEnabled {
		score += 8
	}
	if r.cfg.SkillSignatureRequired {
		score += 8
	}
	score += 8 // encryption-at-rest, always true
	if r.cfg.LoopbackOnly() {
		score += 10
	}

	var integrity *AuditIntegrity
	chainValid := false
	if r.ledger != nil {
		today := r.clock.Now().UTC().Format("2006-01-02")
		verification, _ := r.ledger.VerifyDate(today)
		chainValid = verification.Valid
		integrity = &AuditIntegrity{ChainValid: verification.Valid, CheckedAt: r.clock.Now().UTC().Format(time.RFC3339)}
	}
	if chainValid {
		score += 15
	}

	// OWASP compliance contributes up to 15, linear from n/10.
	score += (owasp.CompliantCount * 15) / 10

	if score > 100 {
		score = 100
	}

	return Posture{
		Configuration:  cfg,
		AuditIntegrity: integrity,
		OWASPAgentic:   owasp,
		Score:          score,
		Grade:          grade(score),
	}
}

func grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// OWASPCheck is one row of the OWASP Agentic Top 10 table.
type OWASPCheck struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"` // compliant | partial | non_compliant
}

// OWASPReport is the fixed OWASP Agentic Top 10 table plus its score.
type OWASPReport struct {
	Checks         []OWASPCheck `json:"checks"`
	Score          string       `json:"score"`
	CompliantCount int          `json:"-"`
}

func (r *Reporter) owaspReport() OWASPReport {
	checks := []OWASPCheck{
		{ID: "ASI01", Name: "Agent Authorization and Control Hijacking", Status: statusIf(r.cfg.PolicyEngineEnabled)},
		{ID: "ASI02", Name: "Tool Misuse", Status: statusIf(r.cfg.SandboxEnabled)},
		{ID: "ASI03", Name: "Agent Identity and Impersonation", Status: statusIf(true)},
		{ID: "ASI04", Name: "Scope Violation and Privilege Compromise", Status: statusIf(r.cfg.PolicyEngineEnabled)},
		{ID: "ASI05", Name: "Orchestration and Multi-Agent Exploitation", Status: statusIf(r.cfg.PolicyEngineEnabled && r.cfg.EgressFilteringEnabled)},
		{ID: "ASI06", Name: "Memory and Context Manipulation", Status: statusIf(r.cfg.CanaryTokensEnabled)},
		{ID: "ASI07", Name: "Supply Chain and Dependency Attacks", Status: statusIf(r.cfg.SkillSignatureRequired)},
		{ID: "ASI08", Name: "Unexpected Code Execution and Sandbox Escape", Status: statusIf(r.cfg.SandboxEnabled)},
		{ID: "ASI09", Name: "Insufficient Monitoring and Audit Trail", Status: statusIf(r.cfg.AuditLoggingEnabled)},
		{ID: "ASI10", Name: "Uncontrolled Resource and Data Exfiltration", Status: statusIf(r.cfg.EgressFilteringEnabled)},
	}

	compliant := 0
	for _, c := range checks {
		if c.Status == "compliant" {
			compliant++
		}
	}

	return OWASPReport{Checks: checks, Score: fmt.Sprintf("%d/10", compliant), CompliantCount: compliant}
}

func statusIf(enabled bool) string {
	if enabled {
		return "compliant"
	}
	return "non_compliant"
}

// SOC2Control is one evidenced control.
type SOC2Control struct {
	ID       string `json:"id"`
	Evidence string `json:"evidence"`
}

// SOC2Evidence returns the fixed SOC 2 control table covering the
// `days` prior to now.
func (r *Reporter) SOC2Evidence(days int) []SOC2Control {
	return []SOC2Control{
		{ID: "CC6.1", Evidence: fmt.Sprintf("Role-based access control enforced for %d-day period via closed permission catalog", days)},
		{ID: "CC6.6", Evidence: "Password hashing via scrypt with per-user salt; API keys stored only as SHA-256 hashes"},
		{ID: "CC7.2", Evidence: "Threat detector monitors brute force, rate abuse, tool abuse, and exfiltration in real time"},
		{ID: "CC8.1", Evidence: "Audit ledger provides tamper-evident hash-chained change history"},
	}
}

// ISO27001Control is one mapped Annex A control.
type ISO27001Control struct {
	Annex    string `json:"annex"`
	Evidence string `json:"evidence"`
}

// ISO27001Mapping returns the fixed Annex A control table.
func (r *Reporter) ISO27001Mapping() []ISO27001Control {
	return []ISO27001Control{
		{Annex: "A.5", Evidence: "Information security policies expressed as role permission catalog"},
		{Annex: "A.6", Evidence: "Organization of information security via team registry and ownership model"},
		{Annex: "A.8", Evidence: "Asset management via per-user channel and API key inventories"},
		{Annex: "A.9", Evidence: "Access control via Role Registry set-membership checks"},
		{Annex: "A.10", Evidence: "Cryptography: scrypt password hashing, SHA-256 hash-chained ledger"},
		{Annex: "A.12", Evidence: "Operations security via threat detector sliding-window monitoring"},
		{Annex: "A.14", Evidence: "System acquisition via skill-signature requirement toggle"},
		{Annex: "A.16", Evidence: "Incident management via threat event recording and mitigation tracking"},
		{Annex: "A.18", Evidence: "Compliance via this reporter's SOC2/ISO27001/OWASP derivations"},
	}
}

// IncidentReport is a templated incident record.
type IncidentReport struct {
	Type     string             `json:"type"`
	Severity string             `json:"severity"`
	Status   string             `json:"status"`
	Timeline []IncidentTimeline `json:"timeline"`
}

// IncidentTimeline is one entry in an IncidentReport's timeline.
type IncidentTimeline struct {
	At    string `json:"at"`
	Event string `json:"event"`
}

// NewIncidentReport builds a templated incident record with one
// timeline entry stamped at generation time.
func (r *Reporter) NewIncidentReport(incidentType, severity string) IncidentReport {
	return IncidentReport{
		Type: incidentType, Severity: severity, Status: "investigating",
		Timeline: []IncidentTimeline{{At: r.clock.Now().UTC().Format(time.RFC3339), Event: "incident opened"}},
	}
}

// Export writes report (any JSON-serializable value) to path as
// pretty-printed JSON, creating parent directories as needed.
func Export(path string, report any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return securitycore.Wrap(securitycore.Upstream, "create report directory", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return securitycore.Wrap(securitycore.InvalidArgument, "marshal report", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return securitycore.Wrap(securitycore.Upstream, "write report file", err)
	}
	return nil
}
