package compliance

import (
	"testing"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChainVerifier struct {
	verification domain.ChainVerification
	err          error
}

func (s stubChainVerifier) VerifyDate(date string) (domain.ChainVerification, error) {
	return s.verification, s.err
}

func allOffConfig() config.ComplianceConfig {
	return config.ComplianceConfig{GatewayHost: "0.0.0.0"}
}

func allOnConfig() config.ComplianceConfig {
	return config.ComplianceConfig{
		GatewayHost:            "127.0.0.1",
		SandboxEnabled:         true,
		PolicyEngineEnabled:    true,
		CanaryTokensEnabled:    true,
		EgressFilteringEnabled: true,
		AuditLoggingEnabled:    true,
		SkillSignatureRequired: true,
	}
}

func TestSecurityPosture_AllOffScoresLow(t *testing.T) {
	r := NewReporter(allOffConfig(), nil, clock.Real{})
	posture := r.SecurityPosture()

	assert.False(t, posture.Configuration["sandbox_enabled"])
	assert.False(t, posture.Configuration["loopback_only"])
	assert.Nil(t, posture.AuditIntegrity)
	assert.Equal(t, "F", posture.Grade)
	assert.Less(t, posture.Score, 60)
}

func TestSecurityPosture_AllOnWithValidChainScoresHigh(t *testing.T) {
	verifier := stubChainVerifier{verification: domain.ChainVerification{Valid: true, EntriesCheck: 10}}
	r := NewReporter(allOnConfig(), verifier, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	posture := r.SecurityPosture()

	assert.True(t, posture.Configuration["encryption_at_rest"])
	require.NotNil(t, posture.AuditIntegrity)
	assert.True(t, posture.AuditIntegrity.ChainValid)
	assert.Equal(t, "10/10", posture.OWASPAgentic.Score)
	assert.Equal(t, "A", posture.Grade)
	assert.Equal(t, 100, posture.Score)
}

func TestSecurityPosture_BrokenChainExcludesItsContribution(t *testing.T) {
	verifier := stubChainVerifier{verification: domain.ChainVerification{Valid: false, BrokenAt: 3}}
	onWithBrokenChain := allOnConfig()
	r := NewReporter(onWithBrokenChain, verifier, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	posture := r.SecurityPosture()

	require.NotNil(t, posture.AuditIntegrity)
	assert.False(t, posture.AuditIntegrity.ChainValid)
	assert.Less(t, posture.Score, 100)
}

func TestOWASPReport_ScoreReflectsEnabledChecks(t *testing.T) {
	r := NewReporter(allOnConfig(), nil, clock.Real{})
	posture := r.SecurityPosture()
	assert.Equal(t, "10/10", posture.OWASPAgentic.Score)

	r2 := NewReporter(allOffConfig(), nil, clock.Real{})
	posture2 := r2.SecurityPosture()
	assert.NotEqual(t, "10/10", posture2.OWASPAgentic.Score)
}

func TestSOC2Evidence_ReturnsFourControls(t *testing.T) {
	r := NewReporter(allOnConfig(), nil, clock.Real{})
	controls := r.SOC2Evidence(30)
	assert.Len(t, controls, 4)
}

func TestISO27001Mapping_ReturnsNineControls(t *testing.T) {
	r := NewReporter(allOnConfig(), nil, clock.Real{})
	controls := r.ISO27001Mapping()
	assert.Len(t, controls, 9)
}

func TestNewIncidentReport_StartsInvestigating(t *testing.T) {
	r := NewReporter(allOnConfig(), nil, clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	incident := r.NewIncidentReport("unauthorized_access", "high")

	assert.Equal(t, "investigating", incident.Status)
	require.Len(t, incident.Timeline, 1)
	assert.Equal(t, "incident opened", incident.Timeline[0].Event)
}

func TestExport_WritesJSONToNewDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter(allOnConfig(), nil, clock.Real{})
	posture := r.SecurityPosture()

	path := dir + "/nested/report.json"
	require.NoError(t, Export(path, posture))
}
