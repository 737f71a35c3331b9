package threat

import (
	"testing"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThreatConfig() config.ThreatConfig {
	return config.ThreatConfig{
		MaxFailedAuth: 3, AuthWindow: 300 * time.Second, BlockDuration: 900 * time.Second,
		MaxRequestsPerMinute: 5, ExfiltrationBytes: 1000, BaselineMinRequests: 50, MaxEvents: 100,
	}
}

func TestCheckAuth_BlocksAfterNthFailure(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())
	source := "203.0.113.7"

	for i := 0; i < 2; i++ {
		evt := d.CheckAuth(source, false, "avery")
		assert.Nil(t, evt)
	}
	evt := d.CheckAuth(source, false, "avery")
	require.NotNil(t, evt)
	assert.Equal(t, domain.ThreatBruteForce, evt.Category)
	assert.True(t, d.IsBlocked(source))
}

func TestCheckAuth_SuccessClearsFailureCount(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())
	source := "203.0.113.7"

	d.CheckAuth(source, false, "avery")
	d.CheckAuth(source, false, "avery")
	d.CheckAuth(source, true, "avery")

	evt := d.CheckAuth(source, false, "avery")
	assert.Nil(t, evt)
	assert.False(t, d.IsBlocked(source))
}

func TestIsBlocked_ExpiresAfterBlockDuration(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &movableClock{at: now}
	cfg := testThreatConfig()
	cfg.BlockDuration = 10 * time.Second
	d := NewDetector(zerolog.Nop(), clk, cfg)
	source := "203.0.113.7"

	for i := 0; i < 3; i++ {
		d.CheckAuth(source, false, "avery")
	}
	assert.True(t, d.IsBlocked(source))

	clk.at = now.Add(20 * time.Second)
	assert.False(t, d.IsBlocked(source))
}

func TestEnsureAllowed_ReturnsBlockedKindWhileSourceIsBlocked(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())
	source := "203.0.113.7"

	require.NoError(t, d.EnsureAllowed(source))
	for i := 0; i < 3; i++ {
		d.CheckAuth(source, false, "avery")
	}

	err := d.EnsureAllowed(source)
	require.Error(t, err)
	assert.True(t, securitycore.Is(err, securitycore.Blocked))

	d.Unblock(source)
	assert.NoError(t, d.EnsureAllowed(source))
}

func TestCheckRate_FlagsRequestOverLimit(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())

	var last *domain.ThreatEvent
	for i := 0; i < 6; i++ {
		last = d.CheckRate("avery")
	}
	require.NotNil(t, last)
	assert.Equal(t, domain.ThreatRateAbuse, last.Category)
}

func TestCheckTool_DetectsDangerousSequence(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())

	d.CheckTool("avery", "shell_exec", nil)
	d.CheckTool("avery", "file_write", nil)
	evt := d.CheckTool("avery", "network_request", nil)

	require.NotNil(t, evt)
	assert.Equal(t, domain.ThreatToolAbuse, evt.Category)
	assert.Equal(t, domain.LevelHigh, evt.Level)
}

func TestCheckTool_DetectsPrivilegeIndicator(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())

	evt := d.CheckTool("avery", "shell_exec", map[string]any{"command": "sudo rm -rf /"})
	require.NotNil(t, evt)
	assert.Equal(t, domain.ThreatPrivilegeEscalate, evt.Category)
}

func TestCheckTool_BenignCallsProduceNoEvent(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())

	evt := d.CheckTool("avery", "chat_send", map[string]any{"message": "hello"})
	assert.Nil(t, evt)
}

func TestCheckData_FlagsVolumeOverThreshold(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())

	assert.Nil(t, d.CheckData("avery", "export", 500))
	evt := d.CheckData("avery", "export", 5000)
	require.NotNil(t, evt)
	assert.Equal(t, domain.ThreatDataExfiltration, evt.Category)
}

func TestRecent_FiltersByMinLevel(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())
	for i := 0; i < 3; i++ {
		d.CheckAuth("203.0.113.7", false, "avery")
	}
	d.CheckData("avery", "export", 5000)

	high := d.Recent(10, domain.LevelHigh)
	for _, e := range high {
		assert.Contains(t, []domain.ThreatLevel{domain.LevelHigh, domain.LevelCritical}, e.Level)
	}
}

func TestSummary_CountsByLevelAndCategory(t *testing.T) {
	d := NewDetector(zerolog.Nop(), clock.Fixed{At: time.Now()}, testThreatConfig())
	for i := 0; i < 3; i++ {
		d.CheckAuth("203.0.113.7", false, "avery")
	}

	sum := d.Summary()
	assert.Equal(t, 1, sum.ByCategory[domain.ThreatBruteForce])
	assert.Equal(t, 1, sum.BlockedCount)
}

type movableClock struct{ at time.Time }

func (c *movableClock) Now() time.Time { return c.at }
