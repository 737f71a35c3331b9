// Package threat implements the Threat Detector: sliding-window
// counters, a dangerous-sequence matcher, a per-user baseline, and a
// source block list.
package threat

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/config"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/rs/zerolog"
)

// dangerousSequences are the fixed order-preserving tool-call patterns
// that constitute tool abuse on their own.
var dangerousSequences = [][]string{
	{"shell_exec", "file_write", "network_request"},
	{"file_read", "network_request"},
	{"shell_exec", "shell_exec", "shell_exec", "shell_exec"},
}

// privilegeIndicators are the fixed lowercase substrings that flag a
// tool call as a privilege-escalation attempt.
var privilegeIndicators = []string{"sudo", "admin", "root", "chmod 777", "setuid", "--privileged", "grant all"}

var levelOrder = map[domain.ThreatLevel]int{
	domain.LevelInfo: 0, domain.LevelLow: 1, domain.LevelMedium: 2, domain.LevelHigh: 3, domain.LevelCritical: 4,
}

type toolCall struct {
	at   time.Time
	tool string
}

// Detector is the Threat Detector. Each state map has its own lock
// scope; critical sections never perform I/O.
type Detector struct {
	logger zerolog.Logger
	clock  clock.Clock
	cfg    config.ThreatConfig
	seq    uint64

	authMu       sync.Mutex
	authFailures map[string][]time.Time
	blockedUntil map[string]time.Time

	rateMu  sync.Mutex
	rateLog map[string][]time.Time

	toolMu      sync.Mutex
	toolHistory map[string][]toolCall
	baselines   map[string]*domain.UserBaseline

	eventsMu sync.RWMutex
	events   []domain.ThreatEvent
}

// NewDetector constructs an empty Threat Detector using cfg's
// thresholds.
func NewDetector(logger zerolog.Logger, clk clock.Clock, cfg config.ThreatConfig) *Detector {
	return &Detector{
		logger:       logger,
		clock:        clk,
		cfg:          cfg,
		authFailures: make(map[string][]time.Time),
		blockedUntil: make(map[string]time.Time),
		rateLog:      make(map[string][]time.Time),
		toolHistory:  make(map[string][]toolCall),
		baselines:    make(map[string]*domain.UserBaseline),
	}
}

func (d *Detector) nextEventID() string {
	n := atomic.AddUint64(&d.seq, 1)
	return fmt.Sprintf("threat_%06d", n)
}

func (d *Detector) record(category domain.ThreatCategory, level domain.ThreatLevel, descriptor, actor, sourceIP, channel string, detail map[string]any, mitigated bool, mitigation string) domain.ThreatEvent {
	evt := domain.ThreatEvent{
		ID: d.nextEventID(), Timestamp: d.clock.Now().UTC().Unix(),
		Category: category, Level: level, Descriptor: descriptor,
		Actor: actor, SourceIP: sourceIP, Channel: channel,
		Detail: detail, Mitigated: mitigated, Mitigation: mitigation,
	}

	d.eventsMu.Lock()
	maxEvents := d.cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 10_000
	}
	if len(d.events) >= maxEvents {
		d.events = d.events[1:]
	}
	d.events = append(d.events, evt)
	d.eventsMu.Unlock()

	d.logger.Warn().Str("event_id", evt.ID).Str("category", string(category)).Str("level", string(level)).Msg("threat event recorded")
	return evt
}

func pruneWindow(times []time.Time, horizon time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(horizon) {
		i++
	}
	return times[i:]
}

// CheckAuth implements brute-force detection. Success clears the
// source's failure buffer; the Nth failure inside the window emits
// BRUTE_FORCE/HIGH and blocks the source.
func (d *Detector) CheckAuth(source string, success bool, user string) *domain.ThreatEvent {
	now := d.clock.Now().UTC()

	d.authMu.Lock()
	defer d.authMu.Unlock()

	if success {
		delete(d.authFailures, source)
		return nil
	}

	window := d.cfg.AuthWindow
	if window <= 0 {
		window = 300 * time.Second
	}
	maxFailed := d.cfg.MaxFailedAuth
	if maxFailed <= 0 {
		maxFailed = 5
	}

	failures := pruneWindow(d.authFailures[source], now.Add(-window))
	failures = append(failures, now)
	d.authFailures[source] = failures

	if len(failures) < maxFailed {
		return nil
	}

	blockFor := d.cfg.BlockDuration
	if blockFor <= 0 {
		blockFor = 900 * time.Second
	}
	d.blockedUntil[source] = now.Add(blockFor)
	delete(d.authFailures, source)

	evt := d.record(domain.ThreatBruteForce, domain.LevelHigh,
		"repeated authentication failures from source", user, source, "",
		map[string]any{"failures": len(failures)}, true, "source_blocked_15m")
	return &evt
}

// CheckRate implements rate-abuse detection: the (max+1)th request in
// 60s emits RATE_ABUSE/MEDIUM, uncorrected.
func (d *Detector) CheckRate(user string) *domain.ThreatEvent {
	now := d.clock.Now().UTC()

	d.rateMu.Lock()
	defer d.rateMu.Unlock()

	reqs := pruneWindow(d.rateLog[user], now.Add(-60*time.Second))
	reqs = append(reqs, now)
	d.rateLog[user] = reqs

	maxRPM := d.cfg.MaxRequestsPerMinute
	if maxRPM <= 0 {
		maxRPM = 60
	}
	if len(reqs) <= maxRPM {
		return nil
	}

	evt := d.record(domain.ThreatRateAbuse, domain.LevelMedium,
		"request rate exceeded limit", user, "", "",
		map[string]any{"requests_last_minute": len(reqs)}, false, "")
	return &evt
}

// CheckTool implements tool-abuse, privilege-escalation, and
// behavioral-anomaly detection, checked in that order, then
// unconditionally updates the user's baseline.
func (d *Detector) CheckTool(user, tool string, args map[string]any) *domain.ThreatEvent {
	now := d.clock.Now().UTC()

	d.toolMu.Lock()
	defer d.toolMu.Unlock()

	history := append(d.toolHistory[user], toolCall{at: now, tool: tool})
	if len(history) > 1000 {
		history = history[len(history)-1000:]
	}
	d.toolHistory[user] = history

	trace := make([]string, 0, len(history))
	for _, c := range history {
		if c.at.After(now.Add(-60 * time.Second)) {
			trace = append(trace, c.tool)
		}
	}

	baseline := d.baselines[user]
	if baseline == nil {
		baseline = domain.NewUserBaseline(user)
		d.baselines[user] = baseline
	}

	var out *domain.ThreatEvent
	switch {
	case matchesDangerousSequence(trace):
		evt := d.record(domain.ThreatToolAbuse, domain.LevelHigh,
			"dangerous tool-call sequence detected", user, "", "",
			map[string]any{"tool": tool}, false, "")
		out = &evt
	case containsPrivilegeIndicator(args):
		evt := d.record(domain.ThreatPrivilegeEscalate, domain.LevelHigh,
			"privilege-escalation indicator in tool arguments", user, "", "",
			map[string]any{"tool": tool}, false, "")
		out = &evt
	default:
		minBaseline := d.cfg.BaselineMinRequests
		if minBaseline <= 0 {
			minBaseline = 50
		}
		if baseline.TotalRequests > minBaseline {
			if _, common := baseline.CommonTools[tool]; !common {
				unusual := 0
				start := len(history) - 5
				if start < 0 {
					start = 0
				}
				for _, c := range history[start:] {
					if _, ok := baseline.CommonTools[c.tool]; !ok {
						unusual++
					}
				}
				if unusual >= 3 {
					evt := d.record(domain.ThreatAnomalousBehavior, domain.LevelMedium,
						"unusual tool mix relative to user baseline", user, "", "",
						map[string]any{"tool": tool, "unusual_count": unusual}, false, "")
					out = &evt
				}
			}
		}
	}

	baseline.CommonTools[tool] = struct{}{}
	baseline.CommonHours[now.Hour()] = struct{}{}
	baseline.TotalRequests++
	baseline.LastUpdated = now.Unix()

	return out
}

func matchesDangerousSequence(trace []string) bool {
	for _, pattern := range dangerousSequences {
		if IsSubsequence(trace, pattern) {
			return true
		}
	}
	return false
}

func containsPrivilegeIndicator(args map[string]any) bool {
	if len(args) == 0 {
		return false
	}
	blob := strings.ToLower(fmt.Sprint(args))
	for _, ind := range privilegeIndicators {
		if strings.Contains(blob, ind) {
			return true
		}
	}
	return false
}

// CheckData implements data-exfiltration detection: volumes over the
// configured threshold emit DATA_EXFILTRATION/MEDIUM.
func (d *Detector) CheckData(user, dataType string, volume int64) *domain.ThreatEvent {
	threshold := d.cfg.ExfiltrationBytes
	if threshold <= 0 {
		threshold = 100_000
	}
	if volume <= threshold {
		return nil
	}
	evt := d.record(domain.ThreatDataExfiltration, domain.LevelMedium,
		"data volume exceeded exfiltration threshold", user, "", "",
		map[string]any{"type": dataType, "volume": volume}, false, "")
	return &evt
}

// IsBlocked reports whether source is currently blocked, pruning
// expired entries on access.
func (d *Detector) IsBlocked(source string) bool {
	now := d.clock.Now().UTC()

	d.authMu.Lock()
	defer d.authMu.Unlock()

	until, ok := d.blockedUntil[source]
	if !ok {
		return false
	}
	if now.After(until) {
		delete(d.blockedUntil, source)
		return false
	}
	return true
}

// EnsureAllowed is the veto an ingress path calls before processing a
// request from source: it returns a Blocked error while source is on
// the block list, nil otherwise.
func (d *Detector) EnsureAllowed(source string) error {
	if d.IsBlocked(source) {
		return securitycore.New(securitycore.Blocked, "source is on the block list").With("source", source)
	}
	return nil
}

// Unblock manually clears source's block.
func (d *Detector) Unblock(source string) {
	d.authMu.Lock()
	defer d.authMu.Unlock()
	delete(d.blockedUntil, source)
}

// Recent returns the newest events, optionally filtered by a level
// floor.
func (d *Detector) Recent(limit int, minLevel domain.ThreatLevel) []domain.ThreatEvent {
	d.eventsMu.RLock()
	defer d.eventsMu.RUnlock()

	floor := 0
	if minLevel != "" {
		floor = levelOrder[minLevel]
	}

	out := make([]domain.ThreatEvent, 0, limit)
	for i := len(d.events) - 1; i >= 0 && len(out) < limit; i-- {
		if levelOrder[d.events[i].Level] >= floor {
			out = append(out, d.events[i])
		}
	}
	return out
}

// Summary reports 24h counts by level/category, blocked-source count,
// tracked-user count, and an alert/healthy status.
type Summary struct {
	ByLevel      map[domain.ThreatLevel]int
	ByCategory   map[domain.ThreatCategory]int
	BlockedCount int
	TrackedUsers int
	Status       string
}

func (d *Detector) Summary() Summary {
	now := d.clock.Now().UTC()
	horizon := now.Add(-24 * time.Hour)

	d.eventsMu.RLock()
	sum := Summary{ByLevel: make(map[domain.ThreatLevel]int), ByCategory: make(map[domain.ThreatCategory]int)}
	alert := false
	for _, e := range d.events {
		if time.Unix(e.Timestamp, 0).UTC().Before(horizon) {
			continue
		}
		sum.ByLevel[e.Level]++
		sum.ByCategory[e.Category]++
		if !e.Mitigated && (e.Level == domain.LevelHigh || e.Level == domain.LevelCritical) {
			alert = true
		}
	}
	d.eventsMu.RUnlock()

	d.authMu.Lock()
	sum.BlockedCount = 0
	for _, until := range d.blockedUntil {
		if now.Before(until) {
			sum.BlockedCount++
		}
	}
	d.authMu.Unlock()

	d.toolMu.Lock()
	sum.TrackedUsers = len(d.baselines)
	d.toolMu.Unlock()

	if alert {
		sum.Status = "alert"
	} else {
		sum.Status = "healthy"
	}
	return sum
}
