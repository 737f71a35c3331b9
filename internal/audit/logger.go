// Package audit implements the tamper-evident, hash-chained Audit
// Ledger: an append-only event log where each entry binds the hash of
// the one before it.
package audit

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gatewayops/securitycore/internal/clock"
	"github.com/gatewayops/securitycore/internal/domain"
	"github.com/gatewayops/securitycore/internal/securitycore"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// journalFormatVersion is bumped whenever the canonical preimage's
// field set, order, or encoding changes — such a change breaks chain
// validation across versions.
const journalFormatVersion = 1

// Logger is the Audit Ledger. Append holds an exclusive lock for the
// duration of {compute hash, write line, advance prevHash} so ordering
// is preserved across concurrent writers.
type Logger struct {
	logger zerolog.Logger
	clock  clock.Clock
	dir    string

	mu       sync.Mutex
	prevHash string
}

// NewLogger opens (or creates) the journal directory and recovers the
// chain's tip by reading the most recent day's last entry, so append
// continues the chain correctly across process restarts.
func NewLogger(logger zerolog.Logger, clk clock.Clock, dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	l := &Logger{logger: logger, clock: clk, dir: dir, prevHash: domain.Genesis}

	tip, err := l.recoverTip()
	if err != nil {
		return nil, fmt.Errorf("recover audit chain tip: %w", err)
	}
	if tip != "" {
		l.prevHash = tip
	}

	logger.Info().Str("dir", dir).Str("prev_hash", l.prevHash).Msg("audit ledger initialized")
	return l, nil
}

// recoverTip scans journal files for the latest day and returns the
// last entry's entry hash, or "" if no journal exists yet.
func (l *Logger) recoverTip() (string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", err
	}
	var dates []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl") {
			dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, "audit-"), ".jsonl"))
		}
	}
	if len(dates) == 0 {
		return "", nil
	}
	sort.Strings(dates)
	last := dates[len(dates)-1]

	recs, err := l.readDate(last)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", nil
	}
	return recs[len(recs)-1].EntryHash, nil
}

func (l *Logger) journalPath(date string) string {
	return filepath.Join(l.dir, fmt.Sprintf("audit-%s.jsonl", date))
}

// canonicalPreimage builds the lexicographically key-sorted, no-
// trailing-whitespace JSON preimage the entry hash covers. Go's
// json.Marshal on a map[string]any already sorts keys, which satisfies
// the canonicalization requirement without a bespoke serializer.
func canonicalPreimage(e domain.AuditEntry) ([]byte, error) {
	fields := map[string]any{
		"timestamp": e.Timestamp,
		"action":    e.Action,
		"actor":     e.Actor,
		"resource":  e.Resource,
		"decision":  e.Decision,
		"policy":    e.Policy,
		"detail":    e.Detail,
		"channel":   e.Channel,
		"prev_hash": e.PrevHash,
	}
	return json.Marshal(fields)
}

func entryHash(e domain.AuditEntry) (string, error) {
	preimage, err := canonicalPreimage(e)
	if err != nil {
		return "", err
	}
	return sha256Hex(preimage), nil
}

// Append constructs an entry using the ledger's current clock and
// prev-hash pointer, computes its entry hash, and atomically flushes it
// to the day's journal before advancing prevHash. Both steps succeed
// or neither does.
func (l *Logger) Append(action string, actor domain.Actor, resource string, decision domain.Decision, policy string, detail map[string]any, channel string) (domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UTC()
	entry := domain.AuditEntry{
		Timestamp: now.Format(time.RFC3339),
		Action:    action,
		Actor:     actor,
		Resource:  resource,
		Decision:  decision,
		Policy:    policy,
		Detail:    detail,
		Channel:   channel,
		PrevHash:  l.prevHash,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return domain.AuditEntry{}, securitycore.Wrap(securitycore.InvalidArgument, "compute entry hash", err)
	}
	entry.EntryHash = hash

	if err := l.writeLine(now.Format(dateLayout), entry); err != nil {
		l.logger.Error().Err(err).Msg("audit journal write failed, chain pointer not advanced")
		return domain.AuditEntry{}, securitycore.Wrap(securitycore.Upstream, "write audit journal", err)
	}

	l.prevHash = entry.EntryHash
	l.logger.Info().
		Str("action", action).
		Str("actor", string(actor)).
		Str("resource", resource).
		Str("decision", string(decision)).
		Str("entry_hash", entry.EntryHash).
		Msg("audit entry appended")
	return entry, nil
}

func (l *Logger) writeLine(date string, entry domain.AuditEntry) error {
	f, err := os.OpenFile(l.journalPath(date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Read returns the entries for a UTC calendar date (YYYY-MM-DD),
// defaulting to today, in insertion order.
func (l *Logger) Read(date string) ([]domain.AuditEntry, error) {
	if date == "" {
		date = l.clock.Now().UTC().Format(dateLayout)
	}
	return l.readDate(date)
}

func (l *Logger) readDate(date string) ([]domain.AuditEntry, error) {
	path := l.journalPath(date)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []domain.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parse journal line: %w", err)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify walks entries, recomputing each entry hash and checking chain
// linkage. The first mismatch stops the walk and names the index and
// failure mode.
//
// The first entry's prev_hash is taken as the anchor since a
// standalone sequence cannot know what preceded it; every entry's
// hash covers its prev_hash, so a mutated anchor still fails the hash
// check. VerifyDate supplies the true cross-day anchor.
func (l *Logger) Verify(entries []domain.AuditEntry) domain.ChainVerification {
	if len(entries) == 0 {
		return domain.ChainVerification{Valid: true, Reason: "0 entries verified"}
	}
	return verifyFrom(entries, entries[0].PrevHash)
}

func verifyFrom(entries []domain.AuditEntry, anchor string) domain.ChainVerification {
	prev := anchor
	for i, e := range entries {
		if e.PrevHash != prev {
			return domain.ChainVerification{
				Valid: false, EntriesCheck: i, BrokenAt: i + 1,
				Reason: fmt.Sprintf("entry %d: prev_hash mismatch", i+1),
			}
		}
		want, err := entryHash(e)
		if err != nil || want != e.EntryHash {
			return domain.ChainVerification{
				Valid: false, EntriesCheck: i, BrokenAt: i + 1,
				Reason: fmt.Sprintf("entry %d tampered: hash mismatch", i+1),
			}
		}
		prev = e.EntryHash
	}
	return domain.ChainVerification{Valid: true, EntriesCheck: len(entries), Reason: fmt.Sprintf("%d entries verified", len(entries))}
}

// VerifyDate reads a day's journal and verifies it against the true
// cross-day anchor: the last hash of the most recent earlier journal,
// or Genesis when date's journal is the first one.
func (l *Logger) VerifyDate(date string) (domain.ChainVerification, error) {
	entries, err := l.Read(date)
	if err != nil {
		return domain.ChainVerification{}, err
	}
	if len(entries) == 0 {
		return domain.ChainVerification{Valid: true, Reason: "0 entries verified"}, nil
	}
	anchor, err := l.anchorFor(date)
	if err != nil {
		return domain.ChainVerification{}, err
	}
	return verifyFrom(entries, anchor), nil
}

// anchorFor returns the expected prev_hash for date's first entry: the
// last entry hash of the latest journal strictly before date, or
// Genesis if none exists.
func (l *Logger) anchorFor(date string) (string, error) {
	dirEntries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", err
	}
	var latest string
	for _, e := range dirEntries {
		name := e.Name()
		if !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		d := strings.TrimSuffix(strings.TrimPrefix(name, "audit-"), ".jsonl")
		if d < date && d > latest {
			latest = d
		}
	}
	if latest == "" {
		return domain.Genesis, nil
	}
	recs, err := l.readDate(latest)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return domain.Genesis, nil
	}
	return recs[len(recs)-1].EntryHash, nil
}

// Summary aggregates a day's entries by decision and action, and
// reports whether the day's chain verifies.
type Summary struct {
	Total      int
	Decisions  map[domain.Decision]int
	Actions    map[string]int
	ChainValid bool
}

func (l *Logger) Summary(date string) (Summary, error) {
	entries, err := l.Read(date)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Total:     len(entries),
		Decisions: make(map[domain.Decision]int),
		Actions:   make(map[string]int),
	}
	for _, e := range entries {
		sum.Decisions[e.Decision]++
		sum.Actions[e.Action]++
	}
	verification, err := l.VerifyDate(date)
	if err != nil {
		return Summary{}, err
	}
	sum.ChainValid = verification.Valid
	return sum, nil
}

// Query reads date's journal (default today) and narrows it by the
// filter's axes; zero-valued axes are unbounded.
func (l *Logger) Query(date string, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	entries, err := l.Read(date)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.Resource != "" && e.Resource != filter.Resource {
			continue
		}
		if filter.Decision != "" && e.Decision != filter.Decision {
			continue
		}
		if filter.Channel != "" && e.Channel != filter.Channel {
			continue
		}
		if filter.Since != "" && e.Timestamp < filter.Since {
			continue
		}
		if filter.Until != "" && e.Timestamp >= filter.Until {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Export serializes entries to JSON or CSV.
func (l *Logger) Export(entries []domain.AuditEntry, format domain.AuditExportFormat) ([]byte, error) {
	switch format {
	case domain.AuditExportCSV:
		return exportCSV(entries)
	default:
		return json.MarshalIndent(entries, "", "  ")
	}
}

func exportCSV(entries []domain.AuditEntry) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "action", "actor", "resource", "decision", "policy", "channel", "prev_hash", "entry_hash"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, e := range entries {
		row := []string{e.Timestamp, e.Action, string(e.Actor), e.Resource, string(e.Decision), e.Policy, e.Channel, e.PrevHash, e.EntryHash}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return []byte(buf.String()), w.Error()
}
