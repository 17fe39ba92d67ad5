// Package intervention watches the task population for recurring-failure
// signatures that span independent tasks. Per-task retries handle isolated
// failures; when several tasks start failing the same way at once, retrying
// harder only burns quota, so the monitor pauses execution, writes a report,
// and escalates to the supervisor instead.
package intervention

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jarvis-agent/jarvis/internal/classify"
	"github.com/jarvis-agent/jarvis/internal/notify"
	"github.com/jarvis-agent/jarvis/internal/store"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

const (
	// threshold is how many independent tasks must share a failure
	// signature before the monitor intervenes.
	threshold = 3

	// defaultWindow suppresses re-escalation of an already-reported
	// signature. It is deliberately much longer than any task cooldown,
	// so individual retries coming off cooldown never re-trigger it.
	defaultWindow = 24 * time.Hour

	stateFileName = "intervention_state.json"
)

// Failure categories a signature can carry.
const (
	categoryRateLimit = "rate-limit"
	categoryBlocked   = "agent-blocked"
)

// State is the persisted record of the last escalated signature. It survives
// restarts so the same signature does not re-escalate inside its window.
type State struct {
	// Fingerprint identifies the failure signature that fired.
	Fingerprint string `json:"fingerprint"`
	// FiredAt is when the escalation was sent.
	FiredAt time.Time `json:"firedAt"`
}

// Monitor scans active tasks for a shared failure signature and intervenes
// at most once per signature per window.
type Monitor struct {
	store      *store.Store
	notifier   *notify.Notifier
	reportsDir string
	statePath  string
	window     time.Duration
}

// New returns a monitor persisting its state under stateDir and writing
// reports to reportsDir. A non-positive window falls back to the default.
func New(st *store.Store, notifier *notify.Notifier, reportsDir, stateDir string, window time.Duration) *Monitor {
	if window <= 0 {
		window = defaultWindow
	}
	return &Monitor{
		store:      st,
		notifier:   notifier,
		reportsDir: reportsDir,
		statePath:  filepath.Join(stateDir, stateFileName),
		window:     window,
	}
}

// Check inspects the non-archived queued and in-progress tasks. It returns
// "" when no cross-task signature is present, a suppression notice when the
// detected signature already fired inside the window, and an operator-facing
// status after an intervention fires. Firing pauses execution, writes a
// report, and sends exactly one escalation; unpausing is manual.
func (m *Monitor) Check(ctx context.Context) (string, error) {
	if m == nil || m.store == nil {
		return "", nil
	}

	active := m.store.Query(models.TaskStatusInProgress)
	active = append(active, m.store.Query(models.TaskStatusQueued)...)
	sig, affected := detectSignature(active)
	if sig == nil {
		return "", nil
	}

	fingerprint := sig.fingerprint()
	state, err := m.loadState()
	if err != nil {
		// An unreadable state file must never block an intervention.
		log.Printf("[intervention] state unreadable, treating as empty: %v", err)
		state = State{}
	}
	if state.Fingerprint == fingerprint && time.Since(state.FiredAt) < m.window {
		return fmt.Sprintf("no action: %s signature already escalated at %s",
			sig.category, state.FiredAt.Format(time.RFC3339)), nil
	}

	return m.fire(ctx, sig, affected, fingerprint)
}

func (m *Monitor) fire(ctx context.Context, sig *signature, affected []models.Task, fingerprint string) (string, error) {
	m.store.SetPaused(true)

	reportPath, err := m.writeReport(sig, affected)
	if err != nil {
		// The pause and the escalation still go out without a report.
		log.Printf("[intervention] report write failed: %v", err)
		reportPath = ""
	}

	reason := fmt.Sprintf("%s failure signature across %d tasks", sig.category, len(affected))
	if m.notifier != nil {
		m.notifier.Intervention(ctx, reportPath, reason)
	}

	if err := m.saveState(State{Fingerprint: fingerprint, FiredAt: time.Now().UTC()}); err != nil {
		log.Printf("[intervention] state persist failed: %v", err)
	}

	log.Printf("[intervention] paused execution: %s (report: %s)", reason, reportPath)
	return fmt.Sprintf("intervention fired: %s; execution paused, report at %s", reason, reportPath), nil
}

// signature is the canonical form of a cross-task failure pattern: the
// category plus the most frequent normalized issue line across the affected
// tasks. Task ids never enter it, so the fingerprint stays stable while the
// same failure keeps hitting different tasks.
type signature struct {
	category string
	issue    string
}

func (s signature) fingerprint() string {
	sum := sha256.Sum256([]byte(s.category + "\n" + s.issue))
	return hex.EncodeToString(sum[:])
}

func detectSignature(tasks []models.Task) (*signature, []models.Task) {
	byCategory := make(map[string][]models.Task)
	for _, t := range tasks {
		ev := t.LastEvidence
		if ev == "" {
			continue
		}
		switch {
		case classify.IsRateLimitSignature(ev):
			byCategory[categoryRateLimit] = append(byCategory[categoryRateLimit], t)
		case classify.RepeatedBlockedMarkers(ev):
			byCategory[categoryBlocked] = append(byCategory[categoryBlocked], t)
		}
	}

	category := ""
	for _, c := range []string{categoryRateLimit, categoryBlocked} {
		if len(byCategory[c]) >= threshold && len(byCategory[c]) > len(byCategory[category]) {
			category = c
		}
	}
	if category == "" {
		return nil, nil
	}
	affected := byCategory[category]
	return &signature{category: category, issue: dominantIssue(affected)}, affected
}

// dominantIssue picks the most frequent normalized issue line across the
// affected tasks' evidence, with lexicographic order breaking ties so the
// same failure always yields the same signature. Evidence with no extractable
// issue lines yields "".
func dominantIssue(tasks []models.Task) string {
	counts := make(map[string]int)
	for _, t := range tasks {
		for _, issue := range classify.Issues(t.LastEvidence) {
			counts[normalizeIssue(issue)]++
		}
	}
	lines := make([]string, 0, len(counts))
	for line := range counts {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if counts[lines[i]] != counts[lines[j]] {
			return counts[lines[i]] > counts[lines[j]]
		}
		return lines[i] < lines[j]
	})
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

func normalizeIssue(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	runes := []rune(s)
	if len(runes) > 120 {
		return string(runes[:120])
	}
	return s
}

func (m *Monitor) writeReport(sig *signature, affected []models.Task) (string, error) {
	if err := os.MkdirAll(m.reportsDir, 0755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	now := time.Now().UTC()
	name := fmt.Sprintf("jarvis_intervention_%s.md", now.Format("20060102-150405"))
	path := filepath.Join(m.reportsDir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "# Intervention Report\n\n")
	fmt.Fprintf(&b, "- Fired: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Category: %s\n", sig.category)
	if sig.issue != "" {
		fmt.Fprintf(&b, "- Dominant issue: %s\n", sig.issue)
	}
	fmt.Fprintf(&b, "- Affected tasks: %d\n\n", len(affected))
	b.WriteString("Execution is paused. Resume manually once the underlying issue is resolved.\n\n")
	b.WriteString("## Affected Tasks\n\n")
	for _, t := range affected {
		fmt.Fprintf(&b, "### %s (%s)\n\n", t.Title, t.ID)
		fmt.Fprintf(&b, "- Agent: %s\n- Status: %s\n- Priority: %s\n\n", t.Agent, t.Status, t.Priority)
		if t.LastEvidence != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", evidenceExcerpt(t.LastEvidence, 800))
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func evidenceExcerpt(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}

func (m *Monitor) loadState() (State, error) {
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parse %s: %w", m.statePath, err)
	}
	return s, nil
}

func (m *Monitor) saveState(s State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode intervention state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.statePath), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write intervention state: %w", err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace intervention state: %w", err)
	}
	return nil
}
