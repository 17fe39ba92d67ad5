package classify

import (
	"strings"
	"testing"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		text string
		want models.Outcome
	}{
		{"no marker defaults to continue", "did some work on the parser", models.OutcomeContinue},
		{"empty text defaults to continue", "", models.OutcomeContinue},
		{"complete marker", "all done\n[task-complete]", models.OutcomeComplete},
		{"continue marker", "more to do\n[task-continue]", models.OutcomeContinue},
		{"blocked marker", "cannot proceed\n[task-blocked]", models.OutcomeBlocked},
		{"last marker wins", "Issue: [task-blocked]\n[task-continue]", models.OutcomeContinue},
		{"last marker wins reversed", "[task-continue] then later\n[task-blocked]", models.OutcomeBlocked},
		{"uppercase marker recognized", "DONE [TASK-COMPLETE]", models.OutcomeComplete},
		{"marker mid-sentence counts", "ending with [task-complete] trailing prose", models.OutcomeComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Outcome(tt.text); got != tt.want {
				t.Errorf("Outcome(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestIssues_BlockedLineExtracted(t *testing.T) {
	text := "- Blocked: API auth token is invalid.\n[task-blocked]"
	got := Issues(text)

	want := []string{"Blocked: API auth token is invalid."}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("Issues(%q) = %v, want %v", text, got, want)
	}
	if outcome := Outcome(text); outcome != models.OutcomeBlocked {
		t.Errorf("Outcome(%q) = %q, want %q", text, outcome, models.OutcomeBlocked)
	}
}

func TestIssues_MarkerOnlyLinesIgnored(t *testing.T) {
	text := "Issue: [task-blocked]\n[task-continue]"
	got := Issues(text)

	if len(got) != 0 {
		t.Fatalf("Issues(%q) = %v, want empty", text, got)
	}
	if outcome := Outcome(text); outcome != models.OutcomeContinue {
		t.Errorf("Outcome(%q) = %q, want %q", text, outcome, models.OutcomeContinue)
	}
}

func TestIssues_NoSignalYieldsEmpty(t *testing.T) {
	texts := []string{
		"",
		"refactored the config loader and simplified the defaults",
		"waiting on the next instruction",
		"PASS: TestScheduler",
		"everything looks great, shipping it",
	}

	for _, text := range texts {
		if got := Issues(text); len(got) != 0 {
			t.Errorf("Issues(%q) = %v, want empty", text, got)
		}
	}
}

func TestIssues_Filters(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			"negation phrase cleared",
			"No issues found in the diff.",
			nil,
		},
		{
			"negated with coverage claim cleared",
			"no issues found, regression suite was added",
			nil,
		},
		{
			"bare heading cleared",
			"Issues:",
			nil,
		},
		{
			"heading with finding kept",
			"Issues: the payment retry loop never backs off and hammers the gateway",
			[]string{"Issues: the payment retry loop never backs off and hammers the gateway"},
		},
		{
			"resolved sentence cleared",
			"Fixed the authentication bug in the login handler.",
			nil,
		},
		{
			"resolved with live failure kept",
			"Fixed one bug but the checkout flow is still failing on submit.",
			[]string{"Fixed one bug but the checkout flow is still failing on submit."},
		},
		{
			"regression tests added cleared",
			"Added regression tests covering the parser edge cases.",
			nil,
		},
		{
			"passing status cleared",
			"All 42 tests passed, 0 failures.",
			nil,
		},
		{
			"confirmation of existing fix cleared",
			"Confirmed the fix for the race condition bug is already present in commit abc1234.",
			nil,
		},
		{
			"host permission blocker cleared",
			"Blocked because screen recording permission has not been granted.",
			nil,
		},
		{
			"short fragment cleared",
			"bug in x",
			nil,
		},
		{
			"plain defect kept",
			"Error: config file is missing the required gateway url key.",
			[]string{"Error: config file is missing the required gateway url key."},
		},
		{
			"list prefix stripped",
			"1. Error: config file is missing the required gateway url key.",
			[]string{"Error: config file is missing the required gateway url key."},
		},
		{
			"mixed reply keeps only live issues",
			"Fixed the lint errors.\n- Bug: displaced tasks keep their stale session keys.\nAll checks passed.",
			[]string{"Bug: displaced tasks keep their stale session keys."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Issues(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Issues(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Issues(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIssues_FallbackSummary(t *testing.T) {
	// Neither line survives alone: the first is a bare heading, the second
	// carries no signal keyword. The reply as a whole still reports an issue.
	text := "error\nin the payment module: transaction ids collide"
	got := Issues(text)

	want := "error in the payment module: transaction ids collide"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("Issues(%q) = %v, want [%q]", text, got, want)
	}
}

func TestIssues_FallbackSummaryTruncated(t *testing.T) {
	filler := strings.Repeat("a", 300)
	text := "error\n" + filler
	got := Issues(text)

	if len(got) != 1 {
		t.Fatalf("Issues() returned %d issues, want 1", len(got))
	}
	if n := len([]rune(got[0])); n != 240 {
		t.Errorf("summary length = %d runes, want 240", n)
	}
	if !strings.HasPrefix(got[0], "error aaaa") {
		t.Errorf("summary = %q, want prefix %q", got[0][:20], "error aaaa")
	}
}

func TestIssues_DedupePreservesOrder(t *testing.T) {
	text := "Bug: the poller drops the first change event.\n" +
		"Error: reconnect loop leaks goroutines on shutdown.\n" +
		"Bug: the poller drops the first change event.\n"
	got := Issues(text)

	want := []string{
		"Bug: the poller drops the first change event.",
		"Error: reconnect loop leaks goroutines on shutdown.",
	}
	if len(got) != len(want) {
		t.Fatalf("Issues() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Issues()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsExternalBlocker(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Please click the authorize button in the browser.", true},
		{"I need your API key to call the service.", true},
		{"Cannot access the staging database from here.", true},
		{"Waiting for your approval before merging.", true},
		{"The build is red because of a nil pointer.", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := IsExternalBlocker(tt.text); got != tt.want {
				t.Errorf("IsExternalBlocker(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsRateLimitSignature(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"upstream returned 429", true},
		{"Too Many Requests", true},
		{"we are being rate limited", true},
		{"monthly quota exceeded for this key", true},
		{"connection refused", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := IsRateLimitSignature(tt.text); got != tt.want {
				t.Errorf("IsRateLimitSignature(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsTimeoutSignature(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"request timed out after 180s", true},
		{"context deadline exceeded", true},
		{"connection reset by peer", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := IsTimeoutSignature(tt.text); got != tt.want {
				t.Errorf("IsTimeoutSignature(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRepeatedBlockedMarkers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"two markers", "[task-blocked] retry\n[task-blocked]", true},
		{"one marker", "stuck\n[task-blocked]", false},
		{"no markers", "still working", false},
		{"case insensitive", "[TASK-BLOCKED]\n[task-blocked]", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepeatedBlockedMarkers(tt.text); got != tt.want {
				t.Errorf("RepeatedBlockedMarkers(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
