// Package classify turns free-text agent replies into execution outcomes
// and issue lists. Everything here is pure and stateless; the scheduler and
// the intervention monitor share its vocabulary tables.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

const (
	// minIssueLength is the shortest line reported as an issue.
	minIssueLength = 12
	// maxSummaryLength bounds the fallback whole-reply summary.
	maxSummaryLength = 240
)

var (
	markerPattern  = regexp.MustCompile(`(?i)\[task-(?:complete|continue|blocked)\]`)
	numberedPrefix = regexp.MustCompile(`^\d+[.)]\s+`)
)

// Outcome scans reply text for the right-most outcome marker and returns
// the matching outcome. Replies without any marker classify as Continue:
// an unparseable reply earns a retry, never a false completion.
func Outcome(text string) models.Outcome {
	lower := strings.ToLower(text)
	outcome := models.OutcomeContinue
	best := -1
	for _, c := range []struct {
		marker  string
		outcome models.Outcome
	}{
		{models.MarkerComplete, models.OutcomeComplete},
		{models.MarkerContinue, models.OutcomeContinue},
		{models.MarkerBlocked, models.OutcomeBlocked},
	} {
		if idx := strings.LastIndex(lower, c.marker); idx > best {
			best = idx
			outcome = c.outcome
		}
	}
	return outcome
}

// issueRule is one ordered filter in the issue pipeline. drop returns true
// when the candidate line must not be reported.
type issueRule struct {
	name string
	drop func(lower string) bool
}

// issueRules run in order against each candidate line (lower-cased, list
// prefixes and markers already stripped). New filters are appended or
// inserted here; Issues itself never changes.
var issueRules = []issueRule{
	{"no-signal", func(l string) bool { return !containsAny(l, signalKeywords) }},
	{"negation", func(l string) bool { return containsAny(l, negationPhrases) }},
	{"bare-heading", isBareHeading},
	{"resolved", isResolvedReport},
	{"coverage-added", isCoverageAddition},
	{"passing-status", isPassingStatus},
	{"confirmation", func(l string) bool { return containsAny(l, confirmationPhrases) }},
	{"permission-blocker", func(l string) bool { return containsAny(l, permissionPhrases) }},
	{"too-short", func(l string) bool { return utf8.RuneCountInString(l) < minIssueLength }},
}

// Issues extracts actionable issue sentences from reply text. Lines are
// cleaned of list prefixes and outcome markers, then filtered through
// issueRules in order. If nothing survives but the reply as a whole still
// signals an issue, a single truncated summary line is returned. Duplicates
// are dropped preserving first-seen order.
func Issues(text string) []string {
	var issues []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		if line == "" || dropLine(strings.ToLower(line)) {
			continue
		}
		if !seen[line] {
			seen[line] = true
			issues = append(issues, line)
		}
	}
	if len(issues) == 0 {
		if s := summaryLine(text); s != "" {
			issues = append(issues, s)
		}
	}
	return issues
}

// RepeatedBlockedMarkers reports whether text carries the blocked marker at
// least twice, the signature of an agent looping on the same blocker.
func RepeatedBlockedMarkers(text string) bool {
	return strings.Count(strings.ToLower(text), models.MarkerBlocked) >= 2
}

func dropLine(lower string) bool {
	for _, r := range issueRules {
		if r.drop(lower) {
			return true
		}
	}
	return false
}

// cleanLine strips list-item prefixes, markdown heading markers, and
// outcome markers, then collapses interior whitespace. Original casing is
// preserved for the emitted issue text.
func cleanLine(raw string) string {
	line := strings.TrimSpace(markerPattern.ReplaceAllString(raw, " "))
	for {
		stripped := strings.TrimLeft(line, "-*•+> \t")
		stripped = strings.TrimLeft(stripped, "#")
		if loc := numberedPrefix.FindStringIndex(stripped); loc != nil {
			stripped = stripped[loc[1]:]
		}
		stripped = strings.TrimSpace(stripped)
		if stripped == line {
			break
		}
		line = stripped
	}
	return strings.Join(strings.Fields(line), " ")
}

// summaryLine collapses the whole reply into one candidate line for the
// fallback case where no individual line survived the filters.
func summaryLine(text string) string {
	s := cleanLine(strings.ReplaceAll(text, "\n", " "))
	if s == "" || dropLine(strings.ToLower(s)) {
		return ""
	}
	if utf8.RuneCountInString(s) > maxSummaryLength {
		runes := []rune(s)
		s = string(runes[:maxSummaryLength])
	}
	return s
}

// isBareHeading reports whether the line is a section heading like
// "Issues:" rather than an issue sentence.
func isBareHeading(lower string) bool {
	trimmed := strings.TrimSpace(lower)
	hasColon := strings.HasSuffix(trimmed, ":")
	fields := strings.Fields(strings.TrimSuffix(trimmed, ":"))
	if len(fields) == 0 {
		return true
	}
	if len(fields) > 3 {
		return false
	}
	if hasColon {
		return true
	}
	for _, f := range fields {
		if !wordIn(f, headingWords) {
			return false
		}
	}
	return true
}

// isResolvedReport reports whether the line describes remediation that
// already happened. Lines that still carry live-failure wording stay.
func isResolvedReport(lower string) bool {
	if !containsAny(lower, resolvedWords) {
		return false
	}
	return !containsAny(lower, liveFailureWords)
}

// isCoverageAddition reports whether the line announces newly added
// regression tests or coverage without any live failure.
func isCoverageAddition(lower string) bool {
	if !containsAny(lower, coverageNouns) || !containsAny(lower, additionWords) {
		return false
	}
	return !containsAny(lower, liveFailureWords)
}

// isPassingStatus reports whether the line is a passing test/check report.
func isPassingStatus(lower string) bool {
	if containsAny(lower, liveFailureWords) {
		return false
	}
	trimmed := strings.TrimSpace(lower)
	if strings.HasPrefix(trimmed, "pass:") || trimmed == "pass" {
		return true
	}
	return containsAny(lower, passingPhrases)
}

func wordIn(word string, set []string) bool {
	for _, w := range set {
		if word == w {
			return true
		}
	}
	return false
}
