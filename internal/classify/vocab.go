package classify

import "strings"

// signalKeywords are the substrings that mark a line as a candidate issue.
// A line containing none of these is never an issue.
var signalKeywords = []string{
	"issue",
	"bug",
	"error",
	"fail",
	"regression",
	"problem",
	"risk",
	"gap",
	"missing",
	"blocked",
	"constraint",
	"violation",
}

// negationPhrases clear a line that only reports the absence of a problem.
var negationPhrases = []string{
	"no issue",
	"no bug",
	"no error",
	"no fail",
	"no regression",
	"no problem",
	"no risk",
	"no gap",
	"no blocker",
	"no blocking",
	"not blocked",
	"no constraint",
	"no violation",
	"nothing missing",
	"not missing",
	"no fix required",
	"no fix needed",
	"no fixes required",
	"no fixes needed",
	"without issues",
	"without errors",
	"issue-free",
	"error-free",
}

// headingWords are words that form bare section headings ("Issues:")
// rather than issue reports.
var headingWords = []string{
	"issue",
	"issues",
	"bug",
	"bugs",
	"error",
	"errors",
	"problem",
	"problems",
	"risk",
	"risks",
	"blocker",
	"blockers",
	"blocked",
	"regression",
	"regressions",
	"known",
	"open",
	"found",
	"remaining",
}

// resolvedWords mark a sentence as reporting past remediation, not a live
// defect.
var resolvedWords = []string{
	"resolved",
	"fixed",
	"remediated",
	"addressed",
	"corrected",
	"patched",
	"repaired",
}

// additionWords combine with test/coverage nouns to detect "new regression
// tests were added" reports.
var additionWords = []string{
	"added",
	"adds",
	"add",
	"wrote",
	"written",
	"created",
	"introduced",
	"new",
}

// coverageNouns name the artifacts whose addition is progress, not a defect.
var coverageNouns = []string{
	"regression test",
	"regression tests",
	"regression suite",
	"regression coverage",
	"test coverage",
	"unit test",
	"unit tests",
}

// liveFailureWords veto the resolved/coverage/passing filters: a sentence
// carrying one still describes something broken right now.
var liveFailureWords = []string{
	"failing",
	"fails",
	"still fail",
	"broken",
	"crash",
	"unresolved",
	"outstanding",
	"remains",
}

// passingPhrases mark a line as a passing-status report.
var passingPhrases = []string{
	"0 failures",
	"zero failures",
	"0 errors",
	"zero errors",
	"all checks passed",
	"all checks pass",
	"all tests passed",
	"all tests pass",
	"tests passed",
	"tests pass",
	"test passed",
	"suite passed",
	"suite passes",
	"build passed",
	"checks green",
}

// confirmationPhrases mark a sentence as confirming existing state rather
// than reporting new work needed.
var confirmationPhrases = []string{
	"already exists",
	"already present",
	"already implemented",
	"already fixed",
	"already resolved",
	"already handled",
	"already addressed",
	"already covered",
	"already in place",
	"fix present",
	"fix is present",
	"fix was present",
	"present in commit",
	"exists in commit",
	"confirmed the fix",
	"confirmed fix",
	"verified the fix",
	"verified fix",
}

// permissionPhrases mark host/OS permission blockers. These are operator
// chores, not actionable software defects.
var permissionPhrases = []string{
	"screen recording",
	"screen-recording",
	"accessibility permission",
	"accessibility access",
	"automation permission",
	"apple events",
	"permission prompt",
	"permission dialog",
	"grant permission in system",
	"system settings > privacy",
	"system preferences > security",
}

// externalBlockerPhrases detect blockers that need a human, not another
// retry. They earn the long requeue cooldown.
var externalBlockerPhrases = []string{
	"please click",
	"need your",
	"needs your",
	"need you to",
	"provide api key",
	"provide an api key",
	"provide the api key",
	"provide credentials",
	"cannot access",
	"can't access",
	"waiting for your",
	"requires your input",
	"requires your approval",
	"requires manual",
	"human input",
	"manual approval",
}

// rateLimitPhrases detect rate-limit and quota failures.
var rateLimitPhrases = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate-limit",
	"rate_limit",
	"rate limited",
	"quota exceeded",
	"quota reached",
	"usage limit",
	"overloaded",
}

// timeoutPhrases detect timeout failures.
var timeoutPhrases = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"context deadline",
}

// containsAny reports whether the lower-cased text contains any phrase.
func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsExternalBlocker reports whether text describes a blocker that needs a
// human (credentials, UI interaction, access grants).
func IsExternalBlocker(text string) bool {
	return containsAny(strings.ToLower(text), externalBlockerPhrases)
}

// IsRateLimitSignature reports whether text carries rate-limit or quota
// failure vocabulary.
func IsRateLimitSignature(text string) bool {
	return containsAny(strings.ToLower(text), rateLimitPhrases)
}

// IsTimeoutSignature reports whether text carries timeout failure
// vocabulary.
func IsTimeoutSignature(text string) bool {
	return containsAny(strings.ToLower(text), timeoutPhrases)
}
