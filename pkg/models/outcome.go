package models

// Outcome is the three-way result of an agent run, extracted from the
// agent's free-text reply.
type Outcome string

const (
	// OutcomeComplete indicates the agent finished the task.
	OutcomeComplete Outcome = "complete"
	// OutcomeContinue indicates the agent made progress and should be
	// re-dispatched. This is the default when no marker is found.
	OutcomeContinue Outcome = "continue"
	// OutcomeBlocked indicates the agent cannot proceed.
	OutcomeBlocked Outcome = "blocked"
)

// Literal reply markers. Agents are instructed to end every reply with
// exactly one of these; the classifier scans for the right-most occurrence.
const (
	// MarkerComplete ends a reply for a finished task.
	MarkerComplete = "[task-complete]"
	// MarkerContinue ends a reply for a task needing another pass.
	MarkerContinue = "[task-continue]"
	// MarkerBlocked ends a reply for a task the agent cannot advance.
	MarkerBlocked = "[task-blocked]"
)

// Marker returns the literal reply marker for the outcome.
func (o Outcome) Marker() string {
	switch o {
	case OutcomeComplete:
		return MarkerComplete
	case OutcomeBlocked:
		return MarkerBlocked
	default:
		return MarkerContinue
	}
}

// Valid returns true if the outcome is a known value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeComplete, OutcomeContinue, OutcomeBlocked:
		return true
	default:
		return false
	}
}
