package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusScheduled indicates the task is waiting to be queued.
	TaskStatusScheduled TaskStatus = "scheduled"
	// TaskStatusQueued indicates the task is eligible for dispatch.
	TaskStatusQueued TaskStatus = "queued"
	// TaskStatusInProgress indicates an agent is working on the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusScheduled, TaskStatusQueued, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

// Priority orders tasks for dispatch. It never preempts a running task.
type Priority string

const (
	// PriorityUrgent is dispatched before all other priorities.
	PriorityUrgent Priority = "urgent"
	// PriorityHigh is dispatched before medium and low.
	PriorityHigh Priority = "high"
	// PriorityMedium is the default priority.
	PriorityMedium Priority = "medium"
	// PriorityLow is dispatched last.
	PriorityLow Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns the sort rank of the priority; lower sorts first.
// Unknown priorities rank after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Project is an optional grouping a task belongs to.
type Project struct {
	// ID is the unique identifier of the project.
	ID string `json:"id"`
	// Name is the display name of the project.
	Name string `json:"name"`
	// Color is the display color of the project.
	Color string `json:"color,omitempty"`
}

// Task represents a unit of work tracked through the execution lifecycle.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Agent is the name of the agent assigned to this task.
	Agent string `json:"agent,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority orders the task relative to other queued tasks.
	Priority Priority `json:"priority"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updatedAt"`
	// ScheduledFor is an optional target time shown in the UI.
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	// CompletedAt is when the task reached done. Set iff Status is done.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	// SessionKey is the stable conversation handle reused across retries.
	SessionKey string `json:"sessionKey,omitempty"`
	// LastEvidence is the most recent raw agent reply or error text.
	LastEvidence string `json:"lastEvidence,omitempty"`
	// LastEvidenceAt is when LastEvidence was recorded.
	LastEvidenceAt *time.Time `json:"lastEvidenceAt,omitempty"`
	// Project is the optional project this task belongs to.
	Project *Project `json:"project,omitempty"`
	// Archived excludes the task from all scheduling when true.
	Archived bool `json:"archived,omitempty"`
	// IsVerification marks the task as a verification round for other work.
	IsVerification bool `json:"isVerification,omitempty"`
	// VerificationRound is the verification round number, if any.
	VerificationRound int `json:"verificationRound,omitempty"`
	// Verified reports whether the verification work was confirmed.
	Verified bool `json:"verified,omitempty"`
}

// Clone returns a deep copy of the task. Pointer-typed fields are
// duplicated so callers can mutate the copy freely.
func (t Task) Clone() Task {
	c := t
	if t.ScheduledFor != nil {
		v := *t.ScheduledFor
		c.ScheduledFor = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.LastEvidenceAt != nil {
		v := *t.LastEvidenceAt
		c.LastEvidenceAt = &v
	}
	if t.Project != nil {
		p := *t.Project
		c.Project = &p
	}
	return c
}

// ApplyStatus moves the task to status at the given time, maintaining the
// rule that CompletedAt is set iff the task is done.
func (t *Task) ApplyStatus(status TaskStatus, now time.Time) {
	t.Status = status
	t.UpdatedAt = now
	if status == TaskStatusDone {
		done := now
		t.CompletedAt = &done
	} else {
		t.CompletedAt = nil
	}
}

// RecordEvidence stores the raw agent reply text and its timestamp.
func (t *Task) RecordEvidence(text string, now time.Time) {
	t.LastEvidence = text
	at := now
	t.LastEvidenceAt = &at
	t.UpdatedAt = now
}
