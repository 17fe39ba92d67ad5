package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

// seedTasks is the fallback task list used when the persisted file is
// missing or unreadable. Seeds are unassigned so nothing dispatches until
// an operator picks an agent.
func seedTasks() []models.Task {
	now := time.Now()
	mk := func(title, description string, priority models.Priority) models.Task {
		return models.Task{
			ID:          uuid.NewString(),
			Title:       title,
			Description: description,
			Status:      models.TaskStatusScheduled,
			Priority:    priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	return []models.Task{
		mk("Review the agent roster",
			"Check agents.yaml and assign an agent to each task you want executed.",
			models.PriorityHigh),
		mk("Connect the gateway",
			"Set the gateway url and token in the config so tasks can be dispatched.",
			models.PriorityMedium),
		mk("Try a scheduled task",
			"Create a task, assign an agent, and watch it move through the board.",
			models.PriorityLow),
	}
}
