package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/jarvis-agent/jarvis/internal/store"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

// Controller is the operator-facing surface over the store and
// scheduler. The CLI mutates tasks through it so every change passes
// the same execution rules and intervention checks.
type Controller struct {
	store     *store.Store
	scheduler *Scheduler
	monitor   Monitor
}

// NewController wires a Controller. The scheduler and monitor may be
// nil for read-mostly callers such as one-shot CLI commands.
func NewController(st *store.Store, sched *Scheduler, monitor Monitor) *Controller {
	return &Controller{store: st, scheduler: sched, monitor: monitor}
}

// Tasks returns a snapshot of every task, archived included.
func (c *Controller) Tasks() []models.Task {
	return c.store.Tasks()
}

// Task returns one task by id.
func (c *Controller) Task(id string) (models.Task, bool) {
	return c.store.Get(id)
}

// Queue returns non-archived tasks with the given status in dispatch
// order.
func (c *Controller) Queue(status models.TaskStatus) []models.Task {
	return c.store.Query(status)
}

// IsPaused reports the persisted pause flag.
func (c *Controller) IsPaused() bool {
	return c.store.IsPaused()
}

// StartNewTask creates a task in the scheduled state. The scheduler
// auto-queues it on its next tick.
func (c *Controller) StartNewTask(ctx context.Context, params store.CreateParams) (models.Task, error) {
	if params.Title == "" {
		return models.Task{}, fmt.Errorf("start task: title is required")
	}
	task := c.store.Create(params)
	c.afterMutation(ctx)
	return task, nil
}

// UpdateTask replaces a task's fields wholesale.
func (c *Controller) UpdateTask(ctx context.Context, task models.Task) error {
	if err := c.store.Update(task); err != nil {
		return err
	}
	c.afterMutation(ctx)
	return nil
}

// DeleteTask removes a task permanently.
func (c *Controller) DeleteTask(ctx context.Context, id string) error {
	if err := c.store.Delete(id); err != nil {
		return err
	}
	if c.scheduler != nil {
		c.scheduler.clearCooldown(id)
	}
	c.afterMutation(ctx)
	return nil
}

// MoveTaskWithExecutionRules moves a task manually. A move into
// in_progress bumps the same agent's current in_progress task back to
// queued; the displaced task, if any, is returned. Manual moves clear
// the task's cooldown so the next tick can act on it immediately.
func (c *Controller) MoveTaskWithExecutionRules(ctx context.Context, id string, status models.TaskStatus) (models.Task, *models.Task, error) {
	var displaced *models.Task

	if status == models.TaskStatusInProgress {
		target, ok := c.store.Get(id)
		if !ok {
			return models.Task{}, nil, fmt.Errorf("move task %s: not found", id)
		}
		if target.Agent != "" {
			for _, other := range c.store.Query(models.TaskStatusInProgress) {
				if other.ID == id || other.Agent != target.Agent {
					continue
				}
				bumped, err := c.store.Move(other.ID, models.TaskStatusQueued)
				if err != nil {
					return models.Task{}, nil, err
				}
				log.Printf("[controller] displaced task %s back to queued for agent %s", bumped.ID, bumped.Agent)
				displaced = &bumped
				break
			}
		}
	}

	moved, err := c.store.Move(id, status)
	if err != nil {
		return models.Task{}, displaced, err
	}
	if c.scheduler != nil {
		c.scheduler.clearCooldown(id)
	}
	c.afterMutation(ctx)
	return moved, displaced, nil
}

// ArchiveProject archives every task of a project and returns the count.
func (c *Controller) ArchiveProject(ctx context.Context, projectID string) int {
	n := c.store.ArchiveAll(projectID)
	if n > 0 {
		c.afterMutation(ctx)
	}
	return n
}

// ToggleExecutionPaused flips the persisted pause flag and returns the
// new state. Unpausing nudges the scheduler immediately.
func (c *Controller) ToggleExecutionPaused(ctx context.Context) bool {
	paused := !c.store.IsPaused()
	c.store.SetPaused(paused)
	if !paused && c.scheduler != nil {
		c.scheduler.Poke()
	}
	return paused
}

// afterMutation feeds the intervention monitor, which may pause the
// fleet when a cross-task failure pattern shows up.
func (c *Controller) afterMutation(ctx context.Context) {
	if c.monitor == nil {
		return
	}
	status, err := c.monitor.Check(ctx)
	if err != nil {
		log.Printf("[controller] intervention check: %v", err)
		return
	}
	if status != "" {
		log.Printf("[controller] %s", status)
	}
}
