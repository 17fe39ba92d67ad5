package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/internal/store"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

var (
	addAgent       string
	addPriority    string
	addDescription string
	addProject     string
	addQueue       bool
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task to the backlog",
	Long: `Add a task. New tasks land in scheduled; the engine queues and
dispatches them on its next tick. Use --queue to skip straight to queued.

Examples:
  jarvis add "Fix the login flow" --agent scout
  jarvis add "Ship the importer" --agent builder --priority urgent --queue
  jarvis add "Write release notes" --agent scribe --project "Q3 Launch"`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addAgent, "agent", "", "Agent the task is assigned to")
	addCmd.Flags().StringVar(&addPriority, "priority", string(models.PriorityMedium), "Priority: urgent, high, medium, or low")
	addCmd.Flags().StringVar(&addDescription, "description", "", "Longer task description passed to the agent")
	addCmd.Flags().StringVar(&addProject, "project", "", "Project name to group the task under")
	addCmd.Flags().BoolVar(&addQueue, "queue", false, "Queue immediately instead of waiting for the next tick")
}

func runAdd(cmd *cobra.Command, args []string) error {
	priority := models.Priority(addPriority)
	if !priority.Valid() {
		return fmt.Errorf("invalid priority %q (want urgent, high, medium, or low)", addPriority)
	}

	ctrl, closeStore, err := openBacklog()
	if err != nil {
		return err
	}
	defer closeStore()

	params := store.CreateParams{
		Title:       args[0],
		Description: addDescription,
		Agent:       addAgent,
		Priority:    priority,
	}
	if addProject != "" {
		params.Project = &models.Project{ID: projectID(addProject), Name: addProject}
	}

	ctx := context.Background()
	task, err := ctrl.StartNewTask(ctx, params)
	if err != nil {
		return err
	}
	if addQueue {
		if task, _, err = ctrl.MoveTaskWithExecutionRules(ctx, task.ID, models.TaskStatusQueued); err != nil {
			return err
		}
	}

	fmt.Printf("added %s (%s, %s, id %s)\n", task.Title, task.Status, task.Priority, shortID(task.ID))
	if task.Agent == "" {
		fmt.Println("note: no agent assigned; the task will sit in the queue until one is set")
	}
	return nil
}

// projectID derives a stable id from a project name.
func projectID(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
