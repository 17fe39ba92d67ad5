package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

var (
	editTitle       string
	editDescription string
	editAgent       string
	editPriority    string
)

var editCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit a task's fields",
	Long: `Change a task's title, description, agent, or priority. Only the
flags given are applied; everything else is left alone.

Task ids may be shortened to any unique prefix. Reassigning the agent of an
in_progress task does not stop its current run; the new agent picks the task
up on its next dispatch.`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editDescription, "description", "", "New description")
	editCmd.Flags().StringVar(&editAgent, "agent", "", "New agent")
	editCmd.Flags().StringVar(&editPriority, "priority", "", "New priority: urgent, high, medium, or low")
}

func runEdit(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("title") && !flags.Changed("description") &&
		!flags.Changed("agent") && !flags.Changed("priority") {
		return fmt.Errorf("nothing to change: pass at least one of --title, --description, --agent, --priority")
	}

	ctrl, closeStore, err := openBacklog()
	if err != nil {
		return err
	}
	defer closeStore()

	id, err := resolveTaskID(ctrl, args[0])
	if err != nil {
		return err
	}
	task, ok := ctrl.Task(id)
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}

	if flags.Changed("title") {
		if editTitle == "" {
			return fmt.Errorf("title cannot be empty")
		}
		task.Title = editTitle
	}
	if flags.Changed("description") {
		task.Description = editDescription
	}
	if flags.Changed("agent") {
		task.Agent = editAgent
	}
	if flags.Changed("priority") {
		priority := models.Priority(editPriority)
		if !priority.Valid() {
			return fmt.Errorf("invalid priority %q (want urgent, high, medium, or low)", editPriority)
		}
		task.Priority = priority
	}

	task.UpdatedAt = time.Now()
	if err := ctrl.UpdateTask(context.Background(), task); err != nil {
		return err
	}
	fmt.Printf("updated %s (%s, %s, id %s)\n", task.Title, task.Status, task.Priority, shortID(task.ID))
	return nil
}
