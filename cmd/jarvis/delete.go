package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task permanently",
	Long: `Remove a task from the backlog entirely. Unlike archiving, deletion
leaves no trace in the task file; recorded run history is kept.

Task ids may be shortened to any unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	if err := ctrl.DeleteTask(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("deleted %s (id %s)\n", task.Title, shortID(id))
	return nil
}
