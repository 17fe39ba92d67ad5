package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

var moveCmd = &cobra.Command{
	Use:   "move <task-id> <status>",
	Short: "Move a task to another status",
	Long: `Move a task to scheduled, queued, in_progress, or done.

Task ids may be shortened to any unique prefix. Moving a task to in_progress
while its agent is already busy displaces the agent's current task back to
queued, the same rule the engine applies.`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func runMove(cmd *cobra.Command, args []string) error {
	status := models.TaskStatus(args[1])
	if !status.Valid() {
		return fmt.Errorf("invalid status %q (want scheduled, queued, in_progress, or done)", args[1])
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

	moved, displaced, err := ctrl.MoveTaskWithExecutionRules(context.Background(), id, status)
	if err != nil {
		return err
	}

	fmt.Printf("moved %s to %s\n", moved.Title, moved.Status)
	if displaced != nil {
		fmt.Printf("displaced %s back to queued (agent %s was busy)\n", displaced.Title, moved.Agent)
	}
	return nil
}
