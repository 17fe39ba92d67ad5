package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <project-id>",
	Short: "Archive every task in a project",
	Long: `Archive all tasks belonging to a project. Archived tasks drop out
of scheduling and the status board but stay in the task file.

Project ids are derived from project names: "Q3 Launch" becomes q3-launch.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctrl, closeStore, err := openBacklog()
	if err != nil {
		return err
	}
	defer closeStore()

	n := ctrl.ArchiveProject(context.Background(), args[0])
	if n == 0 {
		fmt.Printf("no unarchived tasks in project %q\n", args[0])
		return nil
	}
	fmt.Printf("archived %d task(s) in project %q\n", n, args[0])
	return nil
}
