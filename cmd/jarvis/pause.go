package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause task dispatch",
	Long: `Set the execution pause flag. A running engine stops dispatching
new runs on its next tick; in-flight runs finish and their outcomes still
apply. The flag persists until 'jarvis resume'.`,
	Args: cobra.NoArgs,
	RunE: runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume task dispatch",
	Long: `Clear the execution pause flag, whether it was set manually or by
an intervention. A running engine re-evaluates the queue immediately.`,
	Args: cobra.NoArgs,
	RunE: runResume,
}

func runPause(cmd *cobra.Command, args []string) error {
	return setPaused(true)
}

func runResume(cmd *cobra.Command, args []string) error {
	return setPaused(false)
}

func setPaused(want bool) error {
	ctrl, closeStore, err := openBacklog()
	if err != nil {
		return err
	}
	defer closeStore()

	verb := "paused"
	if !want {
		verb = "resumed"
	}
	if ctrl.IsPaused() == want {
		fmt.Printf("execution is already %s\n", verb)
		return nil
	}

	ctrl.ToggleExecutionPaused(context.Background())
	fmt.Printf("execution %s\n", verb)
	return nil
}
