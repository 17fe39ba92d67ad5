package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jarvis",
	Short: "Task orchestration engine for a fleet of remote agents",
	Long: `Jarvis drives a fleet of AI agents through a task backlog.

Tasks move through scheduled, queued, in_progress, and done. The engine
dispatches at most one run per agent at a time, classifies each reply into
complete/continue/blocked, requeues with per-outcome cooldowns, and keeps a
supervisory agent informed. When several independent tasks start failing the
same way, it pauses itself, writes a report, and escalates.

Start the engine with 'jarvis run'; manage the backlog from any shell with
'jarvis add', 'jarvis move', and 'jarvis status'. A running engine picks up
backlog edits made by other processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
