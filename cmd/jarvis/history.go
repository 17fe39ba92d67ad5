package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/internal/config"
	"github.com/jarvis-agent/jarvis/internal/history"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

// runMaxAge is how long finished runs are kept when --purge is given.
const runMaxAge = 30 * 24 * time.Hour

var (
	historyLimit int
	historyPurge bool
)

var historyCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show recent agent runs",
	Long: `List finished agent runs, newest first.

Without arguments, shows the most recent runs across all tasks. With a task
id (full or unique prefix), shows that task's runs only.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show")
	historyCmd.Flags().BoolVar(&historyPurge, "purge", false, "Purge runs older than 30 days")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runs, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer runs.Close()

	if historyPurge {
		purged, err := runs.PurgeOldRuns(runMaxAge)
		if err != nil {
			return fmt.Errorf("purge old runs: %w", err)
		}
		if purged > 0 {
			fmt.Printf("Purged %d run(s) older than 30 days.\n", purged)
		} else {
			fmt.Println("No runs older than 30 days found.")
		}
		return nil
	}

	var entries []history.Run
	if len(args) == 1 {
		ctrl, closeStore, err := openBacklog()
		if err != nil {
			return err
		}
		id, rerr := resolveTaskID(ctrl, args[0])
		closeStore()
		if rerr != nil {
			// The task may be deleted while its runs remain; fall back to
			// the raw argument.
			id = args[0]
		}
		entries, err = runs.ListByTask(id)
		if err != nil {
			return err
		}
		if len(entries) > historyLimit {
			entries = entries[:historyLimit]
		}
	} else {
		entries, err = runs.RecentRuns(historyLimit)
		if err != nil {
			return err
		}
	}

	if len(entries) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, r := range entries {
		dur := r.FinishedAt.Sub(r.StartedAt).Round(time.Second)
		fmt.Printf("%s  %s  %s  %s (%s)\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			outcomeTag(r),
			r.Agent,
			r.TaskTitle,
			dur)
	}
	return nil
}

func outcomeTag(r history.Run) string {
	if r.ErrorClass != "" {
		return color.RedString(r.ErrorClass)
	}
	outcome := models.Outcome(r.Outcome)
	if !outcome.Valid() {
		// Runs written by other versions may carry outcomes we don't know.
		return r.Outcome
	}
	switch outcome {
	case models.OutcomeComplete:
		return color.GreenString(r.Outcome)
	case models.OutcomeBlocked:
		return color.RedString(r.Outcome)
	default:
		return color.YellowString(r.Outcome)
	}
}
