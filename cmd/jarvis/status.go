package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the task board",
	Long: `Display the task backlog grouped by status.

Shows every non-archived task with its agent, priority, and age, plus the
execution pause flag. Done tasks older than a day are hidden unless --all
is given.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Include all done tasks, however old")
}

var statusOrder = []models.TaskStatus{
	models.TaskStatusInProgress,
	models.TaskStatusQueued,
	models.TaskStatusScheduled,
	models.TaskStatusDone,
}

var statusColors = map[models.TaskStatus]color.Attribute{
	models.TaskStatusInProgress: color.FgGreen,
	models.TaskStatusQueued:     color.FgYellow,
	models.TaskStatusScheduled:  color.FgCyan,
	models.TaskStatusDone:       color.FgHiBlack,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctrl, closeStore, err := openBacklog()
	if err != nil {
		return err
	}
	defer closeStore()

	if ctrl.IsPaused() {
		fmt.Printf("%s execution is paused\n\n", color.YellowString("⏸"))
	}

	total := 0
	for _, status := range statusOrder {
		tasks := ctrl.Queue(status)
		if status == models.TaskStatusDone && !statusAll {
			tasks = recentlyDone(tasks)
		}
		if len(tasks) == 0 {
			continue
		}
		total += len(tasks)

		header := color.New(statusColors[status], color.Bold)
		fmt.Printf("%s (%d)\n", header.Sprint(statusLabel(status)), len(tasks))
		for _, t := range tasks {
			printTaskLine(t)
		}
		fmt.Println()
	}

	if total == 0 {
		fmt.Println("No tasks. Add one with 'jarvis add \"<title>\" --agent <name>'.")
	}
	return nil
}

func printTaskLine(t models.Task) {
	agent := t.Agent
	if agent == "" {
		agent = color.RedString("unassigned")
	}

	details := []string{agent, formatDuration(time.Since(t.CreatedAt)) + " old"}
	if t.Status == models.TaskStatusDone && t.CompletedAt != nil {
		details = append(details, fmt.Sprintf("done %s ago", formatDuration(time.Since(*t.CompletedAt))))
	} else if t.LastEvidenceAt != nil {
		details = append(details, fmt.Sprintf("last reply %s ago", formatDuration(time.Since(*t.LastEvidenceAt))))
	}
	details = append(details, "id "+shortID(t.ID))

	project := ""
	if t.Project != nil {
		project = fmt.Sprintf(" [%s]", t.Project.Name)
	}

	fmt.Printf("  %s  %s%s  (%s)\n",
		priorityTag(t.Priority), t.Title, project, strings.Join(details, ", "))
}

func priorityTag(p models.Priority) string {
	switch p {
	case models.PriorityUrgent:
		return color.New(color.FgRed, color.Bold).Sprint("urgent")
	case models.PriorityHigh:
		return color.RedString("high")
	case models.PriorityMedium:
		return "medium"
	case models.PriorityLow:
		return color.New(color.FgHiBlack).Sprint("low")
	default:
		return string(p)
	}
}

func statusLabel(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusInProgress:
		return "In Progress"
	case models.TaskStatusQueued:
		return "Queued"
	case models.TaskStatusScheduled:
		return "Scheduled"
	case models.TaskStatusDone:
		return "Done"
	default:
		return string(s)
	}
}

// recentlyDone keeps tasks completed within the last day.
func recentlyDone(tasks []models.Task) []models.Task {
	cutoff := time.Now().Add(-24 * time.Hour)
	var out []models.Task
	for _, t := range tasks {
		if t.CompletedAt != nil && t.CompletedAt.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
