package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/internal/config"
	"github.com/jarvis-agent/jarvis/internal/store"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent roster",
	Long: `List the agents from the roster file along with their settings and
current workload. Tasks may be assigned to agents not listed here; they run
with default settings and show up at the bottom.`,
	Args: cobra.NoArgs,
	RunE: runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roster, err := config.LoadRoster(cfg.Paths.AgentsFile)
	if err != nil {
		return fmt.Errorf("load agent roster: %w", err)
	}
	agents := roster.Agents()

	st, err := store.New(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer st.Close()

	workload := make(map[string]int)
	for _, t := range st.Tasks() {
		if !t.Archived && t.Status != models.TaskStatusDone {
			workload[t.Agent]++
		}
	}

	for _, a := range agents {
		thinking := ""
		if a.Thinking {
			thinking = " " + color.CyanString("[thinking]")
		}
		fmt.Printf("%s%s: %d open task(s)\n", a.Name, thinking, workload[a.Name])
		if a.Notes != "" {
			fmt.Printf("  %s\n", a.Notes)
		}
	}

	var unlisted []string
	for agent := range workload {
		if agent != "" && !roster.Has(agent) {
			unlisted = append(unlisted, agent)
		}
	}
	sort.Strings(unlisted)
	for _, name := range unlisted {
		fmt.Printf("%s: %d open task(s) %s\n",
			name, workload[name], color.New(color.FgHiBlack).Sprint("(not in roster)"))
	}

	if len(agents) == 0 && len(unlisted) == 0 {
		fmt.Printf("No agents in %s. Run 'jarvis init' to create a template.\n", cfg.Paths.AgentsFile)
	}
	return nil
}
