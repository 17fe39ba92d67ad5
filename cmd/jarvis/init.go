package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up configuration and data directories",
	Long: `Prepare jarvis for first use.

Creates the user config directory with a commented config.yaml, an agents.yaml
roster template, and the data and reports directories. Existing files are
never overwritten unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing template files")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	configPath := config.GetUserConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := writeTemplate(configPath, configTemplate); err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("Config file: %s", configPath), color.FgGreen)

	if err := writeTemplate(cfg.Paths.AgentsFile, agentsTemplate); err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("Agent roster: %s", cfg.Paths.AgentsFile), color.FgGreen)

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ReportsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	printStatus("✓", fmt.Sprintf("Data directory: %s", cfg.Paths.DataDir), color.FgGreen)

	switch {
	case cfg.Gateway.URL != "":
		printStatus("✓", "Transport: remote gateway", color.FgGreen)
	case cfg.Anthropic.UseAWSBedrock:
		printStatus("✓", "Transport: AWS Bedrock", color.FgGreen)
	default:
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			printStatus("⚠", "No ANTHROPIC_API_KEY and no gateway.url configured yet", color.FgYellow)
		} else if err := config.ValidateAPIKey(key); err != nil {
			printStatus("⚠", fmt.Sprintf("Anthropic API key: %v", err), color.FgYellow)
		} else {
			printStatus("✓", "Anthropic API key found", color.FgGreen)
		}
	}

	fmt.Printf("\n%s jarvis is ready\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit the agent roster to match your fleet:")
	fmt.Printf("     %s\n", cfg.Paths.AgentsFile)
	fmt.Println("  2. Add a task:")
	fmt.Println("     jarvis add \"your first task\" --agent <name>")
	fmt.Println("  3. Start the engine:")
	fmt.Println("     jarvis run")
	return nil
}

// writeTemplate writes content to path unless the file already exists.
func writeTemplate(path, content string) error {
	if _, err := os.Stat(path); err == nil && !initForce {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

const configTemplate = `# jarvis configuration
# Environment variables JARVIS_GATEWAY_URL, JARVIS_GATEWAY_TOKEN, and
# ANTHROPIC_API_KEY override the values here. A .jarvis.yaml in a project
# directory overrides this file.

# gateway:
#   url: wss://gateway.example.com/agents
#   token: ${JARVIS_GATEWAY_TOKEN}

# anthropic:
#   api_key: ${ANTHROPIC_API_KEY}
#   model: claude-sonnet-4-20250514
#   use_aws_bedrock: false
#   aws_region: us-west-2
#   aws_profile: default

# supervisor:
#   name: jarvis

# scheduler:
#   tick_interval: 4s
#   run_timeout: 180s
#   continue_cooldown: 120s
#   blocked_cooldown: 60s
#   external_blocked_cooldown: 1h
#   rate_limit_cooldown: 1h
#   timeout_cooldown: 60s
#   error_cooldown: 10m
#   stall_threshold: 20s

# intervention:
#   window: 24h
`

const agentsTemplate = `# jarvis agent roster
# Each agent is a named remote worker. Tasks may also name agents not listed
# here; they run with default settings.

agents:
  - name: scout
    notes: fast research and triage
  - name: builder
    thinking: true
    notes: feature work and refactoring
`
