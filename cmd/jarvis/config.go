package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show resolved configuration",
	Long: `Display the configuration the engine would run with, after merging
defaults, the user config, the project .jarvis.yaml, and environment
variables. Secrets are masked.

With a key argument, prints just that value.

Configuration lives at ` + "`~/.config/jarvis/config.yaml`" + `; project
overrides go in .jarvis.yaml.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 1 {
			value, err := configValue(cfg, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(value)
			return
		}

		for _, key := range configKeys {
			value, _ := configValue(cfg, key)
			fmt.Printf("%s: %s\n", key, value)
		}
	},
}

var configKeys = []string{
	"gateway.url",
	"gateway.token",
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.use_aws_bedrock",
	"anthropic.aws_region",
	"anthropic.aws_profile",
	"paths.data_dir",
	"paths.reports_dir",
	"paths.history_db",
	"paths.agents_file",
	"scheduler.tick_interval",
	"scheduler.run_timeout",
	"scheduler.continue_cooldown",
	"scheduler.blocked_cooldown",
	"scheduler.external_blocked_cooldown",
	"scheduler.rate_limit_cooldown",
	"scheduler.timeout_cooldown",
	"scheduler.error_cooldown",
	"scheduler.stall_threshold",
	"scheduler.normalize_cooldown",
	"supervisor.name",
	"intervention.window",
}

// configValue retrieves a configuration value by dot-notation key.
func configValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "gateway.url":
		return orUnset(cfg.Gateway.URL), nil
	case "gateway.token":
		return config.MaskSecret(cfg.Gateway.Token), nil
	case "anthropic.api_key":
		masked := config.MaskSecret(cfg.Anthropic.APIKey)
		if src := config.GetAPIKeySource(cfg); src != config.KeySourceNone {
			return fmt.Sprintf("%s (from %s)", masked, src), nil
		}
		return masked, nil
	case "anthropic.model":
		return orUnset(cfg.Anthropic.Model), nil
	case "anthropic.use_aws_bedrock":
		return fmt.Sprintf("%t", cfg.Anthropic.UseAWSBedrock), nil
	case "anthropic.aws_region":
		return orUnset(cfg.Anthropic.AWSRegion), nil
	case "anthropic.aws_profile":
		return orUnset(cfg.Anthropic.AWSProfile), nil
	case "paths.data_dir":
		return cfg.Paths.DataDir, nil
	case "paths.reports_dir":
		return cfg.Paths.ReportsDir, nil
	case "paths.history_db":
		return cfg.Paths.HistoryDB, nil
	case "paths.agents_file":
		return cfg.Paths.AgentsFile, nil
	case "scheduler.tick_interval":
		return cfg.Scheduler.TickInterval.String(), nil
	case "scheduler.run_timeout":
		return cfg.Scheduler.RunTimeout.String(), nil
	case "scheduler.continue_cooldown":
		return cfg.Scheduler.ContinueCooldown.String(), nil
	case "scheduler.blocked_cooldown":
		return cfg.Scheduler.BlockedCooldown.String(), nil
	case "scheduler.external_blocked_cooldown":
		return cfg.Scheduler.ExternalBlockedCooldown.String(), nil
	case "scheduler.rate_limit_cooldown":
		return cfg.Scheduler.RateLimitCooldown.String(), nil
	case "scheduler.timeout_cooldown":
		return cfg.Scheduler.TimeoutCooldown.String(), nil
	case "scheduler.error_cooldown":
		return cfg.Scheduler.ErrorCooldown.String(), nil
	case "scheduler.stall_threshold":
		return cfg.Scheduler.StallThreshold.String(), nil
	case "scheduler.normalize_cooldown":
		return cfg.Scheduler.NormalizeCooldown.String(), nil
	case "supervisor.name":
		return cfg.Supervisor.Name, nil
	case "intervention.window":
		return cfg.Intervention.Window.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
