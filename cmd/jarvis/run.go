package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jarvis-agent/jarvis/internal/config"
	"github.com/jarvis-agent/jarvis/internal/gateway"
	"github.com/jarvis-agent/jarvis/internal/history"
	"github.com/jarvis-agent/jarvis/internal/intervention"
	"github.com/jarvis-agent/jarvis/internal/notify"
	"github.com/jarvis-agent/jarvis/internal/scheduler"
	"github.com/jarvis-agent/jarvis/internal/store"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

var runDebug bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the orchestration engine",
	Long: `Start the engine: the tick loop, the agent transport, and the
intervention monitor. Runs until interrupted.

The engine dispatches queued tasks to their agents (one run per agent at a
time), classifies replies, requeues with cooldowns, records run history, and
notifies the supervisor agent. Backlog changes made while it runs, whether
through this process or another jarvis command, are picked up automatically.

The transport is chosen by configuration: a gateway.url routes messages
through the remote agent gateway over a websocket; without one, messages go
straight to the Anthropic API (or AWS Bedrock with anthropic.use_aws_bedrock).`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Write a scheduler debug log under the data directory")
}

func runEngine(cmd *cobra.Command, args []string) (retErr error) {
	// A panic anywhere in wiring should come back as an error, not a crash
	// with half-initialized state on disk.
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in engine startup: %v", r)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer st.Close()

	roster, err := config.LoadRoster(cfg.Paths.AgentsFile)
	if err != nil {
		return fmt.Errorf("load agent roster: %w", err)
	}

	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer transport.Close()

	runs, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		// The engine is fully functional without run history.
		log.Printf("[jarvis] run history unavailable: %v", err)
		runs = nil
	} else {
		defer runs.Close()
	}

	notifier := notify.New(transport, cfg.Supervisor.Name)
	monitor := intervention.New(st, notifier, cfg.Paths.ReportsDir, cfg.Paths.DataDir, cfg.Intervention.Window)

	if runDebug {
		logger := scheduler.NewDebugLoggerForData(cfg.Paths.DataDir)
		scheduler.SetDebugLogger(logger)
		defer logger.Close()
	}

	sched := scheduler.New(scheduler.Options{
		Store:     st,
		Transport: transport,
		Notifier:  notifier,
		Roster:    roster,
		Monitor:   monitor,
		History:   runs,
		Config:    cfg.Scheduler,
		OnComplete: func(task models.Task) {
			log.Printf("[jarvis] %s task complete: %s", color.GreenString("✓"), task.Title)
		},
	})

	printEngineBanner(cfg, st, runs)

	if err := transport.Connect(ctx); err != nil {
		// Not fatal: the scheduler redials on every tick until it sticks.
		log.Printf("[jarvis] transport not ready yet: %v", err)
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if at, ok := transport.(*gateway.AnthropicTransport); ok {
		usage := at.Usage()
		if calls := usage.Calls(); calls > 0 {
			in, out := usage.Total()
			log.Printf("[jarvis] anthropic usage: %d calls, %d input / %d output tokens, ~$%.2f", calls, in, out, usage.Cost())
		}
	}
	fmt.Println("jarvis stopped.")
	return nil
}

// buildTransport picks the agent transport from configuration: the remote
// gateway when a URL is set, the direct Anthropic client otherwise.
func buildTransport(ctx context.Context, cfg *config.Config) (gateway.Transport, error) {
	if cfg.Gateway.URL != "" {
		return gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.Token), nil
	}

	tcfg := gateway.AnthropicConfig{
		Model:         cfg.Anthropic.Model,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !tcfg.UseAWSBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		tcfg.APIKey = key
	}
	return gateway.NewAnthropicTransport(ctx, tcfg)
}

func printEngineBanner(cfg *config.Config, st *store.Store, runs *history.Store) {
	tasks := st.Tasks()
	active := 0
	for _, t := range tasks {
		if !t.Archived {
			active++
		}
	}

	fmt.Printf("jarvis engine starting\n")
	fmt.Printf("  data dir:   %s\n", cfg.Paths.DataDir)
	fmt.Printf("  supervisor: %s\n", cfg.Supervisor.Name)
	if cfg.Gateway.URL != "" {
		fmt.Printf("  transport:  gateway %s\n", cfg.Gateway.URL)
	} else if cfg.Anthropic.UseAWSBedrock {
		fmt.Printf("  transport:  anthropic via AWS Bedrock (%s)\n", cfg.Anthropic.AWSRegion)
	} else {
		fmt.Printf("  transport:  anthropic API\n")
	}
	if path := runs.Path(); path != "" {
		fmt.Printf("  history:    %s\n", path)
	}
	fmt.Printf("  tasks:      %d active\n", active)
	if st.IsPaused() {
		fmt.Printf("  %s execution is paused; use 'jarvis resume' to unpause\n", color.YellowString("note:"))
	}
	fmt.Println()
}
