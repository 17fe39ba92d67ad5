package main

import (
	"fmt"
	"strings"

	"github.com/jarvis-agent/jarvis/internal/config"
	"github.com/jarvis-agent/jarvis/internal/scheduler"
	"github.com/jarvis-agent/jarvis/internal/store"
)

// openBacklog opens the task store for a one-shot backlog command and wraps
// it in a controller with no scheduler attached. A running engine picks the
// mutation up through its file watcher.
func openBacklog() (*scheduler.Controller, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.New(cfg.Paths.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open task store: %w", err)
	}
	return scheduler.NewController(st, nil, nil), st.Close, nil
}

// resolveTaskID expands a (possibly shortened) task id to the full one.
// Ambiguous prefixes are an error rather than a guess.
func resolveTaskID(ctrl *scheduler.Controller, id string) (string, error) {
	if _, ok := ctrl.Task(id); ok {
		return id, nil
	}

	var matches []string
	for _, t := range ctrl.Tasks() {
		if strings.HasPrefix(t.ID, id) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no task matches %q", id)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous: matches %d tasks", id, len(matches))
	}
}
