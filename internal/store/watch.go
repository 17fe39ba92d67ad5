package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

// pollInterval is how often the watcher compares on-disk modification
// times. Filesystem events make reloads faster when available; the poll is
// the contract.
const pollInterval = time.Second

// startWatch begins watching the data directory for external edits to the
// task and runtime files. A failed fsnotify setup degrades to poll-only.
func (s *Store) startWatch() {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(s.dir); err != nil {
			watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}
	s.watcher = watcher

	go s.watchLoop()
}

func (s *Store) watchLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if s.watcher != nil {
		events = s.watcher.Events
		errs = s.watcher.Errors
	}

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			switch filepath.Base(event.Name) {
			case tasksFileName:
				s.reloadTasksIfChanged()
			case runtimeFileName:
				s.reloadRuntime()
			}
		case <-errs:
			// keep watching; the poll covers missed events
		case <-ticker.C:
			s.reloadTasksIfChanged()
			s.reloadRuntime()
		}
	}
}

// reloadTasksIfChanged re-reads the task file when its modification time
// differs from the cached one. Our own writes refresh the cache under the
// store lock, so only external edits trigger a reload. An unparseable file
// mid-run keeps the in-memory list authoritative.
func (s *Store) reloadTasksIfChanged() {
	info, err := os.Stat(s.tasksPath)
	if err != nil {
		return
	}

	s.mu.Lock()
	if info.ModTime().Equal(s.lastMod) {
		s.mu.Unlock()
		return
	}

	data, err := os.ReadFile(s.tasksPath)
	if err != nil {
		s.mu.Unlock()
		log.Printf("[store] reload %s: %v", s.tasksPath, err)
		return
	}

	var tasks []models.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.lastMod = info.ModTime()
		s.mu.Unlock()
		log.Printf("[store] reload %s: %v, keeping in-memory state", s.tasksPath, err)
		return
	}

	s.tasks = tasks
	s.lastMod = info.ModTime()
	s.mu.Unlock()

	log.Printf("[store] absorbed external edit of %s (%d tasks)", tasksFileName, len(tasks))
	s.notify()
}

// reloadRuntime re-reads the pause flag so external toggles are absorbed.
func (s *Store) reloadRuntime() {
	data, err := os.ReadFile(s.runtimePath)
	if err != nil {
		return
	}
	var flags runtimeFlags
	if err := json.Unmarshal(data, &flags); err != nil {
		return
	}

	s.mu.Lock()
	changed := s.paused != flags.IsExecutionPaused
	s.paused = flags.IsExecutionPaused
	s.mu.Unlock()

	if changed {
		log.Printf("[store] absorbed external pause flag: %v", flags.IsExecutionPaused)
		s.notify()
	}
}
