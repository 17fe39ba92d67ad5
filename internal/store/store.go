// Package store owns the canonical task list and the execution pause flag,
// persisting both to disk and absorbing external file edits.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/jarvis-agent/jarvis/pkg/models"
)

const (
	tasksFileName   = "tasks.json"
	runtimeFileName = "runtime.json"
)

// runtimeFlags is the shape of the persisted runtime-flag file.
type runtimeFlags struct {
	// IsExecutionPaused stops the scheduler from dispatching when true.
	IsExecutionPaused bool `json:"isExecutionPaused"`
}

// Store is the single owner of the persisted task file. The scheduler, the
// UI-facing controller, and the background file poller all go through the
// same mutex; every mutation persists synchronously before returning.
type Store struct {
	dir         string
	tasksPath   string
	runtimePath string

	mu      sync.RWMutex
	tasks   []models.Task
	paused  bool
	lastMod time.Time // on-disk mtime of the task file after our last read/write

	subsMu sync.Mutex
	subs   []func()

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// CreateParams carries the caller-supplied fields for a new task.
type CreateParams struct {
	Title        string
	Description  string
	Agent        string
	Priority     models.Priority
	Project      *models.Project
	ScheduledFor *time.Time
}

// New opens (or creates) the data directory, loads the persisted task list
// and pause flag, and starts the external-change watcher. A missing or
// unparseable task file falls back to the built-in seed list; startup never
// fails on bad data.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dir:         dir,
		tasksPath:   filepath.Join(dir, tasksFileName),
		runtimePath: filepath.Join(dir, runtimeFileName),
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	s.loadTasksLocked()
	s.loadRuntimeLocked()
	s.mu.Unlock()
	s.startWatch()

	return s, nil
}

// Close stops the background watcher.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

// Subscribe registers fn to run after every persisted change, including
// reloads triggered by external file edits. Callbacks run outside the store
// lock and must not block.
func (s *Store) Subscribe(fn func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify() {
	s.subsMu.Lock()
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Tasks returns a snapshot of all tasks, archived included.
func (s *Store) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Get returns the task with the given id.
func (s *Store) Get(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return models.Task{}, false
}

// Query returns non-archived tasks with the given status, sorted for
// display and dispatch: verified verification tasks first (done only), then
// priority (urgent first), then most recently updated, then most recently
// created.
func (s *Store) Query(status models.TaskStatus) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, t := range s.tasks {
		if t.Archived || t.Status != status {
			continue
		}
		out = append(out, t.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if status == models.TaskStatusDone {
			av := a.IsVerification && a.Verified
			bv := b.IsVerification && b.Verified
			if av != bv {
				return av
			}
		}
		if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
			return ar < br
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return out
}

// Create adds a new task in the scheduled state and persists it.
func (s *Store) Create(p CreateParams) models.Task {
	now := time.Now()
	task := models.Task{
		ID:           uuid.NewString(),
		Title:        p.Title,
		Description:  p.Description,
		Agent:        p.Agent,
		Status:       models.TaskStatusScheduled,
		Priority:     p.Priority,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: p.ScheduledFor,
		Project:      p.Project,
	}
	if !task.Priority.Valid() {
		task.Priority = models.PriorityMedium
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.persistTasksLocked()
	s.mu.Unlock()

	s.notify()
	return task.Clone()
}

// Update replaces the stored task with the same id and persists. The
// completed-at invariant is re-normalized on the way in so no caller can
// store a done task without a completion time or vice versa.
func (s *Store) Update(task models.Task) error {
	s.mu.Lock()
	idx := s.indexLocked(task.ID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update task %s: not found", task.ID)
	}

	if task.Status == models.TaskStatusDone {
		if task.CompletedAt == nil {
			now := time.Now()
			task.CompletedAt = &now
		}
	} else {
		task.CompletedAt = nil
	}

	s.tasks[idx] = task.Clone()
	s.persistTasksLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// Move transitions the task to the given status and persists, maintaining
// the completed-at invariant. It returns the updated task.
func (s *Store) Move(id string, status models.TaskStatus) (models.Task, error) {
	if !status.Valid() {
		return models.Task{}, fmt.Errorf("move task %s: invalid status %q", id, status)
	}

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return models.Task{}, fmt.Errorf("move task %s: not found", id)
	}

	s.tasks[idx].ApplyStatus(status, time.Now())
	moved := s.tasks[idx].Clone()
	s.persistTasksLocked()
	s.mu.Unlock()

	s.notify()
	return moved, nil
}

// Delete removes the task with the given id and persists.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("delete task %s: not found", id)
	}

	s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
	s.persistTasksLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// ArchiveAll soft-archives every task linked to the given project and
// returns how many tasks were affected.
func (s *Store) ArchiveAll(projectID string) int {
	now := time.Now()

	s.mu.Lock()
	count := 0
	for i := range s.tasks {
		t := &s.tasks[i]
		if t.Archived || t.Project == nil || t.Project.ID != projectID {
			continue
		}
		t.Archived = true
		t.UpdatedAt = now
		count++
	}
	if count > 0 {
		s.persistTasksLocked()
	}
	s.mu.Unlock()

	if count > 0 {
		s.notify()
	}
	return count
}

// IsPaused reports the persisted execution pause flag.
func (s *Store) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused persists the execution pause flag.
func (s *Store) SetPaused(paused bool) {
	s.mu.Lock()
	changed := s.paused != paused
	s.paused = paused
	if changed {
		s.persistRuntimeLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

func (s *Store) indexLocked(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// loadTasksLocked reads the persisted task file, falling back to the seed
// list when the file is missing or unparseable.
func (s *Store) loadTasksLocked() {
	data, err := os.ReadFile(s.tasksPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[store] read %s: %v, seeding defaults", s.tasksPath, err)
		}
		s.tasks = seedTasks()
		s.persistTasksLocked()
		return
	}

	var tasks []models.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		log.Printf("[store] parse %s: %v, seeding defaults", s.tasksPath, err)
		s.tasks = seedTasks()
		s.persistTasksLocked()
		return
	}

	s.tasks = tasks
	if info, err := os.Stat(s.tasksPath); err == nil {
		s.lastMod = info.ModTime()
	}
}

func (s *Store) loadRuntimeLocked() {
	data, err := os.ReadFile(s.runtimePath)
	if err != nil {
		return
	}
	var flags runtimeFlags
	if err := json.Unmarshal(data, &flags); err != nil {
		log.Printf("[store] parse %s: %v, defaulting to running", s.runtimePath, err)
		return
	}
	s.paused = flags.IsExecutionPaused
}

// persistTasksLocked writes the task list atomically, pretty-printed with
// sorted keys so external diffs stay readable. Write failures are logged
// and the in-memory state stays authoritative until the next write.
func (s *Store) persistTasksLocked() {
	data, err := encodeTasks(s.tasks)
	if err != nil {
		log.Printf("[store] encode tasks: %v", err)
		return
	}
	if err := atomicWrite(s.tasksPath, data); err != nil {
		log.Printf("[store] write %s: %v", s.tasksPath, err)
		return
	}
	if info, err := os.Stat(s.tasksPath); err == nil {
		s.lastMod = info.ModTime()
	}
}

func (s *Store) persistRuntimeLocked() {
	data, err := json.MarshalIndent(runtimeFlags{IsExecutionPaused: s.paused}, "", "  ")
	if err != nil {
		log.Printf("[store] encode runtime flags: %v", err)
		return
	}
	if err := atomicWrite(s.runtimePath, data); err != nil {
		log.Printf("[store] write %s: %v", s.runtimePath, err)
	}
}

// encodeTasks renders the task list as a pretty-printed JSON array with
// sorted object keys. Marshaling through a generic map gets the sorted-key
// behavior from encoding/json.
func encodeTasks(tasks []models.Task) ([]byte, error) {
	raw, err := json.Marshal(tasks)
	if err != nil {
		return nil, err
	}
	generic := make([]map[string]any, 0, len(tasks))
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.MarshalIndent(generic, "", "  ")
}

// atomicWrite writes data to a temp file in the same directory and renames
// it over the target so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
