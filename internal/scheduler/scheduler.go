package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jarvis-agent/jarvis/internal/classify"
	"github.com/jarvis-agent/jarvis/internal/config"
	"github.com/jarvis-agent/jarvis/internal/gateway"
	"github.com/jarvis-agent/jarvis/internal/history"
	"github.com/jarvis-agent/jarvis/internal/notify"
	"github.com/jarvis-agent/jarvis/internal/store"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

// Transport error classes recorded in run history and used to pick
// requeue cooldowns.
const (
	errorClassRateLimit = "rate_limit"
	errorClassTimeout   = "timeout"
	errorClassTransport = "transport"
)

// Monitor inspects the task list for cross-task failure patterns. It is
// invoked after every task-list mutation and returns an operator-facing
// status line, or an empty string when nothing was detected.
type Monitor interface {
	Check(ctx context.Context) (string, error)
}

// Options wires a Scheduler.
type Options struct {
	Store     *store.Store
	Transport gateway.Transport
	Notifier  *notify.Notifier
	Roster    *config.Roster
	Monitor   Monitor
	History   *history.Store
	Config    config.SchedulerConfig
	// OnComplete fires after a task reaches done through an agent run.
	OnComplete func(models.Task)
}

// Scheduler owns the tick loop that moves tasks through
// scheduled → queued → in_progress → {done | queued+cooldown}.
// At most one run is in flight per agent name; the reservation sets
// enforcing that are private to this struct and only mutated under mu.
type Scheduler struct {
	store      *store.Store
	transport  gateway.Transport
	notifier   *notify.Notifier
	roster     *config.Roster
	monitor    Monitor
	history    *history.Store
	cfg        config.SchedulerConfig
	onComplete func(models.Task)

	// mu guards the reservation sets, cooldowns, and stall timer.
	mu         sync.Mutex
	activeRuns map[string]bool      // task ids with a run in flight
	busyAgents map[string]bool      // agent names with a run in flight
	cooldowns  map[string]time.Time // task id -> earliest next dispatch
	stallSince time.Time            // start of the current stall, zero when work flows

	// ticking drops ticks that arrive while one is still running.
	ticking atomic.Bool

	trigger chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler. The store and transport are required;
// notifier, roster, monitor, and history may be nil.
func New(opts Options) *Scheduler {
	return &Scheduler{
		store:      opts.Store,
		transport:  opts.Transport,
		notifier:   opts.Notifier,
		roster:     opts.Roster,
		monitor:    opts.Monitor,
		history:    opts.History,
		cfg:        opts.Config,
		onComplete: opts.OnComplete,
		activeRuns: make(map[string]bool),
		busyAgents: make(map[string]bool),
		cooldowns:  make(map[string]time.Time),
		trigger:    make(chan struct{}, 1),
	}
}

// Run drives the tick loop until ctx is cancelled: a fixed ticker, plus
// immediate re-evaluation on every store change and every Poke. It
// waits for in-flight runs to settle before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.store.Subscribe(func() { s.Poke() })

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	log.Printf("[scheduler] started (tick interval %s)", s.cfg.TickInterval)
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] stopping: %v", ctx.Err())
			if n := s.ActiveRuns(); n > 0 {
				log.Printf("[scheduler] waiting for %d in-flight run(s)", n)
			}
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		case <-s.trigger:
			s.tick(ctx)
		}
	}
}

// Poke asks for a tick as soon as the loop is free. Safe from any
// goroutine; redundant pokes collapse into one.
func (s *Scheduler) Poke() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// tick runs one scheduling pass. A tick that arrives while another is
// still running is dropped, never queued.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.ticking.CompareAndSwap(false, true) {
		debugLog("[scheduler] tick dropped: previous tick still running")
		return
	}
	defer s.ticking.Store(false)

	if s.store.IsPaused() {
		return
	}

	now := time.Now()
	s.normalizeBlockedTasks(now)
	s.ensureConnected(ctx)
	s.autoQueueScheduled()

	if !s.transport.Connected() {
		debugLog("[scheduler] transport not connected, holding dispatch")
		return
	}

	s.resumeInProgress(ctx, now)
	dispatched := s.dispatchQueued(ctx, now)
	s.checkStall(ctx, now, dispatched)
}

// normalizeBlockedTasks forces in_progress tasks whose last evidence
// ends on a blocked marker back to queued. This repairs tasks a process
// restart left stuck in_progress after their agent had already blocked.
func (s *Scheduler) normalizeBlockedTasks(now time.Time) {
	for _, task := range s.store.Query(models.TaskStatusInProgress) {
		if s.runActive(task.ID) {
			continue
		}
		if !endsWithBlockedMarker(task.LastEvidence) {
			continue
		}
		debugLog("[scheduler] normalizing blocked task %s back to queued", task.ID)
		s.requeue(task.ID, s.cfg.NormalizeCooldown)
	}
}

// ensureConnected kicks off a reconnect attempt without blocking the
// tick. The transport dedupes concurrent attempts.
func (s *Scheduler) ensureConnected(ctx context.Context) {
	if s.transport.Connected() {
		return
	}
	go func() {
		if err := s.transport.Connect(ctx); err != nil {
			debugLog("[scheduler] connect attempt failed: %v", err)
			return
		}
		s.Poke()
	}()
}

// autoQueueScheduled moves every non-archived scheduled task straight
// to queued. Scheduled exists for display semantics only.
func (s *Scheduler) autoQueueScheduled() {
	for _, task := range s.store.Query(models.TaskStatusScheduled) {
		if _, err := s.store.Move(task.ID, models.TaskStatusQueued); err != nil {
			log.Printf("[scheduler] auto-queue %s: %v", task.ID, err)
		}
	}
}

// resumeInProgress re-issues kickoffs for in_progress tasks that have
// no live run, typically after a restart.
func (s *Scheduler) resumeInProgress(ctx context.Context, now time.Time) {
	for _, task := range s.store.Query(models.TaskStatusInProgress) {
		if task.Agent == "" {
			continue
		}
		if !s.cooldownExpired(task.ID, now) {
			continue
		}
		if !s.reserve(task.ID, task.Agent) {
			continue
		}
		debugLog("[scheduler] resuming in-progress task %s on %s", task.ID, task.Agent)
		s.spawnRun(ctx, task)
	}
}

// dispatchQueued starts runs for eligible queued tasks in store order
// (priority, then recency). Reports whether anything was dispatched.
func (s *Scheduler) dispatchQueued(ctx context.Context, now time.Time) bool {
	dispatched := false
	for _, task := range s.store.Query(models.TaskStatusQueued) {
		if task.Agent == "" {
			continue
		}
		if !s.cooldownExpired(task.ID, now) {
			continue
		}
		if s.dispatch(ctx, task) {
			dispatched = true
		}
	}
	return dispatched
}

// dispatch reserves the task's agent, moves it to in_progress, and
// spawns its run. Returns false when the agent or task is already taken.
func (s *Scheduler) dispatch(ctx context.Context, task models.Task) bool {
	if !s.reserve(task.ID, task.Agent) {
		return false
	}
	moved, err := s.store.Move(task.ID, models.TaskStatusInProgress)
	if err != nil {
		log.Printf("[scheduler] dispatch %s: %v", task.ID, err)
		s.release(task.ID, task.Agent)
		return false
	}
	debugLog("[scheduler] dispatching task %s to %s", moved.ID, moved.Agent)
	s.spawnRun(ctx, moved)
	return true
}

// checkStall is the dead-man switch: when the queue has work but
// nothing is running and nothing got dispatched, a stall timer starts;
// once it exceeds the threshold the highest-priority assigned task is
// force-dispatched with its cooldown ignored, guaranteeing forward
// progress even when every task cooled down at once.
func (s *Scheduler) checkStall(ctx context.Context, now time.Time, dispatched bool) {
	queued := s.store.Query(models.TaskStatusQueued)
	inProgress := s.store.Query(models.TaskStatusInProgress)

	s.mu.Lock()
	active := len(s.activeRuns)
	s.mu.Unlock()

	stalled := len(queued) > 0 && len(inProgress) == 0 && active == 0 && !dispatched
	if !stalled {
		s.mu.Lock()
		s.stallSince = time.Time{}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.stallSince.IsZero() {
		s.stallSince = now
	}
	elapsed := now.Sub(s.stallSince)
	s.mu.Unlock()

	if elapsed < s.cfg.StallThreshold {
		return
	}

	for _, task := range queued {
		if task.Agent == "" {
			continue
		}
		log.Printf("[scheduler] dead-man switch: force-dispatching %s after %s stall", task.ID, elapsed.Round(time.Second))
		s.clearCooldown(task.ID)
		if s.dispatch(ctx, task) {
			s.mu.Lock()
			s.stallSince = time.Time{}
			s.mu.Unlock()
		}
		return
	}
}

// reserve atomically claims a task id and its agent for one run.
func (s *Scheduler) reserve(taskID, agent string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRuns[taskID] || s.busyAgents[agent] {
		return false
	}
	s.activeRuns[taskID] = true
	s.busyAgents[agent] = true
	return true
}

func (s *Scheduler) release(taskID, agent string) {
	s.mu.Lock()
	delete(s.activeRuns, taskID)
	delete(s.busyAgents, agent)
	s.mu.Unlock()
}

func (s *Scheduler) runActive(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRuns[taskID]
}

// ActiveRuns returns how many runs are currently in flight.
func (s *Scheduler) ActiveRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeRuns)
}

func (s *Scheduler) setCooldown(taskID string, d time.Duration) {
	s.mu.Lock()
	s.cooldowns[taskID] = time.Now().Add(d)
	s.mu.Unlock()
}

func (s *Scheduler) clearCooldown(taskID string) {
	s.mu.Lock()
	delete(s.cooldowns, taskID)
	s.mu.Unlock()
}

func (s *Scheduler) cooldownExpired(taskID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.cooldowns[taskID]
	return !ok || !now.Before(until)
}

// spawnRun executes one task run on its own goroutine. Runs never kill
// the scheduler: a panic is logged and the task ends up queued with the
// generic error cooldown like any other failure.
func (s *Scheduler) spawnRun(ctx context.Context, task models.Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.Poke()
		defer s.release(task.ID, task.Agent)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[scheduler] run for task %s panicked: %v", task.ID, r)
				s.requeue(task.ID, s.cfg.ErrorCooldown)
			}
		}()
		s.runTask(ctx, task)
	}()
}

// runTask performs one exchange with the task's agent and applies the
// outcome. The transport call races a run timeout; the slower side is
// cancelled.
func (s *Scheduler) runTask(ctx context.Context, task models.Task) {
	started := time.Now()

	sessionKey := task.SessionKey
	if sessionKey == "" {
		sessionKey = sessionKeyFor(task.Agent, task.ID)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	debugLog("[scheduler] kickoff task=%s agent=%s session=%s", task.ID, task.Agent, sessionKey)
	reply, err := s.transport.SendAgentMessage(runCtx, gateway.SendRequest{
		AgentID:    task.Agent,
		Message:    kickoffMessage(task),
		SessionKey: sessionKey,
		Thinking:   s.roster.Thinking(task.Agent),
	})
	finished := time.Now()

	if err != nil {
		s.handleTransportError(ctx, task, sessionKey, err, started, finished)
		return
	}
	if reply.SessionKey != "" {
		sessionKey = reply.SessionKey
	}
	s.handleReply(ctx, task, sessionKey, reply.Text, started, finished)
}

// handleReply records evidence, reports to the supervisor, classifies
// the outcome, and transitions the task.
func (s *Scheduler) handleReply(ctx context.Context, task models.Task, sessionKey, text string, started, finished time.Time) {
	current, ok := s.store.Get(task.ID)
	if !ok {
		debugLog("[scheduler] task %s vanished mid-run, dropping reply", task.ID)
		return
	}
	current.SessionKey = sessionKey
	current.RecordEvidence(text, finished)
	if err := s.store.Update(current); err != nil {
		log.Printf("[scheduler] record evidence for %s: %v", task.ID, err)
	}

	outcome := classify.Outcome(text)
	s.notifier.StatusUpdate(ctx, &current, outcome, text)

	switch outcome {
	case models.OutcomeComplete:
		s.clearCooldown(task.ID)
		done, err := s.store.Move(task.ID, models.TaskStatusDone)
		if err != nil {
			log.Printf("[scheduler] complete %s: %v", task.ID, err)
			break
		}
		log.Printf("[scheduler] task %s completed by %s", done.ID, done.Agent)
		if s.onComplete != nil {
			s.onComplete(done)
		}
	case models.OutcomeBlocked:
		cooldown := s.cfg.BlockedCooldown
		if classify.IsExternalBlocker(text) {
			cooldown = s.cfg.ExternalBlockedCooldown
		}
		s.requeue(task.ID, cooldown)
		s.notifier.Blocked(ctx, &current, classify.Issues(text))
	default:
		s.requeue(task.ID, s.cfg.ContinueCooldown)
	}

	s.recordRun(history.Run{
		TaskID:     task.ID,
		TaskTitle:  task.Title,
		Agent:      task.Agent,
		SessionKey: sessionKey,
		Outcome:    string(outcome),
		Evidence:   text,
		StartedAt:  started,
		FinishedAt: finished,
	})
	s.checkInterventions(ctx)
}

// handleTransportError requeues the task with a cooldown picked by
// error class. Transport trouble is never fatal.
func (s *Scheduler) handleTransportError(ctx context.Context, task models.Task, sessionKey string, cause error, started, finished time.Time) {
	class := errorClass(cause)
	debugLog("[scheduler] task %s transport failure (%s): %v", task.ID, class, cause)

	if current, ok := s.store.Get(task.ID); ok {
		current.SessionKey = sessionKey
		current.RecordEvidence(fmt.Sprintf("transport failure: %v", cause), finished)
		if err := s.store.Update(current); err != nil {
			log.Printf("[scheduler] record failure for %s: %v", task.ID, err)
		}
		s.notifier.TransportFailure(ctx, &current, cause)
	}

	cooldown := s.cfg.ErrorCooldown
	switch class {
	case errorClassRateLimit:
		cooldown = s.cfg.RateLimitCooldown
	case errorClassTimeout:
		cooldown = s.cfg.TimeoutCooldown
	}
	s.requeue(task.ID, cooldown)

	s.recordRun(history.Run{
		TaskID:     task.ID,
		TaskTitle:  task.Title,
		Agent:      task.Agent,
		SessionKey: sessionKey,
		ErrorClass: class,
		Evidence:   fmt.Sprintf("transport failure: %v", cause),
		StartedAt:  started,
		FinishedAt: finished,
	})
	s.checkInterventions(ctx)
}

// requeue moves the task back to queued and arms its cooldown.
func (s *Scheduler) requeue(taskID string, cooldown time.Duration) {
	if _, err := s.store.Move(taskID, models.TaskStatusQueued); err != nil {
		log.Printf("[scheduler] requeue %s: %v", taskID, err)
		return
	}
	s.setCooldown(taskID, cooldown)
}

func (s *Scheduler) recordRun(run history.Run) {
	if err := s.history.RecordRun(run); err != nil {
		log.Printf("[scheduler] record run for %s: %v", run.TaskID, err)
	}
}

func (s *Scheduler) checkInterventions(ctx context.Context) {
	if s.monitor == nil {
		return
	}
	status, err := s.monitor.Check(ctx)
	if err != nil {
		log.Printf("[scheduler] intervention check: %v", err)
		return
	}
	if status != "" {
		debugLog("[scheduler] intervention: %s", status)
	}
}

// errorClass buckets a transport failure for cooldown selection.
func errorClass(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return errorClassTimeout
	}
	text := err.Error()
	switch {
	case classify.IsRateLimitSignature(text):
		return errorClassRateLimit
	case classify.IsTimeoutSignature(text):
		return errorClassTimeout
	default:
		return errorClassTransport
	}
}

// sessionKeyFor derives the stable conversation key for an agent/task
// pair. Deterministic so a restart reuses the same conversation.
func sessionKeyFor(agent, taskID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("jarvis/session/"+agent+"/"+taskID)).String()
}

func endsWithBlockedMarker(evidence string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(evidence))
	return strings.HasSuffix(trimmed, models.MarkerBlocked)
}

// kickoffMessage builds the structured prompt for one run. The closing
// instruction pins the reply format the classifier depends on.
func kickoffMessage(task models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are working the task %q (priority: %s).\n", task.Title, task.Priority)
	if task.Description != "" {
		fmt.Fprintf(&b, "\nDetails:\n%s\n", task.Description)
	}
	b.WriteString("\nWork the task now and report what you actually did.")
	b.WriteString(" End your reply with exactly one of these markers on its own line:\n")
	fmt.Fprintf(&b, "%s - the task is fully done\n", models.OutcomeComplete.Marker())
	fmt.Fprintf(&b, "%s - progress was made but work remains\n", models.OutcomeContinue.Marker())
	fmt.Fprintf(&b, "%s - you cannot proceed without outside help\n", models.OutcomeBlocked.Marker())
	return b.String()
}
