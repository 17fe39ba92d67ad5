// Package notify delivers operator-facing updates to the supervisor
// agent through the gateway transport.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jarvis-agent/jarvis/internal/gateway"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

// sendTimeout bounds a single notification send so a slow gateway never
// stalls the scheduler.
const sendTimeout = 10 * time.Second

// Notification categories. Each category keeps its own supervisor
// conversation.
const (
	categoryStatus       = "status"
	categoryBlocked      = "blocked"
	categoryTransport    = "transport"
	categoryIntervention = "intervention"
)

// Notifier sends updates to the supervisor agent. All sends are
// best-effort: failures are logged, never returned, so notification
// trouble cannot stall task execution.
type Notifier struct {
	transport  gateway.Transport
	supervisor string
}

// New creates a Notifier that addresses the named supervisor agent.
func New(transport gateway.Transport, supervisor string) *Notifier {
	return &Notifier{transport: transport, supervisor: supervisor}
}

// sessionKey returns the stable conversation key for a category, so the
// supervisor sees one running thread per kind of update.
func sessionKey(category string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("jarvis/notify/"+category)).String()
}

// StatusUpdate reports how a run ended.
func (n *Notifier) StatusUpdate(ctx context.Context, task *models.Task, outcome models.Outcome, reply string) {
	msg := fmt.Sprintf("Task %q (%s) reported %s.\n\n%s",
		task.Title, task.Agent, outcome, excerpt(reply, 500))
	n.send(ctx, categoryStatus, msg)
}

// Blocked escalates a task whose agent cannot proceed on its own.
func (n *Notifier) Blocked(ctx context.Context, task *models.Task, issues []string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q (%s) is blocked and needs attention.\n", task.Title, task.Agent)
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	n.send(ctx, categoryBlocked, b.String())
}

// TransportFailure reports that a delivery attempt failed outright.
func (n *Notifier) TransportFailure(ctx context.Context, task *models.Task, cause error) {
	msg := fmt.Sprintf("Delivery to %s for task %q failed: %v", task.Agent, task.Title, cause)
	n.send(ctx, categoryTransport, msg)
}

// Intervention announces a paused fleet and points at the written report.
func (n *Notifier) Intervention(ctx context.Context, reportPath, reason string) {
	msg := fmt.Sprintf("Execution paused: %s. Report: %s", reason, reportPath)
	n.send(ctx, categoryIntervention, msg)
}

func (n *Notifier) send(ctx context.Context, category, message string) {
	if n == nil || n.transport == nil || n.supervisor == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, err := n.transport.SendAgentMessage(sctx, gateway.SendRequest{
		AgentID:    n.supervisor,
		Message:    message,
		SessionKey: sessionKey(category),
	})
	if err != nil {
		log.Printf("[notify] %s notification failed: %v", category, err)
	}
}

func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
