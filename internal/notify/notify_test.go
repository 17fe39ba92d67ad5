package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarvis-agent/jarvis/internal/gateway"
	"github.com/jarvis-agent/jarvis/pkg/models"
)

type fakeTransport struct {
	mu   sync.Mutex
	reqs []gateway.SendRequest
	err  error
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Connected() bool                   { return true }
func (f *fakeTransport) Close() error                      { return nil }

func (f *fakeTransport) SendAgentMessage(ctx context.Context, req gateway.SendRequest) (*gateway.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Reply{Text: "ok", SessionKey: req.SessionKey}, nil
}

func (f *fakeTransport) sent() []gateway.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.SendRequest, len(f.reqs))
	copy(out, f.reqs)
	return out
}

func sampleTask() *models.Task {
	now := time.Now()
	return &models.Task{
		ID:        "t-1",
		Title:     "Fix login flow",
		Agent:     "scout",
		Status:    models.TaskStatusInProgress,
		Priority:  models.PriorityHigh,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNotifier_AddressesSupervisor(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, "jarvis")

	n.StatusUpdate(context.Background(), sampleTask(), models.OutcomeContinue, "made progress on the parser")

	reqs := ft.sent()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	if reqs[0].AgentID != "jarvis" {
		t.Errorf("agent = %q, want jarvis", reqs[0].AgentID)
	}
	if !strings.Contains(reqs[0].Message, "Fix login flow") {
		t.Errorf("message missing task title: %q", reqs[0].Message)
	}
	if !strings.Contains(reqs[0].Message, "continue") {
		t.Errorf("message missing outcome: %q", reqs[0].Message)
	}
}

func TestNotifier_StableSessionKeyPerCategory(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, "jarvis")
	ctx := context.Background()

	n.StatusUpdate(ctx, sampleTask(), models.OutcomeComplete, "done")
	n.StatusUpdate(ctx, sampleTask(), models.OutcomeContinue, "more")
	n.Blocked(ctx, sampleTask(), []string{"needs credentials"})

	reqs := ft.sent()
	if len(reqs) != 3 {
		t.Fatalf("sent %d requests, want 3", len(reqs))
	}
	if reqs[0].SessionKey != reqs[1].SessionKey {
		t.Error("status updates should share one session")
	}
	if reqs[0].SessionKey == reqs[2].SessionKey {
		t.Error("blocked updates should use their own session")
	}
	if reqs[2].SessionKey == "" {
		t.Error("session key should never be empty")
	}
}

func TestNotifier_BlockedListsIssues(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, "jarvis")

	n.Blocked(context.Background(), sampleTask(), []string{
		"needs permission to access the billing API",
		"staging credentials expired",
	})

	reqs := ft.sent()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	msg := reqs[0].Message
	if !strings.Contains(msg, "- needs permission to access the billing API") ||
		!strings.Contains(msg, "- staging credentials expired") {
		t.Errorf("message missing issues:\n%s", msg)
	}
}

func TestNotifier_TransportFailureIncludesCause(t *testing.T) {
	ft := &fakeTransport{}
	n := New(ft, "jarvis")

	n.TransportFailure(context.Background(), sampleTask(), errors.New("dial tcp: connection refused"))

	reqs := ft.sent()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].Message, "connection refused") {
		t.Errorf("message missing cause: %q", reqs[0].Message)
	}
}

func TestNotifier_SendErrorsAreSwallowed(t *testing.T) {
	ft := &fakeTransport{err: errors.New("gateway down")}
	n := New(ft, "jarvis")

	// Must not panic or propagate.
	n.StatusUpdate(context.Background(), sampleTask(), models.OutcomeComplete, "done")
	n.Intervention(context.Background(), "/tmp/report.md", "rate-limit storm across 3 tasks")

	if len(ft.sent()) != 2 {
		t.Fatalf("sends should still be attempted")
	}
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier
	n.StatusUpdate(context.Background(), sampleTask(), models.OutcomeComplete, "done")

	n = New(nil, "jarvis")
	n.Blocked(context.Background(), sampleTask(), nil)

	n = New(&fakeTransport{}, "")
	n.TransportFailure(context.Background(), sampleTask(), errors.New("x"))
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("a", 600)
	got := excerpt(long, 500)
	if len([]rune(got)) != 503 {
		t.Errorf("excerpt length = %d, want 503", len([]rune(got)))
	}
	if excerpt("short", 500) != "short" {
		t.Error("short text should pass through")
	}
}
