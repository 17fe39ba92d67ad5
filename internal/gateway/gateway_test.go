package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/gorilla/websocket"
)

// fakeGateway is an in-process websocket server that answers
// agent.message frames according to a scripted handler. Returning a
// frame with an empty Type swallows the request without replying.
type fakeGateway struct {
	upgrader websocket.Upgrader
	handle   func(frame wireFrame) wireFrame

	mu     sync.Mutex
	auths  []string
	frames []wireFrame
	conns  []*websocket.Conn
}

// closeConns severs every live websocket connection. httptest's
// CloseClientConnections does not reach hijacked connections, so the
// fake gateway has to drop them itself.
func (g *fakeGateway) closeConns() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		c.Close()
	}
	g.conns = nil
}

func newFakeGateway(t *testing.T, handle func(wireFrame) wireFrame) (*fakeGateway, string) {
	t.Helper()
	g := &fakeGateway{handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(srv.Close)
	return g, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.auths = append(g.auths, r.Header.Get("Authorization"))
	g.mu.Unlock()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	g.mu.Lock()
	g.conns = append(g.conns, conn)
	g.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wireFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		g.mu.Lock()
		g.frames = append(g.frames, frame)
		g.mu.Unlock()

		resp := g.handle(frame)
		if resp.Type == "" {
			continue
		}
		out, _ := json.Marshal(resp)
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

func (g *fakeGateway) lastAuth() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.auths) == 0 {
		return ""
	}
	return g.auths[len(g.auths)-1]
}

func (g *fakeGateway) lastFrame() wireFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.frames) == 0 {
		return wireFrame{}
	}
	return g.frames[len(g.frames)-1]
}

func echoHandler(frame wireFrame) wireFrame {
	return wireFrame{
		ID:         frame.ID,
		Type:       frameAgentReply,
		Text:       "ack from " + frame.AgentID,
		SessionKey: frame.SessionKey,
	}
}

func waitDisconnected(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("client still connected after server dropped it")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClient_RoundTrip(t *testing.T) {
	gw, url := newFakeGateway(t, echoHandler)

	c := NewClient(url, "secret-token")
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.Connected() {
		t.Fatal("connected before Connect")
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.Connected() {
		t.Fatal("not connected after Connect")
	}

	reply, err := c.SendAgentMessage(ctx, SendRequest{
		AgentID:    "scout",
		Message:    "status report please",
		SessionKey: "sess-1",
		Thinking:   true,
	})
	if err != nil {
		t.Fatalf("SendAgentMessage: %v", err)
	}
	if reply.Text != "ack from scout" {
		t.Errorf("reply text = %q", reply.Text)
	}
	if reply.SessionKey != "sess-1" {
		t.Errorf("session key = %q, want sess-1", reply.SessionKey)
	}

	if got := gw.lastAuth(); got != "Bearer secret-token" {
		t.Errorf("auth header = %q", got)
	}
	sent := gw.lastFrame()
	if sent.Type != frameAgentMessage || !sent.Thinking || sent.Message != "status report please" {
		t.Errorf("request frame = %+v", sent)
	}
	if sent.ID == "" {
		t.Error("request frame missing correlation id")
	}
}

func TestClient_SendBeforeConnect(t *testing.T) {
	_, url := newFakeGateway(t, echoHandler)
	c := NewClient(url, "")
	defer c.Close()

	_, err := c.SendAgentMessage(context.Background(), SendRequest{AgentID: "scout"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	_, url := newFakeGateway(t, echoHandler)
	c := NewClient(url, "")
	defer c.Close()

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if !c.Connected() {
		t.Fatal("not connected")
	}
}

func TestClient_GatewayError(t *testing.T) {
	_, url := newFakeGateway(t, func(frame wireFrame) wireFrame {
		return wireFrame{
			ID:    frame.ID,
			Type:  frameError,
			Code:  "rate_limited",
			Error: "too many requests",
		}
	})
	c := NewClient(url, "")
	defer c.Close()

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err := c.SendAgentMessage(ctx, SendRequest{AgentID: "scout", Message: "go"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Code != "rate_limited" {
		t.Errorf("code = %q", reqErr.Code)
	}
	if !strings.Contains(err.Error(), "rate_limited") || !strings.Contains(err.Error(), "too many requests") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestClient_ContextDeadline(t *testing.T) {
	_, url := newFakeGateway(t, func(wireFrame) wireFrame {
		return wireFrame{} // never reply
	})
	c := NewClient(url, "")
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.SendAgentMessage(ctx, SendRequest{AgentID: "scout", Message: "go"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestClient_ConnectionLossFailsInflight(t *testing.T) {
	gw := &fakeGateway{handle: func(wireFrame) wireFrame {
		return wireFrame{} // hold the request open
	}}
	srv := httptest.NewServer(http.HandlerFunc(gw.serve))
	t.Cleanup(srv.Close)

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "")
	defer c.Close()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendAgentMessage(context.Background(), SendRequest{AgentID: "scout", Message: "go"})
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	gw.closeConns()

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "connection lost") {
			t.Fatalf("err = %v, want connection lost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send did not fail after connection loss")
	}
	waitDisconnected(t, c)
}

func TestClient_ReconnectAfterLoss(t *testing.T) {
	gw := &fakeGateway{handle: echoHandler}
	srv := httptest.NewServer(http.HandlerFunc(gw.serve))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := NewClient(url, "")
	defer c.Close()
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	gw.closeConns()
	waitDisconnected(t, c)

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	reply, err := c.SendAgentMessage(ctx, SendRequest{AgentID: "scout", Message: "again"})
	if err != nil {
		t.Fatalf("send after reconnect: %v", err)
	}
	if reply.Text != "ack from scout" {
		t.Errorf("reply text = %q", reply.Text)
	}
}

func TestClient_CloseIsFinal(t *testing.T) {
	_, url := newFakeGateway(t, echoHandler)
	c := NewClient(url, "")

	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if c.Connected() {
		t.Fatal("connected after Close")
	}
	if _, err := c.SendAgentMessage(ctx, SendRequest{AgentID: "scout"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after close: %v, want ErrNotConnected", err)
	}
	if err := c.Connect(ctx); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Errorf("Connect after Close: %v, want closed error", err)
	}
}

func TestRequestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  RequestError
		want string
	}{
		{"with message", RequestError{Code: "agent_unavailable", Message: "scout is offline"}, "gateway: request failed: agent_unavailable: scout is offline"},
		{"code only", RequestError{Code: "timeout"}, "gateway: request failed: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	got := translateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514)
	if got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("translated = %q", got)
	}
	custom := anthropic.Model("us.anthropic.custom-v1:0")
	if translateModelForBedrock(custom) != custom {
		t.Error("unknown model should pass through unchanged")
	}
}

func TestNewAnthropicTransport_RequiresKey(t *testing.T) {
	_, err := NewAnthropicTransport(context.Background(), AnthropicConfig{})
	if err == nil || !strings.Contains(err.Error(), "API key") {
		t.Fatalf("err = %v, want API key error", err)
	}
}

func TestAnthropicTransport_AlwaysConnected(t *testing.T) {
	tr, err := NewAnthropicTransport(context.Background(), AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("NewAnthropicTransport: %v", err)
	}
	if !tr.Connected() {
		t.Error("direct transport should report connected")
	}
	if err := tr.Connect(context.Background()); err != nil {
		t.Errorf("Connect: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestAnthropicTransport_HistoryTrimsToPairs(t *testing.T) {
	tr, err := NewAnthropicTransport(context.Background(), AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("NewAnthropicTransport: %v", err)
	}

	for i := 0; i < historyLimit; i++ {
		tr.remember("sess", "ask", "answer")
	}
	turns := tr.history("sess")
	if len(turns) != historyLimit {
		t.Fatalf("history length = %d, want %d", len(turns), historyLimit)
	}
	if turns[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("first kept turn role = %q, want user", turns[0].Role)
	}
	if turns[len(turns)-1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("last kept turn role = %q, want assistant", turns[len(turns)-1].Role)
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1000, 500)
	tr.Add(200, 100)

	in, out := tr.Total()
	if in != 1200 || out != 600 {
		t.Errorf("Total() = %d, %d", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("Calls() = %d", tr.Calls())
	}
	if tr.Cost() <= 0 {
		t.Errorf("Cost() = %f, want positive", tr.Cost())
	}
}
