package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a single frame write may take.
	writeWait = 10 * time.Second

	// pongWait is how long the connection may stay silent before the
	// read side declares it dead. Pongs extend the deadline.
	pongWait = 60 * time.Second

	// pingPeriod is how often keepalive pings go out. Must be shorter
	// than pongWait.
	pingPeriod = 30 * time.Second

	// maxMessageSize caps inbound frames. Agent replies are plain text
	// and comfortably fit.
	maxMessageSize = 64 * 1024
)

// Frame types exchanged with the gateway.
const (
	frameAgentMessage = "agent.message"
	frameAgentReply   = "agent.reply"
	frameError        = "error"
)

// wireFrame is the JSON envelope for every frame in both directions.
// Request frames fill the agent fields; reply frames fill Text, and
// error frames fill Code and Error.
type wireFrame struct {
	ID         string `json:"id,omitempty"`
	Type       string `json:"type"`
	AgentID    string `json:"agentId,omitempty"`
	Message    string `json:"message,omitempty"`
	SessionKey string `json:"sessionKey,omitempty"`
	Thinking   bool   `json:"thinking,omitempty"`
	Text       string `json:"text,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Client is a websocket Transport that speaks the gateway's
// request/reply framing. Replies are correlated to requests by frame id,
// so any number of sends can be in flight on one connection.
type Client struct {
	url   string
	token string

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	pending map[string]chan wireFrame
	dialing bool
	closed  bool

	// writeMu serializes data frames; the websocket allows only one
	// concurrent writer.
	writeMu sync.Mutex
}

// NewClient creates a websocket client for the gateway at url. The
// token, when set, is presented as a bearer credential during the
// handshake. No connection is made until Connect.
func NewClient(url, token string) *Client {
	return &Client{
		url:     url,
		token:   token,
		pending: make(map[string]chan wireFrame),
	}
}

// Connect dials the gateway. It is a no-op when already connected and
// returns immediately when another Connect is in flight, so callers can
// retry on every tick without stacking dials.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("gateway: client closed")
	}
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.mu.Unlock()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("gateway: dial %s: %w", c.url, err)
	}
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("gateway: client closed")
	}
	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readPump(conn)
	go c.pingLoop(conn, done)

	log.Printf("[gateway] connected to %s", c.url)
	return nil
}

// Connected reports whether a live connection is established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SendAgentMessage writes one request frame and waits for the matching
// reply. Failures reported by the gateway come back as *RequestError;
// connection loss and cancellation surface as plain errors.
func (c *Client) SendAgentMessage(ctx context.Context, req SendRequest) (*Reply, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan wireFrame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	frame := wireFrame{
		ID:         id,
		Type:       frameAgentMessage,
		AgentID:    req.AgentID,
		Message:    req.Message,
		SessionKey: req.SessionKey,
		Thinking:   req.Thinking,
	}
	if err := c.writeFrame(conn, frame); err != nil {
		c.removePending(id)
		c.teardown(conn, err)
		return nil, fmt.Errorf("gateway: write: %w", err)
	}

	select {
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("gateway: connection lost awaiting reply")
		}
		if resp.Type == frameError {
			return nil, &RequestError{Code: resp.Code, Message: resp.Error}
		}
		reply := &Reply{Text: resp.Text, SessionKey: resp.SessionKey}
		if reply.SessionKey == "" {
			reply.SessionKey = req.SessionKey
		}
		return reply, nil
	}
}

func (c *Client) writeFrame(conn *websocket.Conn, frame wireFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPump delivers inbound frames to their waiting senders. It owns
// the read side of the connection and tears the client down when the
// connection dies.
func (c *Client) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[gateway] read error: %v", err)
			}
			c.teardown(conn, err)
			return
		}

		var frame wireFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("[gateway] invalid frame: %v", err)
			continue
		}
		if frame.ID == "" {
			log.Printf("[gateway] notice from gateway: %s", frame.Type)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[frame.ID]
		if ok {
			delete(c.pending, frame.ID)
		}
		c.mu.Unlock()
		if !ok {
			log.Printf("[gateway] dropping reply for expired request %s", frame.ID)
			continue
		}
		ch <- frame
	}
}

// pingLoop keeps the connection alive. Control frames may be written
// concurrently with data frames, so no write lock is taken.
func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.teardown(conn, err)
				return
			}
		}
	}
}

func (c *Client) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// teardown drops the given connection and fails every in-flight
// request. Safe to call from multiple goroutines; only the first call
// for a given connection does the work.
func (c *Client) teardown(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = nil
	close(c.done)
	c.done = nil
	waiters := c.pending
	c.pending = make(map[string]chan wireFrame)
	c.mu.Unlock()

	conn.Close()
	for _, ch := range waiters {
		close(ch)
	}
	if cause != nil {
		log.Printf("[gateway] connection lost: %v", cause)
	}
}

// Close shuts the client down. In-flight requests fail and later sends
// return ErrNotConnected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.teardown(conn, nil)
	}
	return nil
}
