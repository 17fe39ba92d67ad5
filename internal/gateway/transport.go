// Package gateway delivers messages to fleet agents and returns their
// replies. The primary transport is a websocket connection to a remote
// agent gateway; a direct Anthropic API transport is available for
// fleets that run without one.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConnected is returned by transports that require an established
// connection before messages can be delivered.
var ErrNotConnected = errors.New("gateway: not connected")

// SendRequest describes one message to deliver to an agent.
type SendRequest struct {
	// AgentID names the agent behind the gateway that should receive
	// the message.
	AgentID string
	// Message is the full prompt text to deliver.
	Message string
	// SessionKey pins the exchange to a stable conversation so repeated
	// sends for the same task land in the same context.
	SessionKey string
	// Thinking requests extended reasoning for agents configured for it.
	Thinking bool
}

// Reply is an agent's answer to a single SendRequest.
type Reply struct {
	// Text is the agent's full reply body.
	Text string
	// SessionKey echoes the conversation the reply belongs to.
	SessionKey string
}

// RequestError is a structured failure reported by the remote gateway
// for a specific request, as opposed to a transport-level failure.
type RequestError struct {
	// Code is the gateway's machine-readable failure class,
	// e.g. "rate_limited" or "agent_unavailable".
	Code string
	// Message is the human-readable detail.
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: request failed: %s", e.Code)
	}
	return fmt.Sprintf("gateway: request failed: %s: %s", e.Code, e.Message)
}

// Transport delivers messages to agents. Implementations must be safe
// for concurrent use.
type Transport interface {
	// Connect establishes the transport. It is a no-op when already
	// connected. Implementations that need no connection return nil.
	Connect(ctx context.Context) error

	// Connected reports whether messages can currently be delivered.
	Connected() bool

	// SendAgentMessage delivers one message and blocks until the
	// agent's reply arrives, ctx is done, or the transport fails.
	SendAgentMessage(ctx context.Context, req SendRequest) (*Reply, error)

	// Close tears the transport down. Subsequent sends fail.
	Close() error
}
