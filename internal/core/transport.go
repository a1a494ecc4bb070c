package core

import (
	"context"
	"errors"
)

type FrameType string

const (
	FrameToken  FrameType = "token"
	FrameEnd    FrameType = "end"
	FrameNotice FrameType = "notice"
)

// Frame is one server-to-client message of the chat protocol.
type Frame struct {
	Type      FrameType `json:"type"`
	Content   string    `json:"content,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
}

// Close codes of the chat protocol.
const (
	CodeGoingAway       = 1001
	CodeInternal        = 4000
	CodeMissingToken    = 4001
	CodeInvalidToken    = 4003
	CodeAgentNotFound   = 4004
	CodeTooManySessions = 4008
)

var ErrTransportClosed = errors.New("transport closed")

// Transport is an accepted bidirectional connection. Send may be called
// concurrently with itself; Receive is only called by the session loop.
// Implementations must be comparable (pointer types).
type Transport interface {
	// Receive blocks until the client sends a text message. It returns
	// ErrTransportClosed once the peer is gone.
	Receive(ctx context.Context) (string, error)
	Send(ctx context.Context, frame Frame) error
	Close(code int, reason string) error
	// Done is closed when the peer disconnects.
	Done() <-chan struct{}
}
