// Package transport provides the raw duplex channel between the Hero and
// the Sidekick UI process. A transport moves whole text frames in both
// directions and reports status changes and errors through callbacks; it
// knows nothing about message semantics.
//
// Two implementations exist: a WebSocket transport for the normal
// desktop/server host, and an in-process bridge for embedded/sandboxed
// hosts and tests. Only one is active per session.
package transport

import (
	"context"
	"errors"
)

// Status is the connection state of a single transport.
type Status int

const (
	// StatusDisconnected means no connection is established.
	StatusDisconnected Status = iota
	// StatusConnecting means a connection attempt is in flight.
	StatusConnecting
	// StatusConnected means frames can be sent and received.
	StatusConnected
	// StatusError means the connection failed and is unusable.
	StatusError
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Send when the transport has no live
// connection.
var ErrNotConnected = errors.New("transport: not connected")

// Callbacks are invoked by the transport's background listener, never on
// the goroutine that called Connect or Send. All fields are optional.
type Callbacks struct {
	// OnMessage delivers one received text frame.
	OnMessage func(text string)
	// OnStatus reports a status change.
	OnStatus func(status Status)
	// OnError reports a listener or protocol failure.
	OnError func(err error)
}

func (c Callbacks) message(text string) {
	if c.OnMessage != nil {
		c.OnMessage(text)
	}
}

func (c Callbacks) status(s Status) {
	if c.OnStatus != nil {
		c.OnStatus(s)
	}
}

func (c Callbacks) error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Transport is one raw bidirectional text channel to a single endpoint.
//
// Connect establishes the connection and starts the background listener.
// Send transmits one text frame and fails with ErrNotConnected if the
// connection is not (or no longer) up. Close is idempotent and stops the
// listener; no callbacks fire after Close returns.
type Transport interface {
	Connect(ctx context.Context) error
	Send(text string) error
	Close() error
	IsConnected() bool
	Status() Status
}
