// Package engine implements the session lifecycle state machine that
// coordinates one logical connection between the Hero and the Sidekick UI.
//
// All session state (status, outbound queue, handler table, peer table)
// is owned by a single command-loop goroutine; every external request is
// turned into a command executed by that loop, so the state machine needs
// no locks. Callers block, if at all, only on per-request reply channels.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sidekick-live/sidekick-go/internal/endpoint"
	"github.com/sidekick-live/sidekick-go/internal/logging"
	"github.com/sidekick-live/sidekick-go/internal/transport"
	"github.com/sidekick-live/sidekick-go/message"
)

// Status is the lifecycle state of a session.
type Status int

const (
	// StatusIdle is the initial state before any activation.
	StatusIdle Status = iota
	// StatusActivating means the handshake sequence is in flight.
	StatusActivating
	// StatusActive means the handshake completed and the queue is drained.
	StatusActive
	// StatusFailed means activation failed or the connection was lost.
	// A fresh Activate retries from scratch.
	StatusFailed
	// StatusShuttingDown means shutdown has started.
	StatusShuttingDown
	// StatusShutdownComplete is terminal; the engine is never reused.
	StatusShutdownComplete
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActivating:
		return "activating"
	case StatusActive:
		return "active"
	case StatusFailed:
		return "failed"
	case StatusShuttingDown:
		return "shutting-down"
	case StatusShutdownComplete:
		return "shutdown-complete"
	default:
		return "unknown"
	}
}

// Errors surfaced by the engine's public entry points.
var (
	// ErrDuplicateHandler is returned when an instance id is registered twice.
	ErrDuplicateHandler = errors.New("engine: handler already registered for instance id")
	// ErrWaitTimeout is returned when a blocking waiter's own timeout
	// expires before the handshake finishes or fails.
	ErrWaitTimeout = errors.New("engine: timed out waiting for activation")
	// ErrUIWaitTimeout is the stored activation failure when no Sidekick
	// peer announced itself within the handshake wait.
	ErrUIWaitTimeout = errors.New("engine: no Sidekick UI peer announced itself; is the Sidekick panel open?")
	// ErrBlockingUnsupported is returned for blocking waits on hosts that
	// ride an externally driven loop, where blocking would deadlock.
	ErrBlockingUnsupported = errors.New("engine: blocking wait is unsupported on this host; use the asynchronous waiter")
	// ErrLoopGoroutine is returned when a blocking wait is attempted from
	// the engine's own command loop (i.e. from inside a handler).
	ErrLoopGoroutine = errors.New("engine: blocking wait called from the engine loop; would deadlock")
	// ErrShutdown is returned for requests against a shut-down engine.
	ErrShutdown = errors.New("engine: session has been shut down")
	// ErrConnectionLost is the stored cause when the transport drops.
	ErrConnectionLost = errors.New("engine: connection to the Sidekick UI was lost")
)

// Handler receives messages addressed to one instance id (or, for the
// global handler, all inbound traffic). Handlers run on the engine loop
// and must not block; panics are recovered and logged.
type Handler func(msg message.Message)

const (
	// defaultUIWaitTimeout bounds the handshake's wait for the first
	// Sidekick peer. Generous: a human may still be opening the page.
	defaultUIWaitTimeout = 3 * time.Minute
	// defaultQueueLimit caps the outbound queue. The queue is unbounded
	// in principle but capped so a session that never activates cannot
	// grow without bound.
	defaultQueueLimit = 4096
	// commandBuffer is the capacity of the command channel.
	commandBuffer = 1024
)

// Config configures one engine instance.
type Config struct {
	// Connector selects and connects an endpoint. Nil uses the default
	// WebSocket connector with the built-in endpoint list.
	Connector *endpoint.Connector
	// BridgeFactory, if set, builds the in-process bridge transport and
	// is used exclusively instead of endpoint selection (embedded or
	// sandboxed host). The factory receives the engine's callbacks.
	BridgeFactory func(cbs transport.Callbacks) transport.Transport
	// ExternalLoop marks hosts whose only goroutine drives an external
	// event loop; blocking waiters fail fast there.
	ExternalLoop bool
	// ClearOnConnect controls the handshake's clear-all step. Nil means on.
	ClearOnConnect *bool
	// UIWaitTimeout bounds the wait for the first Sidekick peer.
	UIWaitTimeout time.Duration
	// QueueLimit caps the outbound queue.
	QueueLimit int
	// Version is the announced Hero version string.
	Version string
}

func (c Config) uiWaitTimeout() time.Duration {
	if c.UIWaitTimeout > 0 {
		return c.UIWaitTimeout
	}
	return defaultUIWaitTimeout
}

func (c Config) queueLimit() int {
	if c.QueueLimit > 0 {
		return c.QueueLimit
	}
	return defaultQueueLimit
}

func (c Config) clearOnConnect() bool {
	return c.ClearOnConnect == nil || *c.ClearOnConnect
}

// ConnectionInfo is a snapshot of the winning endpoint, available once
// the transport has connected.
type ConnectionInfo struct {
	ServerName string
	UIURL      string
	ShowUIURL  bool
}

// Engine is one session's lifecycle coordinator. Create it with New,
// which starts the command loop; it runs until Shutdown.
type Engine struct {
	cfg    Config
	peerID string
	logger *slog.Logger

	commands chan func()
	// done is closed when the command loop has shut down; commands
	// already in the buffer are drained afterwards under terminal status.
	done chan struct{}
	// fatal receives the cause when an Active session dies. Capacity 1;
	// used by run-forever style callers to stop on unrecoverable failure.
	fatal   chan error
	loopGID atomic.Uint64

	// dropWarn throttles warnings about messages dropped after failure,
	// so a dead session cannot flood the log.
	dropWarn *rate.Limiter

	// snapshot of loop-owned state for cross-goroutine reads.
	snapMu     sync.Mutex
	snapStatus Status
	snapInfo   ConnectionInfo

	// Everything below is owned by the command loop. No locking.
	status        Status
	tr            transport.Transport
	queue         []message.Message
	handlers      map[string]Handler
	globalHandler Handler
	peers         map[string]string
	waiters       []chan error
	activation    *activation
	// actErr is the stored activation/disconnection cause, re-raised to
	// synchronous waiters instead of a generic timeout.
	actErr           error
	lastTransportErr error
	stopped          bool
}

// activation is the per-attempt handshake state. A stale attempt is
// recognized by pointer identity against Engine.activation.
type activation struct {
	cancel    func()
	uiReady   chan struct{}
	readyOnce sync.Once
}

func (a *activation) signalUIReady() {
	a.readyOnce.Do(func() { close(a.uiReady) })
}

// New creates an engine and starts its command loop.
func New(cfg Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		peerID:   newPeerID(),
		logger:   logging.Engine(),
		commands: make(chan func(), commandBuffer),
		done:     make(chan struct{}),
		fatal:    make(chan error, 1),
		dropWarn: rate.NewLimiter(rate.Every(5*time.Second), 1),
		status:   StatusIdle,
		handlers: make(map[string]Handler),
		peers:    make(map[string]string),
	}
	go e.run()
	return e
}

// run is the command loop: the only code path that mutates session state.
func (e *Engine) run() {
	e.loopGID.Store(curGoroutineID())
	for fn := range e.commands {
		fn()
		if e.stopped {
			break
		}
	}
	close(e.done)

	// Commands accepted while shutdown was executing (the window can last
	// as long as the transport close) are still sitting in the buffer.
	// Run them: their own state checks see the terminal status and release
	// their callers with ErrShutdown instead of stranding them.
	for {
		select {
		case fn := <-e.commands:
			fn()
		default:
			return
		}
	}
}

// submit schedules fn on the command loop. Calls from the loop goroutine
// itself run inline, preserving order relative to the current command.
// Returns false once the engine has stopped. A command accepted during
// shutdown still runs (via the post-shutdown drain), so fn must hold up
// under terminal status.
func (e *Engine) submit(fn func()) bool {
	if e.loopGID.Load() == curGoroutineID() {
		if e.stopped {
			return false
		}
		fn()
		return true
	}
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.commands <- fn:
		return true
	case <-e.done:
		return false
	}
}

// setSnapshot publishes loop-owned state for cross-goroutine readers.
func (e *Engine) setSnapshot() {
	e.snapMu.Lock()
	e.snapStatus = e.status
	e.snapMu.Unlock()
}

func (e *Engine) setSnapshotInfo(info ConnectionInfo) {
	e.snapMu.Lock()
	e.snapInfo = info
	e.snapMu.Unlock()
}

// Status returns the current session status. Safe from any goroutine.
func (e *Engine) Status() Status {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return e.snapStatus
}

// IsActive reports whether the session has completed its handshake.
func (e *Engine) IsActive() bool {
	return e.Status() == StatusActive
}

// Info returns the winning endpoint snapshot (zero before connection).
func (e *Engine) Info() ConnectionInfo {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	return e.snapInfo
}

// Done returns a channel closed once the engine has shut down and
// stopped accepting work. Commands accepted before that point are still
// released with shutdown semantics.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Fatal returns a channel that receives the cause when a session that
// reached Active dies. Activation failures are not fatal (the caller can
// retry); a post-activation disconnect is.
func (e *Engine) Fatal() <-chan error {
	return e.fatal
}

// Activate starts the handshake sequence if the session is Idle or
// Failed; in any other state it is a no-op. It never blocks.
func (e *Engine) Activate() {
	e.submit(e.activateLocked)
}

// Send transmits the message if the session is Active, queues it while
// Idle or Activating (implicitly starting activation), and drops it with
// a throttled warning in terminal states. Fire-and-forget: transmission
// failures are logged, not returned. Malformed messages are a caller bug
// and are rejected synchronously.
func (e *Engine) Send(msg message.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if !e.submit(func() { e.sendLocked(msg) }) {
		e.warnDropped(msg, "engine stopped")
	}
	return nil
}

// RegisterHandler installs the callback for one instance id. Registering
// a duplicate id is an error; the existing handler stays installed.
func (e *Engine) RegisterHandler(id string, h Handler) error {
	reply := make(chan error, 1)
	ok := e.submit(func() {
		switch e.status {
		case StatusShuttingDown, StatusShutdownComplete:
			reply <- ErrShutdown
			return
		}
		if _, exists := e.handlers[id]; exists {
			reply <- ErrDuplicateHandler
			return
		}
		e.handlers[id] = h
		reply <- nil
	})
	if !ok {
		return ErrShutdown
	}
	select {
	case err := <-reply:
		return err
	case <-e.done:
		return ErrShutdown
	}
}

// UnregisterHandler removes the callback for one instance id.
func (e *Engine) UnregisterHandler(id string) {
	e.submit(func() {
		delete(e.handlers, id)
	})
}

// RegisterGlobalHandler replaces the single global handler. A nil handler
// removes it.
func (e *Engine) RegisterGlobalHandler(h Handler) {
	e.submit(func() {
		e.globalHandler = h
	})
}

// ClearAll sends the clear-all control message if Active; otherwise it is
// a logged no-op.
func (e *Engine) ClearAll() {
	e.submit(func() {
		if e.status != StatusActive {
			e.logger.Debug("clearAll ignored", "status", e.status.String())
			return
		}
		e.transmit(message.NewClearAll())
	})
}

// ActiveChan registers an asynchronous activation waiter and triggers
// activation. The returned channel receives exactly one value: nil once
// the session is Active, or the failure cause. Legal on any host.
func (e *Engine) ActiveChan() <-chan error {
	ch := make(chan error, 1)
	if !e.submit(func() { e.addWaiterLocked(ch) }) {
		ch <- ErrShutdown
	}
	return ch
}

// WaitUntilActive blocks until the session is Active, the handshake
// fails, or the timeout expires. It triggers activation, refuses to run
// on the command loop goroutine, and refuses on external-loop hosts.
func (e *Engine) WaitUntilActive(timeout time.Duration) error {
	if e.cfg.ExternalLoop {
		return ErrBlockingUnsupported
	}
	if e.loopGID.Load() == curGoroutineID() {
		return ErrLoopGoroutine
	}

	ch := make(chan error, 1)
	if !e.submit(func() { e.addWaiterLocked(ch) }) {
		return ErrShutdown
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-ch:
		return err
	case <-timer.C:
		return ErrWaitTimeout
	case <-e.done:
		return ErrShutdown
	}
}

// Shutdown stops the session: cancels any in-flight handshake, announces
// offline best-effort, closes the transport, clears all tables, and stops
// the command loop. Idempotent. With wait set, it blocks until the loop
// has fully stopped (illegal from the loop goroutine; the wait is then
// skipped).
func (e *Engine) Shutdown(wait bool) {
	e.submit(e.shutdownLocked)
	if wait && e.loopGID.Load() != curGoroutineID() {
		<-e.done
	}
}

// addWaiterLocked registers an activation waiter, starting activation if
// needed. Loop context.
func (e *Engine) addWaiterLocked(ch chan error) {
	switch e.status {
	case StatusActive:
		ch <- nil
		return
	case StatusShuttingDown, StatusShutdownComplete:
		ch <- ErrShutdown
		return
	}
	e.activateLocked()
	e.waiters = append(e.waiters, ch)
}

// notifyWaiters releases all pending waiters with err. Loop context.
func (e *Engine) notifyWaiters(err error) {
	for _, ch := range e.waiters {
		ch <- err
	}
	e.waiters = nil
}

// sendLocked implements the Send command. Loop context.
func (e *Engine) sendLocked(msg message.Message) {
	switch e.status {
	case StatusActive:
		e.transmit(msg)
	case StatusIdle, StatusActivating:
		if e.status == StatusIdle {
			// First send starts activation implicitly.
			e.activateLocked()
		}
		if len(e.queue) >= e.cfg.queueLimit() {
			e.warnDropped(msg, "queue full")
			return
		}
		e.queue = append(e.queue, msg)
	default:
		// Failed, ShuttingDown, ShutdownComplete: the session is dead
		// for this message. Fire-and-forget sends only log.
		reason := e.status.String()
		if e.status == StatusFailed && e.actErr != nil {
			reason = "session failed: " + e.actErr.Error()
		}
		e.warnDropped(msg, reason)
	}
}

// transmit encodes and sends one message on the live transport. Loop
// context; transmission failures are logged only (fire-and-forget).
func (e *Engine) transmit(msg message.Message) {
	data, err := msg.Encode()
	if err != nil {
		e.logger.Error("dropping unencodable message", "error", err)
		return
	}
	if e.tr == nil {
		e.warnDropped(msg, "no transport")
		return
	}
	if err := e.tr.Send(string(data)); err != nil {
		e.logger.Warn("send failed", "component", msg.Component, "type", string(msg.Type), "error", err)
	}
}

func (e *Engine) warnDropped(msg message.Message, reason string) {
	if e.dropWarn.Allow() {
		e.logger.Warn("dropping message",
			"component", msg.Component,
			"type", string(msg.Type),
			"target", msg.Target,
			"reason", reason)
	}
}
