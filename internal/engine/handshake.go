package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sidekick-live/sidekick-go/internal/endpoint"
	"github.com/sidekick-live/sidekick-go/internal/transport"
	"github.com/sidekick-live/sidekick-go/message"
)

// newPeerID generates this process's Hero peer id.
func newPeerID() string {
	return "hero-" + uuid.NewString()
}

// activateLocked starts a fresh handshake attempt. Loop context. Ignored
// unless the session is Idle or Failed.
func (e *Engine) activateLocked() {
	switch e.status {
	case StatusIdle, StatusFailed:
	default:
		return
	}

	// A stale in-flight attempt (possible on the Failed->Activating
	// retry edge) must not complete behind the new one.
	if e.activation != nil {
		e.activation.cancel()
	}
	if e.tr != nil {
		e.tr.Close()
		e.tr = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	act := &activation{cancel: cancel, uiReady: make(chan struct{})}
	e.activation = act
	e.actErr = nil
	e.lastTransportErr = nil
	e.status = StatusActivating
	e.setSnapshot()
	e.logger.Info("activating session", "peer_id", e.peerID)

	go e.handshake(ctx, act)
}

// handshake runs the activation sequence as a cancellable background
// operation: connect, announce, wait for the first Sidekick peer,
// clear-all, then hand off to the loop to drain the queue and go Active.
// Any failure at any step transitions the session to Failed.
func (e *Engine) handshake(ctx context.Context, act *activation) {
	cbs := transport.Callbacks{
		OnMessage: func(text string) {
			e.submit(func() { e.inboundLocked(act, text) })
		},
		OnStatus: func(st transport.Status) {
			e.submit(func() { e.transportStatusLocked(act, st) })
		},
		OnError: func(err error) {
			e.submit(func() { e.transportErrorLocked(act, err) })
		},
	}

	// Step 1: connect. Sandboxed hosts use the bridge exclusively;
	// everyone else walks the endpoint list.
	var (
		tr   transport.Transport
		info ConnectionInfo
	)
	if e.cfg.BridgeFactory != nil {
		tr = e.cfg.BridgeFactory(cbs)
		if err := tr.Connect(ctx); err != nil {
			tr.Close()
			e.failActivation(act, err)
			return
		}
		info = ConnectionInfo{ServerName: "bridge"}
	} else {
		conn := e.cfg.Connector
		if conn == nil {
			conn = &endpoint.Connector{}
		}
		res, err := conn.Connect(ctx, cbs)
		if err != nil {
			e.failActivation(act, err)
			return
		}
		tr = res.Transport
		info = ConnectionInfo{
			ServerName: res.ServerName,
			UIURL:      res.UIURL,
			ShowUIURL:  res.ShowUIURL,
		}
	}

	// Hand the transport to the loop. If this attempt went stale while
	// dialing, the loop refuses it and we close the orphan.
	accepted := make(chan bool, 1)
	ok := e.submit(func() {
		if e.activation != act || e.status != StatusActivating {
			accepted <- false
			return
		}
		e.tr = tr
		e.setSnapshotInfo(info)
		if info.ShowUIURL && info.UIURL != "" {
			e.logger.Info("open the Sidekick page to view this session", "url", info.UIURL)
		}
		accepted <- true
	})
	if !ok || !<-accepted {
		tr.Close()
		return
	}

	// Step 2: announce ourselves. The only transmission allowed before
	// the session is Active.
	announce := message.NewAnnounce(e.peerID, message.RoleHero, message.PeerOnline, e.cfg.Version)
	if err := e.sendDirect(tr, announce); err != nil {
		e.failActivation(act, fmt.Errorf("hero announce: %w", err))
		return
	}

	// Step 3: wait for the first Sidekick peer to come online.
	timer := time.NewTimer(e.cfg.uiWaitTimeout())
	defer timer.Stop()
	select {
	case <-act.uiReady:
	case <-timer.C:
		e.failActivation(act, ErrUIWaitTimeout)
		return
	case <-ctx.Done():
		e.failActivation(act, ctx.Err())
		return
	}

	// Step 4: clear stale UI state left from a previous run.
	if e.cfg.clearOnConnect() {
		if err := e.sendDirect(tr, message.NewClearAll()); err != nil {
			e.failActivation(act, fmt.Errorf("clear all: %w", err))
			return
		}
	}

	// Steps 5-6 run on the loop so no new send can jump ahead of the
	// queued backlog.
	e.submit(func() { e.completeActivationLocked(act) })
}

// sendDirect transmits one handshake message on a transport that is not
// yet installed as the session transport.
func (e *Engine) sendDirect(tr transport.Transport, msg message.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return tr.Send(string(data))
}

// completeActivationLocked drains the outbound queue in FIFO order and
// transitions to Active. Loop context.
func (e *Engine) completeActivationLocked(act *activation) {
	if e.activation != act || e.status != StatusActivating {
		return
	}

	queued := e.queue
	e.queue = nil
	for _, m := range queued {
		e.transmit(m)
	}

	e.status = StatusActive
	e.setSnapshot()
	e.logger.Info("session active",
		"server", e.Info().ServerName,
		"flushed", len(queued))
	e.notifyWaiters(nil)
}

// failActivation reports a handshake failure from the handshake
// goroutine. Stale attempts are ignored.
func (e *Engine) failActivation(act *activation, err error) {
	e.submit(func() {
		if e.activation != act || e.status != StatusActivating {
			return
		}
		e.failLocked(err)
	})
}

// failLocked moves the session to Failed, records the cause, and
// releases synchronous waiters with it. Loop context.
func (e *Engine) failLocked(err error) {
	wasActive := e.status == StatusActive
	e.actErr = err
	if e.activation != nil {
		e.activation.cancel()
	}
	if e.tr != nil {
		e.tr.Close()
		e.tr = nil
	}
	e.peers = make(map[string]string)
	// Buffered messages are not resent after a failure; the backlog
	// dies with the session.
	e.queue = nil
	e.status = StatusFailed
	e.setSnapshot()
	e.logger.Error("session failed", "error", err)
	e.notifyWaiters(err)

	if wasActive {
		select {
		case e.fatal <- err:
		default:
		}
	}
}

// transportStatusLocked reacts to transport status changes. A drop while
// Activating aborts the handshake; a drop while Active fails the session.
// There is no automatic reconnect after a failure.
func (e *Engine) transportStatusLocked(act *activation, st transport.Status) {
	if e.activation != act {
		return
	}
	if st != transport.StatusDisconnected && st != transport.StatusError {
		return
	}

	cause := ErrConnectionLost
	if e.lastTransportErr != nil {
		cause = fmt.Errorf("%w: %v", ErrConnectionLost, e.lastTransportErr)
	}
	switch e.status {
	case StatusActivating, StatusActive:
		e.failLocked(cause)
	}
}

// transportErrorLocked records a transport error so a following status
// change can report the true cause.
func (e *Engine) transportErrorLocked(act *activation, err error) {
	if e.activation != act {
		return
	}
	e.lastTransportErr = err
	e.logger.Debug("transport error", "error", err)
}

// shutdownLocked tears the session down exactly once: best-effort
// offline announce, bounded transport close, all tables cleared, loop
// stopped. Loop context.
func (e *Engine) shutdownLocked() {
	switch e.status {
	case StatusShuttingDown, StatusShutdownComplete:
		return
	}
	e.status = StatusShuttingDown
	e.setSnapshot()
	e.logger.Info("shutting down session")

	if e.activation != nil {
		e.activation.cancel()
		e.activation = nil
	}
	if e.tr != nil {
		if e.tr.IsConnected() {
			offline := message.NewAnnounce(e.peerID, message.RoleHero, message.PeerOffline, e.cfg.Version)
			if err := e.sendDirect(e.tr, offline); err != nil {
				e.logger.Debug("offline announce failed", "error", err)
			}
		}
		e.tr.Close()
		e.tr = nil
	}

	e.handlers = make(map[string]Handler)
	e.globalHandler = nil
	e.peers = make(map[string]string)
	e.queue = nil
	e.notifyWaiters(ErrShutdown)

	e.status = StatusShutdownComplete
	e.setSnapshot()
	e.stopped = true
}
