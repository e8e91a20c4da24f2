package engine

import (
	"github.com/sidekick-live/sidekick-go/message"
)

// inboundLocked processes one raw frame from the transport. Loop context.
// Frames from a superseded transport are dropped; malformed frames are
// logged and dropped; handler failures never propagate.
func (e *Engine) inboundLocked(act *activation, raw string) {
	if e.activation != act {
		return
	}
	switch e.status {
	case StatusActivating, StatusActive:
	default:
		return
	}

	msg, err := message.Parse([]byte(raw))
	if err != nil {
		e.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	// The global handler sees all inbound traffic first.
	if e.globalHandler != nil {
		e.invoke("global", e.globalHandler, msg)
	}

	if ap, ok := msg.Announce(); ok {
		e.announceLocked(act, ap)
		return
	}

	switch msg.Type {
	case message.KindEvent, message.KindError:
		if msg.Target == "" {
			e.logger.Debug("inbound message without target", "type", string(msg.Type))
			return
		}
		h, ok := e.handlers[msg.Target]
		if !ok {
			e.logger.Debug("no handler for instance", "target", msg.Target)
			return
		}
		e.invoke(msg.Target, h, msg)
	}
}

// announceLocked maintains the peer table. The first Sidekick peer to
// come online completes the handshake's wait. Loop context.
func (e *Engine) announceLocked(act *activation, ap message.AnnouncePayload) {
	if ap.Role != message.RoleSidekick {
		return
	}

	switch ap.Status {
	case message.PeerOnline:
		first := len(e.peers) == 0
		e.peers[ap.PeerID] = ap.Version
		e.logger.Debug("sidekick peer online",
			"peer", ap.PeerID, "version", ap.Version, "peers", len(e.peers))
		if first {
			act.signalUIReady()
		}
	case message.PeerOffline:
		delete(e.peers, ap.PeerID)
		e.logger.Debug("sidekick peer offline", "peer", ap.PeerID, "peers", len(e.peers))
	}
}

// invoke runs one handler, containing any panic so a bad callback cannot
// take down the loop or block dispatch to others.
func (e *Engine) invoke(label string, h Handler, msg message.Message) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panicked",
				"handler", label,
				"type", string(msg.Type),
				"panic", r)
		}
	}()
	h(msg)
}
