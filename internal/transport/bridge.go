package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/sidekick-live/sidekick-go/internal/logging"
)

// bridgeBuffer is the frame capacity of each direction of a bridge.
const bridgeBuffer = 256

// Bridge is the in-process Transport used when the Hero runs inside an
// embedded/sandboxed host that supplies its own channel to the UI instead
// of a network socket. The far end is driven through a BridgePeer handle.
//
// The engine tests also use it as a scriptable fake connection.
type Bridge struct {
	callbacks Callbacks
	peer      *BridgePeer

	mu     sync.Mutex
	status Status
	closed bool
	done   chan struct{}
}

// BridgePeer is the far end of a bridge: the host environment (or a test)
// reads the Hero's frames from Frames and injects UI frames with Inject.
type BridgePeer struct {
	fromHero chan string
	toHero   chan string

	closeOnce sync.Once
	closeErr  chan error
}

// NewBridge creates a connected pair: the Hero-side transport and the
// peer handle for the other side. Callbacks fire from the bridge's pump
// goroutine after Connect.
func NewBridge(cbs Callbacks) (*Bridge, *BridgePeer) {
	peer := &BridgePeer{
		fromHero: make(chan string, bridgeBuffer),
		toHero:   make(chan string, bridgeBuffer),
		closeErr: make(chan error, 1),
	}
	b := &Bridge{
		callbacks: cbs,
		peer:      peer,
		status:    StatusDisconnected,
		done:      make(chan struct{}),
	}
	return b, peer
}

// SetCallbacks installs the Hero-side callbacks. Must be called before
// Connect.
func (b *Bridge) SetCallbacks(cbs Callbacks) {
	b.mu.Lock()
	b.callbacks = cbs
	b.mu.Unlock()
}

// Connect marks the bridge live and starts the pump that delivers peer
// frames to the OnMessage callback.
func (b *Bridge) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("transport: connect after close")
	}
	if b.status == StatusConnected {
		b.mu.Unlock()
		return fmt.Errorf("transport: already connected")
	}
	b.status = StatusConnected
	b.mu.Unlock()

	go b.pump()
	return nil
}

// pump delivers frames and peer-side close events until Close is called.
// It also reports the initial status change, keeping every callback off
// the goroutine that called Connect.
func (b *Bridge) pump() {
	logger := logging.Transport()
	select {
	case <-b.done:
		return
	default:
	}
	b.callbacks.status(StatusConnected)
	for {
		select {
		case text := <-b.peer.toHero:
			b.callbacks.message(text)
		case err := <-b.peer.closeErr:
			b.mu.Lock()
			closed := b.closed
			if !closed {
				if err != nil {
					b.status = StatusError
				} else {
					b.status = StatusDisconnected
				}
			}
			b.mu.Unlock()
			if closed {
				return
			}
			if err != nil {
				logger.Debug("bridge peer failed", "error", err)
				b.callbacks.error(err)
				b.callbacks.status(StatusError)
			} else {
				logger.Debug("bridge peer closed")
				b.callbacks.status(StatusDisconnected)
			}
			return
		case <-b.done:
			return
		}
	}
}

// Send hands one frame to the peer.
func (b *Bridge) Send(text string) error {
	b.mu.Lock()
	ok := b.status == StatusConnected && !b.closed
	b.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	select {
	case b.peer.fromHero <- text:
		return nil
	case <-b.done:
		return ErrNotConnected
	}
}

// Close tears the bridge down. Idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.status = StatusDisconnected
	b.mu.Unlock()

	close(b.done)
	return nil
}

// IsConnected reports whether frames can currently be sent.
func (b *Bridge) IsConnected() bool {
	return b.Status() == StatusConnected
}

// Status returns the current transport status.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Frames returns the channel of frames sent by the Hero.
func (p *BridgePeer) Frames() <-chan string {
	return p.fromHero
}

// Inject delivers one UI frame to the Hero.
func (p *BridgePeer) Inject(text string) {
	p.toHero <- text
}

// Close signals that the peer went away. A nil error models a clean
// close; a non-nil error models an abrupt failure. Idempotent.
func (p *BridgePeer) Close(err error) {
	p.closeOnce.Do(func() {
		p.closeErr <- err
	})
}
