package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sidekick-live/sidekick-go/internal/logging"
)

const (
	// writeWait is the deadline applied to every outbound frame.
	writeWait = 10 * time.Second
	// closeGrace bounds how long Close waits for the close frame to go out.
	closeGrace = time.Second
)

// WebSocket is the Transport implementation used by normal desktop and
// server hosts. It dials one ws:// or wss:// URL and runs a read loop
// until the connection drops or Close is called.
type WebSocket struct {
	url       string
	callbacks Callbacks
	logger    *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
	closed bool
	// readDone is closed when the read loop has exited.
	readDone chan struct{}
}

// NewWebSocket creates a WebSocket transport for the given URL. The
// callbacks fire from the transport's read loop goroutine.
func NewWebSocket(url string, cbs Callbacks) *WebSocket {
	return &WebSocket{
		url:       url,
		callbacks: cbs,
		logger:    logging.Transport(),
		status:    StatusDisconnected,
	}
}

// Connect dials the endpoint and starts the background read loop.
// The returned error distinguishes refused endpoints and timeouts via
// errors.Is on context.DeadlineExceeded / connection errors.
func (t *WebSocket) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport: connect after close")
	}
	if t.conn != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: already connected")
	}
	t.status = StatusConnecting
	t.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.setStatus(StatusError)
		return fmt.Errorf("transport: dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	if t.closed {
		// Close raced with the dial; drop the connection quietly.
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport: connect after close")
	}
	t.conn = conn
	t.status = StatusConnected
	t.readDone = make(chan struct{})
	t.mu.Unlock()

	t.logger.Debug("connected", "url", t.url)
	go t.readLoop(conn)
	return nil
}

// Send transmits one text frame.
func (t *WebSocket) Send(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.status != StatusConnected {
		return ErrNotConnected
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Close shuts the connection down and stops the read loop. It is
// idempotent and bounded in time even when the peer is unresponsive.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	readDone := t.readDone
	t.conn = nil
	t.status = StatusDisconnected
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	// Best-effort close frame, then tear the socket down regardless.
	conn.SetWriteDeadline(time.Now().Add(closeGrace))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := conn.Close()

	if readDone != nil {
		select {
		case <-readDone:
		case <-time.After(closeGrace):
			t.logger.Warn("read loop did not exit within close grace period")
		}
	}
	return err
}

// IsConnected reports whether frames can currently be sent.
func (t *WebSocket) IsConnected() bool {
	return t.Status() == StatusConnected
}

// Status returns the current transport status.
func (t *WebSocket) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *WebSocket) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// readLoop receives frames until the connection drops or Close is called.
// It converts clean close, abrupt close, and malformed frames into the
// appropriate callbacks and never outlives the connection.
func (t *WebSocket) readLoop(conn *websocket.Conn) {
	defer close(t.readDone)

	// The initial status change fires from here so no callback ever runs
	// on the goroutine that called Connect.
	t.callbacks.status(StatusConnected)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			if !closed {
				if isCleanClose(err) {
					t.status = StatusDisconnected
				} else {
					t.status = StatusError
				}
			}
			t.mu.Unlock()

			if closed {
				// Local Close already reported nothing; stay silent.
				return
			}
			if isCleanClose(err) {
				t.logger.Debug("connection closed by peer")
				t.callbacks.status(StatusDisconnected)
			} else {
				t.logger.Debug("connection lost", "error", err)
				t.callbacks.error(err)
				t.callbacks.status(StatusError)
			}
			return
		}

		if msgType != websocket.TextMessage {
			t.logger.Warn("dropping non-text frame", "type", msgType)
			continue
		}
		t.callbacks.message(string(data))
	}
}

// isCleanClose reports whether the read error corresponds to an orderly
// shutdown rather than a failure.
func isCleanClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}
