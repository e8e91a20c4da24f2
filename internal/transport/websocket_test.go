package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// startEchoServer runs a WebSocket server that echoes every text frame
// and exposes the latest connection for scripted shutdowns.
func startEchoServer(t *testing.T) (url string, conns chan *websocket.Conn) {
	t.Helper()
	conns = make(chan *websocket.Conn, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(msgType, data)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func TestWebSocketRoundTrip(t *testing.T) {
	url, _ := startEchoServer(t)

	received := make(chan string, 8)
	tr := NewWebSocket(url, Callbacks{
		OnMessage: func(text string) { received <- text },
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	if !tr.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := tr.Send(`{"hello":"sidekick"}`); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case got := <-received:
		if got != `{"hello":"sidekick"}` {
			t.Errorf("echo = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo never arrived")
	}
}

func TestWebSocketConnectRefused(t *testing.T) {
	// Port reserved and closed: nothing listens there.
	tr := NewWebSocket("ws://127.0.0.1:1", Callbacks{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err == nil {
		tr.Close()
		t.Fatal("Connect to closed port succeeded")
	}
	if tr.Status() != StatusError {
		t.Errorf("Status() = %v after failed connect, want error", tr.Status())
	}
}

func TestWebSocketSendAfterClose(t *testing.T) {
	url, _ := startEchoServer(t)
	tr := NewWebSocket(url, Callbacks{})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := tr.Send("x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after close = %v, want ErrNotConnected", err)
	}
}

func TestWebSocketServerDrop(t *testing.T) {
	url, conns := startEchoServer(t)

	statuses := make(chan Status, 8)
	tr := NewWebSocket(url, Callbacks{
		OnStatus: func(s Status) { statuses <- s },
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()
	if got := <-statuses; got != StatusConnected {
		t.Fatalf("first status = %v, want connected", got)
	}

	// Abrupt server-side close must surface as a status change.
	serverConn := <-conns
	serverConn.Close()

	select {
	case got := <-statuses:
		if got != StatusDisconnected && got != StatusError {
			t.Errorf("status after server drop = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status change after server drop")
	}
}

func TestWebSocketStatusCallbackOffCallerGoroutine(t *testing.T) {
	url, _ := startEchoServer(t)

	caller := gid()
	statusGID := make(chan uint64, 1)
	tr := NewWebSocket(url, Callbacks{
		OnStatus: func(s Status) {
			if s == StatusConnected {
				statusGID <- gid()
			}
		},
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	select {
	case g := <-statusGID:
		if g == caller {
			t.Error("status callback fired on the goroutine that called Connect")
		}
	case <-time.After(time.Second):
		t.Fatal("connected status never reported")
	}
}

func TestWebSocketNoCallbacksAfterClose(t *testing.T) {
	url, _ := startEchoServer(t)

	var gotAfterClose chan string = make(chan string, 8)
	tr := NewWebSocket(url, Callbacks{
		OnStatus: func(s Status) {
			if s != StatusConnected {
				gotAfterClose <- s.String()
			}
		},
		OnError: func(err error) { gotAfterClose <- err.Error() },
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	tr.Close()

	select {
	case s := <-gotAfterClose:
		t.Errorf("callback %q fired after local Close", s)
	case <-time.After(300 * time.Millisecond):
	}
}
