// Package sidetest provides a scripted Sidekick UI server for tests: a
// live WebSocket endpoint that records every frame the Hero sends and
// can play the UI side of the announce handshake.
package sidetest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/sidekick-live/sidekick-go/message"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is one scripted Sidekick UI endpoint.
type Server struct {
	// URL is the ws:// address of the server.
	URL string
	// Frames receives every parsed frame sent by connected Heroes.
	Frames chan message.Message

	t            *testing.T
	httpSrv      *httptest.Server
	autoAnnounce bool

	mu   sync.Mutex
	conn *websocket.Conn
}

// Start launches a scripted Sidekick server. With autoAnnounce set, the
// server answers a Hero's online announce with its own sidekick online
// announce, letting handshakes complete unattended. The server shuts
// down with the test.
func Start(t *testing.T, autoAnnounce bool) *Server {
	t.Helper()

	s := &Server{
		Frames:       make(chan message.Message, 256),
		t:            t,
		autoAnnounce: autoAnnounce,
	}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + strings.TrimPrefix(s.httpSrv.URL, "http")
	t.Cleanup(s.Close)
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := message.Parse(data)
		if err != nil {
			continue
		}
		if s.autoAnnounce {
			if ap, ok := msg.Announce(); ok && ap.Role == message.RoleHero && ap.Status == message.PeerOnline {
				s.Send(message.NewAnnounce("sidekick-test", message.RoleSidekick, message.PeerOnline, "test"))
			}
		}
		select {
		case s.Frames <- msg:
		default:
		}
	}
}

// Send delivers one message to the most recently connected Hero.
func (s *Server) Send(msg message.Message) {
	data, err := msg.Encode()
	if err != nil {
		s.t.Errorf("sidetest: encode: %v", err)
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Error("sidetest: no hero connected")
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.t.Logf("sidetest: write: %v", err)
	}
}

// SendRaw delivers one raw text frame (for malformed-frame scenarios).
func (s *Server) SendRaw(text string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Error("sidetest: no hero connected")
		return
	}
	conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// DropConnection abruptly closes the Hero's connection.
func (s *Server) DropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close stops the server. Idempotent (registered as a test cleanup).
func (s *Server) Close() {
	s.DropConnection()
	s.httpSrv.Close()
}
