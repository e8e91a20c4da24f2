package component

import (
	"strings"
	"testing"
	"time"

	sidekick "github.com/sidekick-live/sidekick-go"
	"github.com/sidekick-live/sidekick-go/message"
)

// startSession puts the library on an in-process bridge, plays the UI
// side of the handshake, and returns the peer handle for scripting.
func startSession(t *testing.T) *sidekick.BridgePeer {
	t.Helper()

	// A previous test's session is terminal by now; the library builds a
	// fresh one for the bridge.
	sidekick.Shutdown(true)
	peer, err := sidekick.UseBridge(false)
	if err != nil {
		t.Fatalf("UseBridge failed: %v", err)
	}
	t.Cleanup(func() { sidekick.Shutdown(true) })

	sidekick.Activate()
	if got := readFrame(t, peer); got.Type != message.KindAnnounce {
		t.Fatalf("first frame = %s, want announce", got.Type)
	}
	inject(t, peer, message.NewAnnounce("ui-1", message.RoleSidekick, message.PeerOnline, "test"))
	if got := readFrame(t, peer); got.Type != message.KindClearAll {
		t.Fatalf("frame after announce = %s, want clearAll", got.Type)
	}
	if err := sidekick.WaitUntilActive(2 * time.Second); err != nil {
		t.Fatalf("WaitUntilActive failed: %v", err)
	}
	return peer
}

func readFrame(t *testing.T, peer *sidekick.BridgePeer) message.Message {
	t.Helper()
	select {
	case raw := <-peer.Frames():
		msg, err := message.Parse([]byte(raw))
		if err != nil {
			t.Fatalf("malformed frame %q: %v", raw, err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return message.Message{}
	}
}

func inject(t *testing.T, peer *sidekick.BridgePeer, msg message.Message) {
	t.Helper()
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	peer.Inject(string(data))
}

func options(t *testing.T, msg message.Message) map[string]any {
	t.Helper()
	opts, _ := msg.Payload["options"].(map[string]any)
	return opts
}

func TestConsoleLifecycle(t *testing.T) {
	peer := startSession(t)

	c, err := NewConsole()
	if err != nil {
		t.Fatalf("NewConsole failed: %v", err)
	}
	if !strings.HasPrefix(c.ID(), "console-") {
		t.Errorf("instance id = %q, want console- prefix", c.ID())
	}

	spawn := readFrame(t, peer)
	if spawn.Type != message.KindSpawn || spawn.Component != "console" || spawn.Target != c.ID() {
		t.Fatalf("spawn frame = %+v", spawn)
	}

	if err := c.Print("hello"); err != nil {
		t.Fatalf("Print failed: %v", err)
	}
	upd := readFrame(t, peer)
	if upd.Payload["action"] != "append" {
		t.Errorf("update action = %v, want append", upd.Payload["action"])
	}
	if text, _ := options(t, upd)["text"].(string); text != "hello\n" {
		t.Errorf("appended text = %q, want %q", text, "hello\n")
	}

	got := make(chan string, 1)
	c.OnInput(func(text string) { got <- text })
	inject(t, peer, message.Message{
		Component: "console", Type: message.KindEvent, Target: c.ID(),
		Payload: map[string]any{"event": "submit", "text": "typed"},
	})
	select {
	case text := <-got:
		if text != "typed" {
			t.Errorf("OnInput text = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnInput never fired")
	}

	c.Remove()
	rm := readFrame(t, peer)
	if rm.Type != message.KindRemove || rm.Target != c.ID() {
		t.Fatalf("remove frame = %+v", rm)
	}
	c.Remove() // idempotent: no second frame
	if err := c.Print("dead"); err == nil {
		t.Error("Print on a removed console succeeded")
	}
	select {
	case extra := <-peer.Frames():
		t.Errorf("unexpected frame after remove: %s", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGridBoundsAndClicks(t *testing.T) {
	peer := startSession(t)

	g, err := NewGrid(3, 2)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	// Spawn options ride directly in the payload.
	spawn := readFrame(t, peer)
	if cols, _ := spawn.Payload["columns"].(float64); int(cols) != 3 {
		t.Errorf("spawn columns = %v, want 3", spawn.Payload["columns"])
	}

	if err := g.SetColor(2, 1, "red"); err != nil {
		t.Fatalf("SetColor failed: %v", err)
	}
	readFrame(t, peer)

	if err := g.SetColor(3, 0, "red"); err == nil {
		t.Error("SetColor accepted x out of range")
	}
	if err := g.SetText(0, -1, "x"); err == nil {
		t.Error("SetText accepted negative y")
	}

	clicks := make(chan [2]int, 1)
	g.OnClick(func(x, y int) { clicks <- [2]int{x, y} })
	inject(t, peer, message.Message{
		Component: "grid", Type: message.KindEvent, Target: g.ID(),
		Payload: map[string]any{"event": "click", "x": float64(1), "y": float64(0)},
	})
	select {
	case c := <-clicks:
		if c != [2]int{1, 0} {
			t.Errorf("OnClick coordinates = %v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClick never fired")
	}

	g.Remove()
	readFrame(t, peer)
}

func TestGridRejectsBadDimensions(t *testing.T) {
	if _, err := NewGrid(0, 5); err == nil {
		t.Error("NewGrid(0, 5) succeeded")
	}
	if _, err := NewGrid(5, -1); err == nil {
		t.Error("NewGrid(5, -1) succeeded")
	}
}

func TestControlPanel(t *testing.T) {
	peer := startSession(t)

	c, err := NewControl()
	if err != nil {
		t.Fatalf("NewControl failed: %v", err)
	}
	readFrame(t, peer) // spawn

	if err := c.AddButton("go", "Go"); err != nil {
		t.Fatalf("AddButton failed: %v", err)
	}
	add := readFrame(t, peer)
	opts := options(t, add)
	if opts["controlId"] != "go" || opts["kind"] != "button" {
		t.Errorf("add options = %+v", opts)
	}

	clicked := make(chan string, 1)
	c.OnClick(func(id string) { clicked <- id })
	submitted := make(chan [2]string, 1)
	c.OnSubmit(func(id, text string) { submitted <- [2]string{id, text} })

	inject(t, peer, message.Message{
		Component: "control", Type: message.KindEvent, Target: c.ID(),
		Payload: map[string]any{"event": "click", "controlId": "go"},
	})
	select {
	case id := <-clicked:
		if id != "go" {
			t.Errorf("OnClick control id = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClick never fired")
	}

	inject(t, peer, message.Message{
		Component: "control", Type: message.KindEvent, Target: c.ID(),
		Payload: map[string]any{"event": "submit", "controlId": "name", "text": "ada"},
	})
	select {
	case s := <-submitted:
		if s != [2]string{"name", "ada"} {
			t.Errorf("OnSubmit = %v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnSubmit never fired")
	}

	c.Remove()
	readFrame(t, peer)
}

func TestEventsRouteToTheRightInstance(t *testing.T) {
	peer := startSession(t)

	g1, err := NewGrid(2, 2)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	g2, err := NewGrid(2, 2)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	readFrame(t, peer) // spawn g1
	readFrame(t, peer) // spawn g2

	got1 := make(chan struct{}, 1)
	got2 := make(chan struct{}, 1)
	g1.OnClick(func(x, y int) { got1 <- struct{}{} })
	g2.OnClick(func(x, y int) { got2 <- struct{}{} })

	inject(t, peer, message.Message{
		Component: "grid", Type: message.KindEvent, Target: g2.ID(),
		Payload: map[string]any{"event": "click", "x": float64(0), "y": float64(0)},
	})
	select {
	case <-got2:
	case <-time.After(2 * time.Second):
		t.Fatal("second grid never got its click")
	}
	select {
	case <-got1:
		t.Error("first grid received a click addressed to the second")
	case <-time.After(100 * time.Millisecond):
	}

	g1.Remove()
	g2.Remove()
}

func TestObservableValue(t *testing.T) {
	o := NewObservableValue(1)
	if got := o.Get(); got != 1 {
		t.Fatalf("Get() = %v, want 1", got)
	}

	var seen []any
	unsub := o.Subscribe(func(v any) { seen = append(seen, v) })

	o.Set(2)
	o.Set(3)
	if o.Get() != 3 {
		t.Errorf("Get() = %v after Set(3)", o.Get())
	}
	if len(seen) != 2 || seen[0] != 2 || seen[1] != 3 {
		t.Errorf("subscriber saw %v, want [2 3]", seen)
	}

	unsub()
	o.Set(4)
	if len(seen) != 2 {
		t.Errorf("subscriber ran after unsubscribe: %v", seen)
	}
	unsub() // calling twice is harmless
}

func TestObservableDrivesComponent(t *testing.T) {
	peer := startSession(t)

	c, err := NewConsole()
	if err != nil {
		t.Fatalf("NewConsole failed: %v", err)
	}
	readFrame(t, peer) // spawn
	defer c.Remove()

	score := NewObservableValue(0)
	score.Subscribe(func(v any) {
		c.Printf("score: %v", v)
	})

	score.Set(10)
	upd := readFrame(t, peer)
	if text, _ := options(t, upd)["text"].(string); text != "score: 10" {
		t.Errorf("bound update text = %q", text)
	}
}
