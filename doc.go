// Package sidekick lets a Go program (the "Hero") remotely drive a
// Sidekick UI panel running in a separate process, over newline-delimited
// JSON messages on a persistent WebSocket (or in-process bridge)
// connection.
//
// The library manages one session per process: it tries the local
// Sidekick server first and falls back to the hosted one, performs the
// announce/ready handshake, queues commands issued before the session is
// ready, and dispatches inbound events to per-component handlers.
//
// # Basic Usage
//
// Components (see the component package) talk to the UI through the
// package-level functions; most programs never call the core directly:
//
//	console, err := component.NewConsole()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	console.Print("hello from the Hero side")
//
//	if err := sidekick.WaitUntilActive(30 * time.Second); err != nil {
//	    log.Fatal(err)
//	}
//	sidekick.RunForever()
//
// Commands sent before the connection is ready are buffered and flushed
// in order once the handshake completes, so components can be created
// eagerly at program start.
//
// # Raw Messages
//
// The core treats payloads as opaque; anything the UI understands can be
// sent directly:
//
//	sidekick.Send(message.Message{
//	    Component: "grid",
//	    Type:      message.KindUpdate,
//	    Target:    "grid-1",
//	    Payload:   map[string]any{"action": "setColor", "options": map[string]any{"x": 0, "y": 0, "color": "red"}},
//	})
//
// Inbound events and errors for an instance id go to its registered
// handler:
//
//	sidekick.RegisterHandler("grid-1", func(msg message.Message) {
//	    fmt.Println("event:", msg.Payload)
//	})
//
// # Servers
//
// By default the library tries ws://localhost:5163 (the local Sidekick
// app) and then the hosted fallback, which gets a fresh session token
// spliced into its URLs. SetURL replaces the list with a single server.
// A YAML settings file ($SIDEKICK_CONFIG or
// <user config dir>/sidekick/config.yaml) can do the same.
//
// # Concurrency
//
// All package-level functions are safe for concurrent use. Handlers run
// one at a time on the session's dispatch goroutine: keep them fast, and
// never call WaitUntilActive or Shutdown(true) from inside one (the
// library refuses with an error rather than deadlocking).
package sidekick
