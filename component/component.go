// Package component provides a small set of visual components for the
// Sidekick panel. Each component owns one instance id: commands go out
// tagged with it, and events for it come back through a handler
// registered with the core. The core neither renders nor interprets any
// of this; the drawing semantics live entirely in the UI process.
package component

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	sidekick "github.com/sidekick-live/sidekick-go"
	"github.com/sidekick-live/sidekick-go/message"
)

// base carries the plumbing shared by all components: the instance id,
// spawn/update/remove commands, and removal state.
type base struct {
	id   string
	kind string

	mu      sync.Mutex
	removed bool
}

// newInstanceID generates a fresh instance id for one component.
func newInstanceID(kind string) string {
	return kind + "-" + uuid.NewString()[:8]
}

// init registers the handler and spawns the component in the UI.
func (b *base) init(kind string, spawnOptions map[string]any, h sidekick.Handler) error {
	b.id = newInstanceID(kind)
	b.kind = kind

	if err := sidekick.RegisterHandler(b.id, h); err != nil {
		return fmt.Errorf("component: register %s: %w", b.id, err)
	}
	spawn := message.Message{
		Component: kind,
		Type:      message.KindSpawn,
		Target:    b.id,
		Payload:   spawnOptions,
	}
	if err := sidekick.Send(spawn); err != nil {
		sidekick.UnregisterHandler(b.id)
		return fmt.Errorf("component: spawn %s: %w", b.id, err)
	}
	return nil
}

// ID returns the component's instance id.
func (b *base) ID() string {
	return b.id
}

// update sends one update command for this component.
func (b *base) update(action string, options map[string]any) error {
	b.mu.Lock()
	removed := b.removed
	b.mu.Unlock()
	if removed {
		return fmt.Errorf("component: %s has been removed", b.id)
	}
	return sidekick.Send(message.NewUpdate(b.kind, b.id, action, options))
}

// Remove deletes the component from the UI and releases its handler.
// Idempotent. Components must be removed explicitly; there is no
// finalizer-based cleanup.
func (b *base) Remove() {
	b.mu.Lock()
	if b.removed {
		b.mu.Unlock()
		return
	}
	b.removed = true
	b.mu.Unlock()

	sidekick.Send(message.Message{
		Component: b.kind,
		Type:      message.KindRemove,
		Target:    b.id,
	})
	sidekick.UnregisterHandler(b.id)
}

// eventName extracts the "event" discriminator from an event payload.
func eventName(msg message.Message) string {
	if msg.Type != message.KindEvent {
		return ""
	}
	name, _ := msg.Payload["event"].(string)
	return name
}

// payloadInt reads an integer payload field (JSON numbers decode as
// float64).
func payloadInt(payload map[string]any, key string) int {
	f, _ := payload[key].(float64)
	return int(f)
}

// payloadString reads a string payload field.
func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
