// Package message defines the wire protocol shared by the Hero (this
// library) and the Sidekick UI process. Every frame on the connection is
// one JSON object with a fixed, lower-camel-case field set; payloads are
// opaque to the core and interpreted only by components and the UI.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies what a message does.
type Kind string

// Message kinds understood by both peers.
const (
	KindSpawn    Kind = "spawn"
	KindUpdate   Kind = "update"
	KindRemove   Kind = "remove"
	KindEvent    Kind = "event"
	KindError    Kind = "error"
	KindAnnounce Kind = "announce"
	KindClearAll Kind = "clearAll"
)

// Component type tags used by system-level traffic. Visual components
// (grid, console, ...) supply their own tags.
const (
	ComponentSystem = "system"
	ComponentGlobal = "global"
)

// Peer roles carried in announce payloads.
const (
	RoleHero     = "hero"
	RoleSidekick = "sidekick"
)

// Peer statuses carried in announce payloads.
const (
	PeerOnline  = "online"
	PeerOffline = "offline"
)

// Message is one command or event frame. The wire encoding is a single
// JSON object; Target is omitted for system/global messages.
type Message struct {
	// ID is reserved and always zero today.
	ID int `json:"id"`
	// Component is the component/module type tag, e.g. "grid" or "system".
	Component string `json:"component"`
	// Type is the message kind.
	Type Kind `json:"type"`
	// Target is the instance id this message is addressed to, if any.
	Target string `json:"target,omitempty"`
	// Payload is the action-specific body, keys lower-camel-case.
	Payload map[string]any `json:"payload,omitempty"`
}

// AnnouncePayload is the body of a system announce message, by which a
// peer declares itself online or offline with a role.
type AnnouncePayload struct {
	PeerID    string `json:"peerId"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// NewAnnounce builds a system announce message for the given peer.
func NewAnnounce(peerID, role, status, version string) Message {
	return Message{
		Component: ComponentSystem,
		Type:      KindAnnounce,
		Payload: map[string]any{
			"peerId":    peerID,
			"role":      role,
			"status":    status,
			"version":   version,
			"timestamp": time.Now().UnixMilli(),
		},
	}
}

// NewClearAll builds the global clear-all control message.
func NewClearAll() Message {
	return Message{
		Component: ComponentGlobal,
		Type:      KindClearAll,
	}
}

// NewUpdate builds an update command following the payload convention
// {"action": verb, "options": {...}}.
func NewUpdate(component, target, action string, options map[string]any) Message {
	payload := map[string]any{"action": action}
	if options != nil {
		payload["options"] = options
	}
	return Message{
		Component: component,
		Type:      KindUpdate,
		Target:    target,
		Payload:   payload,
	}
}

// Validate reports whether the message is well-formed enough to put on
// the wire. It catches caller bugs (missing component/kind, non-zero
// reserved field) before they reach the UI.
func (m Message) Validate() error {
	if m.ID != 0 {
		return fmt.Errorf("message: reserved id field must be 0, got %d", m.ID)
	}
	if m.Component == "" {
		return fmt.Errorf("message: component tag is required")
	}
	switch m.Type {
	case KindSpawn, KindUpdate, KindRemove, KindEvent, KindError, KindAnnounce, KindClearAll:
	default:
		return fmt.Errorf("message: unknown kind %q", m.Type)
	}
	return nil
}

// Encode serializes the message to its wire form.
func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	return data, nil
}

// Parse decodes and validates one inbound frame. Unknown payload keys are
// preserved; unknown kinds or missing fields are rejected so a malformed
// frame can be dropped at the boundary instead of crashing dispatch.
func Parse(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("message: malformed frame: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Announce extracts the announce payload from a system announce message.
// It returns false for any other message.
func (m Message) Announce() (AnnouncePayload, bool) {
	if m.Type != KindAnnounce || m.Component != ComponentSystem {
		return AnnouncePayload{}, false
	}
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return AnnouncePayload{}, false
	}
	var ap AnnouncePayload
	if err := json.Unmarshal(raw, &ap); err != nil {
		return AnnouncePayload{}, false
	}
	if ap.PeerID == "" || ap.Role == "" || ap.Status == "" {
		return AnnouncePayload{}, false
	}
	return ap, true
}

// IsSystem reports whether the message is system-level (no target).
func (m Message) IsSystem() bool {
	return m.Component == ComponentSystem || m.Component == ComponentGlobal
}
