package component

import (
	"sync"

	"github.com/sidekick-live/sidekick-go/message"
)

// Control is a panel of buttons and text inputs, each identified by a
// caller-chosen control id.
type Control struct {
	base

	cbMu     sync.Mutex
	onClick  func(controlID string)
	onSubmit func(controlID, text string)
}

// NewControl spawns an empty control panel.
func NewControl() (*Control, error) {
	c := &Control{}
	if err := c.init("control", nil, c.handle); err != nil {
		return nil, err
	}
	return c, nil
}

// AddButton adds a button with the given control id and label.
func (c *Control) AddButton(controlID, label string) error {
	return c.update("add", map[string]any{
		"controlId": controlID,
		"kind":      "button",
		"label":     label,
	})
}

// AddTextInput adds a text input with the given control id.
func (c *Control) AddTextInput(controlID, placeholder string) error {
	return c.update("add", map[string]any{
		"controlId":   controlID,
		"kind":        "textInput",
		"placeholder": placeholder,
	})
}

// RemoveControl removes one button or input from the panel.
func (c *Control) RemoveControl(controlID string) error {
	return c.update("remove", map[string]any{"controlId": controlID})
}

// OnClick sets the callback for button presses.
func (c *Control) OnClick(fn func(controlID string)) {
	c.cbMu.Lock()
	c.onClick = fn
	c.cbMu.Unlock()
}

// OnSubmit sets the callback for submitted text inputs.
func (c *Control) OnSubmit(fn func(controlID, text string)) {
	c.cbMu.Lock()
	c.onSubmit = fn
	c.cbMu.Unlock()
}

func (c *Control) handle(msg message.Message) {
	if msg.Type != message.KindEvent {
		return
	}
	switch eventName(msg) {
	case "click":
		c.cbMu.Lock()
		fn := c.onClick
		c.cbMu.Unlock()
		if fn != nil {
			fn(payloadString(msg.Payload, "controlId"))
		}
	case "submit":
		c.cbMu.Lock()
		fn := c.onSubmit
		c.cbMu.Unlock()
		if fn != nil {
			fn(payloadString(msg.Payload, "controlId"), payloadString(msg.Payload, "text"))
		}
	}
}
