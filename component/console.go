package component

import (
	"fmt"
	"sync"

	"github.com/sidekick-live/sidekick-go/message"
)

// Console is a scrolling text panel with an optional input line.
type Console struct {
	base

	cbMu    sync.Mutex
	onInput func(text string)
	onError func(msg string)
}

// NewConsole spawns a console in the Sidekick panel. Creating it before
// the session is active is fine; the spawn command is queued.
func NewConsole() (*Console, error) {
	c := &Console{}
	if err := c.init("console", nil, c.handle); err != nil {
		return nil, err
	}
	return c, nil
}

// Print appends one line of text.
func (c *Console) Print(args ...any) error {
	return c.update("append", map[string]any{"text": fmt.Sprintln(args...)})
}

// Printf appends formatted text.
func (c *Console) Printf(format string, args ...any) error {
	return c.update("append", map[string]any{"text": fmt.Sprintf(format, args...)})
}

// Clear empties the console.
func (c *Console) Clear() error {
	return c.update("clear", nil)
}

// OnInput sets the callback for text submitted in the console's input
// line. The callback runs on the session's dispatch goroutine.
func (c *Console) OnInput(fn func(text string)) {
	c.cbMu.Lock()
	c.onInput = fn
	c.cbMu.Unlock()
}

// OnError sets the callback for UI-reported errors on this console.
func (c *Console) OnError(fn func(msg string)) {
	c.cbMu.Lock()
	c.onError = fn
	c.cbMu.Unlock()
}

func (c *Console) handle(msg message.Message) {
	switch msg.Type {
	case message.KindEvent:
		if eventName(msg) != "submit" {
			return
		}
		c.cbMu.Lock()
		fn := c.onInput
		c.cbMu.Unlock()
		if fn != nil {
			fn(payloadString(msg.Payload, "text"))
		}
	case message.KindError:
		c.cbMu.Lock()
		fn := c.onError
		c.cbMu.Unlock()
		if fn != nil {
			fn(payloadString(msg.Payload, "message"))
		}
	}
}
