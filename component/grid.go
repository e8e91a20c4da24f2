package component

import (
	"fmt"
	"sync"

	"github.com/sidekick-live/sidekick-go/message"
)

// Grid is a rectangular board of colored, optionally labeled cells.
type Grid struct {
	base

	columns int
	rows    int

	cbMu    sync.Mutex
	onClick func(x, y int)
	onError func(msg string)
}

// NewGrid spawns a grid with the given dimensions.
func NewGrid(columns, rows int) (*Grid, error) {
	if columns <= 0 || rows <= 0 {
		return nil, fmt.Errorf("component: grid dimensions must be positive, got %dx%d", columns, rows)
	}
	g := &Grid{columns: columns, rows: rows}
	options := map[string]any{"columns": columns, "rows": rows}
	if err := g.init("grid", options, g.handle); err != nil {
		return nil, err
	}
	return g, nil
}

// Columns returns the grid width.
func (g *Grid) Columns() int { return g.columns }

// Rows returns the grid height.
func (g *Grid) Rows() int { return g.rows }

func (g *Grid) checkCell(x, y int) error {
	if x < 0 || x >= g.columns || y < 0 || y >= g.rows {
		return fmt.Errorf("component: cell (%d,%d) outside %dx%d grid", x, y, g.columns, g.rows)
	}
	return nil
}

// SetColor sets one cell's background color (CSS color string).
func (g *Grid) SetColor(x, y int, color string) error {
	if err := g.checkCell(x, y); err != nil {
		return err
	}
	return g.update("setColor", map[string]any{"x": x, "y": y, "color": color})
}

// SetText sets one cell's label.
func (g *Grid) SetText(x, y int, text string) error {
	if err := g.checkCell(x, y); err != nil {
		return err
	}
	return g.update("setText", map[string]any{"x": x, "y": y, "text": text})
}

// Clear resets every cell.
func (g *Grid) Clear() error {
	return g.update("clear", nil)
}

// OnClick sets the callback for cell clicks. The callback runs on the
// session's dispatch goroutine.
func (g *Grid) OnClick(fn func(x, y int)) {
	g.cbMu.Lock()
	g.onClick = fn
	g.cbMu.Unlock()
}

// OnError sets the callback for UI-reported errors on this grid.
func (g *Grid) OnError(fn func(msg string)) {
	g.cbMu.Lock()
	g.onError = fn
	g.cbMu.Unlock()
}

func (g *Grid) handle(msg message.Message) {
	switch msg.Type {
	case message.KindEvent:
		if eventName(msg) != "click" {
			return
		}
		g.cbMu.Lock()
		fn := g.onClick
		g.cbMu.Unlock()
		if fn != nil {
			fn(payloadInt(msg.Payload, "x"), payloadInt(msg.Payload, "y"))
		}
	case message.KindError:
		g.cbMu.Lock()
		fn := g.onError
		g.cbMu.Unlock()
		if fn != nil {
			fn(payloadString(msg.Payload, "message"))
		}
	}
}
