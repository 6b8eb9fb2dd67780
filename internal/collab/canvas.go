package collab

import (
	"sync"

	"github.com/MentalFish/huddle/internal/protocol"
)

// Default brush settings for a fresh canvas.
const (
	DefaultTool  = "pen"
	DefaultColor = "#000000"
	DefaultWidth = 2
)

// Stroke is one drawing segment. Strokes are never merged or deduplicated;
// two identical segments are two entries, which keeps repeated pen passes
// visually additive.
type Stroke struct {
	UserID string
	Tool   string
	Color  string
	Width  float64
	From   protocol.Point
	To     protocol.Point
}

// Canvas is the local replica of the shared drawing surface: an
// append-only stroke log plus the local brush settings.
type Canvas struct {
	mu      sync.RWMutex
	strokes []Stroke
	tool    string
	color   string
	width   float64
}

func NewCanvas() *Canvas {
	return &Canvas{tool: DefaultTool, color: DefaultColor, width: DefaultWidth}
}

// SetTool selects the local brush tool for subsequent strokes.
func (c *Canvas) SetTool(tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tool = tool
}

// SetColor selects the local brush color for subsequent strokes.
func (c *Canvas) SetColor(color string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.color = color
}

// SetWidth selects the local brush width for subsequent strokes.
func (c *Canvas) SetWidth(width float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
}

// Brush returns the current local tool, color and width.
func (c *Canvas) Brush() (tool, color string, width float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tool, c.color, c.width
}

// Append records one stroke at the end of the log.
func (c *Canvas) Append(s Stroke) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strokes = append(c.strokes, s)
}

// Clear discards every stroke. Brush settings survive.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strokes = nil
}

// Strokes returns a copy of the stroke log in append order.
func (c *Canvas) Strokes() []Stroke {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Stroke(nil), c.strokes...)
}

// Len returns the number of recorded strokes.
func (c *Canvas) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.strokes)
}
