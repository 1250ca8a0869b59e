// Package render draws match snapshots to images for the HTTP preview.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"sync"

	"trail-arena/internal/game"

	"github.com/fogleman/gg"
)

const (
	DefaultSize = 512
	MinSize     = 64
	MaxSize     = 2048
)

var (
	background = color.RGBA{12, 12, 28, 255}
	gridColor  = color.RGBA{30, 30, 45, 255}
	wallColor  = color.RGBA{200, 200, 220, 255}
	bonusColor = color.RGBA{255, 215, 0, 255}
)

// Renderer draws snapshots onto a reusable square canvas.
// It is safe for concurrent use; renders are serialized.
type Renderer struct {
	mu   sync.Mutex
	size int
	dc   *gg.Context
}

// NewRenderer creates a renderer producing size x size images.
func NewRenderer(size int) *Renderer {
	size = ClampSize(size)
	return &Renderer{size: size, dc: gg.NewContext(size, size)}
}

// ClampSize bounds a requested image size.
func ClampSize(size int) int {
	if size <= 0 {
		return DefaultSize
	}
	return min(MaxSize, max(MinSize, size))
}

// Size returns the image side in pixels.
func (r *Renderer) Size() int {
	return r.size
}

// PNG renders snap and encodes it as PNG.
func (r *Renderer) PNG(snap game.Snapshot) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.draw(snap)
	var buf bytes.Buffer
	if err := r.dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode arena png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) draw(snap game.Snapshot) {
	dc := r.dc
	px := float64(r.size)
	scale := 1.0
	if snap.Size > 0 {
		scale = px / snap.Size
	}

	dc.SetColor(background)
	dc.DrawRectangle(0, 0, px, px)
	dc.Fill()
	r.drawGrid(snap, scale)

	colors := make(map[string]color.RGBA, len(snap.Avatars))
	for _, a := range snap.Avatars {
		colors[a.ID] = parseHexColor(a.Color)
	}

	for _, t := range snap.Trails {
		c, ok := colors[t.Owner]
		if !ok {
			c = wallColor
		}
		dc.SetColor(c)
		dc.DrawCircle(t.X*scale, t.Y*scale, max(t.Radius*scale, 1))
		dc.Fill()
	}

	dc.SetColor(bonusColor)
	dc.SetLineWidth(2)
	for _, b := range snap.Bonuses {
		dc.DrawCircle(b.X*scale, b.Y*scale, max(b.Radius*scale, 2))
		dc.Stroke()
	}

	for _, a := range snap.Avatars {
		if !a.Present {
			continue
		}
		c := colors[a.ID]
		if !a.Alive {
			c.A = 120
		}
		dc.SetColor(c)
		dc.DrawCircle(a.X*scale, a.Y*scale, max(a.Radius*scale*1.5, 2))
		dc.Fill()
	}

	if !snap.Borderless {
		dc.SetColor(wallColor)
		dc.SetLineWidth(2)
		dc.DrawRectangle(1, 1, px-2, px-2)
		dc.Stroke()
	}
}

// drawGrid outlines the spatial grid cells.
func (r *Renderer) drawGrid(snap game.Snapshot, scale float64) {
	if snap.Grid.CellSize <= 0 {
		return
	}
	dc := r.dc
	px := float64(r.size)
	step := snap.Grid.CellSize * scale
	if step < 8 {
		return
	}
	dc.SetColor(gridColor)
	dc.SetLineWidth(1)
	for x := step; x < px; x += step {
		dc.DrawLine(x, 0, x, px)
		dc.Stroke()
	}
	for y := step; y < px; y += step {
		dc.DrawLine(0, y, px, y)
		dc.Stroke()
	}
}

func parseHexColor(hex string) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return color.RGBA{255, 255, 255, 255}
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{255, 255, 255, 255}
	}
	return color.RGBA{r, g, b, 255}
}
