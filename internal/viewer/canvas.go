package viewer

import (
	"fmt"
	"strings"

	"github.com/smileynet/slidescope/internal/intensity"
)

// canvasState manages the mouse field: cell-to-pixel projection and the
// crosshair rendering for the canvas pane.
type canvasState struct {
	imgWidth  int
	imgHeight int
	width     int // pane content width in cells
	height    int // pane content height in cells

	cursor    intensity.PixelKey // image pixel under the pointer
	hasCursor bool
}

// SetImage sets the image dimensions the canvas projects onto.
func (cs canvasState) SetImage(width, height int) canvasState {
	cs.imgWidth = width
	cs.imgHeight = height
	cs.hasCursor = false
	return cs
}

// SetSize sets the pane content dimensions in terminal cells.
func (cs canvasState) SetSize(width, height int) canvasState {
	cs.width = width
	cs.height = height
	return cs
}

// PixelAt projects a cell position inside the pane onto an image pixel.
// Returns false when the canvas has no image or no size yet, or the cell
// lies outside the pane.
func (cs canvasState) PixelAt(cellX, cellY int) (intensity.PixelKey, bool) {
	if cs.imgWidth <= 0 || cs.imgHeight <= 0 || cs.width <= 0 || cs.height <= 0 {
		return intensity.PixelKey{}, false
	}
	if cellX < 0 || cellY < 0 || cellX >= cs.width || cellY >= cs.height {
		return intensity.PixelKey{}, false
	}
	return intensity.PixelKey{
		X: cellX * cs.imgWidth / cs.width,
		Y: cellY * cs.imgHeight / cs.height,
	}, true
}

// SetCursor places the crosshair on an image pixel.
func (cs canvasState) SetCursor(px intensity.PixelKey) canvasState {
	cs.cursor = px
	cs.hasCursor = true
	return cs
}

// ClearCursor removes the crosshair.
func (cs canvasState) ClearCursor() canvasState {
	cs.hasCursor = false
	return cs
}

// cellOf maps an image pixel back to its pane cell, for crosshair placement.
func (cs canvasState) cellOf(px intensity.PixelKey) (int, int) {
	x := px.X * cs.width / cs.imgWidth
	y := px.Y * cs.height / cs.imgHeight
	if x >= cs.width {
		x = cs.width - 1
	}
	if y >= cs.height {
		y = cs.height - 1
	}
	return x, y
}

// View renders the dot field with the crosshair.
func (cs canvasState) View() string {
	if cs.imgWidth <= 0 || cs.imgHeight <= 0 {
		return "No image"
	}
	if cs.width <= 0 || cs.height <= 0 {
		return ""
	}

	cx, cy := -1, -1
	if cs.hasCursor {
		cx, cy = cs.cellOf(cs.cursor)
	}

	var b strings.Builder
	for y := 0; y < cs.height; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < cs.width; x++ {
			switch {
			case x == cx && y == cy:
				b.WriteRune('┼')
			case x == cx:
				b.WriteRune('│')
			case y == cy:
				b.WriteRune('─')
			default:
				b.WriteRune('·')
			}
		}
	}
	return b.String()
}

// CursorLabel returns the "(x, y)" readout for the crosshair, or "" when
// the cursor is off the image.
func (cs canvasState) CursorLabel() string {
	if !cs.hasCursor {
		return ""
	}
	return fmt.Sprintf("(%d, %d)", cs.cursor.X, cs.cursor.Y)
}
