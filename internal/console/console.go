// Package console renders sys_log's VGA-device writes onto an
// in-memory text grid the way the framebuffer text console renders
// onto the real one: a fixed character grid, a cursor that advances
// and wraps, and scroll-up-by-one-row once the cursor reaches the
// bottom. Grounded on iansmith-mazarin's
// src/go/mazarin/framebuffer_text.go, ported from direct MMIO pixel
// writes to an in-memory gg.Context backbuffer since this port has no
// real framebuffer to write through.
package console

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// charWidth and charHeight are the fixed glyph cell dimensions the
// default bitmap face renders at, mirroring framebuffer_text.go's own
// fixed 8x8 cell (basicfont's 7x13 face is the nearest stock
// replacement available without a bundled TTF).
const (
	charWidth  = 7
	charHeight = 13
)

// TextConsole is a fixed character grid rendered into an in-memory
// RGBA backbuffer. It never touches real hardware; its writers are
// internal/syscall's sys_log handler (through DeviceSink) and
// cmd/kernel's boot breadcrumbs, and a caller is free to flush Image()
// to whatever framebuffer it owns.
type TextConsole struct {
	dc   *gg.Context
	cols int
	rows int
	x    int
	y    int
	fg   color.Color
	bg   color.Color
}

// NewTextConsole allocates a cols x rows character grid, filled with
// the background color, using the stock basicfont face until LoadFont
// installs a real TTF.
func NewTextConsole(cols, rows int) *TextConsole {
	dc := gg.NewContext(cols*charWidth, rows*charHeight)
	c := &TextConsole{
		dc:   dc,
		cols: cols,
		rows: rows,
		fg:   color.White,
		bg:   color.Black,
	}
	dc.SetFontFace(basicfont.Face7x13)
	c.clear()
	return c
}

// LoadFont swaps in a real TTF face loaded from path, exercising the
// same freetype-backed path gg.LoadFontFace always does; path is
// deployment-specific (there's no bundled font asset in this module),
// so callers that don't have one simply never call this and keep the
// stock basicfont face.
func (c *TextConsole) LoadFont(path string, points float64) error {
	return c.dc.LoadFontFace(path, points)
}

func (c *TextConsole) clear() {
	c.dc.SetColor(c.bg)
	c.dc.Clear()
	c.dc.SetColor(c.fg)
}

// WriteString renders s onto the grid, advancing the cursor and
// wrapping/scrolling exactly as framebuffer_text.go's
// FramebufferPutc/AdvanceCursor/HandleNewline do: printable ASCII
// advances the cursor one cell, '\n' moves to the next line, and
// reaching the last row scrolls everything up by one row.
func (c *TextConsole) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\n':
			c.newline()
		case ch >= 32 && ch < 127:
			c.putChar(ch)
			c.advance()
		}
	}
}

func (c *TextConsole) putChar(ch byte) {
	px := float64(c.x * charWidth)
	py := float64((c.y+1)*charHeight) - 3 // baseline offset, matching gg's DrawString anchor
	c.dc.SetColor(c.fg)
	c.dc.DrawString(string(ch), px, py)
}

func (c *TextConsole) advance() {
	c.x++
	if c.x >= c.cols {
		c.x = 0
		c.y++
		if c.y >= c.rows {
			c.scrollUp()
			c.y = c.rows - 1
		}
	}
}

func (c *TextConsole) newline() {
	c.x = 0
	c.y++
	if c.y >= c.rows {
		c.scrollUp()
		c.y = c.rows - 1
	}
}

// scrollUp shifts the whole backbuffer up by one character row and
// clears the freed bottom row, the same two-step ScrollScreenUp does
// on the real framebuffer's raw scanlines.
func (c *TextConsole) scrollUp() {
	img := c.dc.Image()
	shifted := image.NewRGBA(img.Bounds())
	draw := gg.NewContextForImage(shifted)
	draw.DrawImage(img, 0, -charHeight)
	draw.SetColor(c.bg)
	draw.DrawRectangle(0, float64((c.rows-1)*charHeight), float64(c.cols*charWidth), charHeight)
	draw.Fill()

	c.dc = gg.NewContextForImage(draw.Image())
	c.dc.SetFontFace(basicfont.Face7x13)
}

// Image returns the current backbuffer, for a caller that wants to
// blit it onto a real framebuffer or dump it for inspection.
func (c *TextConsole) Image() image.Image { return c.dc.Image() }
