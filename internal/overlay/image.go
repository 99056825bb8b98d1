package overlay

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/fogleman/gg"
)

// ImageCanvas rasterizes the overlay into an RGBA image with a transparent
// background.
type ImageCanvas struct {
	dc *gg.Context
}

var _ Canvas = (*ImageCanvas)(nil)

// NewImageCanvas creates a width x height canvas.
func NewImageCanvas(width, height int) *ImageCanvas {
	return &ImageCanvas{dc: gg.NewContext(width, height)}
}

// LoadFont replaces the built-in bitmap face, which has no degree sign.
func (c *ImageCanvas) LoadFont(path string, points float64) error {
	if err := c.dc.LoadFontFace(path, points); err != nil {
		return fmt.Errorf("loading font %s: %w", path, err)
	}
	return nil
}

func (c *ImageCanvas) Size() (int, int) { return c.dc.Width(), c.dc.Height() }

func (c *ImageCanvas) Clear() {
	c.dc.SetRGBA(0, 0, 0, 0)
	c.dc.Clear()
}

func (c *ImageCanvas) Line(x1, y1, x2, y2 float64, s Style) {
	c.dc.SetColor(s.Color)
	c.dc.SetLineWidth(s.Width)
	c.dc.DrawLine(x1, y1, x2, y2)
	c.dc.Stroke()
}

func (c *ImageCanvas) Circle(x, y, r float64, s Style) {
	c.dc.SetColor(s.Color)
	c.dc.DrawCircle(x, y, r)
	c.dc.Fill()
}

func (c *ImageCanvas) Arc(x, y, r, start, end float64, s Style) {
	c.dc.SetColor(s.Color)
	c.dc.SetLineWidth(s.Width)
	c.dc.NewSubPath()
	c.dc.DrawArc(x, y, r, start, end)
	c.dc.Stroke()
}

func (c *ImageCanvas) Text(text string, x, y float64, s Style) {
	c.dc.SetColor(s.Color)
	c.dc.DrawStringAnchored(text, x, y, 0, 0.5)
}

// Image returns the rendered image. It is redrawn in place by the next render.
func (c *ImageCanvas) Image() image.Image { return c.dc.Image() }

// Copy returns a copy of the rendered image that later renders leave alone.
func (c *ImageCanvas) Copy() *image.RGBA {
	src := c.dc.Image()
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
