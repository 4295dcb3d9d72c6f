package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type CompositeMode int

const (
	// SourceOver paints the source on top of the destination.
	SourceOver CompositeMode = iota
	// SourceAtop paints the source only where the destination is already opaque,
	// keeping the destination alpha.
	SourceAtop
)

type DrawOptions struct {
	Mode  CompositeMode
	Alpha float64
}

// Canvas is the 2D raster surface the compositor draws on.
type Canvas interface {
	Bounds() image.Rectangle
	FillRect(r image.Rectangle, c color.Color)
	// DrawImage scales img into dst and blends it with the given mode and global alpha.
	DrawImage(img image.Image, dst image.Rectangle, opts DrawOptions)
	// FillText draws text with its baseline starting at (x, y).
	FillText(text string, x, y int, c color.Color)
	MeasureText(text string) int
	EncodePNG() ([]byte, error)
}

var _ Canvas = (*RasterCanvas)(nil)

// RasterCanvas is a software Canvas backed by an RGBA image.
type RasterCanvas struct {
	img  *image.RGBA
	face font.Face
}

func NewRasterCanvas(width, height int) *RasterCanvas {
	return &RasterCanvas{
		img:  image.NewRGBA(image.Rect(0, 0, width, height)),
		face: basicfont.Face7x13,
	}
}

func (c *RasterCanvas) Image() *image.RGBA {
	return c.img
}

func (c *RasterCanvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

func (c *RasterCanvas) FillRect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Over)
}

func (c *RasterCanvas) DrawImage(img image.Image, dst image.Rectangle, opts DrawOptions) {
	dst = dst.Intersect(c.img.Bounds())
	if dst.Empty() {
		return
	}
	scaled := image.NewRGBA(image.Rect(0, 0, dst.Dx(), dst.Dy()))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	alpha := clamp01(opts.Alpha)
	for y := 0; y < dst.Dy(); y++ {
		for x := 0; x < dst.Dx(); x++ {
			s := scaled.RGBAAt(x, y)
			d := c.img.RGBAAt(dst.Min.X+x, dst.Min.Y+y)
			c.img.SetRGBA(dst.Min.X+x, dst.Min.Y+y, blend(s, d, alpha, opts.Mode))
		}
	}
}

// blend combines premultiplied source and destination pixels.
func blend(s, d color.RGBA, alpha float64, mode CompositeMode) color.RGBA {
	sa := float64(s.A) / 255 * alpha
	da := float64(d.A) / 255
	channel := func(sc, dc uint8) uint8 {
		src := float64(sc) * alpha
		switch mode {
		case SourceAtop:
			return uint8(src*da + float64(dc)*(1-sa) + 0.5)
		default:
			return uint8(src + float64(dc)*(1-sa) + 0.5)
		}
	}

	out := color.RGBA{
		R: channel(s.R, d.R),
		G: channel(s.G, d.G),
		B: channel(s.B, d.B),
		A: d.A,
	}
	if mode == SourceOver {
		out.A = uint8((sa+da*(1-sa))*255 + 0.5)
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func (c *RasterCanvas) FillText(text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: c.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func (c *RasterCanvas) MeasureText(text string) int {
	return font.MeasureString(c.face, text).Ceil()
}

func (c *RasterCanvas) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
