// Package compositor draws a local try-on preview by overlaying clothing photos on a person photo.
// It never calls a remote service, the result depends only on the inputs.
package compositor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"tryonapi/services"
)

const (
	CanvasWidth  = 800
	CanvasHeight = 1000

	photoFit     = 0.9
	overlayAlpha = 0.85

	titleBandHeight = 40
	title           = "Virtual Try-On Preview"
)

// OpLocalComposite names local composition failures.
const OpLocalComposite = "local_composite"

var ErrEmptyEncoding = errors.New("canvas produced an empty image")

var (
	labelBackground = color.NRGBA{A: 180}
	titleBackground = color.NRGBA{R: 33, G: 33, B: 33, A: 230}
)

type Item struct {
	Image       services.ImageAsset
	Description string
}

type Compositor struct {
	NewCanvas func(width, height int) Canvas
}

func New() *Compositor {
	return &Compositor{NewCanvas: func(width, height int) Canvas {
		return NewRasterCanvas(width, height)
	}}
}

// FitRect scales a w×h photo into 90% of the canvas, preserving aspect ratio, and centers it.
func FitRect(w, h int) Rect {
	scale := math.Min(CanvasWidth*photoFit/float64(w), CanvasHeight*photoFit/float64(h))
	sw, sh := float64(w)*scale, float64(h)*scale
	return Rect{X: (CanvasWidth - sw) / 2, Y: (CanvasHeight - sh) / 2, W: sw, H: sh}
}

// Composite returns the base64 PNG of base dressed with items.
// Decoding happens in input order so a failure names the first bad item.
func (c *Compositor) Composite(base services.ImageAsset, items []Item) (string, error) {
	canvas := c.NewCanvas(CanvasWidth, CanvasHeight)
	canvas.FillRect(canvas.Bounds(), color.White)

	photo, err := services.DecodeAsset(base)
	if err != nil {
		return "", decodeError(fmt.Errorf("base photo: %w", err))
	}

	clothing := make([]image.Image, len(items))
	descriptions := make([]string, len(items))
	for i, item := range items {
		img, err := services.DecodeAsset(item.Image)
		if err != nil {
			return "", decodeError(fmt.Errorf("clothing item %d: %w", i+1, err))
		}
		clothing[i] = img
		descriptions[i] = item.Description
	}

	photoRect := FitRect(photo.Bounds().Dx(), photo.Bounds().Dy())
	canvas.DrawImage(photo, toRectangle(photoRect), DrawOptions{Mode: SourceOver, Alpha: 1})

	regions := EstimateBodyRegions(photoRect)
	overlays := PlanOverlays(regions, descriptions)
	for _, o := range overlays {
		canvas.DrawImage(clothing[o.Index], toRectangle(o.Rect), DrawOptions{Mode: SourceAtop, Alpha: overlayAlpha})
	}

	if len(overlays) > 1 {
		for _, o := range overlays {
			drawLabel(canvas, o)
		}
	}
	drawTitle(canvas)

	encoded, err := canvas.EncodePNG()
	if err != nil {
		return "", compositeError(services.KindUnknown, fmt.Errorf("encode canvas: %w", err))
	}
	if len(encoded) == 0 {
		return "", compositeError(services.KindUnknown, ErrEmptyEncoding)
	}
	return base64.StdEncoding.EncodeToString(encoded), nil
}

func decodeError(err error) *services.GenerationError {
	return compositeError(services.KindDecode, err)
}

func compositeError(kind services.FailureKind, err error) *services.GenerationError {
	return &services.GenerationError{
		Kind:    kind,
		Op:      OpLocalComposite,
		Message: services.UserMessage(kind),
		Err:     err,
	}
}

func drawLabel(canvas Canvas, o Overlay) {
	text := fmt.Sprintf("%d. %s", o.Index+1, o.Description)
	x, y := int(o.Rect.X), int(o.Rect.Y)
	canvas.FillRect(image.Rect(x, y, x+canvas.MeasureText(text)+8, y+18), labelBackground)
	canvas.FillText(text, x+4, y+13, color.White)
}

func drawTitle(canvas Canvas) {
	width := canvas.Bounds().Dx()
	canvas.FillRect(image.Rect(0, 0, width, titleBandHeight), titleBackground)
	canvas.FillText(title, (width-canvas.MeasureText(title))/2, titleBandHeight/2+5, color.White)
}

func toRectangle(r Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)),
		int(math.Round(r.Y+r.H)),
	)
}
