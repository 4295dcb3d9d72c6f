package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// MaxUploadDimension bounds every image sent to the generation service.
const MaxUploadDimension = 512

// ImageAsset is an image as it enters the system: raw file bytes or a base64 blob.
type ImageAsset struct {
	Name   string
	Data   []byte
	Base64 string
}

func AssetFromBytes(name string, data []byte) ImageAsset {
	return ImageAsset{Name: name, Data: data}
}

func AssetFromBase64(name string, encoded string) ImageAsset {
	return ImageAsset{Name: name, Base64: encoded}
}

// Bytes returns the encoded file content, decoding base64 (with or without a data URI prefix).
func (a ImageAsset) Bytes() ([]byte, error) {
	if len(a.Data) > 0 {
		return a.Data, nil
	}
	encoded := StripDataURI(a.Base64)
	if encoded == "" {
		return nil, fmt.Errorf("image %s is empty", a.label())
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("image %s is not valid base64: %w", a.label(), err)
	}
	return data, nil
}

func (a ImageAsset) label() string {
	if a.Name == "" {
		return "upload"
	}
	return a.Name
}

// StripDataURI removes a "data:<mime>;base64," prefix if present.
func StripDataURI(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

// DecodeAsset fully decodes the asset into pixels.
func DecodeAsset(a ImageAsset) (image.Image, error) {
	data, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", a.label(), err)
	}
	return img, nil
}

// PreparedImage is the canonical PNG form sent to the generation service.
type PreparedImage struct {
	Name   string
	PNG    []byte
	Width  int
	Height int
}

func (p *PreparedImage) Base64() string {
	return base64.StdEncoding.EncodeToString(p.PNG)
}

func (p *PreparedImage) DataURI() string {
	return "data:image/png;base64," + p.Base64()
}

// ScaledSize applies scale = min(maxDim/w, maxDim/h, 1) and rounds to whole pixels.
func ScaledSize(width, height, maxDim int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	scale := math.Min(math.Min(float64(maxDim)/float64(width), float64(maxDim)/float64(height)), 1)
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// PrepareImage decodes the asset, clamps its larger side to maxDim without upscaling and
// re-encodes it as PNG. A decode failure is a KindDecode error naming the asset.
func PrepareImage(a ImageAsset, maxDim int) (*PreparedImage, error) {
	img, err := DecodeAsset(a)
	if err != nil {
		return nil, newError(KindDecode, "prepare_image", err)
	}

	bounds := img.Bounds()
	w, h := ScaledSize(bounds.Dx(), bounds.Dy(), maxDim)
	if w != bounds.Dx() || h != bounds.Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, newError(KindDecode, "prepare_image", fmt.Errorf("failed to encode %s to png: %w", a.label(), err))
	}
	return &PreparedImage{Name: a.label(), PNG: buf.Bytes(), Width: w, Height: h}, nil
}

// WhitenBackgroundSmooth composites the image over white through a blurred luminance mask,
// so near-white background pixels become pure white with a feathered edge around the subject.
// - threshold: luminance (0-255) at or above which a pixel counts as background.
// - blurSigma: softness of the transition, 3.0 to 5.0 works well for packshots.
func WhitenBackgroundSmooth(imageBytes []byte, threshold uint8, blurSigma float64) ([]byte, error) {
	if blurSigma <= 0 {
		return nil, fmt.Errorf("blurSigma must be positive")
	}
	originalImg, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := originalImg.Bounds()

	// White = background, black = subject.
	mask := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := originalImg.At(x, y).RGBA()
			luminance := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			if luminance >= float64(threshold) {
				mask.SetGray(x, y, color.Gray{Y: 255})
			} else {
				mask.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	// imaging returns images anchored at (0,0).
	blurredMask := imaging.Blur(mask, blurSigma)

	finalImg := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b, a := originalImg.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			maskValue, _, _, _ := blurredMask.At(x, y).RGBA()
			keep := 1.0 - float64(maskValue)/65535.0

			finalImg.SetNRGBA(x, y, color.NRGBA{
				R: uint8((float64(r)*keep + 65535.0*(1.0-keep)) / 257),
				G: uint8((float64(g)*keep + 65535.0*(1.0-keep)) / 257),
				B: uint8((float64(b)*keep + 65535.0*(1.0-keep)) / 257),
				A: uint8(a / 257),
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, finalImg); err != nil {
		return nil, fmt.Errorf("failed to encode final image: %w", err)
	}
	return buf.Bytes(), nil
}
