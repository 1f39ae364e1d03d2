// Package imaging holds the bitmap plumbing shared by the inference services:
// decoding request payloads, preparing foreground images and encoding results.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"

	// Decoders registered for image.Decode.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// JPEGQuality matches the encoder default of the original service.
const JPEGQuality = 75

// Bitmaps larger than MaxPixels are refused, both when decoding requests
// and when padding a foreground crop. MaxSide bounds the padded square.
const (
	MaxSide   = 8192
	MaxPixels = MaxSide * MaxSide
)

var (
	ErrEmptyImage    = errors.New("image is empty")
	ErrNoForeground  = errors.New("image has no foreground pixels")
	ErrImageTooLarge = errors.New("image is too large")
)

// DecodeBase64 decodes a raw base64 string or a data URI
// ("data:image/png;base64,....") into a bitmap. Everything up to the last
// comma is treated as header and dropped.
func DecodeBase64(s string) (image.Image, error) {
	if i := strings.LastIndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyImage
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// ToNRGBA returns img as non-premultiplied RGBA, copying only when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetNRGBA(x, y, color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA))
		}
	}
	return out
}

// ToRGB drops the alpha channel: color values are kept as stored and every
// pixel becomes opaque. No compositing happens.
func ToRGB(img image.Image) *image.RGBA {
	n := ToNRGBA(img)
	out := image.NewRGBA(n.Rect)
	for i := 0; i+3 < len(n.Pix); i += 4 {
		out.Pix[i] = n.Pix[i]
		out.Pix[i+1] = n.Pix[i+1]
		out.Pix[i+2] = n.Pix[i+2]
		out.Pix[i+3] = 0xff
	}
	return out
}

// HasTransparency reports whether any pixel has alpha below 255.
func HasTransparency(img image.Image) bool {
	switch img.(type) {
	case *image.YCbCr, *image.Gray, *image.Gray16, *image.CMYK:
		return false
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

// ResizeForeground crops img to the bounding box of its non-transparent
// pixels, pads the crop to a square, then pads again so that the square
// occupies ratio of the output side. Padding is fully transparent.
// The crop excludes the last foreground row and column. An output side
// above MaxSide yields ErrImageTooLarge.
func ResizeForeground(img *image.NRGBA, ratio float64) (*image.NRGBA, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("foreground ratio %v out of range (0,1]", ratio)
	}
	b := img.Rect
	x1, y1, x2, y2 := b.Max.X, b.Max.Y, -1, -1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A == 0 {
				continue
			}
			x1, y1 = min(x1, x), min(y1, y)
			x2, y2 = max(x2, x), max(y2, y)
		}
	}
	if x2 < 0 {
		return nil, ErrNoForeground
	}
	h, w := y2-y1, x2-x1
	if h <= 0 || w <= 0 {
		return nil, ErrNoForeground
	}
	size := max(h, w)
	ph0, pw0 := (size-h)/2, (size-w)/2
	side := float64(size) / ratio
	if side > MaxSide {
		return nil, fmt.Errorf("%w: foreground ratio %v pads to side %.0f, limit %d", ErrImageTooLarge, ratio, side, MaxSide)
	}
	newSize := int(side)
	pad := (newSize - size) / 2

	out := image.NewNRGBA(image.Rect(0, 0, newSize, newSize))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.SetNRGBA(pad+pw0+x, pad+ph0+y, img.NRGBAAt(x1+x, y1+y))
		}
	}
	return out, nil
}

// CompositeGray blends img over a mid-gray background:
// rgb*alpha + 0.5*(1-alpha), with channels scaled to [0,1].
func CompositeGray(img *image.NRGBA) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			c := img.NRGBAAt(img.Rect.Min.X+x, img.Rect.Min.Y+y)
			a := float32(c.A) / 255
			blend := func(v uint8) uint8 {
				f := float32(v)/255*a + (1-a)*0.5
				return uint8(f * 255)
			}
			out.SetRGBA(x, y, color.RGBA{R: blend(c.R), G: blend(c.G), B: blend(c.B), A: 0xff})
		}
	}
	return out
}

// Resize scales img to w×h with a bicubic kernel, dropping alpha first.
func Resize(img image.Image, w, h int) *image.RGBA {
	src := ToRGB(img)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(out, out.Rect, src, src.Rect, draw.Src, nil)
	return out
}

// EncodeJPEG encodes img as baseline JPEG at JPEGQuality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNGBase64 is EncodePNG followed by standard base64.
func EncodePNGBase64(img image.Image) (string, error) {
	b, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
