package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBase64(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodeBase64_RawAndDataURI(t *testing.T) {
	src := solid(4, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	enc := pngBase64(t, src)
	for _, in := range []string{enc, "data:image/png;base64," + enc} {
		img, err := DecodeBase64(in)
		if err != nil {
			t.Fatalf("decode %q...: %v", in[:10], err)
		}
		if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
			t.Fatalf("bounds=%v", b)
		}
	}
}

func TestDecodeBase64_Errors(t *testing.T) {
	cases := []string{"", "data:image/png;base64,", "!!!not-base64!!!", base64.StdEncoding.EncodeToString([]byte("not an image"))}
	for _, in := range cases {
		if _, err := DecodeBase64(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	if _, err := DecodeBase64("  "); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func TestToRGB_DropsAlphaWithoutCompositing(t *testing.T) {
	src := solid(2, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	out := ToRGB(src)
	c := out.RGBAAt(1, 1)
	if c != (color.RGBA{R: 200, G: 100, B: 50, A: 255}) {
		t.Fatalf("got %+v", c)
	}
}

func TestHasTransparency(t *testing.T) {
	if HasTransparency(solid(2, 2, color.NRGBA{A: 255})) {
		t.Fatalf("opaque image reported transparent")
	}
	img := solid(2, 2, color.NRGBA{A: 255})
	img.SetNRGBA(0, 0, color.NRGBA{A: 10})
	if !HasTransparency(img) {
		t.Fatalf("expected transparency")
	}
}

func TestResizeForeground(t *testing.T) {
	// 10x10 canvas, foreground block covering x 2..6 and y 3..5 inclusive.
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 3; y <= 5; y++ {
		for x := 2; x <= 6; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}
	out, err := ResizeForeground(img, 0.5)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	// crop is 4 wide x 2 tall (max excluded), square side 4, output side 8
	if out.Rect.Dx() != 8 || out.Rect.Dy() != 8 {
		t.Fatalf("size=%v", out.Rect)
	}
	// pad=2, ph0=1, pw0=0: foreground at x 2..5, y 3..4
	if out.NRGBAAt(2, 3).A != 255 || out.NRGBAAt(5, 4).A != 255 {
		t.Fatalf("foreground not placed as expected")
	}
	if out.NRGBAAt(1, 3).A != 0 || out.NRGBAAt(2, 2).A != 0 || out.NRGBAAt(2, 5).A != 0 {
		t.Fatalf("padding should be transparent")
	}
}

func TestResizeForeground_Errors(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	if _, err := ResizeForeground(empty, 0.85); !errors.Is(err, ErrNoForeground) {
		t.Fatalf("expected ErrNoForeground, got %v", err)
	}
	full := solid(4, 4, color.NRGBA{A: 255})
	for _, r := range []float64{0, -1, 1.5} {
		if _, err := ResizeForeground(full, r); err == nil {
			t.Fatalf("expected error for ratio %v", r)
		}
	}
}

func TestCompositeGray(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255}) // opaque white stays white
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 0})       // transparent becomes gray
	img.SetNRGBA(2, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})       // opaque black stays black
	out := CompositeGray(img)
	if c := out.RGBAAt(0, 0); c.R != 255 || c.G != 255 || c.A != 255 {
		t.Fatalf("white=%+v", c)
	}
	if c := out.RGBAAt(1, 0); c.R != 127 || c.G != 127 || c.B != 127 {
		t.Fatalf("gray=%+v", c)
	}
	if c := out.RGBAAt(2, 0); c.R != 0 || c.B != 0 {
		t.Fatalf("black=%+v", c)
	}
}

func TestResizeAndEncodeJPEG(t *testing.T) {
	out := Resize(solid(37, 21, color.NRGBA{G: 200, A: 255}), 512, 512)
	if out.Rect.Dx() != 512 || out.Rect.Dy() != 512 {
		t.Fatalf("size=%v", out.Rect)
	}
	b, err := EncodeJPEG(out)
	if err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(b)); err != nil {
		t.Fatalf("output is not jpeg: %v", err)
	}
	b2, _ := EncodeJPEG(out)
	if !bytes.Equal(b, b2) {
		t.Fatalf("jpeg encoding is not deterministic")
	}
}

func TestEncodePNGBase64RoundTrip(t *testing.T) {
	s, err := EncodePNGBase64(solid(3, 3, color.NRGBA{B: 9, A: 255}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := DecodeBase64(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 3 {
		t.Fatalf("bounds=%v", img.Bounds())
	}
}

// pngWithHeaderSize returns a 1x1 PNG whose IHDR claims w x h.
func pngWithHeaderSize(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(1, 1, color.NRGBA{A: 255})); err != nil {
		t.Fatalf("png: %v", err)
	}
	b := buf.Bytes()
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestDecodeBase64_RejectsOversizedHeader(t *testing.T) {
	raw := pngWithHeaderSize(t, 100000, 100000)
	_, err := DecodeBase64(base64.StdEncoding.EncodeToString(raw))
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestResizeForeground_TinyRatioRefused(t *testing.T) {
	full := solid(40, 40, color.NRGBA{A: 255})
	for _, r := range []float64{0.002, 1e-300} {
		if _, err := ResizeForeground(full, r); !errors.Is(err, ErrImageTooLarge) {
			t.Fatalf("ratio %v: expected ErrImageTooLarge, got %v", r, err)
		}
	}
	out, err := ResizeForeground(full, 0.05)
	if err != nil {
		t.Fatalf("ratio 0.05: %v", err)
	}
	if out.Rect.Dx() > MaxSide {
		t.Fatalf("side %d above limit", out.Rect.Dx())
	}
}
