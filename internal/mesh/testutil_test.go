package mesh

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"
	"testing"
)

// fakeModel records the images it was given and exports fixed OBJ text.
type fakeModel struct {
	mu     sync.Mutex
	inputs []image.Image
	obj    string
	err    error
	closed bool
}

func (m *fakeModel) Reconstruct(ctx context.Context, imgs []image.Image) ([]SceneCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, imgs...)
	return []SceneCode{{ID: "scene-0"}}, nil
}

func (m *fakeModel) ExtractMeshes(ctx context.Context, codes []SceneCode) ([]Mesh, error) {
	return []Mesh{fakeMesh(m.obj)}, nil
}

func (m *fakeModel) Close() error { m.closed = true; return nil }

type fakeMesh string

func (f fakeMesh) Export(_ context.Context, path string) error {
	return os.WriteFile(path, []byte(f), 0o644)
}

type fakeLoader struct {
	model *fakeModel
	opts  []LoadOptions
	err   error
}

func (l *fakeLoader) Load(ctx context.Context, opts LoadOptions) (Reconstructor, error) {
	l.opts = append(l.opts, opts)
	if l.err != nil {
		return nil, l.err
	}
	return l.model, nil
}

// fakeRemover makes every pixel outside a centered box transparent.
type fakeRemover struct {
	mu       sync.Mutex
	sessions int
	removes  int
	closes   int
}

func (r *fakeRemover) NewSession(ctx context.Context) (Session, error) {
	r.mu.Lock()
	r.sessions++
	r.mu.Unlock()
	return &fakeSession{r: r}, nil
}

type fakeSession struct{ r *fakeRemover }

func (s *fakeSession) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	s.r.mu.Lock()
	s.r.removes++
	s.r.mu.Unlock()
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if x < b.Dx()/4 || x >= 3*b.Dx()/4 || y < b.Dy()/4 || y >= 3*b.Dy()/4 {
				c.A = 0
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

func (s *fakeSession) Close() error {
	s.r.mu.Lock()
	s.r.closes++
	s.r.mu.Unlock()
	return nil
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newLoaded(t *testing.T, cfg Config) (*Service, *fakeModel, *fakeRemover) {
	t.Helper()
	model := &fakeModel{obj: "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"}
	rem := &fakeRemover{}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = t.TempDir()
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = t.TempDir()
	}
	cfg.Loader = &fakeLoader{model: model}
	cfg.Remover = rem
	s := New(cfg)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s, model, rem
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

func encodeNRGBA(t *testing.T, img *image.NRGBA) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
