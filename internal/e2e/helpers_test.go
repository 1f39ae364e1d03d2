package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"gpuserve/internal/app"
	"gpuserve/internal/config"
)

// slowWorker is a model worker whose img2img pass blocks until release is
// closed. started receives once per generate call.
type slowWorker struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	out     string
}

func newSlowWorker(t *testing.T) *slowWorker {
	return &slowWorker{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
		out:     pngBase64(t, 512, 512),
	}
}

func (s *slowWorker) unblock() { s.once.Do(func() { close(s.release) }) }

func (s *slowWorker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/healthz":
		w.WriteHeader(http.StatusOK)
	case "/v1/img2img/load":
		_ = json.NewEncoder(w).Encode(map[string]string{"pipeline_id": "p-1"})
	case "/v1/img2img/generate":
		s.started <- struct{}{}
		select {
		case <-s.release:
		case <-r.Context().Done():
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"image": s.out})
	default:
		http.NotFound(w, r)
	}
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// newDiffusionServer starts a ready diffusion app backed by worker.
func newDiffusionServer(t *testing.T, worker http.Handler, mutate func(*config.Config)) (*httptest.Server, *app.App) {
	t.Helper()
	ws := httptest.NewServer(worker)
	t.Cleanup(ws.Close)
	cfg := config.Config{
		Service:    config.ServiceDiffusion,
		CacheDir:   t.TempDir(),
		ScratchDir: t.TempDir(),
		WorkerURL:  ws.URL,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Defaults(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	a, err := app.New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Start(context.Background(), 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	// close the server first so blocked handlers return before the worker goes
	t.Cleanup(func() { _ = a.Close() })
	t.Cleanup(srv.Close)
	return srv, a
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func httpPostJSON(url string, payload []byte) (*http.Response, []byte, error) {
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b, nil
}
