package main_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds the binary")
	}
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/cmd/gpuserve/blackbox_test.go
	root := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	bin := filepath.Join(t.TempDir(), "gpuserve")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/gpuserve")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, out)
	}
	return bin
}

// fakeMeshWorker answers the reconstruction routes; load fails when failLoad.
func fakeMeshWorker(failLoad bool) http.Handler {
	obj := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		switch r.URL.Path {
		case "/healthz":
		case "/v1/tsr/load":
			if failLoad {
				http.Error(w, "no CUDA device", http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"model_id":"m-1"}`)
		case "/v1/tsr/forward":
			fmt.Fprint(w, `{"scene_codes":["s-0"]}`)
		case "/v1/tsr/extract_mesh":
			b, _ := json.Marshal(map[string]any{"meshes": []map[string][]byte{{"obj": []byte(obj)}}})
			_, _ = w.Write(b)
		default:
			http.NotFound(w, r)
		}
	})
}

func startServe(t *testing.T, bin, workerURL string, idleSeconds int) (*exec.Cmd, string, chan error) {
	t.Helper()
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve",
		"--service", "mesh",
		"--addr", fmt.Sprintf("127.0.0.1:%d", port),
		"--worker-url", workerURL,
		"--cache-dir", t.TempDir(),
		"--log-format", "json",
	)
	cmd.Env = append(os.Environ(),
		"GPUSERVE_SCRATCH_DIR="+t.TempDir(),
		fmt.Sprintf("GPUSERVE_IDLE_TIMEOUT_SECONDS=%d", idleSeconds),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd, base, done
}

func waitReady(t *testing.T, base string, done chan error) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if resp, err := http.Get(base + "/readyz"); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		select {
		case err := <-done:
			t.Fatalf("server exited before ready: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become ready in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestBlackbox_MeshFlowThenIdleExit(t *testing.T) {
	bin := buildBinary(t)
	worker := httptest.NewServer(fakeMeshWorker(false))
	defer worker.Close()
	_, base, done := startServe(t, bin, worker.URL, 1)
	waitReady(t, base, done)

	// invalid JSON is a client error and the process keeps serving
	resp, err := http.Post(base+"/", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", resp.StatusCode)
	}

	img := "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8DwHwAFBQIAX8jx0gAAAABJRU5ErkJggg=="
	resp, err = http.Post(base+"/", "application/json", bytes.NewBufferString(`{"image":"`+img+`","remove_background":false}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("v 0 0 0")) {
		t.Fatalf("mesh status=%d body=%q", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "mesh.obj") {
		t.Fatalf("content-disposition=%q", cd)
	}

	// with a one second idle timeout the process reclaims itself
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("idle exit should be clean, got %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("server did not exit after idle timeout")
	}
}

func TestBlackbox_InitializeFailureExits1(t *testing.T) {
	bin := buildBinary(t)
	worker := httptest.NewServer(fakeMeshWorker(true))
	defer worker.Close()
	_, _, done := startServe(t, bin, worker.URL, 60)
	select {
	case err := <-done:
		var ee *exec.ExitError
		if !errors.As(err, &ee) || ee.ExitCode() != 1 {
			t.Fatalf("expected exit code 1, got %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("server kept running after initialize failure")
	}
}
