package mesh

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"net/url"
	"time"

	"gpuserve/internal/common/fsutil"
	"gpuserve/internal/imaging"
	"gpuserve/internal/worker"
)

// WorkerLoader loads the reconstruction model inside the model worker.
type WorkerLoader struct {
	Client *worker.Client
}

type loadRequest struct {
	ModelPath  string `json:"model_path"`
	ConfigName string `json:"config_name"`
	WeightName string `json:"weight_name"`
	ChunkSize  int    `json:"chunk_size"`
	Device     string `json:"device"`
}

type loadResponse struct {
	ModelID string `json:"model_id"`
}

// Load implements Loader.
func (l WorkerLoader) Load(ctx context.Context, opts LoadOptions) (Reconstructor, error) {
	var out loadResponse
	err := l.Client.PostJSON(ctx, "/v1/tsr/load", loadRequest{
		ModelPath:  opts.ModelPath,
		ConfigName: opts.ConfigName,
		WeightName: opts.WeightName,
		ChunkSize:  opts.ChunkSize,
		Device:     opts.Device,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("load reconstruction model: %w", err)
	}
	if out.ModelID == "" {
		return nil, fmt.Errorf("load reconstruction model: worker returned no model id")
	}
	return &workerModel{client: l.Client, id: out.ModelID, device: opts.Device}, nil
}

type workerModel struct {
	client *worker.Client
	id     string
	device string
}

type forwardRequest struct {
	ModelID string   `json:"model_id"`
	Images  []string `json:"images"`
	Device  string   `json:"device"`
}

type forwardResponse struct {
	SceneCodes []string `json:"scene_codes"`
}

func (m *workerModel) Reconstruct(ctx context.Context, imgs []image.Image) ([]SceneCode, error) {
	req := forwardRequest{ModelID: m.id, Device: m.device}
	for _, img := range imgs {
		s, err := imaging.EncodePNGBase64(img)
		if err != nil {
			return nil, err
		}
		req.Images = append(req.Images, s)
	}
	var out forwardResponse
	if err := m.client.PostJSON(ctx, "/v1/tsr/forward", req, &out); err != nil {
		return nil, fmt.Errorf("reconstruct: %w", err)
	}
	codes := make([]SceneCode, len(out.SceneCodes))
	for i, id := range out.SceneCodes {
		codes[i] = SceneCode{ID: id}
	}
	return codes, nil
}

type extractRequest struct {
	ModelID    string   `json:"model_id"`
	SceneCodes []string `json:"scene_codes"`
}

type extractResponse struct {
	Meshes []struct {
		OBJ string `json:"obj"`
	} `json:"meshes"`
}

func (m *workerModel) ExtractMeshes(ctx context.Context, codes []SceneCode) ([]Mesh, error) {
	req := extractRequest{ModelID: m.id}
	for _, c := range codes {
		req.SceneCodes = append(req.SceneCodes, c.ID)
	}
	var out extractResponse
	if err := m.client.PostJSON(ctx, "/v1/tsr/extract_mesh", req, &out); err != nil {
		return nil, fmt.Errorf("extract mesh: %w", err)
	}
	meshes := make([]Mesh, 0, len(out.Meshes))
	for _, em := range out.Meshes {
		b, err := base64.StdEncoding.DecodeString(em.OBJ)
		if err != nil {
			return nil, fmt.Errorf("extract mesh: decode obj: %w", err)
		}
		meshes = append(meshes, objMesh(b))
	}
	return meshes, nil
}

func (m *workerModel) Close() error { return nil }

// objMesh is a mesh already serialized as OBJ text.
type objMesh []byte

func (o objMesh) Export(_ context.Context, path string) error {
	return fsutil.WriteFileAtomic(path, o, 0o644)
}

// DefaultSessionCloseTimeout bounds the session DELETE issued by Close.
const DefaultSessionCloseTimeout = 5 * time.Second

// WorkerRemover opens background-removal sessions in the model worker.
type WorkerRemover struct {
	Client *worker.Client
	// CloseTimeout bounds Session.Close; zero means DefaultSessionCloseTimeout.
	CloseTimeout time.Duration
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

type imagePayload struct {
	Image string `json:"image"`
}

// NewSession implements Remover.
func (r WorkerRemover) NewSession(ctx context.Context) (Session, error) {
	var out sessionResponse
	if err := r.Client.PostJSON(ctx, "/v1/rembg/sessions", struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("open rembg session: %w", err)
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("open rembg session: worker returned no session id")
	}
	timeout := r.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultSessionCloseTimeout
	}
	return &workerSession{client: r.Client, id: out.SessionID, ctx: ctx, closeTimeout: timeout}, nil
}

type workerSession struct {
	client       *worker.Client
	id           string
	ctx          context.Context
	closeTimeout time.Duration
}

func (s *workerSession) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	in, err := imaging.EncodePNGBase64(img)
	if err != nil {
		return nil, err
	}
	var out imagePayload
	if err := s.client.PostJSON(ctx, "/v1/rembg/sessions/"+url.PathEscape(s.id)+"/remove", imagePayload{Image: in}, &out); err != nil {
		return nil, fmt.Errorf("remove background: %w", err)
	}
	res, err := imaging.DecodeBase64(out.Image)
	if err != nil {
		return nil, fmt.Errorf("remove background: %w", err)
	}
	return imaging.ToNRGBA(res), nil
}

// Close deletes the session even when the opening request was canceled,
// but never waits longer than closeTimeout.
func (s *workerSession) Close() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.closeTimeout)
	defer cancel()
	return s.client.Delete(ctx, "/v1/rembg/sessions/"+url.PathEscape(s.id))
}
