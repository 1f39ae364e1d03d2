// Package diffusion implements the few-step img2img diffusion service.
package diffusion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"gpuserve/internal/artifacts"
	"gpuserve/internal/imaging"
	"gpuserve/internal/manager"
	"gpuserve/pkg/types"
)

const (
	Name = "diffusion"

	DefaultRepo    = "stabilityai/sdxl-turbo"
	DefaultVAERepo = "madebyollin/sdxl-vae-fp16-fix"

	// Inputs are resized to Size x Size before the pass.
	Size = 512

	GuidanceScale = 0.0
	Seed          = 42
)

// IgnorePatterns exclude full-precision and ONNX weights from the snapshot.
var IgnorePatterns = []string{
	"*.bin",
	"*.onnx_data",
	"*/diffusion_pytorch_model.safetensors",
}

// StrengthFor returns the denoising strength for n steps: near-full for
// exactly two steps, 0.75 otherwise.
func StrengthFor(n int) float64 {
	if n == 2 {
		return 0.999
	}
	return 0.75
}

// Config wires a Service.
type Config struct {
	Repo     string
	VAERepo  string
	Revision string
	CacheDir string

	Artifacts *artifacts.Client
	Loader    Loader
	Logger    *zerolog.Logger
}

// Service runs img2img. It is not safe for concurrent Generate calls; run
// it under manager.Manager.
type Service struct {
	cfg    Config
	logger zerolog.Logger

	mu   sync.RWMutex
	pipe Pipeline
}

// New returns a Service with defaults applied.
func New(cfg Config) *Service {
	if cfg.Repo == "" {
		cfg.Repo = DefaultRepo
	}
	if cfg.VAERepo == "" {
		cfg.VAERepo = DefaultVAERepo
	}
	if cfg.Revision == "" {
		cfg.Revision = artifacts.DefaultRevision
	}
	s := &Service{cfg: cfg, logger: zerolog.Nop()}
	if cfg.Logger != nil {
		s.logger = cfg.Logger.With().Str("service", Name).Logger()
	}
	return s
}

// Name implements manager.Service.
func (s *Service) Name() string { return Name }

// PrepareArtifacts downloads the pipeline and VAE snapshots.
func (s *Service) PrepareArtifacts(ctx context.Context) error {
	if s.cfg.Artifacts == nil {
		return errors.New("diffusion: no artifact client configured")
	}
	for _, repo := range []string{s.cfg.Repo, s.cfg.VAERepo} {
		opts := artifacts.Options{Revision: s.cfg.Revision, IgnorePatterns: IgnorePatterns}
		if _, err := s.cfg.Artifacts.Snapshot(ctx, repo, opts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) resolve(repo string) (string, error) {
	p, err := artifacts.LocalSnapshot(s.cfg.CacheDir, repo, s.cfg.Revision)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, artifacts.ErrNotCached) {
		return "", err
	}
	s.logger.Warn().Str("repo", repo).Msg("weights not in image cache, worker will fetch them")
	return repo, nil
}

// Initialize loads the fp16 pipeline with the fp16-safe VAE.
func (s *Service) Initialize(ctx context.Context) error {
	if s.cfg.Loader == nil {
		return errors.New("diffusion: no pipeline loader configured")
	}
	model, err := s.resolve(s.cfg.Repo)
	if err != nil {
		return err
	}
	vae, err := s.resolve(s.cfg.VAERepo)
	if err != nil {
		return err
	}
	pipe, err := s.cfg.Loader.Load(ctx, LoadOptions{
		ModelPath: model,
		VAEPath:   vae,
		DType:     "float16",
		Variant:   "fp16",
		DeviceMap: "auto",
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pipe = pipe
	s.mu.Unlock()
	return nil
}

// Close releases the pipeline.
func (s *Service) Close() error {
	s.mu.Lock()
	pipe := s.pipe
	s.pipe = nil
	s.mu.Unlock()
	if pipe == nil {
		return nil
	}
	return pipe.Close()
}

// Generate runs one img2img pass and returns the JPEG bytes.
func (s *Service) Generate(ctx context.Context, req types.DiffusionRequest) (types.Artifact, error) {
	s.mu.RLock()
	pipe := s.pipe
	s.mu.RUnlock()
	if pipe == nil {
		return types.Artifact{}, errors.New("diffusion: pipeline not loaded")
	}
	if strings.TrimSpace(req.Image) == "" {
		return types.Artifact{}, manager.InvalidInput("image is required", nil)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return types.Artifact{}, manager.InvalidInput("prompt is required", nil)
	}
	n := req.NumIterations
	strength := StrengthFor(n)
	if float64(n)*strength < 1 {
		return types.Artifact{}, manager.InvalidInput(
			fmt.Sprintf("num_iterations=%d with strength %.3f runs no denoising step", n, strength), nil)
	}
	img, err := imaging.DecodeBase64(req.Image)
	if err != nil {
		return types.Artifact{}, manager.InvalidInput("image", err)
	}

	out, err := pipe.Generate(ctx, Params{
		Prompt:        req.Prompt,
		Image:         imaging.Resize(img, Size, Size),
		Steps:         n,
		Strength:      strength,
		GuidanceScale: GuidanceScale,
		Seed:          Seed,
	})
	if err != nil {
		return types.Artifact{}, err
	}
	b, err := imaging.EncodeJPEG(imaging.ToRGB(out))
	if err != nil {
		return types.Artifact{}, err
	}
	return types.Artifact{Data: b, ContentType: types.ContentTypeJPEG}, nil
}
