// Package mesh implements the single-image mesh reconstruction service.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gpuserve/internal/artifacts"
	"gpuserve/internal/imaging"
	"gpuserve/internal/manager"
	"gpuserve/pkg/types"
)

const (
	Name = "mesh"

	DefaultRepo            = "stabilityai/TripoSR"
	DefaultConfigName      = "config.yaml"
	DefaultWeightName      = "model.ckpt"
	DefaultChunkSize       = 8192
	DefaultDevice          = "cuda:0"
	DefaultForegroundRatio = 0.85

	inputFile = "input.png"
	meshFile  = "mesh.obj"
)

// Config wires a Service.
type Config struct {
	Repo        string
	Revision    string
	CacheDir    string
	ScratchDir  string
	KeepScratch bool
	Device      string
	ChunkSize   int

	Artifacts *artifacts.Client
	Loader    Loader
	Remover   Remover
	Logger    *zerolog.Logger
}

// Service reconstructs a mesh from one image. It is not safe for
// concurrent Generate calls; run it under manager.Manager.
type Service struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	model Reconstructor
}

// New returns a Service with defaults applied.
func New(cfg Config) *Service {
	if cfg.Repo == "" {
		cfg.Repo = DefaultRepo
	}
	if cfg.Revision == "" {
		cfg.Revision = artifacts.DefaultRevision
	}
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	s := &Service{cfg: cfg, logger: zerolog.Nop()}
	if cfg.Logger != nil {
		s.logger = cfg.Logger.With().Str("service", Name).Logger()
	}
	return s
}

// Name implements manager.Service.
func (s *Service) Name() string { return Name }

// PrepareArtifacts downloads the model snapshot into the cache.
func (s *Service) PrepareArtifacts(ctx context.Context) error {
	if s.cfg.Artifacts == nil {
		return errors.New("mesh: no artifact client configured")
	}
	_, err := s.cfg.Artifacts.Snapshot(ctx, s.cfg.Repo, artifacts.Options{Revision: s.cfg.Revision})
	return err
}

// Initialize loads the model onto the device.
func (s *Service) Initialize(ctx context.Context) error {
	if s.cfg.Loader == nil {
		return errors.New("mesh: no model loader configured")
	}
	path, err := artifacts.LocalSnapshot(s.cfg.CacheDir, s.cfg.Repo, s.cfg.Revision)
	if err != nil {
		if !errors.Is(err, artifacts.ErrNotCached) {
			return err
		}
		s.logger.Warn().Str("repo", s.cfg.Repo).Msg("weights not in image cache, worker will fetch them")
		path = s.cfg.Repo
	}
	model, err := s.cfg.Loader.Load(ctx, LoadOptions{
		ModelPath:  path,
		ConfigName: DefaultConfigName,
		WeightName: DefaultWeightName,
		ChunkSize:  s.cfg.ChunkSize,
		Device:     s.cfg.Device,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
	return nil
}

// Close releases the loaded model.
func (s *Service) Close() error {
	s.mu.Lock()
	model := s.model
	s.model = nil
	s.mu.Unlock()
	if model == nil {
		return nil
	}
	return model.Close()
}

// Generate runs one reconstruction and returns the OBJ bytes.
func (s *Service) Generate(ctx context.Context, req types.MeshRequest) (types.Artifact, error) {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()
	if model == nil {
		return types.Artifact{}, errors.New("mesh: model not loaded")
	}

	removeBG := true
	if req.RemoveBackground != nil {
		removeBG = *req.RemoveBackground
	}
	// foreground_ratio only matters when the background is removed.
	ratio := DefaultForegroundRatio
	if removeBG && req.ForegroundRatio != nil {
		ratio = *req.ForegroundRatio
		if ratio <= 0 || ratio > 1 {
			return types.Artifact{}, manager.InvalidInput(fmt.Sprintf("foreground_ratio must be in (0,1], got %v", ratio), nil)
		}
	}
	if strings.TrimSpace(req.Image) == "" {
		return types.Artifact{}, manager.InvalidInput("image is required", nil)
	}
	img, err := imaging.DecodeBase64(req.Image)
	if err != nil {
		return types.Artifact{}, manager.InvalidInput("image", err)
	}

	dir, cleanup, err := s.scratch()
	if err != nil {
		return types.Artifact{}, err
	}
	defer cleanup()

	var input image.Image
	if removeBG {
		prepared, err := s.foreground(ctx, img, ratio)
		if err != nil {
			return types.Artifact{}, err
		}
		b, err := imaging.EncodePNG(prepared)
		if err != nil {
			return types.Artifact{}, err
		}
		if err := os.WriteFile(filepath.Join(dir, inputFile), b, 0o644); err != nil {
			return types.Artifact{}, fmt.Errorf("write input: %w", err)
		}
		input = prepared
	} else {
		input = imaging.ToRGB(img)
	}

	codes, err := model.Reconstruct(ctx, []image.Image{input})
	if err != nil {
		return types.Artifact{}, err
	}
	meshes, err := model.ExtractMeshes(ctx, codes)
	if err != nil {
		return types.Artifact{}, err
	}
	if len(meshes) == 0 {
		return types.Artifact{}, errors.New("mesh: no mesh extracted")
	}
	out := filepath.Join(dir, meshFile)
	if err := meshes[0].Export(ctx, out); err != nil {
		return types.Artifact{}, fmt.Errorf("export mesh: %w", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("read mesh: %w", err)
	}
	return types.Artifact{Data: data, ContentType: types.ContentTypeOctetStream, Filename: meshFile}, nil
}

// foreground segments img in a fresh session, then crops, pads and
// composites the foreground over mid-gray. Images that already carry
// transparency skip segmentation.
func (s *Service) foreground(ctx context.Context, img image.Image, ratio float64) (image.Image, error) {
	if s.cfg.Remover == nil {
		return nil, errors.New("mesh: no background remover configured")
	}
	sess, err := s.cfg.Remover.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close rembg session")
		}
	}()
	n := imaging.ToNRGBA(img)
	if !imaging.HasTransparency(n) {
		n, err = sess.Remove(ctx, n)
		if err != nil {
			return nil, err
		}
	}
	fg, err := imaging.ResizeForeground(n, ratio)
	if err != nil {
		if errors.Is(err, imaging.ErrNoForeground) || errors.Is(err, imaging.ErrImageTooLarge) {
			return nil, manager.InvalidInput("image", err)
		}
		return nil, err
	}
	return imaging.CompositeGray(fg), nil
}

// scratch creates the per-request working directory.
func (s *Service) scratch() (string, func(), error) {
	dir := filepath.Join(s.cfg.ScratchDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, func() {
		if s.cfg.KeepScratch {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn().Err(err).Str("dir", dir).Msg("remove scratch dir")
		}
	}, nil
}
