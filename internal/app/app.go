// Package app assembles one model service from configuration: the artifact
// cache, the model worker client, the lifecycle manager and the HTTP mux.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"gpuserve/internal/artifacts"
	"gpuserve/internal/config"
	"gpuserve/internal/diffusion"
	"gpuserve/internal/httpapi"
	"gpuserve/internal/manager"
	"gpuserve/internal/mesh"
	"gpuserve/internal/registry"
	"gpuserve/internal/worker"
	"gpuserve/pkg/types"
)

// App is one container's worth of service.
type App struct {
	cfg    config.Config
	logger zerolog.Logger

	worker  *worker.Client
	svc     manager.Service
	manager *manager.Manager
	infer   http.Handler
}

// New wires the service named by cfg.Service. cfg must already carry
// defaults. Nothing is loaded until Start.
func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		worker: worker.New(cfg.WorkerURL, worker.Options{}),
	}
	hub := artifacts.New(artifacts.Config{
		HubURL:   cfg.HubURL,
		CacheDir: cfg.CacheDir,
		Token:    cfg.HubToken,
		Logger:   &logger,
	})

	switch cfg.Service {
	case config.ServiceMesh:
		svc := mesh.New(mesh.Config{
			CacheDir:    cfg.CacheDir,
			ScratchDir:  cfg.ScratchDir,
			KeepScratch: cfg.KeepScratch,
			Artifacts:   hub,
			Loader:      mesh.WorkerLoader{Client: a.worker},
			Remover:     mesh.WorkerRemover{Client: a.worker},
			Logger:      &logger,
		})
		a.svc = svc
		a.manager = a.newManager(svc)
		a.infer = httpapi.Endpoint(mesh.Name, func(ctx context.Context, req types.MeshRequest) (types.Artifact, error) {
			return manager.Call(ctx, a.manager, func(ctx context.Context) (types.Artifact, error) {
				return svc.Generate(ctx, req)
			})
		})
	case config.ServiceDiffusion:
		svc := diffusion.New(diffusion.Config{
			CacheDir:  cfg.CacheDir,
			Artifacts: hub,
			Loader:    diffusion.WorkerLoader{Client: a.worker},
			Logger:    &logger,
		})
		a.svc = svc
		a.manager = a.newManager(svc)
		a.infer = httpapi.Endpoint(diffusion.Name, func(ctx context.Context, req types.DiffusionRequest) (types.Artifact, error) {
			return manager.Call(ctx, a.manager, func(ctx context.Context) (types.Artifact, error) {
				return svc.Generate(ctx, req)
			})
		})
	default:
		return nil, fmt.Errorf("unknown service %q", cfg.Service)
	}
	return a, nil
}

func (a *App) newManager(svc manager.Service) *manager.Manager {
	return manager.New(svc, manager.Config{
		MaxQueueDepth: a.cfg.MaxQueueDepth,
		MaxWait:       a.cfg.MaxWait(),
		IdleTimeout:   a.cfg.IdleTimeout(),
		Publisher:     manager.LogPublisher{Logger: a.logger},
		Logger:        &a.logger,
	})
}

// Manager exposes the lifecycle manager.
func (a *App) Manager() *manager.Manager { return a.manager }

// Prepare fetches the service's weights into the cache. It is the build
// step of the container image and does not load anything.
func (a *App) Prepare(ctx context.Context) error {
	t0 := time.Now()
	if err := a.svc.PrepareArtifacts(ctx); err != nil {
		return fmt.Errorf("prepare %s: %w", a.svc.Name(), err)
	}
	a.logger.Info().Str("service", a.svc.Name()).Dur("took", time.Since(t0)).Msg("artifacts ready")
	return nil
}

// Start waits for the model worker, then initializes the service. The
// returned error is fatal for the container.
func (a *App) Start(ctx context.Context, workerWait time.Duration) error {
	if workerWait > 0 {
		wctx, cancel := context.WithTimeout(ctx, workerWait)
		err := a.worker.WaitHealthy(wctx, 250*time.Millisecond)
		cancel()
		if err != nil {
			return err
		}
	}
	return a.manager.Start(ctx)
}

// Handler returns the HTTP mux for this service.
func (a *App) Handler() http.Handler {
	return httpapi.NewMux(backend{Manager: a.manager, cacheDir: a.cfg.CacheDir, logger: a.logger}, a.infer)
}

// Close releases the loaded model.
func (a *App) Close() error { return a.manager.Close() }

// backend adds the cached model listing to the manager.
type backend struct {
	*manager.Manager
	cacheDir string
	logger   zerolog.Logger
}

func (b backend) ListModels() []types.Model {
	models, err := registry.LoadDir(b.cacheDir)
	if err != nil {
		b.logger.Warn().Err(err).Str("cache_dir", b.cacheDir).Msg("list cached models")
		return []types.Model{}
	}
	return models
}
