package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpuserve/internal/app"
	"gpuserve/internal/config"
	"gpuserve/internal/httpapi"
)

const (
	idleCheckInterval = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// runServe listens first so health checks see "loading" during the cold
// start, then initializes the service. It returns when the service has been
// idle for the configured timeout or the process is signaled.
func runServe(ctx context.Context, cfg config.Config, workerWait time.Duration) error {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	httpapi.SetLogger(logger)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(int64(cfg.RequestTimeoutSeconds))
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// in-flight inference is canceled when the server goes down
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Str("service", cfg.Service).Msg("listening")
		errCh <- srv.Serve(ln)
	}()

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("graceful shutdown")
		}
		cancelBase()
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("close service")
		}
	}

	if err := a.Start(ctx, workerWait); err != nil {
		shutdown()
		return fmt.Errorf("initialize %s: %w", cfg.Service, err)
	}
	st := a.Manager().Status()
	logger.Info().Int64("cold_start_ms", st.ColdStartMS).Msg("ready")

	idle := make(chan struct{})
	go a.Manager().WatchIdle(ctx, idleCheckInterval, func() { close(idle) })

	select {
	case <-ctx.Done():
		logger.Info().Msg("signal received, shutting down")
	case <-idle:
		logger.Info().Dur("idle_timeout", cfg.IdleTimeout()).Msg("idle, shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdown()
			return fmt.Errorf("server: %w", err)
		}
	}
	shutdown()
	return nil
}
