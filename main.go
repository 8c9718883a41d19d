package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drawduel/clipscore/clip"
	"github.com/drawduel/clipscore/config"
	"github.com/drawduel/clipscore/logger"
	"github.com/drawduel/clipscore/onnx"
	"github.com/drawduel/clipscore/remote"
	"github.com/drawduel/clipscore/server"
	"github.com/drawduel/clipscore/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.C()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log.Info("Starting clipscore", zap.String("backend", cfg.Backend))

	model, closeModel, err := loadModel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeModel()

	gin.SetMode(cfg.Mode)
	handler := server.NewHandler(service.NewRater(model, log), cfg.Backend, cfg.MaxBodyBytes, log)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.NewRouter(handler, cfg.Token, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, srv, log)
}

// serve runs srv until ctx ends or the listener fails, then shuts it down.
// A listener failure is returned.
func serve(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Listening on", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
			serveErr <- err
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
		return nil
	}
}

// loadModel builds the configured logit backend and a func releasing it.
func loadModel(ctx context.Context, cfg config.Config, log *zap.Logger) (service.LogitModel, func(), error) {
	if cfg.Backend == config.BackendRemote {
		c := remote.NewClient(cfg.Remote.URL, time.Duration(cfg.Remote.Timeout)*time.Second, cfg.Remote.Retries, log)
		return c, func() {}, nil
	}

	if err := clip.EnsureFiles(ctx, cfg, http.DefaultClient, log); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch model files: %w", err)
	}
	destroyEnv, err := onnx.Init(cfg.Libonnx, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
	}
	m, err := clip.Load(cfg, log)
	if err != nil {
		destroyEnv()
		return nil, nil, fmt.Errorf("failed to load model: %w", err)
	}
	return m, func() {
		m.Close()
		destroyEnv()
	}, nil
}
