package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"billed/internal/backend"
	"billed/internal/cli"
	apphttp "billed/internal/http"
	applog "billed/internal/log"
	"billed/internal/view"
	"billed/web"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	renderer, err := view.NewRenderer(web.TemplatesFS)
	if err != nil {
		logger.Error("Failed parsing templates", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Renderer:       renderer,
		Stores:         res.Stores,
		StoreTimeout:   cfg.StoreTimeout,
		SessionDir:     cfg.SessionDir,
		Secret:         []byte(cfg.SessionSecret),
		TabTTL:         cfg.TabTTL,
		MaxTabs:        cfg.MaxTabs,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Proofs:         res.Proofs,
		ProofOrigin:    res.ProofOrigin,
		Ready:          res.Ready,
		Logger:         logger,
	})
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = cfg.StoreTimeout + 30*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting billed web server", "port", cfg.Port, "backend", cfg.DataBackend, "session_dir", cfg.SessionDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return cli.Shutdown(logger, 30*time.Second, func(ctx context.Context) error {
			err := srv.Shutdown(ctx)
			if res.Cleanup != nil {
				err = errors.Join(err, res.Cleanup())
			}
			return err
		})
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
