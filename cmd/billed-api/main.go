package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"billed/internal/amqp"
	"billed/internal/apiserver"
	"billed/internal/cli"
	"billed/internal/config"
	applog "billed/internal/log"
	"billed/internal/proofs"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentAPI)
	cfg := cli.LoadAndValidateAPIConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	proofStore, err := newProofStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize proof storage", "error", err, "backend", cfg.ProofBackend)
		os.Exit(1)
	}

	opts := apiserver.Options{
		Addr:           ":" + cfg.APIPort,
		Secret:         []byte(cfg.APISecret),
		Repo:           repo,
		Proofs:         proofStore,
		ProofPublicURL: cfg.ProofPublicURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	}

	// AMQP is optional; without it bill events are not published.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.Logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			opts.Events = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	srv := apiserver.NewServer(opts)
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting billed API server", "port", cfg.APIPort, "db_path", cfg.SQLiteDBPath,
			"proof_backend", cfg.ProofBackend, "amqp_enabled", amqpClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return cli.Shutdown(logger, 30*time.Second, func(ctx context.Context) error {
			err := srv.Shutdown(ctx)
			if amqpClient != nil {
				err = errors.Join(err, amqpClient.Close())
			}
			return err
		})
	})

	if err := g.Wait(); err != nil {
		logger.Error("API server error", "error", err, "port", cfg.APIPort)
		os.Exit(1)
	}
	logger.Info("API server stopped gracefully")
}

func newProofStore(ctx context.Context, cfg *config.Config) (proofs.Store, error) {
	switch cfg.ProofBackend {
	case "s3":
		return proofs.NewS3(ctx, proofs.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return proofs.NewDisk(cfg.ProofDir)
	}
}
