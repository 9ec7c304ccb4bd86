package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	applog "billed/internal/log"
	"billed/internal/proofs"
	"billed/internal/store"
	"billed/internal/store/api"
	"billed/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case APIBackend:
		return f.createAPIBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createAPIBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := api.NewClient(config.APIBaseURL, []byte(config.APISecret), nil, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		// The API may come up after the web app; readiness reports it until then.
		f.logger.Warn("Bills API not reachable yet", "base_url", config.APIBaseURL, "error", err)
	}

	f.logger.Info("Initialized API backend", "base_url", config.APIBaseURL)

	return &BackendResult{
		Stores:      func(id store.Identity) store.Store { return client.For(id) },
		ProofOrigin: origin(config.ProofPublicURL),
		Ready:       client.Ping,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	db := memory.New(nil)
	var proofOrigin string
	if config.Fixtures {
		fixtures := memory.Fixtures()
		db = memory.New(fixtures)
		// Fixture proofs are hosted elsewhere; uploads are served by ProofHandler.
		proofOrigin = origin(fixtures[0].FileURL)
	}

	f.logger.Info("Initialized memory backend", "bills", db.Len())

	return &BackendResult{
		Stores:      func(id store.Identity) store.Store { return db.For(id) },
		Proofs:      ProofHandler(db),
		ProofOrigin: proofOrigin,
	}, nil
}

// ProofHandler serves the proofs uploaded to db under /proofs/<key>.
func ProofHandler(db *memory.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, memory.DefaultProofBase+"/")
		if proofs.ValidateKey(key) != nil {
			http.NotFound(w, r)
			return
		}
		data, contentType, ok := db.Proof(key)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "private, max-age=3600")
		_, _ = w.Write(data)
	})
}
