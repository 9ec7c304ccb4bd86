// Package apiserver is the remote bill API: JSON over HTTP with bearer tokens, bills in
// SQLite, proof files on disk or S3, bill events on AMQP.
package apiserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"billed/internal/amqp"
	"billed/internal/cache"
	"billed/internal/core"
	applog "billed/internal/log"
	"billed/internal/middleware/security"
	"billed/internal/middleware/trace"
	"billed/internal/proofs"
)

// Repository persists bills.
type Repository interface {
	CreateBill(ctx context.Context, b core.Bill, proofKey string) (core.Bill, error)
	GetBill(ctx context.Context, id string) (core.Bill, error)
	ListBills(ctx context.Context, email string) ([]core.Bill, error)
	UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error)
	Ping(ctx context.Context) error
}

// Publisher receives an event for every stored bill.
type Publisher interface {
	PublishBillEvent(ctx context.Context, ev *amqp.BillEvent) error
}

type Options struct {
	Addr           string
	Secret         []byte
	Repo           Repository
	Proofs         proofs.Store
	ProofPublicURL string
	Events         Publisher // optional
	MaxUploadBytes int64
	ListCacheTTL   time.Duration
	Logger         *applog.Logger
}

type Server struct {
	http.Server

	secret     []byte
	repo       Repository
	proofs     proofs.Store
	proofBase  string
	events     Publisher
	maxUpload  int64
	listCache  *cache.LRUCache[[]core.Bill]
	cleanup    *cache.Manager
	logger     *applog.Logger
	structured *applog.StructuredLogger
	trace      *trace.Middleware

	shutdownOnce sync.Once
}

const (
	defaultMaxUpload = 10 << 20
	defaultListTTL   = 30 * time.Second
	maxListEntries   = 500
)

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentAPI)
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.ListCacheTTL <= 0 {
		opts.ListCacheTTL = defaultListTTL
	}

	detector := security.NewDetector()
	s := &Server{
		secret:     opts.Secret,
		repo:       opts.Repo,
		proofs:     opts.Proofs,
		proofBase:  opts.ProofPublicURL,
		events:     opts.Events,
		maxUpload:  opts.MaxUploadBytes,
		listCache:  cache.NewLRUCache[[]core.Bill](maxListEntries, opts.ListCacheTTL),
		cleanup:    cache.NewManager(logger.Logger),
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
		trace:      trace.NewMiddleware(logger, detector.ExtractClientIP),
	}
	s.cleanup.Register(s.listCache)
	s.cleanup.StartCleanup(time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /bills", s.authenticated(s.handleList))
	mux.Handle("POST /bills", s.authenticated(s.handleCreate))
	mux.Handle("PATCH /bills/{id}", s.authenticated(s.handleUpdate))
	// Proof images are loaded by <img> tags, which carry no bearer token.
	mux.HandleFunc("GET /proofs/{key}", s.handleProof)

	headers := security.NewHeadersMiddleware(security.APIHeadersConfig())
	var h http.Handler = mux
	h = headers.Middleware(h)
	h = detector.Middleware(logger.Logger)(h)
	h = s.trace.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the cache sweeper and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cleanup.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) publish(ctx context.Context, t amqp.EventType, b core.Bill) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBillEvent(ctx, amqp.NewBillEvent(t, b)); err != nil {
		s.structured.LogError(ctx, "Bill event not published", err, applog.ComponentAMQP, applog.OpPublish,
			applog.NewFields().WithBill(b.ID, b.Email, string(b.Status)))
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Database not ready", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
