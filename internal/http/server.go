// Package http serves the web app: one server-side tab per browser tab, driven by htmx.
//
// GET requests navigate the tab and render its content, inside the page shell for a
// full load. Interactions are posted to the event endpoint, dispatched to the tab, and
// answered with the new content once the tab is idle.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"billed/internal/app"
	"billed/internal/cache"
	applog "billed/internal/log"
	"billed/internal/middleware/ratelimit"
	"billed/internal/middleware/security"
	"billed/internal/middleware/trace"
	"billed/internal/view"
	appweb "billed/web"
)

type Options struct {
	Addr           string
	Renderer       *view.Renderer
	Stores         app.StoreFactory
	StoreTimeout   time.Duration
	SessionDir     string // empty keeps sessions in memory
	Secret         []byte
	TabTTL         time.Duration
	MaxTabs        int
	MaxUploadBytes int64

	// Proofs serves GET /proofs/ when set.
	Proofs http.Handler
	// ProofOrigin is allowed as an image source in the CSP.
	ProofOrigin string
	// Ready backs /readyz when set.
	Ready func(ctx context.Context) error

	Logger *applog.Logger
}

type Server struct {
	http.Server

	renderer   *view.Renderer
	tabs       *tabRegistry
	maxUpload  int64
	ready      func(ctx context.Context) error
	limiter    *ratelimit.Limiter
	cleanup    *cache.Manager
	logger     *applog.Logger
	structured *applog.StructuredLogger

	shutdownOnce sync.Once
}

const (
	defaultMaxUpload = 10 << 20
	defaultTabTTL    = 12 * time.Hour
	defaultMaxTabs   = 1000
	staticMaxAge     = 3600
)

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.TabTTL <= 0 {
		opts.TabTTL = defaultTabTTL
	}
	if opts.MaxTabs <= 0 {
		opts.MaxTabs = defaultMaxTabs
	}

	tabOpts := app.Options{
		Renderer:     opts.Renderer,
		Stores:       opts.Stores,
		StoreTimeout: opts.StoreTimeout,
		Logger:       logger.Logger,
	}
	s := &Server{
		renderer:   opts.Renderer,
		tabs:       newTabRegistry(opts.MaxTabs, opts.TabTTL, opts.SessionDir, opts.Secret, tabOpts, logger.Logger),
		maxUpload:  opts.MaxUploadBytes,
		ready:      opts.Ready,
		limiter:    ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		cleanup:    cache.NewManager(logger.Logger),
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
	}
	s.cleanup.Register(s.tabs.tabs)
	s.cleanup.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}
	if opts.Proofs != nil {
		mux.Handle("GET /proofs/", opts.Proofs)
	}
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST "+view.EventPath, s.handleEvent)
	mux.HandleFunc("GET /", s.handleNavigate)

	detector := security.NewDetector()
	var imgSources []string
	if opts.ProofOrigin != "" {
		imgSources = append(imgSources, opts.ProofOrigin)
	}
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig(imgSources...))
	tracer := trace.NewMiddleware(logger, detector.ExtractClientIP)

	var h http.Handler = mux
	h = headers.Middleware(h)
	h = s.limiter.Middleware(detector.ExtractClientIP, s.rateLimited, http.MethodPost)(h)
	h = detector.Middleware(logger.Logger)(h)
	h = tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cleanup.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Tabs reports how many tabs are live.
func (s *Server) Tabs() int {
	return s.tabs.size()
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded", applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Trop de requêtes, réessayez dans une minute.").
		Header("Retry-After", "60").
		Write(w)
}

// handleNavigate moves the tab to the requested path and renders its content.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	tab, err := s.tabs.obtain(w, r)
	if err != nil {
		s.structured.LogError(ctx, "Tab unavailable", err, applog.ComponentTabs, applog.OpNavigate, nil)
		InternalServerError("Session indisponible").Write(w)
		return
	}
	if err := tab.Navigate(ctx, r.URL.Path); err != nil {
		logger.WarnContext(ctx, "Navigation did not settle", applog.FieldTabID, tab.ID, applog.FieldRoute, r.URL.Path, "error", err)
	}
	content, path := tab.Snapshot()
	status := http.StatusOK
	if tab.NotFound() {
		status = http.StatusNotFound
		path = r.URL.Path
	}

	if r.Header.Get("HX-Request") == "true" {
		TabContent(content, r.URL.Path, path).Status(status).Write(w)
		return
	}
	if path != r.URL.Path {
		http.Redirect(w, r, path, http.StatusSeeOther)
		return
	}

	page, err := s.renderer.Render("page", struct{ Content template.HTML }{template.HTML(content)})
	if err != nil {
		s.structured.LogError(ctx, "Page template execution failed", err, applog.ComponentTemplate, applog.OpRender, nil)
		InternalServerError("Erreur d'affichage").Write(w)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(page).Write(w)
}

// handleEvent dispatches an interaction to the tab and answers with the settled content.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	tab, ok := s.tabs.lookup(r)
	if !ok {
		logger.InfoContext(ctx, "Event for unknown tab, reloading")
		NewHTMXResponse().Refresh().Write(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	ev, err := ParseEvent(r, s.maxUpload)
	if err != nil {
		logger.WarnContext(ctx, "Invalid event request", applog.FieldTabID, tab.ID, "error", err)
		BadRequestError("Requête invalide").Write(w)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	_, before := tab.Snapshot()
	err = tab.Dispatch(ctx, ev)
	switch {
	case errors.Is(err, view.ErrNoListener):
		logger.DebugContext(ctx, "Event without listener", applog.NewFields().WithEvent(tab.ID, ev.Target, ev.Type).ToSlice()...)
	case err != nil:
		s.structured.LogError(ctx, "Event handler failed", err, applog.ComponentTabs, applog.OpDispatch,
			applog.NewFields().WithEvent(tab.ID, ev.Target, ev.Type))
	}

	content, after := tab.Snapshot()
	TabContent(content, before, after).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Backend not ready", "error", err)
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
