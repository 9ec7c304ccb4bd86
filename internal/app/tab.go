// Package app assembles a tab: one Root, Router, Session provider and Store per visitor.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"billed/internal/containers"
	"billed/internal/core"
	applog "billed/internal/log"
	"billed/internal/router"
	"billed/internal/session"
	"billed/internal/store"
	"billed/internal/view"
)

// StoreFactory returns the Store a tab uses, acting for the given identity.
type StoreFactory func(identity store.Identity) store.Store

// Options configure every tab built by a Builder.
type Options struct {
	Renderer     *view.Renderer
	Stores       StoreFactory
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

type Tab struct {
	ID      string
	Root    *view.Root
	Router  *router.Router
	Session *session.Provider

	// mu serializes the interactions of a tab.
	mu sync.Mutex
}

// NewTab builds a tab whose session lives in storage.
func NewTab(id string, storage session.Storage, opts Options) *Tab {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(applog.FieldTabID, id)

	root := view.NewRoot(logger)
	sessions := session.NewProvider(storage, logger)
	t := &Tab{ID: id, Root: root, Session: sessions}

	deps := containers.Deps{
		Root:     root,
		Store:    store.NewAsync(opts.Stores(sessions), opts.StoreTimeout, logger),
		Session:  sessions,
		Renderer: opts.Renderer,
		Logger:   logger,
	}
	t.Router = router.New(root, sessions, Routes(&deps), containers.NotFound(deps), logger)
	deps.Nav = t.Router
	return t
}

// Routes is the route table. deps is read at mount time, after the router is set.
func Routes(deps *containers.Deps) map[string]router.Route {
	return map[string]router.Route{
		router.PathLogin: {Access: router.Public, Build: func(ctx context.Context, m router.Mount) error {
			_, err := containers.MountLogin(ctx, *deps, m)
			return err
		}},
		router.PathBills: {Access: router.EmployeeOnly, Build: func(ctx context.Context, m router.Mount) error {
			_, err := containers.MountBills(ctx, *deps, m)
			return err
		}},
		router.PathNewBill: {Access: router.EmployeeOnly, Build: func(ctx context.Context, m router.Mount) error {
			_, err := containers.MountNewBill(ctx, *deps, m)
			return err
		}},
		router.PathDashboard: {Access: router.AdminOnly, Build: func(ctx context.Context, m router.Mount) error {
			_, err := containers.MountDashboard(ctx, *deps, m)
			return err
		}},
	}
}

// Navigate moves the tab to path and waits until the mounted view settled.
func (t *Tab) Navigate(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.Router.Navigate(ctx, path); err != nil {
		return err
	}
	return t.Root.Idle(ctx)
}

// Dispatch delivers ev and waits until the work it started settled. The handler error
// is returned alongside; the content is up to date either way.
func (t *Tab) Dispatch(ctx context.Context, ev view.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.Root.Dispatch(ctx, ev)
	if idleErr := t.Root.Idle(ctx); idleErr != nil {
		return idleErr
	}
	return err
}

// Snapshot returns the current content and path under the tab lock.
func (t *Tab) Snapshot() (content, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Root.HTML(), t.Router.Path()
}

// NotFound reports whether the last navigation hit an unknown path.
func (t *Tab) NotFound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Router.NotFound()
}

// Identity returns the signed-in session of the tab.
func (t *Tab) Identity() (core.Session, bool) {
	return t.Session.Get()
}
