// Package router is the navigation and authorization state machine of a tab.
package router

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"

	"billed/internal/core"
	"billed/internal/view"
)

// Route paths.
const (
	PathLogin     = "/"
	PathBills     = "/employee/bills"
	PathNewBill   = "/employee/bill/new"
	PathDashboard = "/admin/dashboard"
)

// Access is the role a route demands.
type Access int

const (
	Public Access = iota
	EmployeeOnly
	AdminOnly
)

// State is derived from the session at every navigation.
type State int

const (
	Unauthenticated State = iota
	AuthenticatedEmployee
	AuthenticatedAdmin
)

func (s State) String() string {
	switch s {
	case AuthenticatedEmployee:
		return "employee"
	case AuthenticatedAdmin:
		return "admin"
	default:
		return "unauthenticated"
	}
}

// Navigator is handed to every view so it can move the tab elsewhere.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
	SignOut(ctx context.Context) error
}

// Sessions is the part of session.Provider the router needs.
type Sessions interface {
	Get() (core.Session, bool)
	Clear() error
}

// Mount is what a Builder receives for the view it mounts.
type Mount struct {
	Token   view.Token
	Path    string
	Session core.Session
}

// Builder mounts a view on the root for the given token.
type Builder func(ctx context.Context, m Mount) error

type Route struct {
	Access Access
	Build  Builder
}

// NotFoundFunc renders the terminal page for unknown paths.
type NotFoundFunc func(tok view.Token, path string)

type Router struct {
	root     *view.Root
	sessions Sessions
	routes   map[string]Route
	notFound NotFoundFunc
	logger   *slog.Logger

	mu     sync.Mutex
	path   string
	state  State
	missed bool
}

func New(root *view.Root, sessions Sessions, routes map[string]Route, notFound NotFoundFunc, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if notFound == nil {
		notFound = func(tok view.Token, path string) {
			root.Replace(tok, fmt.Sprintf("<h1>404</h1><p>%s introuvable</p>", html.EscapeString(path)))
		}
	}
	table := make(map[string]Route, len(routes))
	for p, r := range routes {
		table[p] = r
	}
	return &Router{root: root, sessions: sessions, routes: table, notFound: notFound, logger: logger}
}

// Resolve decides which path a navigation to path ends on for the given session, without
// mounting anything. The boolean is false for unknown paths.
func (r *Router) Resolve(path string, s core.Session, signedIn bool) (string, bool) {
	route, ok := r.routes[path]
	if !ok {
		return path, false
	}
	if allowed(route.Access, s, signedIn) {
		return path, true
	}
	return PathLogin, true
}

func (r *Router) Navigate(ctx context.Context, path string) error {
	s, signedIn := r.sessions.Get()
	state := stateOf(s, signedIn)

	target, known := r.Resolve(path, s, signedIn)
	if !known {
		tok := r.root.Advance()
		r.notFound(tok, path)
		r.mu.Lock()
		r.missed = true
		r.mu.Unlock()
		r.logger.Debug("Navigation to unknown path", "component", "router", "path", path, "state", state.String())
		return nil
	}
	if target != path {
		r.logger.Debug("Navigation guarded", "component", "router", "path", path, "route", target, "state", state.String())
	}

	route := r.routes[target]
	tok := r.root.Advance()

	r.mu.Lock()
	r.path = target
	r.state = state
	r.missed = false
	r.mu.Unlock()

	r.logger.Debug("Navigate", "component", "router", "path", target, "state", state.String(), "generation", uint64(tok))
	if err := route.Build(ctx, Mount{Token: tok, Path: target, Session: s}); err != nil {
		return fmt.Errorf("mount %s: %w", target, err)
	}
	return nil
}

func (r *Router) SignOut(ctx context.Context) error {
	if err := r.sessions.Clear(); err != nil {
		return err
	}
	r.logger.Info("Signed out", "component", "router")
	return r.Navigate(ctx, PathLogin)
}

// Path returns the path of the mounted view.
func (r *Router) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// NotFound reports whether the last navigation hit an unknown path.
func (r *Router) NotFound() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.missed
}

func stateOf(s core.Session, signedIn bool) State {
	if !signedIn {
		return Unauthenticated
	}
	switch s.Role {
	case core.RoleEmployee:
		return AuthenticatedEmployee
	case core.RoleAdmin:
		return AuthenticatedAdmin
	default:
		return Unauthenticated
	}
}

func allowed(a Access, s core.Session, signedIn bool) bool {
	switch a {
	case Public:
		return true
	case EmployeeOnly:
		return stateOf(s, signedIn) == AuthenticatedEmployee
	case AdminOnly:
		return stateOf(s, signedIn) == AuthenticatedAdmin
	default:
		return false
	}
}
