// Package containers holds the views a tab can mount: login, the bills list (and its
// dashboard mode) and the new-bill form.
//
// A container owns the Root content for the token it was mounted with. Every write
// and listener goes through that token so the Root drops anything a container does
// after the router moved on.
package containers

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"billed/internal/core"
	"billed/internal/router"
	"billed/internal/store"
	"billed/internal/view"
)

// Sessions is the session.Provider surface the containers use.
type Sessions interface {
	Get() (core.Session, bool)
	Set(core.Session) error
}

// Deps are injected into every container.
type Deps struct {
	Root     *view.Root
	Nav      router.Navigator
	Store    *store.Async
	Session  Sessions
	Renderer *view.Renderer
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Template names.
const (
	tmplLogin     = "login"
	tmplBills     = "bills"
	tmplDashboard = "dashboard"
	tmplNewBill   = "newbill"
	tmplLoading   = "loading"
	tmplError     = "error"
	tmplNotFound  = "notfound"
)

// Element identifiers the containers listen on.
const (
	idBtnNewBill  = "btn-new-bill"
	idIconEye     = "icon-eye"
	idIconWindow  = "icon-window"
	idIconMail    = "icon-mail"
	idDisconnect  = "layout-disconnect"
	idModalClose  = "modal-close"
	idFormNewBill = "form-new-bill"
	idFile        = "file"
	idFormEmp     = "form-employee"
	idFormAdmin   = "form-admin"
)

type layoutData struct {
	Employee bool
	SignedIn bool
	Window   bool
	Mail     bool
}

type loadingPage struct {
	Layout layoutData
}

type errorPage struct {
	Layout  layoutData
	Message string
}

// render executes name and swaps it in. A template failure still leaves visible content.
func (d Deps) render(tok view.Token, name string, data any) bool {
	out, err := d.Renderer.Render(name, data)
	if err != nil {
		d.logger().Error("Template execution failed", "component", "containers", "template", name, "error", err)
		out = fmt.Sprintf(`<div data-testid="error-message">%s</div>`, html.EscapeString(err.Error()))
	}
	return d.Root.Replace(tok, out)
}

// bindLayout wires the navigation bar shown around the signed-in views.
func (d Deps) bindLayout(tok view.Token, l layoutData) {
	if l.Employee {
		d.Root.On(tok, idIconWindow, view.EventClick, func(ctx context.Context, _ view.Event) error {
			return d.Nav.Navigate(ctx, router.PathBills)
		})
		d.Root.On(tok, idIconMail, view.EventClick, func(ctx context.Context, _ view.Event) error {
			return d.Nav.Navigate(ctx, router.PathNewBill)
		})
	}
	if l.SignedIn {
		d.Root.On(tok, idDisconnect, view.EventClick, func(ctx context.Context, _ view.Event) error {
			return d.Nav.SignOut(ctx)
		})
	}
}

// NotFound renders the terminal page for an unknown path.
func NotFound(d Deps) router.NotFoundFunc {
	return func(tok view.Token, path string) {
		d.render(tok, tmplNotFound, struct{ Path string }{Path: path})
	}
}
