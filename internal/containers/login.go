package containers

import (
	"context"
	"fmt"
	"strings"

	"billed/internal/core"
	"billed/internal/router"
	"billed/internal/view"
)

// Form field names of the two sign-in forms.
const (
	fieldEmployeeEmail = "employee-email-input"
	fieldAdminEmail    = "admin-email-input"
)

type loginPage struct {
	EmployeeEmail string
	AdminEmail    string
	Error         string
}

// Login signs a visitor in as an employee or an administrator. It does not check
// passwords: the identity is trusted as typed.
type Login struct {
	deps Deps
	tok  view.Token
}

func MountLogin(_ context.Context, d Deps, m router.Mount) (*Login, error) {
	l := &Login{deps: d, tok: m.Token}
	l.deps.render(l.tok, tmplLogin, loginPage{})
	d.Root.On(l.tok, idFormEmp, view.EventSubmit, func(ctx context.Context, ev view.Event) error {
		return l.signIn(ctx, core.RoleEmployee, ev)
	})
	d.Root.On(l.tok, idFormAdmin, view.EventSubmit, func(ctx context.Context, ev view.Event) error {
		return l.signIn(ctx, core.RoleAdmin, ev)
	})
	return l, nil
}

func (l *Login) signIn(ctx context.Context, role core.Role, ev view.Event) error {
	var field, target string
	switch role {
	case core.RoleEmployee:
		field, target = fieldEmployeeEmail, router.PathBills
	case core.RoleAdmin:
		field, target = fieldAdminEmail, router.PathDashboard
	default:
		return fmt.Errorf("sign in: unsupported role %d", int(role))
	}

	email := strings.TrimSpace(ev.Form.Get(field))
	s := core.Session{Role: role, Email: email}
	if err := l.deps.Session.Set(s); err != nil {
		page := loginPage{Error: "Adresse email invalide"}
		if role == core.RoleAdmin {
			page.AdminEmail = email
		} else {
			page.EmployeeEmail = email
		}
		l.deps.render(l.tok, tmplLogin, page)
		return err
	}
	return l.deps.Nav.Navigate(ctx, target)
}
