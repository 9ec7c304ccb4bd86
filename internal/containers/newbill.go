package containers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"billed/internal/async"
	"billed/internal/core"
	"billed/internal/router"
	"billed/internal/view"
)

// Form field names of the new-bill form.
const (
	fieldType       = "expense-type"
	fieldName       = "expense-name"
	fieldDate       = "datepicker"
	fieldAmount     = "amount"
	fieldVAT        = "vat"
	fieldPct        = "pct"
	fieldCommentary = "commentary"
)

// FormPhase of a new-bill form.
type FormPhase int

const (
	FormEditing FormPhase = iota
	FormSubmitting
	FormNavigated
	FormFailed
)

func (p FormPhase) String() string {
	switch p {
	case FormSubmitting:
		return "submitting"
	case FormNavigated:
		return "navigated-away"
	case FormFailed:
		return "failed"
	default:
		return "editing"
	}
}

type formValues struct {
	Type       string
	Name       string
	Date       string
	Amount     string
	VAT        string
	Pct        string
	Commentary string
}

func valuesFrom(form url.Values) formValues {
	return formValues{
		Type:       form.Get(fieldType),
		Name:       form.Get(fieldName),
		Date:       form.Get(fieldDate),
		Amount:     form.Get(fieldAmount),
		VAT:        form.Get(fieldVAT),
		Pct:        form.Get(fieldPct),
		Commentary: form.Get(fieldCommentary),
	}
}

type newBillPage struct {
	Layout     layoutData
	Values     formValues
	FileName   string
	FileCount  int
	Uploading  bool
	FileError  string
	Errors     []string
	Submitting bool
}

// staged is the one proof file of the form and its upload.
type staged struct {
	seq    int
	file   *core.File
	upload *async.Future[core.Bill]
	result *core.Bill
	err    error
}

// NewBill is the expense form. Picking a file uploads it right away; submitting
// completes the bill the upload created.
type NewBill struct {
	deps   Deps
	tok    view.Token
	who    core.Session
	layout layoutData

	mu        sync.Mutex
	phase     FormPhase
	values    formValues
	staged    *staged
	seq       int
	fileError string
	errors    []string
}

func MountNewBill(_ context.Context, d Deps, m router.Mount) (*NewBill, error) {
	if m.Session.Role != core.RoleEmployee {
		return nil, fmt.Errorf("new bill: employee session required")
	}
	n := &NewBill{
		deps:   d,
		tok:    m.Token,
		who:    m.Session,
		layout: layoutData{Employee: true, SignedIn: true, Mail: true},
	}
	n.render()
	d.bindLayout(n.tok, n.layout)
	d.Root.On(n.tok, idFile, view.EventChange, n.handleChangeFile)
	d.Root.On(n.tok, idFormNewBill, view.EventSubmit, n.handleSubmit)
	return n, nil
}

func (n *NewBill) render() {
	n.mu.Lock()
	page := newBillPage{
		Layout:     n.layout,
		Values:     n.values,
		FileError:  n.fileError,
		Errors:     append([]string(nil), n.errors...),
		Submitting: n.phase == FormSubmitting,
	}
	if n.staged != nil {
		page.FileName = n.staged.file.Name
		page.FileCount = 1
		page.Uploading = n.staged.result == nil && n.staged.err == nil
	}
	n.mu.Unlock()
	n.deps.render(n.tok, tmplNewBill, page)
}

// handleChangeFile stages the picked file and starts its upload. A rejected file clears
// the staging and never reaches the Store.
func (n *NewBill) handleChangeFile(ctx context.Context, ev view.Event) error {
	n.mu.Lock()
	if ev.Form != nil {
		n.values = valuesFrom(ev.Form)
	}
	n.seq++
	seq := n.seq

	if ev.File == nil {
		n.staged = nil
		n.fileError = ""
		n.mu.Unlock()
		n.render()
		return nil
	}
	if err := core.ValidateProof(ev.File); err != nil {
		n.staged = nil
		n.fileError = err.Error()
		n.mu.Unlock()
		n.render()
		return err
	}

	upload := n.deps.Store.Create(ctx, core.CreateRequest{Email: n.who.Email, File: ev.File})
	n.staged = &staged{seq: seq, file: ev.File, upload: upload}
	n.fileError = ""
	n.mu.Unlock()
	n.render()

	n.deps.Root.Go(func() {
		bill, err := upload.Await(context.Background())
		n.settleUpload(seq, bill, err)
	})
	return nil
}

func (n *NewBill) settleUpload(seq int, bill core.Bill, err error) {
	if !n.deps.Root.IsCurrent(n.tok) {
		return
	}
	n.mu.Lock()
	if n.staged == nil || n.staged.seq != seq {
		n.mu.Unlock()
		n.deps.logger().Debug("Stale upload dropped", "component", "containers", "seq", seq)
		return
	}
	if err != nil {
		n.staged.err = err
		n.fileError = err.Error()
		n.mu.Unlock()
		n.deps.logger().Warn("Proof upload failed", "component", "containers", "error", err)
		n.render()
		return
	}
	n.staged.result = &bill
	n.mu.Unlock()
	n.deps.logger().Info("Proof uploaded", "component", "containers", "bill_id", bill.ID, "file", bill.FileName)
	n.render()
}

// handleSubmit validates locally, completes the uploaded bill and goes back to the list.
// A rejected update is logged and returned, but the navigation happens anyway.
func (n *NewBill) handleSubmit(ctx context.Context, ev view.Event) error {
	n.mu.Lock()
	if ev.Form != nil {
		n.values = valuesFrom(ev.Form)
	}
	values := n.values
	st := n.staged
	n.mu.Unlock()

	var upload core.Bill
	var uploadErr error
	if st != nil {
		upload, uploadErr = st.upload.Await(context.WithoutCancel(ctx))
	}

	bill, problems := buildBill(values, n.who.Email, st, upload, uploadErr)
	if len(problems) > 0 {
		n.mu.Lock()
		n.errors = problems
		n.phase = FormEditing
		n.mu.Unlock()
		n.render()
		return core.NewValidationError("", strings.Join(problems, "; "))
	}

	n.mu.Lock()
	n.errors = nil
	n.phase = FormSubmitting
	n.mu.Unlock()
	n.render()

	patch := core.PatchFrom(bill)
	patch.CommentAdmin = nil
	_, err := n.deps.Store.Update(ctx, bill.ID, patch).Await(context.WithoutCancel(ctx))

	n.mu.Lock()
	if err != nil {
		n.phase = FormFailed
	} else {
		n.phase = FormNavigated
	}
	n.mu.Unlock()

	if err != nil {
		n.deps.logger().Error("Bill submission failed", "component", "containers", "bill_id", bill.ID, "error", err)
	} else {
		n.deps.logger().Info("Bill submitted", "component", "containers", "bill_id", bill.ID)
	}

	navErr := n.deps.Nav.Navigate(ctx, router.PathBills)
	if err != nil {
		return errors.Join(fmt.Errorf("submit bill %s: %w", bill.ID, err), navErr)
	}
	return navErr
}

// buildBill turns the form into the bill payload, collecting every problem found.
func buildBill(v formValues, email string, st *staged, upload core.Bill, uploadErr error) (core.Bill, []string) {
	var problems []string
	b := core.Bill{
		Email:      email,
		Type:       core.ExpenseType(strings.TrimSpace(v.Type)),
		Name:       strings.TrimSpace(v.Name),
		Date:       strings.TrimSpace(v.Date),
		Commentary: v.Commentary,
		Status:     core.StatusPending,
		Pct:        core.DefaultPct,
	}

	if !b.Type.IsValid() {
		problems = append(problems, "Type de dépense invalide")
	}
	if b.Name == "" {
		problems = append(problems, "Nom de la dépense requis")
	}
	if _, err := core.ParseDate(b.Date); err != nil {
		problems = append(problems, "Date invalide")
	}
	if amount, ok := parseNonNegative(v.Amount, true); ok {
		b.Amount = amount
	} else {
		problems = append(problems, "Montant invalide")
	}
	if vat, ok := parseNonNegative(v.VAT, false); ok {
		b.VAT = vat
	} else {
		problems = append(problems, "TVA invalide")
	}
	if s := strings.TrimSpace(v.Pct); s != "" {
		pct, err := strconv.Atoi(s)
		if err != nil || pct < 0 {
			problems = append(problems, "Pourcentage invalide")
		} else {
			b.Pct = pct
		}
	}

	switch {
	case st == nil:
		problems = append(problems, "Justificatif requis")
	case uploadErr != nil:
		problems = append(problems, "Justificatif non envoyé : "+uploadErr.Error())
	default:
		b.ID = upload.ID
		b.FileURL = upload.FileURL
		b.FileName = upload.FileName
	}
	return b, problems
}

func parseNonNegative(s string, required bool) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, !required
	}
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func (n *NewBill) Phase() FormPhase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

// StagedFiles returns the staged proof, at most one.
func (n *NewBill) StagedFiles() []*core.File {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.staged == nil {
		return nil
	}
	return []*core.File{n.staged.file}
}

// Upload returns the settled upload result of the staged file, if any.
func (n *NewBill) Upload() (core.Bill, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.staged == nil || n.staged.result == nil {
		return core.Bill{}, false
	}
	return *n.staged.result, true
}
