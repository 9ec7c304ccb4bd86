package containers

import (
	"context"
	"fmt"
	"sync"

	"billed/internal/core"
	"billed/internal/router"
	"billed/internal/view"
)

// Phase of a bills list.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "loading"
	}
}

// Mode selects what a Bills container renders once loaded.
type Mode int

const (
	ModeEmployee Mode = iota
	ModeDashboard
)

// ModalWidth is the proof image width used in the modal.
const ModalWidth = 500

type billRow struct {
	Index   int
	ID      string
	Type    string
	Name    string
	Date    string
	RawDate string
	Amount  string
	Status  string
	FileURL string
}

type modalData struct {
	URL      string
	FileName string
	Width    int
}

type billsPage struct {
	Layout layoutData
	Rows   []billRow
	Counts core.StatusCounts
	Modal  *modalData
}

type dashboardPage struct {
	Layout layoutData
	Counts core.StatusCounts
}

// Bills lists the bills of the signed-in employee, or in dashboard mode the
// per-status totals an administrator sees.
type Bills struct {
	deps   Deps
	tok    view.Token
	mode   Mode
	layout layoutData

	mu     sync.Mutex
	phase  Phase
	bills  []core.Bill
	counts core.StatusCounts
	err    error
	modal  *modalData
}

func MountBills(ctx context.Context, d Deps, m router.Mount) (*Bills, error) {
	return mountBills(ctx, d, m, ModeEmployee)
}

func MountDashboard(ctx context.Context, d Deps, m router.Mount) (*Bills, error) {
	return mountBills(ctx, d, m, ModeDashboard)
}

func mountBills(ctx context.Context, d Deps, m router.Mount, mode Mode) (*Bills, error) {
	b := &Bills{deps: d, tok: m.Token, mode: mode, phase: PhaseLoading}
	switch m.Session.Role {
	case core.RoleEmployee:
		b.layout = layoutData{Employee: true, SignedIn: true, Window: true}
	case core.RoleAdmin:
		b.layout = layoutData{SignedIn: true}
	default:
		return nil, fmt.Errorf("bills: no signed-in role")
	}

	d.render(b.tok, tmplLoading, loadingPage{Layout: b.layout})
	d.bindLayout(b.tok, b.layout)

	f := d.Store.List(ctx)
	d.Root.Go(func() {
		bills, err := f.Await(context.Background())
		b.settle(bills, err)
	})
	return b, nil
}

// settle applies the outcome of the list call unless the view was unmounted meanwhile.
func (b *Bills) settle(bills []core.Bill, err error) {
	if !b.deps.Root.IsCurrent(b.tok) {
		b.deps.logger().Debug("Bills result discarded", "component", "containers", "generation", uint64(b.tok))
		return
	}

	b.mu.Lock()
	if err != nil {
		b.phase = PhaseFailed
		b.err = err
		b.mu.Unlock()
		b.deps.logger().Warn("Bills load failed", "component", "containers", "error", err)
		b.deps.render(b.tok, tmplError, errorPage{Layout: b.layout, Message: err.Error()})
		return
	}
	b.phase = PhaseLoaded
	b.bills = core.SortByDateDesc(bills)
	b.counts = core.CountStatuses(b.bills)
	b.mu.Unlock()

	b.renderLoaded()
	if b.mode == ModeEmployee {
		b.deps.Root.On(b.tok, idBtnNewBill, view.EventClick, b.handleClickNewBill)
		b.deps.Root.On(b.tok, idIconEye, view.EventClick, b.handleClickIconEye)
	}
}

func (b *Bills) renderLoaded() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mode == ModeDashboard {
		b.deps.render(b.tok, tmplDashboard, dashboardPage{Layout: b.layout, Counts: b.counts})
		return
	}
	rows := make([]billRow, len(b.bills))
	for i, bill := range b.bills {
		rows[i] = billRow{
			Index:   i,
			ID:      bill.ID,
			Type:    string(bill.Type),
			Name:    bill.Name,
			Date:    core.FormatDate(bill.Date),
			RawDate: bill.Date,
			Amount:  bill.Amount.String(),
			Status:  bill.Status.Label(),
			FileURL: bill.FileURL,
		}
	}
	b.deps.render(b.tok, tmplBills, billsPage{Layout: b.layout, Rows: rows, Counts: b.counts, Modal: b.modal})
}

func (b *Bills) handleClickNewBill(ctx context.Context, _ view.Event) error {
	return b.deps.Nav.Navigate(ctx, router.PathNewBill)
}

// handleClickIconEye opens the proof of the clicked row. The URL is read back from the
// rendered element, the way the page shows it.
func (b *Bills) handleClickIconEye(_ context.Context, ev view.Event) error {
	doc, err := b.deps.Root.Document()
	if err != nil {
		return err
	}
	eyes := doc.AllByTestID(idIconEye)
	if ev.Index < 0 || ev.Index >= len(eyes) {
		return fmt.Errorf("icon-eye index %d out of range (%d rows)", ev.Index, len(eyes))
	}
	url := eyes[ev.Index].Attr("data-bill-url")
	if url == "" {
		return nil
	}

	b.mu.Lock()
	var name string
	if ev.Index < len(b.bills) {
		name = b.bills[ev.Index].FileName
	}
	b.modal = &modalData{URL: url, FileName: name, Width: ModalWidth}
	b.mu.Unlock()

	b.renderLoaded()
	b.deps.Root.On(b.tok, idModalClose, view.EventClick, b.handleCloseModal)
	return nil
}

func (b *Bills) handleCloseModal(_ context.Context, _ view.Event) error {
	b.mu.Lock()
	b.modal = nil
	b.mu.Unlock()
	b.renderLoaded()
	b.deps.Root.Off(b.tok, idModalClose, view.EventClick)
	return nil
}

func (b *Bills) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Err is the rejection that moved the list to PhaseFailed.
func (b *Bills) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Bills returns the loaded bills in display order.
func (b *Bills) Bills() []core.Bill {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Bill(nil), b.bills...)
}

func (b *Bills) Counts() core.StatusCounts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}
