package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billed/internal/amqp"
	"billed/internal/auth"
	"billed/internal/core"
	applog "billed/internal/log"
	"billed/internal/proofs"
	"billed/internal/storage"
	"billed/internal/store/api"
)

var testSecret = []byte("api-test-secret")

// png is the smallest header mimetype recognises as image/png.
var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type identity struct{ s core.Session }

func (i identity) Get() (core.Session, bool) { return i.s, true }

var (
	alice = identity{core.Session{Role: core.RoleEmployee, Email: "alice@billed.test"}}
	bob   = identity{core.Session{Role: core.RoleEmployee, Email: "bob@billed.test"}}
	admin = identity{core.Session{Role: core.RoleAdmin, Email: "admin@billed.test"}}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.BillEvent
}

func (p *recordingPublisher) PublishBillEvent(_ context.Context, ev *amqp.BillEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []amqp.EventType
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	srv    *httptest.Server
	client *api.Client
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "billed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	disk, err := proofs.NewDisk(filepath.Join(dir, "proofs"))
	require.NoError(t, err)

	events := &recordingPublisher{}
	logger := applog.New(applog.Config{Level: applog.DefaultConfig().Level, Component: applog.ComponentAPI, Output: io.Discard})

	s := NewServer(Options{
		Secret:         testSecret,
		Repo:           repo,
		Proofs:         disk,
		ProofPublicURL: "http://proofs.example/proofs",
		Events:         events,
		MaxUploadBytes: 1 << 20,
		Logger:         logger,
	})
	srv := httptest.NewServer(s.Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = s.Shutdown(context.Background())
	})

	client, err := api.NewClient(srv.URL, testSecret, srv.Client(), nil)
	require.NoError(t, err)
	return &fixture{srv: srv, client: client, events: events}
}

func createProof(t *testing.T, f *fixture, who identity) core.Bill {
	t.Helper()
	name := "Taxi"
	b, err := f.client.For(who).Create(context.Background(), core.CreateRequest{
		Email:  who.s.Email,
		File:   &core.File{Name: "ticket.PNG", ContentType: "image/png", Data: png},
		Fields: core.BillPatch{Name: &name},
	})
	require.NoError(t, err)
	return b
}

func TestCreateStoresBillAndProof(t *testing.T) {
	f := newFixture(t)

	b := createProof(t, f, alice)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, alice.s.Email, b.Email)
	assert.Equal(t, "Taxi", b.Name)
	assert.Equal(t, core.StatusPending, b.Status)
	assert.Equal(t, "ticket.PNG", b.FileName)
	assert.Equal(t, "http://proofs.example/proofs/"+b.ID+".png", b.FileURL)

	resp, err := f.srv.Client().Get(f.srv.URL + "/proofs/" + b.ID + ".png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, png, data)

	assert.Equal(t, []amqp.EventType{amqp.EventBillCreated}, f.events.types())
}

func TestListIsScopedByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := createProof(t, f, alice)
	createProof(t, f, bob)

	mine, err := f.client.For(alice).List(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	all, err := f.client.For(admin).List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListEmptyIsArray(t *testing.T) {
	f := newFixture(t)
	token, err := auth.GenerateToken(alice.s, testSecret, api.TokenValidity)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/bills", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))
}

func TestListSeesWritesThroughCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bills, err := f.client.For(admin).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, bills)

	createProof(t, f, alice)

	bills, err = f.client.For(admin).List(ctx)
	require.NoError(t, err)
	assert.Len(t, bills, 1)
}

func TestUpdateMergesAndValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := createProof(t, f, alice)

	typ := core.TypeTransports
	date := "2024-03-01"
	amount := decimal.RequireFromString("42.10")
	updated, err := f.client.For(alice).Update(ctx, b.ID, core.BillPatch{Type: &typ, Date: &date, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "Taxi", updated.Name)
	assert.True(t, updated.Amount.Equal(amount))
	assert.Equal(t, b.FileURL, updated.FileURL)

	status := core.StatusAccepted
	comment := "ok"
	updated, err = f.client.For(admin).Update(ctx, b.ID, core.BillPatch{Status: &status, CommentAdmin: &comment})
	require.NoError(t, err)
	assert.Equal(t, core.StatusAccepted, updated.Status)
	assert.Equal(t, "ok", updated.CommentAdmin)

	bad := "not a date"
	_, err = f.client.For(alice).Update(ctx, b.ID, core.BillPatch{Date: &bad})
	assert.ErrorIs(t, err, core.ErrValidation)

	assert.Equal(t, []amqp.EventType{amqp.EventBillCreated, amqp.EventBillUpdated, amqp.EventBillUpdated}, f.events.types())
}

func TestEmployeeCannotReviewOwnBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := createProof(t, f, alice)

	accepted := core.StatusAccepted
	comment := "approved by myself"
	_, err := f.client.For(alice).Update(ctx, b.ID, core.BillPatch{Status: &accepted, CommentAdmin: &comment})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.client.For(alice).Update(ctx, b.ID, core.BillPatch{CommentAdmin: &comment})
	assert.ErrorIs(t, err, core.ErrValidation)

	pending := core.StatusPending
	name := "Taxi aéroport"
	updated, err := f.client.For(alice).Update(ctx, b.ID, core.BillPatch{Status: &pending, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, updated.Status)
	assert.Empty(t, updated.CommentAdmin)

	_, err = f.client.For(alice).Create(ctx, core.CreateRequest{
		Email:  alice.s.Email,
		File:   &core.File{Name: "ticket.png", ContentType: "image/png", Data: png},
		Fields: core.BillPatch{Name: &name, Status: &accepted},
	})
	assert.ErrorIs(t, err, core.ErrValidation)

	bills, err := f.client.For(admin).List(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, core.StatusPending, bills[0].Status)
	assert.Equal(t, []amqp.EventType{amqp.EventBillCreated, amqp.EventBillUpdated}, f.events.types())
}

func TestUpdateOtherEmployeesBillIsNotFound(t *testing.T) {
	f := newFixture(t)
	b := createProof(t, f, alice)

	name := "mine now"
	_, err := f.client.For(bob).Update(context.Background(), b.ID, core.BillPatch{Name: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.client.For(admin).Update(context.Background(), "missing", core.BillPatch{Name: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateRejectsBadProof(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.For(alice).Create(context.Background(), core.CreateRequest{
		Email: alice.s.Email,
		File:  &core.File{Name: "notes.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
	})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, f.events.types())
}

func TestCreateForAnotherEmployeeIsForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.For(alice).Create(context.Background(), core.CreateRequest{
		Email: bob.s.Email,
		File:  &core.File{Name: "a.png", ContentType: "image/png", Data: png},
	})
	assert.ErrorIs(t, err, core.ErrServer)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer abc.def.ghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPatch, f.srv.URL+"/bills/x", bytes.NewReader([]byte(`{}`)))
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := f.srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var body apiError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestProofNotFound(t *testing.T) {
	f := newFixture(t)
	for _, key := range []string{"missing.png", ".hidden.png"} {
		resp, err := f.srv.Client().Get(f.srv.URL + "/proofs/" + key)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, key)
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := f.srv.Client().Get(f.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
