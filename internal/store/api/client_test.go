package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billed/internal/auth"
	"billed/internal/core"
)

var secret = []byte("test-secret")

type identity struct{ s core.Session }

func (i identity) Get() (core.Session, bool) { return i.s, i.s.Email != "" }

var employee = identity{s: core.Session{Role: core.RoleEmployee, Email: "a@a"}}

func newStore(t *testing.T, h http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, secret, srv.Client(), nil)
	require.NoError(t, err)
	return c.For(employee)
}

func bearerSession(t *testing.T, r *http.Request) core.Session {
	t.Helper()
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s, err := auth.SessionFromToken(token, secret)
	require.NoError(t, err)
	return s
}

func TestListSendsBearerAndDecodes(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/bills", r.URL.Path)
		assert.Equal(t, employee.s, bearerSession(t, r))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"b1","email":"a@a","name":"encore","amount":400,"date":"2004-04-04","status":"pending"}]`)
	})

	bills, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "encore", bills[0].Name)
	assert.True(t, bills[0].Amount.Equal(decimal.NewFromInt(400)))
}

func TestListEmptyBody(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `null`)
	})
	bills, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, bills)
	assert.Empty(t, bills)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"not found", http.StatusNotFound, "", core.ErrNotFound, "Erreur 404"},
		{"server", http.StatusInternalServerError, "", core.ErrServer, "Erreur 500"},
		{"bad gateway", http.StatusBadGateway, "", core.ErrServer, "Erreur 502"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid token"}`, core.ErrServer, "Erreur 401"},
		{"forbidden", http.StatusForbidden, `{"error":"forbidden"}`, core.ErrServer, "Erreur 403"},
		{"validation", http.StatusUnprocessableEntity, `{"error":"nom requis"}`, core.ErrValidation, "nom requis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := s.List(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := NewClient(srv.URL, secret, nil, nil)
	require.NoError(t, err)
	srv.Close()

	_, err = c.For(employee).List(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNetwork)
	assert.Equal(t, "Erreur réseau", err.Error())
}

func TestCreateSendsMultipart(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a@a", r.FormValue("email"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "facture.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "facture", string(data))

		_ = json.NewEncoder(w).Encode(core.Bill{ID: "new-id", Email: "a@a", FileURL: "https://cdn/x.png", FileName: "facture.png"})
	})

	b, err := s.Create(context.Background(), core.CreateRequest{
		Email: "a@a",
		File:  &core.File{Name: "facture.png", ContentType: "image/png", Data: []byte("facture")},
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", b.ID)
	assert.Equal(t, "https://cdn/x.png", b.FileURL)
}

func TestCreateValidatesLocally(t *testing.T) {
	called := false
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	_, err := s.Create(context.Background(), core.CreateRequest{Email: "a@a"})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.False(t, called)
}

func TestUpdateSendsPatch(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/bills/b1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var patch core.BillPatch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		require.NotNil(t, patch.Name)
		assert.Equal(t, "facture", *patch.Name)
		assert.Nil(t, patch.Status)

		_ = json.NewEncoder(w).Encode(core.Bill{ID: "b1", Name: *patch.Name})
	})

	name := "facture"
	b, err := s.Update(context.Background(), "b1", core.BillPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "facture", b.Name)
}

func TestNoIdentity(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1", secret, nil, nil)
	require.NoError(t, err)
	_, err = c.For(identity{}).List(context.Background())
	assert.ErrorIs(t, err, core.ErrServer)
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := NewClient("ftp://x", secret, nil, nil)
	assert.Error(t, err)
	_, err = NewClient("http://x", nil, nil, nil)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	ready := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/readyz", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ready")
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, secret, srv.Client(), nil)
	require.NoError(t, err)

	require.NoError(t, c.Ping(context.Background()))
	ready = false
	assert.ErrorIs(t, c.Ping(context.Background()), core.ErrServer)
}

func TestEncodeCreateFields(t *testing.T) {
	file := &core.File{Name: "facture.png", ContentType: "image/png", Data: []byte("facture")}
	name := "Taxi"

	tests := []struct {
		name   string
		fields core.BillPatch
		want   string
	}{
		{"with fields", core.BillPatch{Name: &name}, `{"name":"Taxi"}`},
		{"empty patch", core.BillPatch{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType, err := encodeCreate(core.CreateRequest{Email: "a@a", File: file, Fields: tt.fields})
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/bills", body)
			req.Header.Set("Content-Type", contentType)
			require.NoError(t, req.ParseMultipartForm(1<<20))
			assert.Equal(t, tt.want, req.FormValue("fields"))
			assert.Equal(t, "a@a", req.FormValue("email"))
		})
	}
}
