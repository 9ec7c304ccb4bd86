package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billed/internal/config"
	"billed/internal/core"
	"billed/internal/store/memory"
)

type identity struct{ s core.Session }

func (i identity) Get() (core.Session, bool) { return i.s, true }

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{DataBackend: "api", APIBaseURL: "http://api:5678", APISecret: "s", ProofPublicURL: "https://cdn.example/proofs"}
	bc, err := FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, APIBackend, bc.Type)
	assert.Equal(t, "http://api:5678", bc.APIBaseURL)
	assert.NoError(t, bc.Validate())

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)
	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"api", Config{Type: APIBackend, APIBaseURL: "http://x", APISecret: "s"}, false},
		{"api without url", Config{Type: APIBackend, APISecret: "s"}, true},
		{"api without secret", Config{Type: APIBackend, APIBaseURL: "http://x"}, true},
		{"unknown", Config{Type: "sqlite"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	for _, bt := range GetBackendTypes() {
		assert.True(t, bt.IsValid(), bt.String())
	}
}

func TestMemoryBackendServesUploadedProofs(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, Fixtures: true})
	require.NoError(t, err)
	require.NotNil(t, res.Proofs)
	assert.Equal(t, "https://test.storage.tld", res.ProofOrigin)

	st := res.Stores(identity{core.Session{Role: core.RoleEmployee, Email: memory.FixtureEmail}})
	bills, err := st.List(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, bills)

	b, err := st.Create(context.Background(), core.CreateRequest{
		Email: memory.FixtureEmail,
		File:  &core.File{Name: "facture.png", ContentType: "image/png", Data: []byte("png")},
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	res.Proofs.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, b.FileURL, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "png", rr.Body.String())

	for _, path := range []string{"/proofs/missing.png", "/proofs/.env"} {
		rr := httptest.NewRecorder()
		res.Proofs.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestAPIBackendReadiness(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ready")
	}))
	t.Cleanup(srv.Close)

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type: APIBackend, APIBaseURL: srv.URL, APISecret: "s", ProofPublicURL: "https://cdn.example/proofs",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Proofs)
	assert.Equal(t, "https://cdn.example", res.ProofOrigin)
	require.NotNil(t, res.Ready)
	assert.NoError(t, res.Ready(context.Background()))
}
