package http

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "billed/internal/log"
	"billed/internal/router"
	"billed/internal/store"
	"billed/internal/store/memory"
	"billed/internal/view"
	"billed/web"
)

type harness struct {
	srv    *httptest.Server
	server *Server
	client *http.Client
}

func newHarness(t *testing.T, sessionDir string) *harness {
	t.Helper()
	renderer, err := view.NewRenderer(web.TemplatesFS)
	require.NoError(t, err)
	db := memory.NewWithFixtures()

	s := NewServer(Options{
		Renderer:     renderer,
		Stores:       func(id store.Identity) store.Store { return db.For(id) },
		StoreTimeout: time.Second,
		SessionDir:   sessionDir,
		Secret:       []byte("tab-secret"),
		TabTTL:       time.Hour,
		MaxTabs:      10,
		Logger:       applog.New(applog.Config{Component: applog.ComponentHTTP, Output: io.Discard}),
	})
	srv := httptest.NewServer(s.Handler)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := srv.Client()
	client.Jar = jar
	return &harness{srv: srv, server: s, client: client}
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (h *harness) event(t *testing.T, target, event string, form url.Values) (*http.Response, string) {
	t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set(view.FieldTarget, target)
	form.Set(view.FieldEvent, event)
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+view.EventPath, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func signInEmployee(t *testing.T, h *harness) (*http.Response, string) {
	t.Helper()
	return h.event(t, "form-employee", view.EventSubmit, url.Values{
		"employee-email-input":    {memory.FixtureEmail},
		"employee-password-input": {"azerty"},
	})
}

func TestFirstLoadRendersLoginInPage(t *testing.T) {
	h := newHarness(t, "")

	resp, body := h.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<main id="root"`)
	assert.Contains(t, body, `data-testid="form-employee"`)
	assert.Contains(t, body, `data-testid="form-admin"`)
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	u, _ := url.Parse(h.srv.URL)
	var found bool
	for _, c := range h.client.Jar.Cookies(u) {
		found = found || c.Name == TabCookie
	}
	assert.True(t, found, "tab cookie")
	assert.Equal(t, 1, h.server.Tabs())
}

func TestEmployeeSignInNavigatesToBills(t *testing.T) {
	h := newHarness(t, "")
	h.get(t, "/")

	resp, body := signInEmployee(t, h)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, router.PathBills, resp.Header.Get("HX-Push-Url"))
	assert.Contains(t, body, `data-testid="tbody"`)
	assert.Contains(t, body, `data-testid="icon-eye"`)
	assert.NotContains(t, body, "<html")

	resp, body = h.event(t, "btn-new-bill", view.EventClick, nil)
	assert.Equal(t, router.PathNewBill, resp.Header.Get("HX-Push-Url"))
	assert.Contains(t, body, `data-testid="form-new-bill"`)
}

func TestGuardSendsWrongRoleToLogin(t *testing.T) {
	h := newHarness(t, "")
	h.get(t, "/")
	signInEmployee(t, h)

	resp, body := h.get(t, router.PathDashboard)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, router.PathLogin, resp.Request.URL.Path)
	assert.Contains(t, body, `data-testid="form-employee"`)
	assert.NotContains(t, body, `data-testid="tbody"`)
}

func TestSignedOutVisitorLandsOnLogin(t *testing.T) {
	h := newHarness(t, "")

	resp, body := h.get(t, router.PathBills)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, router.PathLogin, resp.Request.URL.Path)
	assert.Contains(t, body, `data-testid="form-employee"`)
}

func TestUnknownPathIsNotFound(t *testing.T) {
	h := newHarness(t, "")

	resp, body := h.get(t, "/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "/nowhere", resp.Request.URL.Path)
	assert.Contains(t, body, `data-testid="not-found"`)
}

func TestEventWithoutTabAsksForRefresh(t *testing.T) {
	h := newHarness(t, "")

	resp, body := h.event(t, "form-employee", view.EventSubmit, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("HX-Refresh"))
	assert.Empty(t, body)
}

func TestEventWithoutListenerKeepsContent(t *testing.T) {
	h := newHarness(t, "")
	h.get(t, "/")

	resp, body := h.event(t, "icon-eye", view.EventClick, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("HX-Push-Url"))
	assert.Contains(t, body, `data-testid="form-employee"`)
}

func TestMalformedEventIsBadRequest(t *testing.T) {
	h := newHarness(t, "")
	h.get(t, "/")

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+view.EventPath, strings.NewReader("ui-target=x"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionSurvivesTabEviction(t *testing.T) {
	h := newHarness(t, t.TempDir())
	h.get(t, "/")
	signInEmployee(t, h)

	h.server.tabs.tabs.Clear()

	resp, body := h.get(t, router.PathBills)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, router.PathBills, resp.Request.URL.Path)
	assert.Contains(t, body, `data-testid="tbody"`)
}

func TestStaticAndHealth(t *testing.T) {
	h := newHarness(t, "")

	resp, _ := h.get(t, "/static/app.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age=3600")

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, _ := h.get(t, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
