package http

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"billed/internal/app"
	"billed/internal/auth"
	"billed/internal/cache"
	applog "billed/internal/log"
	"billed/internal/session"
)

// TabCookie pins a browser tab to its server-side state.
const TabCookie = "billed_tab"

// tabRegistry holds the live tabs. Idle tabs expire; a known id whose tab was dropped is
// rebuilt from its session storage.
type tabRegistry struct {
	tabs       *cache.LRUCache[*app.Tab]
	opts       app.Options
	sessionDir string
	secret     []byte
	ttl        time.Duration
	logger     *slog.Logger
}

func newTabRegistry(maxTabs int, ttl time.Duration, sessionDir string, secret []byte, opts app.Options, logger *slog.Logger) *tabRegistry {
	logger = logger.With(applog.FieldComponent, applog.ComponentTabs)
	return &tabRegistry{
		tabs: cache.NewLRUCache[*app.Tab](maxTabs, ttl,
			cache.WithSlidingTTL[*app.Tab](),
			cache.WithEvict(func(id string, _ *app.Tab) {
				logger.Debug("Tab evicted", applog.FieldTabID, id)
			}),
		),
		opts:       opts,
		sessionDir: sessionDir,
		secret:     secret,
		ttl:        ttl,
		logger:     logger,
	}
}

// lookup returns the tab named by the request cookie, if it is live or can be rebuilt.
func (t *tabRegistry) lookup(r *http.Request) (*app.Tab, bool) {
	c, err := r.Cookie(TabCookie)
	if err != nil {
		return nil, false
	}
	id, err := auth.TabIDFromToken(c.Value, t.secret)
	if err != nil {
		t.logger.Debug("Ignoring tab cookie", "error", err)
		return nil, false
	}
	if tab, ok := t.tabs.Get(id); ok {
		return tab, true
	}
	tab, err := t.build(id)
	if err != nil {
		t.logger.Warn("Tab rebuild failed", applog.FieldTabID, id, "error", err)
		return nil, false
	}
	return tab, true
}

// obtain returns the tab of the request, creating one and setting its cookie when none exists.
func (t *tabRegistry) obtain(w http.ResponseWriter, r *http.Request) (*app.Tab, error) {
	if tab, ok := t.lookup(r); ok {
		return tab, nil
	}
	id := uuid.NewString()
	tab, err := t.build(id)
	if err != nil {
		return nil, err
	}
	token, err := auth.GenerateTabToken(id, t.secret, t.ttl)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     TabCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(t.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	t.logger.Info("Tab opened", applog.FieldTabID, id)
	return tab, nil
}

func (t *tabRegistry) build(id string) (*app.Tab, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.New("tab id is not a uuid")
	}
	var storage session.Storage = session.NewMemoryStorage()
	if t.sessionDir != "" {
		fs, err := session.NewFileStorage(filepath.Join(t.sessionDir, id+".json"))
		if err != nil {
			return nil, err
		}
		storage = fs
	}
	tab := app.NewTab(id, storage, t.opts)
	t.tabs.Set(id, tab)
	return tab, nil
}

func (t *tabRegistry) size() int { return t.tabs.Size() }
