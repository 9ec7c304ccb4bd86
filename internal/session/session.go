// Package session owns the persisted signed-in identity.
//
// The Provider is the only component that touches the underlying Storage; every other
// part of the application receives the Provider by reference.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"billed/internal/core"
)

// Key is the well-known storage key of the identity record.
const Key = "user"

// Storage is a durable key-value store.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

type Provider struct {
	mu      sync.Mutex
	storage Storage
	logger  *slog.Logger
}

func NewProvider(storage Storage, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{storage: storage, logger: logger}
}

// Get returns a copy of the current identity. A missing or unreadable record means no session.
func (p *Provider) Get() (core.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, ok, err := p.storage.Get(Key)
	if err != nil {
		p.logger.Warn("Session read failed", "component", "session", "error", err)
		return core.Session{}, false
	}
	if !ok || raw == "" {
		return core.Session{}, false
	}
	var s core.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		p.logger.Warn("Session record is corrupt", "component", "session", "error", err)
		return core.Session{}, false
	}
	if s.Validate() != nil {
		return core.Session{}, false
	}
	return s, true
}

func (p *Provider) Set(s core.Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.storage.Set(Key, string(raw)); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	p.logger.Info("Session opened", "component", "session", "role", s.Role.String(), "email", s.Email)
	return nil
}

func (p *Provider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.storage.Remove(Key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
