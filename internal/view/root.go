// Package view holds the server-side DOM root of a tab.
//
// A Root has a single content slot that one view owns at a time. Each navigation
// advances the generation token; writes and listener registrations carrying an older
// token are ignored, so work started by a view that is no longer mounted cannot touch
// the content of its successor.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"billed/internal/core"
)

// Token identifies one mounted view.
type Token uint64

// Event types dispatched by the transport.
const (
	EventClick  = "click"
	EventChange = "change"
	EventSubmit = "submit"
)

// ErrNoListener reports an event aimed at an element nobody listens on.
var ErrNoListener = errors.New("no listener for event")

// Event is a user interaction with an element of the current content.
type Event struct {
	Type   string
	Target string // data-testid of the element
	Index  int    // position among elements sharing Target
	Form   url.Values
	File   *core.File
}

type Handler func(ctx context.Context, ev Event) error

type listenerKey struct {
	target string
	event  string
}

type Root struct {
	mu        sync.Mutex
	gen       Token
	content   string
	listeners map[listenerKey]Handler

	pending int
	idle    chan struct{}

	logger *slog.Logger
}

func NewRoot(logger *slog.Logger) *Root {
	if logger == nil {
		logger = slog.Default()
	}
	idle := make(chan struct{})
	close(idle)
	return &Root{listeners: map[listenerKey]Handler{}, idle: idle, logger: logger}
}

// Advance unmounts the current view and returns the token of the next one.
func (r *Root) Advance() Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.listeners = map[listenerKey]Handler{}
	return r.gen
}

func (r *Root) Current() Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

func (r *Root) IsCurrent(tok Token) bool {
	return r.Current() == tok
}

// Replace swaps the content. It reports false, leaving the content untouched, when tok is stale.
func (r *Root) Replace(tok Token, content string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok != r.gen {
		r.logger.Debug("Stale render dropped", "component", "view", "generation", uint64(tok), "current", uint64(r.gen))
		return false
	}
	r.content = content
	return true
}

// On registers h for event on the elements tagged target. Registering again replaces h.
func (r *Root) On(tok Token, target, event string, h Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok != r.gen {
		return false
	}
	r.listeners[listenerKey{target: target, event: event}] = h
	return true
}

// Off removes the listener, as when the element it was bound to leaves the content.
func (r *Root) Off(tok Token, target, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok != r.gen {
		return
	}
	delete(r.listeners, listenerKey{target: target, event: event})
}

func (r *Root) HasListener(target, event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.listeners[listenerKey{target: target, event: event}]
	return ok
}

// Dispatch runs the listener bound to ev synchronously. The lock is released first so
// the handler may render or navigate.
func (r *Root) Dispatch(ctx context.Context, ev Event) error {
	r.mu.Lock()
	h, ok := r.listeners[listenerKey{target: ev.Target, event: ev.Type}]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s on %q", ErrNoListener, ev.Type, ev.Target)
	}
	return h(ctx, ev)
}

// Go runs fn in the background and counts it as pending work until it returns.
func (r *Root) Go(fn func()) {
	r.mu.Lock()
	if r.pending == 0 {
		r.idle = make(chan struct{})
	}
	r.pending++
	r.mu.Unlock()

	go func() {
		defer r.done()
		defer func() {
			if v := recover(); v != nil {
				r.logger.Error("Background work panicked", "component", "view", "panic", fmt.Sprint(v))
			}
		}()
		fn()
	}()
}

func (r *Root) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--
	if r.pending == 0 {
		close(r.idle)
	}
}

// Idle blocks until no background work is pending or ctx ends.
func (r *Root) Idle(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.pending == 0 {
			r.mu.Unlock()
			return nil
		}
		ch := r.idle
		r.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HTML returns the current content.
func (r *Root) HTML() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.content
}

// Document parses the current content for queries.
func (r *Root) Document() (*Document, error) {
	return Parse(r.HTML())
}
