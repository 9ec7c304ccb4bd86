package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"billed/internal/async"
	"billed/internal/core"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 15 * time.Second

// Async runs every Store call in the background and hands back a future.
//
// Calls are detached from the caller's cancellation: a finished HTTP request must not
// abort an upload or an update already sent. Timeouts surface as network errors and
// panics inside a backend as server errors.
type Async struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewAsync(s Store, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{store: s, timeout: timeout, logger: logger}
}

func (a *Async) List(ctx context.Context) *async.Future[[]core.Bill] {
	return run(a, ctx, "list", func(ctx context.Context) ([]core.Bill, error) {
		return a.store.List(ctx)
	})
}

func (a *Async) Create(ctx context.Context, req core.CreateRequest) *async.Future[core.Bill] {
	return run(a, ctx, "create", func(ctx context.Context) (core.Bill, error) {
		return a.store.Create(ctx, req)
	})
}

func (a *Async) Update(ctx context.Context, id string, patch core.BillPatch) *async.Future[core.Bill] {
	return run(a, ctx, "update", func(ctx context.Context) (core.Bill, error) {
		return a.store.Update(ctx, id, patch)
	})
}

func run[T any](a *Async, parent context.Context, op string, fn func(context.Context) (T, error)) *async.Future[T] {
	return async.Go(context.WithoutCancel(parent), func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		start := time.Now()
		v, err := callSafely(ctx, fn)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrNetwork) {
				err = core.NetworkError(err)
			}
			a.logger.Warn("Store call failed", "component", "store", "operation", op,
				"duration_ms", time.Since(start).Milliseconds(), "error", err)
			return v, err
		}
		a.logger.Debug("Store call done", "component", "store", "operation", op,
			"duration_ms", time.Since(start).Milliseconds())
		return v, nil
	})
}

func callSafely[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.ServerError(fmt.Errorf("backend panic: %v", r))
		}
	}()
	return fn(ctx)
}
