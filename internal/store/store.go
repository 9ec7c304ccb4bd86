// Package store abstracts the remote persistence API for bills.
package store

import (
	"context"

	"billed/internal/core"
)

// Ports implemented by every backend.
type (
	Lister interface {
		// List returns the bills visible to the signed-in identity.
		List(ctx context.Context) ([]core.Bill, error)
	}

	Creator interface {
		// Create uploads the proof file and opens a bill. The result carries id, fileUrl and fileName.
		Create(ctx context.Context, req core.CreateRequest) (core.Bill, error)
	}

	Updater interface {
		Update(ctx context.Context, id string, patch core.BillPatch) (core.Bill, error)
	}

	Store interface {
		Lister
		Creator
		Updater
	}

	// Identity yields the signed-in user a backend acts for. session.Provider satisfies it.
	Identity interface {
		Get() (core.Session, bool)
	}
)
