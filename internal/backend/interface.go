// Package backend selects the Store the web app's tabs talk to.
package backend

import (
	"context"
	"net/http"

	"billed/internal/app"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is everything the web server needs from a backend.
type BackendResult struct {
	Stores app.StoreFactory
	// Proofs serves uploaded proofs when the backend keeps them in process.
	Proofs http.Handler
	// ProofOrigin is the origin proof images load from, empty for same origin.
	ProofOrigin string
	Ready       func(ctx context.Context) error
	Cleanup     CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// Remote API
	APIBaseURL     string
	APISecret      string
	ProofPublicURL string

	// Memory backend starts from the fixture bills when set.
	Fixtures bool
}

type BackendType string

const (
	MemoryBackend BackendType = "memory"
	APIBackend    BackendType = "api"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, APIBackend:
		return true
	default:
		return false
	}
}
