// Package proofs stores the image files attached to bills.
package proofs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("proof not found")
	ErrInvalidKey = errors.New("invalid proof key")
)

// Store keeps proof content under opaque keys.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
}

// NewKey derives a fresh storage key for a bill, keeping the extension of fileName.
func NewKey(billID, fileName string) string {
	if billID == "" {
		billID = uuid.NewString()
	}
	return billID + strings.ToLower(filepath.Ext(fileName))
}

// URL is the public address of key under base.
func URL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// ValidateKey rejects keys that would escape a flat namespace.
func ValidateKey(key string) error {
	if key == "" || key != path.Base(key) || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
