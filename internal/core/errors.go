package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrServer     = errors.New("server error")
	ErrNetwork    = errors.New("network error")
)

// ValidationError is a rejected field or file, found locally or reported by a backend.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StoreError is a rejection coming from a Store backend.
// Error returns the user-facing text ("Erreur 404", "Erreur 500", "Erreur réseau").
type StoreError struct {
	Kind error
	Code int
	Err  error
}

func (e *StoreError) Error() string {
	if e.Kind == ErrNetwork {
		return "Erreur réseau"
	}
	return fmt.Sprintf("Erreur %d", e.Code)
}

func (e *StoreError) Is(target error) bool {
	return target == e.Kind
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorFromStatus maps an HTTP-like status code onto the taxonomy.
func ErrorFromStatus(code int, cause error) error {
	switch {
	case code == 404:
		return &StoreError{Kind: ErrNotFound, Code: code, Err: cause}
	case code == 400 || code == 422:
		msg := "données invalides"
		if cause != nil {
			msg = cause.Error()
		}
		return NewValidationError("", msg)
	default:
		if code < 400 {
			code = 500
		}
		return &StoreError{Kind: ErrServer, Code: code, Err: cause}
	}
}

func NotFound(cause error) error {
	return &StoreError{Kind: ErrNotFound, Code: 404, Err: cause}
}

func ServerError(cause error) error {
	return &StoreError{Kind: ErrServer, Code: 500, Err: cause}
}

func NetworkError(cause error) error {
	return &StoreError{Kind: ErrNetwork, Err: cause}
}
