package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotFound signals a request for an unconfigured store.
	ErrStoreNotFound = errors.New("store not found")
	// ErrInvalidRequest signals a malformed request body.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnsupportedFile signals an upload of an unsupported file type.
	ErrUnsupportedFile = errors.New("unsupported file type")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// StatusError carries an HTTP status and detail through the error
// chain. The transport layer surfaces it verbatim; anything without one
// becomes a 500.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Detail, e.Status)
}

// NewStatusError creates a StatusError.
func NewStatusError(status int, detail string) error {
	return &StatusError{Status: status, Detail: detail}
}
