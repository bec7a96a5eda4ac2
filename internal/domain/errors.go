package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidRender     = errors.New("invalid render")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// UnknownModelError is returned when a model key is not registered.
type UnknownModelError struct {
	ModelKey string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q not available", e.ModelKey)
}

// ProviderError wraps an upstream generation failure.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DownloadError wraps a failure to fetch a generated image.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// EncodingError wraps malformed or unencodable image bytes.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("image %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
