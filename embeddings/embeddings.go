// Package embeddings is the boundary between the storage engine and
// whatever produces vectors from text. The engine never computes
// embeddings itself; it asks a Provider, and unconfigured providers are
// handled by the caller.
package embeddings

import (
	"context"
	"errors"
)

// Provider converts text into dense float32 vectors.
type Provider interface {
	// Configured reports whether the provider can actually serve
	// requests (credentials present, endpoint set). Callers decide what
	// to do with an unconfigured provider.
	Configured() bool

	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Common errors.
var (
	// ErrEmptyInput is returned when the input text is empty.
	ErrEmptyInput = errors.New("embeddings: empty input")

	// ErrNotConfigured is returned by providers asked to embed without
	// credentials.
	ErrNotConfigured = errors.New("embeddings: provider not configured")
)
