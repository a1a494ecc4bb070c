// Package llm holds the Completion Backend and Vector Encoder clients.
package llm

import (
	"context"
	"errors"
)

// Backend is a language model that answers prompts in one shot or as a stream.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// Stream calls emit once per fragment as the backend produces it. A
	// non-nil error from emit aborts the stream and is returned unchanged.
	Stream(ctx context.Context, prompt string, emit func(fragment string) error) error
	HealthCheck(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
}

// Encoder turns text into a fixed-length vector.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

var (
	ErrEmptyResponse  = errors.New("backend returned an empty response")
	ErrEmptyEmbedding = errors.New("backend returned an empty embedding")
)
