// Package embeddings turns query text into vectors by calling a remote
// embedding model.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmptyEmbedding is returned when the model answers without a vector.
var ErrEmptyEmbedding = errors.New("embedder returned an empty vector")

// Embedder defines the interface for converting text into vector representations.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
