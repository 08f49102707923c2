// Package embedder converts text into embedding vectors.
package embedder

import "context"

// Embedder produces embedding vectors for text.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension, or 0 if not yet known.
	Dimension() int

	// Model returns the model identifier.
	Model() string
}

// DiscoverDimension embeds a sample text to learn the model's output
// dimension. Used to bootstrap vector indexes whose dimension must match.
func DiscoverDimension(ctx context.Context, e Embedder) (int, error) {
	if d := e.Dimension(); d > 0 {
		return d, nil
	}
	vec, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}
