// Package embeddings defines the Provider interface for text-embedding
// backends.
//
// The recall layer embeds final transcripts as they arrive and embeds the
// user's query at lookup time; both sides must come from the same provider
// instance so the vectors share a space.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider maps text to dense float32 vectors.
//
// Every vector returned by one Provider instance has length Dimensions().
type Provider interface {
	// Embed computes the embedding for a single text. The text is passed
	// through verbatim; any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts in one provider call. The result has
	// the same length and order as texts. On error no partial results are
	// returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector length of this provider's model.
	Dimensions() int

	// ModelID names the underlying model, for logging and for verifying
	// that stored vectors match the active model.
	ModelID() string
}
