// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aurelay/pkg/embeddings"
)

// Provider returns canned vectors and records the texts it was asked to
// embed. The zero value is usable; set EmbedFunc for per-text vectors.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed when EmbedFunc is nil.
	EmbedResult []float32

	// EmbedFunc, when set, computes the result of Embed per text.
	EmbedFunc func(text string) []float32

	// EmbedErr, if non-nil, is returned by Embed and EmbedBatch.
	EmbedErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	texts []string
}

var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text), nil
	}
	return p.EmbedResult, nil
}

func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, texts...)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if p.EmbedFunc != nil {
			out[i] = p.EmbedFunc(text)
		} else {
			out[i] = p.EmbedResult
		}
	}
	return out, nil
}

func (p *Provider) Dimensions() int {
	return p.DimensionsValue
}

func (p *Provider) ModelID() string {
	return p.ModelIDValue
}

// Texts returns a copy of every text submitted so far.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}
