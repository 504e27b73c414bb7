// Package embed wraps the embedding backend with the degrade-gracefully
// policy used throughout indexing: a failed embedding yields an all-zero
// vector of the model's dimensionality instead of an error, so one bad call
// never aborts a batch crawl.
package embed

import (
	"context"
	"log/slog"

	"github.com/mapwright/tiledocs/pkg/resilience"
)

// DefaultDims matches text-embedding-3-small.
const DefaultDims = 1536

// Backend produces embedding vectors for text.
type Backend interface {
	Embed(ctx context.Context, model, input string) ([]float32, error)
}

// Embedder converts text into fixed-length vectors.
type Embedder struct {
	backend Backend
	model   string
	dims    int
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// New creates an Embedder for the given model and vector dimensionality.
func New(backend Backend, model string, dims int, logger *slog.Logger) *Embedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		backend: backend,
		model:   model,
		dims:    dims,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		logger:  logger,
	}
}

// Dims returns the fixed vector length.
func (e *Embedder) Dims() int { return e.dims }

// Embed returns the embedding for text. Any backend failure (including an
// open circuit breaker) is logged and replaced with a zero vector of the
// correct length.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	var vec []float32
	err := e.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := e.backend.Embed(ctx, e.model, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		e.logger.Warn("embed failed, substituting zero vector", "err", err, "model", e.model)
		return make([]float32, e.dims)
	}
	if len(vec) != e.dims {
		e.logger.Warn("embedding has unexpected length", "got", len(vec), "want", e.dims)
		adjusted := make([]float32, e.dims)
		copy(adjusted, vec)
		return adjusted
	}
	return vec
}
