// Package mock provides a deterministic embedder for tests and local
// development without model files.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder produces bag-of-words embeddings: each token hashes to a
// dimension. Deterministic, and texts sharing tokens score higher under
// cosine similarity, which is enough structure for tests.
type Embedder struct {
	dimensions int
}

// New returns a mock embedder with a small fixed dimensionality.
func New() *Embedder {
	return &Embedder{dimensions: 256}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, e.dimensions)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'")
		if tok == "" {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		embedding[h.Sum64()%uint64(e.dimensions)] += 1
	}
	return normalize(embedding), nil
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
