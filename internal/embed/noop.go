package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// NoopProvider derives deterministic pseudo-embeddings from a content
// hash. It keeps the whole pipeline, vector search included, working in
// deployments without an API key; identical texts land on identical
// vectors, so exact-duplicate lookups still behave.
type NoopProvider struct {
	dimension int
}

// NewNoopProvider creates a new NoopProvider instance
func NewNoopProvider(dimension int) *NoopProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &NoopProvider{dimension: dimension}
}

// Dimension returns the configured vector width
func (p *NoopProvider) Dimension() int {
	return p.dimension
}

// Embed maps each text onto a unit vector seeded by its sha256.
func (p *NoopProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = pseudoVector(text, p.dimension)
	}
	return vectors, nil
}

func pseudoVector(text string, dimension int) []float32 {
	seed := sha256.Sum256([]byte(text))

	vector := make([]float32, dimension)
	var norm float64
	var block [sha256.Size]byte
	for i := 0; i < dimension; i++ {
		if i%sha256.Size == 0 {
			counter := make([]byte, 8)
			binary.BigEndian.PutUint64(counter, uint64(i/sha256.Size))
			block = sha256.Sum256(append(seed[:], counter...))
		}
		// One byte maps onto [-1, 1).
		v := float64(block[i%sha256.Size])/127.5 - 1
		vector[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		vector[0] = 1
		return vector
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector
}
