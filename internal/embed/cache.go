package embed

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache remembers vectors for recently embedded texts, keyed by content
// hash. Re-runs over unchanged fragments then skip the provider entirely.
type Cache struct {
	vectors *lru.Cache[string, []float32]
}

// NewCache creates a new Cache instance holding up to size vectors
func NewCache(size int) (*Cache, error) {
	vectors, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cache{vectors: vectors}, nil
}

// Get returns the cached vector for the text, if any.
func (c *Cache) Get(text string) ([]float32, bool) {
	return c.vectors.Get(cacheKey(text))
}

// Add stores the vector for the text.
func (c *Cache) Add(text string, vector []float32) {
	c.vectors.Add(cacheKey(text), vector)
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	return c.vectors.Len()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
