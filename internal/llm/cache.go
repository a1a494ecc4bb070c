package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// CachedEncoder memoizes vectors by exact input text.
type CachedEncoder struct {
	next  Encoder
	cache *lru.Cache
}

func NewCachedEncoder(next Encoder, size int) (*CachedEncoder, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEncoder{next: next, cache: cache}, nil
}

func (c *CachedEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := c.next.Encode(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// Len reports the number of cached vectors.
func (c *CachedEncoder) Len() int {
	return c.cache.Len()
}
