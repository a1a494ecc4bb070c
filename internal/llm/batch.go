package llm

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultBatchConcurrency = 4

// EncodeBatch encodes texts concurrently. The result is parallel to texts; a
// text that fails to encode gets a nil vector instead of failing the batch.
func EncodeBatch(ctx context.Context, enc Encoder, texts []string, concurrency int, log zerolog.Logger) [][]float32 {
	vectors := make([][]float32, len(texts))
	if enc == nil {
		return vectors
	}
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := enc.Encode(ctx, text)
			if err != nil {
				log.Warn().Err(err).Int("chunk_index", i).Msg("chunk encoding failed")
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}
