package store

import (
	"sort"

	"agentchat.io/agent-chat/internal/utils"
)

// rankBySimilarity scores candidates against query, drops those below
// threshold or with incompatible vectors, and returns the best limit.
func rankBySimilarity(candidates []KnowledgeChunk, query []float32, threshold float64, limit int) []KnowledgeChunk {
	scored := make([]KnowledgeChunk, 0, len(candidates))
	for _, chunk := range candidates {
		if len(chunk.Embedding) == 0 {
			continue
		}
		similarity, err := utils.CosineSimilarity(query, chunk.Embedding)
		if err != nil {
			continue
		}
		if similarity >= threshold {
			chunk.Similarity = similarity
			scored = append(scored, chunk)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
