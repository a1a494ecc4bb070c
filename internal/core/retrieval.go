package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/llm"
	"agentchat.io/agent-chat/internal/metrics"
	"agentchat.io/agent-chat/internal/store"
)

const (
	DefaultSimilarityThreshold = 0.7
	ChatRetrievalLimit         = 5
	MaxSearchLimit             = 20
)

const (
	tierVector    = "vector"
	tierSubstring = "substring"
)

// Fallback reasons, logged and counted.
const (
	fallbackNoEncoder         = "encoder_unavailable"
	fallbackEncoderError      = "encoder_error"
	fallbackVectorUnavailable = "vector_unavailable"
	fallbackVectorError       = "vector_error"
	fallbackNoVectorHits      = "no_vector_hits"
)

// RetrievalIndex finds the chunks of an agent most relevant to a query. It
// ranks by embedding similarity when it can and otherwise falls back to a
// case-insensitive substring match in insertion order.
type RetrievalIndex struct {
	store     RecordStore
	encoder   llm.Encoder
	threshold float64
	log       zerolog.Logger
}

// NewRetrievalIndex builds an index. A nil encoder disables the vector tier.
func NewRetrievalIndex(recordStore RecordStore, encoder llm.Encoder, threshold float64, log zerolog.Logger) *RetrievalIndex {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &RetrievalIndex{
		store:     recordStore,
		encoder:   encoder,
		threshold: threshold,
		log:       log.With().Str("component", "retrieval").Logger(),
	}
}

// Search returns at most limit chunks of agentID, most relevant first. An
// empty result is not an error. Only a failure of the substring tier itself
// is reported.
func (r *RetrievalIndex) Search(ctx context.Context, agentID, query string, limit int) ([]store.KnowledgeChunk, error) {
	if limit <= 0 {
		return []store.KnowledgeChunk{}, nil
	}

	chunks, reason, err := r.searchVector(ctx, agentID, query, limit)
	if reason == "" {
		metrics.RetrievalTotal.WithLabelValues(tierVector).Inc()
		return chunks, nil
	}

	event := r.log.Info()
	if err != nil {
		event = r.log.Warn().Err(err)
	}
	event.Str("agent_id", agentID).Str("reason", reason).Msg("retrieval fallback")
	metrics.RetrievalFallbackTotal.WithLabelValues(reason).Inc()

	chunks, err = r.store.SearchChunksByText(ctx, agentID, query, limit)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: CollaboratorStore, Err: err}
	}
	metrics.RetrievalTotal.WithLabelValues(tierSubstring).Inc()
	return chunks, nil
}

// searchVector returns a non-empty fallback reason when the vector tier could
// not answer.
func (r *RetrievalIndex) searchVector(ctx context.Context, agentID, query string, limit int) ([]store.KnowledgeChunk, string, error) {
	if r.encoder == nil {
		return nil, fallbackNoEncoder, nil
	}

	vec, err := r.encoder.Encode(ctx, query)
	if err != nil {
		return nil, fallbackEncoderError, err
	}

	chunks, err := r.store.SearchChunksByVector(ctx, agentID, vec, r.threshold, limit)
	switch {
	case errors.Is(err, store.ErrVectorSearchDisabled):
		return nil, fallbackVectorUnavailable, nil
	case err != nil:
		return nil, fallbackVectorError, err
	case len(chunks) == 0:
		return nil, fallbackNoVectorHits, nil
	}
	return chunks, "", nil
}
