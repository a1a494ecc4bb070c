package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/extract"
	"agentchat.io/agent-chat/internal/llm"
	"agentchat.io/agent-chat/internal/metrics"
	"agentchat.io/agent-chat/internal/store"
	"agentchat.io/agent-chat/internal/utils"
)

const (
	DefaultMaxUploadBytes = 10 << 20
	encodeConcurrency     = 4
)

type UploadResult struct {
	FileID        string           `json:"file_id"`
	ChunksCreated int              `json:"chunks_created"`
	Metadata      extract.Metadata `json:"metadata"`
}

// KnowledgeService ingests documents into an agent's knowledge base and
// searches it.
type KnowledgeService struct {
	store          RecordStore
	encoder        llm.Encoder
	retrieval      *RetrievalIndex
	registry       *Registry
	chunkSize      int
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewKnowledgeService builds the service. encoder and registry may be nil.
func NewKnowledgeService(recordStore RecordStore, encoder llm.Encoder, retrieval *RetrievalIndex, registry *Registry, chunkSize int, maxUploadBytes int64, log zerolog.Logger) *KnowledgeService {
	if chunkSize <= 0 {
		chunkSize = utils.DefaultChunkSize
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &KnowledgeService{
		store:          recordStore,
		encoder:        encoder,
		retrieval:      retrieval,
		registry:       registry,
		chunkSize:      chunkSize,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("component", "knowledge").Logger(),
	}
}

// Upload extracts, chunks, embeds and stores a file. Either the file and all
// of its chunks are stored or nothing is.
func (s *KnowledgeService) Upload(ctx context.Context, userID, agentID, filename string, data []byte) (*UploadResult, error) {
	result, err := s.upload(ctx, userID, agentID, filename, data)
	status := "ok"
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		status = verr.Reason
	case err != nil:
		status = "error"
	}
	metrics.UploadsTotal.WithLabelValues(status).Inc()
	return result, err
}

func (s *KnowledgeService) upload(ctx context.Context, userID, agentID, filename string, data []byte) (*UploadResult, error) {
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		return nil, storeErr(err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, newValidationError(ReasonOversized, "file exceeds %d bytes", s.maxUploadBytes)
	}
	if len(data) == 0 {
		return nil, newValidationError(ReasonEmptyFile, "file is empty")
	}

	extractor, err := extract.ForFilename(filename, s.chunkSize, s.log)
	if err != nil {
		return nil, newValidationError(ReasonUnsupportedType, "only .txt, .md and .pdf files are supported")
	}
	chunks, err := extractor.Extract(ctx, data)
	switch {
	case errors.Is(err, extract.ErrInvalidEncoding), errors.Is(err, extract.ErrUnreadableDocument):
		return nil, newValidationError(ReasonEncodingFailure, "%v", err)
	case err != nil:
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	if len(chunks) == 0 {
		return nil, newValidationError(ReasonEmptyExtraction, "no text could be extracted")
	}

	meta := extractor.Metadata(data)
	vectors := llm.EncodeBatch(ctx, s.encoder, chunks, encodeConcurrency, s.log)
	missing := 0
	for _, v := range vectors {
		if v == nil {
			missing++
		}
	}
	if s.encoder != nil && missing > 0 {
		metrics.ChunkEncodeFailuresTotal.Add(float64(missing))
	}

	file := &store.KnowledgeFile{
		AgentID:   agentID,
		FileName:  filename,
		ByteSize:  meta.ByteSize,
		PageCount: meta.PageCount,
		Title:     meta.Title,
		Author:    meta.Author,
	}
	if _, err := s.store.CreateFileWithChunks(ctx, file, chunks, vectors); err != nil {
		return nil, &CollaboratorError{Collaborator: CollaboratorStore, Err: err}
	}

	s.log.Info().
		Str("agent_id", agentID).
		Str("file_id", file.ID).
		Str("format", string(extractor.Format())).
		Int("chunks", len(chunks)).
		Int("unembedded", missing).
		Msg("knowledge base file ingested")

	s.notify(ctx, userID, len(chunks))
	return &UploadResult{FileID: file.ID, ChunksCreated: len(chunks), Metadata: meta}, nil
}

func (s *KnowledgeService) notify(ctx context.Context, userID string, chunks int) {
	if s.registry == nil {
		return
	}
	frame := Frame{Type: FrameNotice, Content: fmt.Sprintf("knowledge base updated: %d chunks", chunks)}
	if err := s.registry.Push(ctx, userID, frame); err != nil && !errors.Is(err, ErrNoSession) {
		s.log.Debug().Err(err).Str("user_id", userID).Msg("upload notice not delivered")
	}
}

func (s *KnowledgeService) ListChunks(ctx context.Context, userID, agentID string) ([]store.KnowledgeChunk, error) {
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		return nil, storeErr(err)
	}
	chunks, err := s.store.ListChunks(ctx, agentID)
	if err != nil {
		return nil, storeErr(err)
	}
	return chunks, nil
}

func (s *KnowledgeService) ListFiles(ctx context.Context, userID, agentID string) ([]store.KnowledgeFile, error) {
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		return nil, storeErr(err)
	}
	files, err := s.store.ListFiles(ctx, agentID)
	if err != nil {
		return nil, storeErr(err)
	}
	return files, nil
}

// Search returns up to limit chunks of an owned agent relevant to query.
// limit must be within [1, MaxSearchLimit].
func (s *KnowledgeService) Search(ctx context.Context, userID, agentID, query string, limit int) ([]store.KnowledgeChunk, error) {
	if limit < 1 || limit > MaxSearchLimit {
		return nil, newValidationError(ReasonInvalidLimit, "limit must be within [1, %d]", MaxSearchLimit)
	}
	query = utils.Sanitize(query)
	if query == "" {
		return nil, newValidationError(ReasonInvalidInput, "query must not be empty")
	}
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		return nil, storeErr(err)
	}
	return s.retrieval.Search(ctx, agentID, query, limit)
}
