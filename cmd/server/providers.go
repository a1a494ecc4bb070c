package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/api"
	"agentchat.io/agent-chat/internal/auth"
	"agentchat.io/agent-chat/internal/config"
	"agentchat.io/agent-chat/internal/core"
	"agentchat.io/agent-chat/internal/llm"
	"agentchat.io/agent-chat/internal/store"
)

func newStore(cfg config.Config) (*store.SQLiteStore, func(), error) {
	s, err := store.NewSQLiteStore(cfg.DatabaseURL, cfg.VectorSearchEnabled)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return s, func() { s.Close() }, nil
}

// modelClients holds the completion backend and the optional vector encoder,
// which may share one provider client.
type modelClients struct {
	backend llm.Backend
	encoder llm.Encoder
}

func newModelClients(ctx context.Context, cfg config.Config, log zerolog.Logger) (*modelClients, func(), error) {
	var (
		ollama  *llm.Ollama
		gemini  *llm.Gemini
		clients modelClients
	)
	cleanup := func() {
		if gemini != nil {
			gemini.Close()
		}
	}

	needGemini := cfg.CompletionProvider == config.ProviderGemini || cfg.EmbeddingProvider == config.ProviderGemini
	if needGemini {
		var err error
		gemini, err = llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiEmbeddingModel, log)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini client: %w", err)
		}
	}
	if cfg.CompletionProvider == config.ProviderOllama || cfg.EmbeddingProvider == config.ProviderOllama {
		ollama = llm.NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaEmbeddingModel, log)
	}

	switch cfg.CompletionProvider {
	case config.ProviderGemini:
		clients.backend = gemini
	default:
		clients.backend = ollama
	}

	var encoder llm.Encoder
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		encoder = gemini
	case config.ProviderOllama:
		encoder = ollama
	}
	if encoder != nil && cfg.EmbeddingCacheSize > 0 {
		cached, err := llm.NewCachedEncoder(encoder, cfg.EmbeddingCacheSize)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create embedding cache: %w", err)
		}
		encoder = cached
	}
	clients.encoder = encoder

	log.Info().
		Str("completion_provider", cfg.CompletionProvider).
		Str("embedding_provider", cfg.EmbeddingProvider).
		Msg("model clients ready")
	return &clients, cleanup, nil
}

func provideBackend(m *modelClients) llm.Backend { return m.backend }

func provideEncoder(m *modelClients) llm.Encoder { return m.encoder }

func newVerifier(ctx context.Context, cfg config.Config, log zerolog.Logger) (auth.Verifier, func(), error) {
	if cfg.AuthJWKSURL != "" {
		v, err := auth.NewJWKSVerifier(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer, log)
		if err != nil {
			return nil, nil, err
		}
		return v, v.Close, nil
	}
	v, err := auth.NewHMACVerifier(cfg.JWTSecret, cfg.AuthIssuer)
	if err != nil {
		return nil, nil, err
	}
	return v, func() {}, nil
}

func newRegistry(cfg config.Config, log zerolog.Logger) *core.Registry {
	return core.NewRegistry(cfg.MaxSessions, log)
}

func newRetrievalIndex(s core.RecordStore, encoder llm.Encoder, cfg config.Config, log zerolog.Logger) *core.RetrievalIndex {
	return core.NewRetrievalIndex(s, encoder, cfg.SimilarityThreshold, log)
}

func newCompletionSession(backend llm.Backend, cfg config.Config, log zerolog.Logger) *core.CompletionSession {
	return core.NewCompletionSession(backend, cfg.StreamTimeout, cfg.PromptTimeout, log)
}

func newKnowledgeService(s core.RecordStore, encoder llm.Encoder, retrieval *core.RetrievalIndex, registry *core.Registry, cfg config.Config, log zerolog.Logger) *core.KnowledgeService {
	return core.NewKnowledgeService(s, encoder, retrieval, registry, cfg.ChunkSize, cfg.MaxUploadBytes, log)
}

func newAPIHandler(agents *core.AgentService, knowledge *core.KnowledgeService, history *core.HistoryService, chat *core.ChatService, backend llm.Backend, verifier auth.Verifier, cfg config.Config, log zerolog.Logger) *api.APIHandler {
	return api.NewAPIHandler(agents, knowledge, history, chat, backend, verifier, api.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedOrigins: cfg.AllowedOrigins,
	}, log)
}
