package core

import (
	"context"

	"agentchat.io/agent-chat/internal/store"
)

// RecordStore is the persistence the core depends on. Reads of agents and
// messages are scoped to the owning user; the rest are scoped by agent id and
// must only be called after the agent's ownership has been checked.
type RecordStore interface {
	CreateAgent(ctx context.Context, userID, name, systemPrompt string) (*store.Agent, error)
	GetAgent(ctx context.Context, agentID, userID string) (*store.Agent, error)
	ListAgents(ctx context.Context, userID string) ([]store.Agent, error)
	DeleteAgent(ctx context.Context, agentID, userID string) error

	CreateFileWithChunks(ctx context.Context, file *store.KnowledgeFile, contents []string, vectors [][]float32) ([]store.KnowledgeChunk, error)
	ListFiles(ctx context.Context, agentID string) ([]store.KnowledgeFile, error)
	ListChunks(ctx context.Context, agentID string) ([]store.KnowledgeChunk, error)
	SearchChunksByVector(ctx context.Context, agentID string, query []float32, threshold float64, limit int) ([]store.KnowledgeChunk, error)
	SearchChunksByText(ctx context.Context, agentID, query string, limit int) ([]store.KnowledgeChunk, error)

	CreateConversation(ctx context.Context, agentID string) (*store.Conversation, error)
	ListConversations(ctx context.Context, agentID string) ([]store.Conversation, error)
	CreateMessage(ctx context.Context, conversationID string, role store.Role, content string) (*store.Message, error)
	ListMessages(ctx context.Context, conversationID, userID string) ([]store.Message, error)
}
