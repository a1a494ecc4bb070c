package store

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type Agent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
}

type KnowledgeFile struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	FileName   string    `json:"file_name"`
	ByteSize   int       `json:"byte_size"`
	PageCount  int       `json:"page_count"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type KnowledgeChunk struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	FileID    string    `json:"file_id,omitempty"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"` // nil when encoding failed for this chunk
	CreatedAt time.Time `json:"created_at"`

	// Similarity is only set by vector search.
	Similarity float64 `json:"similarity,omitempty"`
}

type Conversation struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
