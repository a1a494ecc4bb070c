package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	// ErrNotFound covers both missing rows and rows owned by someone else.
	ErrNotFound = errors.New("record not found")

	// ErrVectorSearchDisabled is returned when the store was opened without
	// the vector capability.
	ErrVectorSearchDisabled = errors.New("vector search is not enabled")
)

type SQLiteStore struct {
	db           *sql.DB
	vectorSearch bool
}

// NewSQLiteStore opens (and migrates) the database. vectorSearch toggles the
// similarity tier; substring search is always available.
func NewSQLiteStore(dataSourceName string, vectorSearch bool) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withPragmas(dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, vectorSearch: vectorSearch}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_foreign_keys=on"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// VectorSearchEnabled reports whether SearchChunksByVector can serve queries.
func (s *SQLiteStore) VectorSearchEnabled() bool {
	return s.vectorSearch
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS agents (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        name TEXT NOT NULL,
        system_prompt TEXT NOT NULL CHECK (system_prompt <> ''),
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_agents_user ON agents (user_id);

    CREATE TABLE IF NOT EXISTS kb_files (
        id TEXT PRIMARY KEY,
        agent_id TEXT NOT NULL REFERENCES agents (id) ON DELETE CASCADE,
        file_name TEXT NOT NULL,
        byte_size INTEGER NOT NULL,
        page_count INTEGER NOT NULL,
        title TEXT NOT NULL,
        author TEXT NOT NULL,
        chunk_count INTEGER NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_kb_files_agent ON kb_files (agent_id);

    CREATE TABLE IF NOT EXISTS kb_chunks (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL,
        agent_id TEXT NOT NULL REFERENCES agents (id) ON DELETE CASCADE,
        file_id TEXT REFERENCES kb_files (id) ON DELETE CASCADE,
        content TEXT NOT NULL CHECK (content <> ''),
        embedding_json TEXT, -- JSON array of float32, NULL when encoding failed
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_kb_chunks_agent ON kb_chunks (agent_id, seq);

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        agent_id TEXT NOT NULL REFERENCES agents (id) ON DELETE CASCADE,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations (agent_id);

    CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL,
        conversation_id TEXT NOT NULL REFERENCES conversations (id) ON DELETE CASCADE,
        role TEXT NOT NULL CHECK (role IN ('user', 'agent')),
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Agent methods
func (s *SQLiteStore) CreateAgent(ctx context.Context, userID, name, systemPrompt string) (*Agent, error) {
	agent := &Agent{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		SystemPrompt: systemPrompt,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO agents (id, user_id, name, system_prompt, created_at) VALUES (?, ?, ?, ?, ?)",
		agent.ID, agent.UserID, agent.Name, agent.SystemPrompt, agent.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert agent: %w", err)
	}
	return agent, nil
}

// GetAgent returns the agent only if userID owns it.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID, userID string) (*Agent, error) {
	var agent Agent
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, system_prompt, created_at FROM agents WHERE id = ? AND user_id = ?",
		agentID, userID).Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.SystemPrompt, &agent.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

func (s *SQLiteStore) ListAgents(ctx context.Context, userID string) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, system_prompt, created_at FROM agents WHERE user_id = ? ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		var agent Agent
		if err := rows.Scan(&agent.ID, &agent.UserID, &agent.Name, &agent.SystemPrompt, &agent.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an owned agent; files, chunks, conversations and
// messages go with it through the foreign key cascade.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, agentID, userID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM agents WHERE id = ? AND user_id = ?", agentID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Knowledge methods

// CreateFileWithChunks writes a file record and all of its chunks in one
// transaction. vectors is parallel to contents; a nil entry stores the chunk
// without an embedding.
func (s *SQLiteStore) CreateFileWithChunks(ctx context.Context, file *KnowledgeFile, contents []string, vectors [][]float32) ([]KnowledgeChunk, error) {
	if len(vectors) != 0 && len(vectors) != len(contents) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(contents), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	file.ID = uuid.NewString()
	file.ChunkCount = len(contents)
	file.CreatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kb_files (id, agent_id, file_name, byte_size, page_count, title, author, chunk_count, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.AgentID, file.FileName, file.ByteSize, file.PageCount, file.Title, file.Author, file.ChunkCount, file.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert kb file: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO kb_chunks (id, agent_id, file_id, content, embedding_json, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare kb chunk insert: %w", err)
	}
	defer stmt.Close()

	chunks := make([]KnowledgeChunk, 0, len(contents))
	for i, content := range contents {
		chunk := KnowledgeChunk{
			ID:        uuid.NewString(),
			AgentID:   file.AgentID,
			FileID:    file.ID,
			Content:   content,
			CreatedAt: now,
		}
		if len(vectors) > 0 {
			chunk.Embedding = vectors[i]
		}

		embeddingJSON, err := encodeEmbedding(chunk.Embedding)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.AgentID, chunk.FileID, chunk.Content, embeddingJSON, chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to insert kb chunk %d: %w", i, err)
		}
		chunks = append(chunks, chunk)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit kb upload: %w", err)
	}
	return chunks, nil
}

func (s *SQLiteStore) ListFiles(ctx context.Context, agentID string) ([]KnowledgeFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, file_name, byte_size, page_count, title, author, chunk_count, created_at
         FROM kb_files WHERE agent_id = ? ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query kb files: %w", err)
	}
	defer rows.Close()

	files := []KnowledgeFile{}
	for rows.Next() {
		var f KnowledgeFile
		if err := rows.Scan(&f.ID, &f.AgentID, &f.FileName, &f.ByteSize, &f.PageCount, &f.Title, &f.Author, &f.ChunkCount, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kb file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ListChunks returns every chunk of an agent in insertion order.
func (s *SQLiteStore) ListChunks(ctx context.Context, agentID string) ([]KnowledgeChunk, error) {
	return s.scanChunks(ctx, false,
		"SELECT id, agent_id, file_id, content, embedding_json, created_at FROM kb_chunks WHERE agent_id = ? ORDER BY seq",
		agentID)
}

// SearchChunksByVector ranks an agent's embedded chunks by cosine similarity
// and keeps those at or above threshold, best first.
func (s *SQLiteStore) SearchChunksByVector(ctx context.Context, agentID string, query []float32, threshold float64, limit int) ([]KnowledgeChunk, error) {
	if !s.vectorSearch {
		return nil, ErrVectorSearchDisabled
	}

	candidates, err := s.scanChunks(ctx, true,
		`SELECT id, agent_id, file_id, content, embedding_json, created_at
         FROM kb_chunks WHERE agent_id = ? AND embedding_json IS NOT NULL ORDER BY seq`,
		agentID)
	if err != nil {
		return nil, err
	}
	return rankBySimilarity(candidates, query, threshold, limit), nil
}

// SearchChunksByText returns up to limit chunks of an agent whose content
// contains query, ignoring case, in insertion order.
func (s *SQLiteStore) SearchChunksByText(ctx context.Context, agentID, query string, limit int) ([]KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, agent_id, file_id, content, created_at FROM kb_chunks WHERE agent_id = ? ORDER BY seq",
		agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query kb chunks: %w", err)
	}
	defer rows.Close()

	needle := strings.ToLower(query)
	chunks := []KnowledgeChunk{}
	for rows.Next() && len(chunks) < limit {
		var chunk KnowledgeChunk
		var fileID sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.AgentID, &fileID, &chunk.Content, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kb chunk row: %w", err)
		}
		if !strings.Contains(strings.ToLower(chunk.Content), needle) {
			continue
		}
		chunk.FileID = fileID.String
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) scanChunks(ctx context.Context, withEmbedding bool, query string, args ...any) ([]KnowledgeChunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query kb chunks: %w", err)
	}
	defer rows.Close()

	chunks := []KnowledgeChunk{}
	for rows.Next() {
		var chunk KnowledgeChunk
		var fileID, embeddingJSON sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.AgentID, &fileID, &chunk.Content, &embeddingJSON, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kb chunk row: %w", err)
		}
		chunk.FileID = fileID.String
		if withEmbedding && embeddingJSON.Valid {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &chunk.Embedding); err != nil {
				// Treated like a chunk that was never embedded.
				chunk.Embedding = nil
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func encodeEmbedding(vec []float32) (sql.NullString, error) {
	if len(vec) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// Conversation methods
func (s *SQLiteStore) CreateConversation(ctx context.Context, agentID string) (*Conversation, error) {
	conv := &Conversation{ID: uuid.NewString(), AgentID: agentID, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, agent_id, created_at) VALUES (?, ?, ?)",
		conv.ID, conv.AgentID, conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns an agent's conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, agentID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT c.id, c.agent_id, c.created_at, COUNT(m.seq)
        FROM conversations c
        LEFT JOIN messages m ON m.conversation_id = c.id
        WHERE c.agent_id = ?
        GROUP BY c.id, c.agent_id, c.created_at
        ORDER BY c.created_at DESC
    `, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.AgentID, &c.CreatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// Message methods
func (s *SQLiteStore) CreateMessage(ctx context.Context, conversationID string, role Role, content string) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in creation order, but only
// when the conversation belongs to an agent owned by userID.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID, userID string) ([]Message, error) {
	var owned int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM conversations c
        JOIN agents a ON a.id = c.agent_id
        WHERE c.id = ? AND a.user_id = ?
    `, conversationID, userID).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation ownership: %w", err)
	}
	if owned == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY seq",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
