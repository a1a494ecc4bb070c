package core

import (
	"context"

	"agentchat.io/agent-chat/internal/store"
)

type HistoryService struct {
	store RecordStore
}

func NewHistoryService(recordStore RecordStore) *HistoryService {
	return &HistoryService{store: recordStore}
}

// ListConversations returns an owned agent's conversations, newest first.
func (s *HistoryService) ListConversations(ctx context.Context, userID, agentID string) ([]store.Conversation, error) {
	if _, err := s.store.GetAgent(ctx, agentID, userID); err != nil {
		return nil, storeErr(err)
	}
	convs, err := s.store.ListConversations(ctx, agentID)
	if err != nil {
		return nil, storeErr(err)
	}
	return convs, nil
}

// ListMessages returns a conversation's messages in order, if the caller owns
// its agent.
func (s *HistoryService) ListMessages(ctx context.Context, userID, conversationID string) ([]store.Message, error) {
	messages, err := s.store.ListMessages(ctx, conversationID, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return messages, nil
}
