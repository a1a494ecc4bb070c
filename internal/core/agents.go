package core

import (
	"context"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/store"
	"agentchat.io/agent-chat/internal/utils"
)

const (
	MaxAgentNameLength        = 100
	MaxAgentDescriptionLength = 500
)

type AgentService struct {
	store      RecordStore
	completion *CompletionSession
	log        zerolog.Logger
}

func NewAgentService(recordStore RecordStore, completion *CompletionSession, log zerolog.Logger) *AgentService {
	return &AgentService{
		store:      recordStore,
		completion: completion,
		log:        log.With().Str("component", "agents").Logger(),
	}
}

// CreateAgent stores a new agent whose system prompt is derived once from
// its name and description.
func (s *AgentService) CreateAgent(ctx context.Context, userID, name, description string) (*store.Agent, error) {
	name = utils.Sanitize(name)
	description = utils.Sanitize(description)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxAgentNameLength {
		return nil, newValidationError(ReasonInvalidInput, "name must be 1-%d characters", MaxAgentNameLength)
	}
	if n := utf8.RuneCountInString(description); n == 0 || n > MaxAgentDescriptionLength {
		return nil, newValidationError(ReasonInvalidInput, "description must be 1-%d characters", MaxAgentDescriptionLength)
	}

	prompt := s.completion.GeneratePrompt(ctx, name, description)
	agent, err := s.store.CreateAgent(ctx, userID, name, prompt)
	if err != nil {
		return nil, storeErr(err)
	}
	s.log.Info().Str("agent_id", agent.ID).Str("user_id", userID).Msg("agent created")
	return agent, nil
}

func (s *AgentService) GetAgent(ctx context.Context, userID, agentID string) (*store.Agent, error) {
	agent, err := s.store.GetAgent(ctx, agentID, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return agent, nil
}

func (s *AgentService) ListAgents(ctx context.Context, userID string) ([]store.Agent, error) {
	agents, err := s.store.ListAgents(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return agents, nil
}

// DeleteAgent removes an agent with its knowledge base and history.
func (s *AgentService) DeleteAgent(ctx context.Context, userID, agentID string) error {
	if err := s.store.DeleteAgent(ctx, agentID, userID); err != nil {
		return storeErr(err)
	}
	s.log.Info().Str("agent_id", agentID).Str("user_id", userID).Msg("agent deleted")
	return nil
}
