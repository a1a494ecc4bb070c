package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/auth"
	"agentchat.io/agent-chat/internal/metrics"
	"agentchat.io/agent-chat/internal/store"
	"agentchat.io/agent-chat/internal/utils"
)

type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticating
	StateBinding
	StateActive
	StateClosed
	StateRejected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateBinding:
		return "binding"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

// Rejection ends a session before the transport is accepted.
type Rejection struct {
	Code   int
	Reason string
	Err    error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("session rejected (%d): %s", r.Code, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// ChatService opens chat sessions.
type ChatService struct {
	verifier   auth.Verifier
	store      RecordStore
	retrieval  *RetrievalIndex
	completion *CompletionSession
	registry   *Registry
	log        zerolog.Logger
}

func NewChatService(verifier auth.Verifier, recordStore RecordStore, retrieval *RetrievalIndex, completion *CompletionSession, registry *Registry, log zerolog.Logger) *ChatService {
	return &ChatService{
		verifier:   verifier,
		store:      recordStore,
		retrieval:  retrieval,
		completion: completion,
		registry:   registry,
		log:        log.With().Str("component", "chat_session").Logger(),
	}
}

// Open authenticates the caller and binds the session to one of their
// agents. On failure it returns a *Rejection and nothing has been accepted
// or written.
func (s *ChatService) Open(ctx context.Context, rawToken, agentID string) (*ChatSession, error) {
	log := s.log.With().Str("agent_id", agentID).Logger()
	log.Debug().Stringer("state", StateAuthenticating).Msg("session transition")

	token := auth.BearerToken(rawToken)
	if token == "" {
		return nil, s.reject(log, CodeMissingToken, "Missing authentication token", auth.ErrMissingToken)
	}
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return nil, s.reject(log, CodeMissingToken, "Missing authentication token", err)
		}
		return nil, s.reject(log, CodeInvalidToken, "Invalid token", err)
	}

	log = log.With().Str("user_id", identity.UserID).Logger()
	log.Debug().Stringer("state", StateBinding).Msg("session transition")

	agent, err := s.store.GetAgent(ctx, agentID, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, s.reject(log, CodeAgentNotFound, "Agent not found or access denied", ErrNotFoundOrForbidden)
		}
		return nil, s.reject(log, CodeInternal, "Internal error", storeErr(err))
	}

	return &ChatSession{
		svc:      s,
		identity: identity,
		agent:    *agent,
		state:    StateBinding,
		log:      log,
	}, nil
}

func (s *ChatService) reject(log zerolog.Logger, code int, reason string, err error) *Rejection {
	log.Warn().Err(err).Int("code", code).Str("reason", reason).Stringer("state", StateRejected).Msg("session rejected")
	metrics.SessionRejectedTotal.WithLabelValues(strconv.Itoa(code)).Inc()
	return &Rejection{Code: code, Reason: reason, Err: err}
}

// ChatSession is one authenticated, agent-bound connection.
type ChatSession struct {
	svc            *ChatService
	identity       auth.Identity
	agent          store.Agent
	conversationID string
	state          SessionState
	log            zerolog.Logger
}

func (cs *ChatSession) Identity() auth.Identity { return cs.identity }
func (cs *ChatSession) Agent() store.Agent      { return cs.agent }
func (cs *ChatSession) ConversationID() string  { return cs.conversationID }
func (cs *ChatSession) State() SessionState     { return cs.state }

// Serve runs the turn loop over an accepted transport until the client
// disconnects, ctx is cancelled or a fatal error occurs. Fatal errors close
// the transport with CodeInternal and are returned.
func (cs *ChatSession) Serve(ctx context.Context, t Transport) error {
	cs.state = StateActive
	defer func() {
		cs.state = StateClosed
		cs.log.Info().Str("conversation_id", cs.conversationID).Msg("session closed")
	}()

	registry := cs.svc.registry
	if err := registry.Register(cs.identity.UserID, t); err != nil {
		cs.log.Warn().Err(err).Msg("session registration refused")
		_ = t.Close(CodeTooManySessions, "too many sessions")
		return err
	}
	defer registry.Unregister(cs.identity.UserID, t)

	conv, err := cs.svc.store.CreateConversation(ctx, cs.agent.ID)
	if err != nil {
		return cs.fail(t, storeErr(err))
	}
	cs.conversationID = conv.ID
	cs.log = cs.log.With().Str("conversation_id", conv.ID).Logger()
	cs.log.Info().Msg("session accepted")

	for {
		raw, err := t.Receive(ctx)
		if err == nil {
			utterance := parseClientTurn(raw)
			if utterance == "" {
				continue
			}
			err = cs.runTurn(ctx, t, utterance)
			if err == nil {
				continue
			}
		}

		switch {
		case ctx.Err() != nil:
			_ = t.Close(CodeGoingAway, "server shutting down")
			return nil
		case errors.Is(err, ErrTransportClosed):
			return nil
		default:
			return cs.fail(t, err)
		}
	}
}

func (cs *ChatSession) fail(t Transport, err error) error {
	cs.log.Error().Err(err).Msg("session failed")
	_ = t.Close(CodeInternal, "Internal error")
	return err
}

// runTurn handles one utterance. The user message is stored before retrieval
// starts and the agent message is stored before the end frame is sent.
func (cs *ChatSession) runTurn(ctx context.Context, t Transport, utterance string) error {
	recordStore := cs.svc.store
	if _, err := recordStore.CreateMessage(ctx, cs.conversationID, store.RoleUser, utterance); err != nil {
		return storeErr(err)
	}

	chunks, err := cs.svc.retrieval.Search(ctx, cs.agent.ID, utterance, ChatRetrievalLimit)
	if err != nil {
		cs.log.Warn().Err(err).Msg("retrieval failed, answering without context")
	}
	contents := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		contents = append(contents, chunk.Content)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.Done():
			cancel()
		case <-turnCtx.Done():
		}
	}()

	var reply strings.Builder
	fragments := cs.svc.completion.StreamReply(turnCtx, utterance, cs.agent.SystemPrompt, strings.Join(contents, "\n"))
	for fragment := range fragments {
		if turnCtx.Err() != nil {
			continue
		}
		reply.WriteString(fragment)
		if err := t.Send(turnCtx, Frame{Type: FrameToken, Content: fragment}); err != nil {
			cancel()
		}
	}
	interrupted := turnCtx.Err() != nil

	// Stored even when the client is gone.
	msg, err := recordStore.CreateMessage(context.WithoutCancel(ctx), cs.conversationID, store.RoleAgent, utils.StripUnsafe(reply.String()))
	if err != nil {
		if interrupted {
			cs.log.Error().Err(err).Msg("failed to store partial reply")
			return ErrTransportClosed
		}
		return storeErr(err)
	}
	if interrupted {
		cs.log.Info().Str("message_id", msg.ID).Int("length", reply.Len()).Msg("turn interrupted, partial reply stored")
		return ErrTransportClosed
	}

	if err := t.Send(ctx, Frame{Type: FrameEnd, MessageID: msg.ID}); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	metrics.TurnsTotal.Inc()
	return nil
}

type clientTurn struct {
	Message *string `json:"message"`
}

// parseClientTurn accepts either raw text or {"message": "..."} and returns
// the sanitized utterance.
func parseClientTurn(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var turn clientTurn
		if err := json.Unmarshal([]byte(trimmed), &turn); err == nil && turn.Message != nil {
			return utils.Sanitize(*turn.Message)
		}
	}
	return utils.Sanitize(raw)
}
