package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/llm"
	"agentchat.io/agent-chat/internal/metrics"
)

const (
	DefaultStreamTimeout = 60 * time.Second
	DefaultPromptTimeout = 30 * time.Second
)

// ApologyFragment closes a reply whose stream broke off.
const ApologyFragment = "I apologize, but I encountered an error while processing your request."

const promptRequestTemplate = `Create a system prompt for an AI agent with the following details:
- Name: %s
- Description: %s

The system prompt should:
1. Define the agent's role and personality
2. Set behavioral guidelines
3. Specify how to handle different types of queries
4. Include instructions for using knowledge base context when available

Generate a clear, professional system prompt:`

const fallbackPromptTemplate = `You are %s, an AI assistant designed to help users with their queries.

Description: %s

Guidelines:
1. Be helpful, accurate, and professional in your responses
2. Use the provided knowledge base context when available to give more informed answers
3. If you don't know something, be honest about it
4. Keep responses concise but comprehensive
5. Maintain a consistent and friendly tone

When knowledge base context is provided, use it to enhance your responses while staying true to your core purpose.`

// CompletionSession wraps a Backend with prompt construction, time limits and
// failure handling.
type CompletionSession struct {
	backend       llm.Backend
	streamTimeout time.Duration
	promptTimeout time.Duration
	log           zerolog.Logger
}

func NewCompletionSession(backend llm.Backend, streamTimeout, promptTimeout time.Duration, log zerolog.Logger) *CompletionSession {
	if streamTimeout <= 0 {
		streamTimeout = DefaultStreamTimeout
	}
	if promptTimeout <= 0 {
		promptTimeout = DefaultPromptTimeout
	}
	return &CompletionSession{
		backend:       backend,
		streamTimeout: streamTimeout,
		promptTimeout: promptTimeout,
		log:           log.With().Str("component", "completion").Logger(),
	}
}

// GeneratePrompt asks the backend for an agent system prompt. It never fails:
// any backend error yields FallbackPrompt(name, description).
func (c *CompletionSession) GeneratePrompt(ctx context.Context, name, description string) string {
	ctx, cancel := context.WithTimeout(ctx, c.promptTimeout)
	defer cancel()

	prompt, err := c.backend.Generate(ctx, fmt.Sprintf(promptRequestTemplate, name, description))
	if err == nil {
		prompt = strings.TrimSpace(prompt)
	}
	if err != nil || prompt == "" {
		c.log.Warn().Err(err).Str("agent_name", name).Msg("system prompt generation failed, using template")
		metrics.PromptFallbackTotal.Inc()
		return FallbackPrompt(name, description)
	}
	return prompt
}

// FallbackPrompt is the templated system prompt built from name and description only.
func FallbackPrompt(name, description string) string {
	return fmt.Sprintf(fallbackPromptTemplate, name, description)
}

// BuildPrompt combines retrieved context, the system prompt and the user's
// message into a single completion prompt.
func BuildPrompt(message, systemPrompt, kbContext string) string {
	var b strings.Builder
	if kbContext != "" {
		b.WriteString("Context information:\n")
		b.WriteString(kbContext)
		b.WriteString("\n\n")
	}
	b.WriteString("System: ")
	b.WriteString(systemPrompt)
	b.WriteString("\n\nUser: ")
	b.WriteString(message)
	b.WriteString("\n\nAssistant:")
	return b.String()
}

// StreamReply starts a streamed completion and returns its fragments. The
// channel is closed when the backend finishes, fails or exceeds the stream
// timeout; on failure the last fragment is ApologyFragment. Cancelling ctx
// abandons the backend call and closes the channel without an apology.
func (c *CompletionSession) StreamReply(ctx context.Context, userMessage, systemPrompt, kbContext string) <-chan string {
	out := make(chan string)
	prompt := BuildPrompt(userMessage, systemPrompt, kbContext)

	go func() {
		defer close(out)

		streamCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)
		defer cancel()

		fragments := 0
		err := c.backend.Stream(streamCtx, prompt, func(fragment string) error {
			select {
			case out <- fragment:
				fragments++
				return nil
			case <-streamCtx.Done():
				return streamCtx.Err()
			}
		})
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			c.log.Debug().Err(err).Msg("reply stream abandoned by consumer")
			return
		}

		c.log.Warn().Err(err).Int("fragments", fragments).Msg("reply stream degraded")
		metrics.StreamDegradedTotal.Inc()
		select {
		case out <- ApologyFragment:
		case <-ctx.Done():
		}
	}()

	return out
}
