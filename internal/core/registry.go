package core

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/metrics"
)

var (
	ErrRegistryFull = errors.New("too many active sessions")
	ErrNoSession    = errors.New("no active session for user")
)

// Registry maps a user to their live chat transport, one slot per user. A
// newer session for the same user takes over the slot; the older one keeps
// running but no longer receives pushed notices.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Transport
	capacity int
	log      zerolog.Logger
}

func NewRegistry(capacity int, log zerolog.Logger) *Registry {
	return &Registry{
		conns:    make(map[string]Transport),
		capacity: capacity,
		log:      log.With().Str("component", "registry").Logger(),
	}
}

// Register binds t to userID. It fails with ErrRegistryFull only when userID
// holds no slot yet and capacity is exhausted.
func (r *Registry) Register(userID string, t Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[userID]; ok {
		r.log.Info().Str("user_id", userID).Msg("replacing registered session")
	} else if r.capacity > 0 && len(r.conns) >= r.capacity {
		return ErrRegistryFull
	}
	r.conns[userID] = t
	metrics.ActiveSessions.Set(float64(len(r.conns)))
	return nil
}

// Unregister removes userID's slot only if it still holds t, so a session
// that was replaced cannot evict its successor.
func (r *Registry) Unregister(userID string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[userID]; ok && current == t {
		delete(r.conns, userID)
		metrics.ActiveSessions.Set(float64(len(r.conns)))
	}
}

func (r *Registry) Lookup(userID string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.conns[userID]
	return t, ok
}

// Push delivers an out-of-band frame to userID's live session.
func (r *Registry) Push(ctx context.Context, userID string, frame Frame) error {
	t, ok := r.Lookup(userID)
	if !ok {
		return ErrNoSession
	}
	return t.Send(ctx, frame)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered transport with code.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	conns := make([]Transport, 0, len(r.conns))
	for _, t := range r.conns {
		conns = append(conns, t)
	}
	r.mu.RUnlock()

	for _, t := range conns {
		if err := t.Close(code, reason); err != nil {
			r.log.Debug().Err(err).Msg("close registered session")
		}
	}
}
