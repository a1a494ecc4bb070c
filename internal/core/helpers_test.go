package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"agentchat.io/agent-chat/internal/auth"
	"agentchat.io/agent-chat/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T, vectorSearch bool) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"), vectorSearch)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createAgent(t *testing.T, s RecordStore, userID string) *store.Agent {
	t.Helper()
	agent, err := s.CreateAgent(context.Background(), userID, userID+"'s agent", "You are helpful.")
	require.NoError(t, err)
	return agent
}

// factSentences builds n sentences of exactly 50 characters including the
// trailing space.
func factSentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		s := fmt.Sprintf("Fact%02d", i)
		s += strings.Repeat("a", 48-len(s))
		b.WriteString(s + ". ")
	}
	return b.String()
}

type fakeVerifier map[string]auth.Identity

func (f fakeVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, auth.ErrMissingToken
	}
	id, ok := f[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

// fakeBackend streams fragments, then fails with failErr if set. With block
// set it waits for cancellation after the fragments instead of returning.
type fakeBackend struct {
	fragments []string
	failErr   error
	block     bool

	generated   string
	generateErr error

	mu        sync.Mutex
	prompts   []string
	cancelled bool
}

func (f *fakeBackend) Generate(_ context.Context, prompt string) (string, error) {
	return f.generated, f.generateErr
}

func (f *fakeBackend) Stream(ctx context.Context, prompt string, emit func(string) error) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	for _, fragment := range f.fragments {
		if err := emit(fragment); err != nil {
			f.markCancelled(ctx)
			return err
		}
	}
	if f.block {
		<-ctx.Done()
		f.markCancelled(ctx)
		return ctx.Err()
	}
	return f.failErr
}

func (f *fakeBackend) markCancelled(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		f.cancelled = true
	}
}

func (f *fakeBackend) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeBackend) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeBackend) HealthCheck(context.Context) bool { return true }

func (f *fakeBackend) ListModels(context.Context) ([]string, error) {
	return []string{"fake"}, nil
}

type fakeEncoder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

// fakeTransport is an in-memory Transport. Frames sent by the session are
// delivered on the frames channel.
type fakeTransport struct {
	incoming chan string
	frames   chan Frame
	done     chan struct{}

	mu          sync.Mutex
	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming: make(chan string),
		frames:   make(chan Frame, 64),
		done:     make(chan struct{}),
	}
}

func (f *fakeTransport) Receive(ctx context.Context) (string, error) {
	select {
	case msg := <-f.incoming:
		return msg, nil
	case <-f.done:
		return "", ErrTransportClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeTransport) Send(_ context.Context, frame Frame) error {
	select {
	case <-f.done:
		return ErrTransportClosed
	default:
	}
	f.frames <- frame
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	if f.closeCode == 0 {
		f.closeCode = code
		f.closeReason = reason
	}
	f.mu.Unlock()
	f.disconnect()
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

func (f *fakeTransport) disconnect() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *fakeTransport) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

func (f *fakeTransport) say(t *testing.T, msg string) {
	t.Helper()
	select {
	case f.incoming <- msg:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not read the client turn")
	}
}

func (f *fakeTransport) next(t *testing.T) Frame {
	t.Helper()
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Frame{}
	}
}

// untilEnd collects frames up to and including the next end frame.
func (f *fakeTransport) untilEnd(t *testing.T) []Frame {
	t.Helper()
	var frames []Frame
	for {
		frame := f.next(t)
		frames = append(frames, frame)
		if frame.Type == FrameEnd {
			return frames
		}
	}
}

var errBackendDown = errors.New("backend down")

func nopLog() zerolog.Logger { return zerolog.Nop() }
