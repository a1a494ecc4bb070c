package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"agentchat.io/agent-chat/internal/auth"
	"agentchat.io/agent-chat/internal/core"
	"agentchat.io/agent-chat/internal/store"
)

const testSecret = "api-test-secret"

type stubBackend struct {
	fragments []string
	healthy   bool
	models    []string
}

func (b *stubBackend) Generate(context.Context, string) (string, error) {
	return "You are a focused test agent.", nil
}

func (b *stubBackend) Stream(_ context.Context, _ string, emit func(string) error) error {
	for _, f := range b.fragments {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

func (b *stubBackend) HealthCheck(context.Context) bool { return b.healthy }

func (b *stubBackend) ListModels(context.Context) ([]string, error) { return b.models, nil }

type testEnv struct {
	server   *httptest.Server
	store    *store.SQLiteStore
	registry *core.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	verifier, err := auth.NewHMACVerifier(testSecret, "")
	require.NoError(t, err)

	backend := &stubBackend{fragments: []string{"Hel", "lo"}, healthy: true, models: []string{"llama2"}}
	completion := core.NewCompletionSession(backend, 5*time.Second, 5*time.Second, log)
	registry := core.NewRegistry(10, log)
	retrieval := core.NewRetrievalIndex(s, nil, core.DefaultSimilarityThreshold, log)

	handler := NewAPIHandler(
		core.NewAgentService(s, completion, log),
		core.NewKnowledgeService(s, nil, retrieval, registry, 0, 0, log),
		core.NewHistoryService(s),
		core.NewChatService(verifier, s, retrieval, completion, registry, log),
		backend,
		verifier,
		Options{},
		log,
	)

	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: s, registry: registry}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateJWT(testSecret, "", userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) createAgent(t *testing.T, token string) store.Agent {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/agents", token,
		bytes.NewBufferString(`{"name":"Librarian","description":"Answers questions about the archive"}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var agent store.Agent
	decode(t, resp, &agent)
	return agent
}

func (e *testEnv) upload(t *testing.T, token, agentID, filename string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/agents/"+agentID+"/kb/upload", token, &body, mw.FormDataContentType())
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}
