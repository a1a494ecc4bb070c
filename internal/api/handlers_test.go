package api

import (
	"bytes"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchat.io/agent-chat/internal/core"
	"agentchat.io/agent-chat/internal/store"
)

func TestHealthAndModels(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	decode(t, resp, &health)
	assert.Equal(t, healthResponse{Status: "ok", Backend: "ok"}, health)

	resp = env.do(t, http.MethodGet, "/api/models", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var models map[string][]string
	decode(t, resp, &models)
	assert.Equal(t, []string{"llama2"}, models["models"])
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/agents", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/agents", "not-a-jwt", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errResp errorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "Invalid token", errResp.Error)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/agents", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer ")
	bare, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer bare.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bare.StatusCode)
	errResp = errorResponse{}
	decode(t, bare, &errResp)
	assert.Equal(t, "Authorization header is required", errResp.Error)
}

func TestAgentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	bob := env.token(t, "bob")

	agent := env.createAgent(t, alice)
	assert.Equal(t, "Librarian", agent.Name)
	assert.Equal(t, "alice", agent.UserID)
	assert.Equal(t, "You are a focused test agent.", agent.SystemPrompt)

	resp := env.do(t, http.MethodGet, "/api/agents", alice, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var agents []store.Agent
	decode(t, resp, &agents)
	require.Len(t, agents, 1)
	assert.Equal(t, agent.ID, agents[0].ID)

	resp = env.do(t, http.MethodGet, "/api/agents/"+agent.ID, bob, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/agents/"+agent.ID, bob, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/agents/"+agent.ID, alice, nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/agents/"+agent.ID, alice, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAgentValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")

	for name, body := range map[string]string{
		"malformed":           `{"name":`,
		"missing name":        `{"description":"d"}`,
		"missing description": `{"name":"n"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/agents", alice, bytes.NewBufferString(body), "application/json")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var errResp errorResponse
			decode(t, resp, &errResp)
			assert.Equal(t, core.ReasonInvalidInput, errResp.Reason)
		})
	}
}

func TestUploadListAndSearch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	agent := env.createAgent(t, alice)

	resp := env.upload(t, alice, agent.ID, "notes.txt", []byte("The archive opens at nine. Lightsabers are stored in the vault."))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result core.UploadResult
	decode(t, resp, &result)
	assert.Equal(t, 1, result.ChunksCreated)
	assert.NotEmpty(t, result.FileID)

	resp = env.do(t, http.MethodGet, "/api/agents/"+agent.ID+"/kb/files", alice, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var files []store.KnowledgeFile
	decode(t, resp, &files)
	require.Len(t, files, 1)
	assert.Equal(t, "notes.txt", files[0].FileName)

	resp = env.do(t, http.MethodGet, "/api/agents/"+agent.ID+"/kb", alice, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var chunks []store.KnowledgeChunk
	decode(t, resp, &chunks)
	assert.Len(t, chunks, 1)

	q := url.Values{"query": {"LIGHTSABERS"}, "limit": {"3"}}
	resp = env.do(t, http.MethodGet, "/api/agents/"+agent.ID+"/kb/search?"+q.Encode(), alice, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chunks = nil
	decode(t, resp, &chunks)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Lightsabers")

	resp = env.do(t, http.MethodGet, "/api/agents/"+agent.ID+"/kb/search?query=vault&limit=21", alice, nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var errResp errorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, core.ReasonInvalidLimit, errResp.Reason)

	resp = env.do(t, http.MethodGet, "/api/agents/"+agent.ID+"/kb/search?query=vault", env.token(t, "bob"), nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	agent := env.createAgent(t, alice)

	tests := []struct {
		name     string
		filename string
		content  []byte
		reason   string
	}{
		{"unsupported type", "tool.exe", []byte("MZ"), core.ReasonUnsupportedType},
		{"empty file", "empty.txt", nil, core.ReasonEmptyFile},
		{"invalid utf8", "bad.txt", []byte{0xff, 0xfe, 0xfd}, core.ReasonEncodingFailure},
		{"whitespace only", "blank.md", []byte("   \n\t  "), core.ReasonEmptyExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.upload(t, alice, agent.ID, tt.filename, tt.content)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var errResp errorResponse
			decode(t, resp, &errResp)
			assert.Equal(t, tt.reason, errResp.Reason)
		})
	}

	resp := env.do(t, http.MethodPost, "/api/agents/"+agent.ID+"/kb/upload", alice, bytes.NewBufferString("x"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
