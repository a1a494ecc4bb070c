package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchat.io/agent-chat/internal/core"
	"agentchat.io/agent-chat/internal/store"
)

func (e *testEnv) dial(t *testing.T, agentID, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/chat/ws/" + agentID
	if token != "" {
		u += "?" + url.Values{"token": {token}}.Encode()
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readFrame(t *testing.T, conn *websocket.Conn) core.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame core.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestChatWebSocketRejections(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	agent := env.createAgent(t, alice)

	tests := []struct {
		name   string
		token  string
		status int
		code   int
	}{
		{"missing token", "", http.StatusUnauthorized, core.CodeMissingToken},
		{"bare bearer prefix", "Bearer ", http.StatusUnauthorized, core.CodeMissingToken},
		{"invalid token", "garbage", http.StatusUnauthorized, core.CodeInvalidToken},
		{"foreign agent", env.token(t, "bob"), http.StatusNotFound, core.CodeAgentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := env.dial(t, agent.ID, tt.token)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			assert.Nil(t, conn)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)

			var rejection rejectionResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&rejection))
			assert.Equal(t, tt.code, rejection.Code)
			assert.NotEmpty(t, rejection.Reason)
		})
	}
	assert.Equal(t, 0, env.registry.Len())
}

func TestChatWebSocketTurn(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	agent := env.createAgent(t, alice)

	conn, _, err := env.dial(t, agent.ID, "Bearer "+alice)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"hello there"}`)))
	assert.Equal(t, core.Frame{Type: core.FrameToken, Content: "Hel"}, readFrame(t, conn))
	assert.Equal(t, core.Frame{Type: core.FrameToken, Content: "lo"}, readFrame(t, conn))
	end := readFrame(t, conn)
	assert.Equal(t, core.FrameEnd, end.Type)
	require.NotEmpty(t, end.MessageID)

	resp := env.do(t, http.MethodGet, "/api/chat/logs/"+agent.ID, alice, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var convs []store.Conversation
	decode(t, resp, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, 2, convs[0].MessageCount)

	resp = env.do(t, http.MethodGet, "/api/chat/conversations/"+convs[0].ID+"/messages", alice, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var messages []store.Message
	decode(t, resp, &messages)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "hello there", messages[0].Content)
	assert.Equal(t, store.RoleAgent, messages[1].Role)
	assert.Equal(t, "Hello", messages[1].Content)
	assert.Equal(t, end.MessageID, messages[1].ID)

	resp = env.do(t, http.MethodGet, "/api/chat/conversations/"+convs[0].ID+"/messages", env.token(t, "bob"), nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatWebSocketUploadNotice(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	agent := env.createAgent(t, alice)

	conn, _, err := env.dial(t, agent.ID, alice)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp := env.upload(t, alice, agent.ID, "notes.md", []byte("# Notes\nThe council meets at dawn."))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, core.Frame{Type: core.FrameNotice, Content: "knowledge base updated: 1 chunks"}, readFrame(t, conn))
}

func TestChatWebSocketShutdownCloses(t *testing.T) {
	env := newTestEnv(t)
	alice := env.token(t, "alice")
	agent := env.createAgent(t, alice)

	conn, _, err := env.dial(t, agent.ID, alice)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.registry.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	env.registry.CloseAll(core.CodeGoingAway, "server shutting down")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, core.CodeGoingAway, closeErr.Code)
	require.Eventually(t, func() bool { return env.registry.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestRejectionStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, rejectionStatus(core.CodeMissingToken))
	assert.Equal(t, http.StatusUnauthorized, rejectionStatus(core.CodeInvalidToken))
	assert.Equal(t, http.StatusNotFound, rejectionStatus(core.CodeAgentNotFound))
	assert.Equal(t, http.StatusInternalServerError, rejectionStatus(core.CodeInternal))
}
