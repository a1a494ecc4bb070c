package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/auth"
	"agentchat.io/agent-chat/internal/core"
	"agentchat.io/agent-chat/internal/llm"
)

const (
	defaultSearchLimit = 5
	multipartOverhead  = 1 << 20
)

type APIHandler struct {
	agents    *core.AgentService
	knowledge *core.KnowledgeService
	history   *core.HistoryService
	chat      *core.ChatService
	backend   llm.Backend
	verifier  auth.Verifier

	validate       *validator.Validate
	upgrader       websocket.Upgrader
	maxUploadBytes int64
	log            zerolog.Logger
}

type Options struct {
	MaxUploadBytes int64
	AllowedOrigins []string
}

func NewAPIHandler(agents *core.AgentService, knowledge *core.KnowledgeService, history *core.HistoryService, chat *core.ChatService, backend llm.Backend, verifier auth.Verifier, opts Options, log zerolog.Logger) *APIHandler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = core.DefaultMaxUploadBytes
	}
	return &APIHandler{
		agents:         agents,
		knowledge:      knowledge,
		history:        history,
		chat:           chat,
		backend:        backend,
		verifier:       verifier,
		validate:       validator.New(),
		upgrader:       newUpgrader(opts.AllowedOrigins),
		maxUploadBytes: opts.MaxUploadBytes,
		log:            log.With().Str("component", "api").Logger(),
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Backend: "ok"}
	if !h.backend.HealthCheck(r.Context()) {
		resp.Backend = "unavailable"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) ListModelsHandler(w http.ResponseWriter, r *http.Request) {
	models, err := h.backend.ListModels(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("list models failed")
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

type CreateAgentRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"required,min=1,max=500"`
}

func (h *APIHandler) CreateAgentHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), core.ReasonInvalidInput)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), core.ReasonInvalidInput)
		return
	}

	agent, err := h.agents.CreateAgent(r.Context(), identity.UserID, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (h *APIHandler) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.ListAgents(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *APIHandler) GetAgentHandler(w http.ResponseWriter, r *http.Request) {
	agent, err := h.agents.GetAgent(r.Context(), identityFrom(r.Context()).UserID, chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (h *APIHandler) DeleteAgentHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.agents.DeleteAgent(r.Context(), identityFrom(r.Context()).UserID, chi.URLParam(r, "agentID")); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	agentID := chi.URLParam(r, "agentID")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", core.ReasonOversized)
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required", core.ReasonInvalidInput)
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload", core.ReasonInvalidInput)
		return
	}

	result, err := h.knowledge.Upload(r.Context(), identity.UserID, agentID, header.Filename, data)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *APIHandler) ListChunksHandler(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.knowledge.ListChunks(r.Context(), identityFrom(r.Context()).UserID, chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *APIHandler) ListFilesHandler(w http.ResponseWriter, r *http.Request) {
	files, err := h.knowledge.ListFiles(r.Context(), identityFrom(r.Context()).UserID, chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer", core.ReasonInvalidLimit)
			return
		}
		limit = n
	}

	chunks, err := h.knowledge.Search(r.Context(), identityFrom(r.Context()).UserID, chi.URLParam(r, "agentID"), r.URL.Query().Get("query"), limit)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}

func (h *APIHandler) ChatLogsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := h.history.ListConversations(r.Context(), identityFrom(r.Context()).UserID, chi.URLParam(r, "agentID"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *APIHandler) ConversationMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.history.ListMessages(r.Context(), identityFrom(r.Context()).UserID, chi.URLParam(r, "conversationID"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
