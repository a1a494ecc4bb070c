package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/core"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, reason string) {
	writeJSON(w, status, errorResponse{Error: message, Reason: reason})
}

// writeServiceError maps the core error taxonomy onto HTTP statuses. Internal
// causes are logged, not returned.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var verr *core.ValidationError
	var cerr *core.CollaboratorError
	switch {
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		if verr.Reason == core.ReasonOversized {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, verr.Error(), verr.Reason)
	case errors.Is(err, core.ErrNotFoundOrForbidden):
		writeError(w, http.StatusNotFound, "Not found", "")
	case errors.As(err, &cerr):
		log.Error().Err(err).Str("collaborator", cerr.Collaborator).Msg("request failed")
		status := http.StatusInternalServerError
		if cerr.Collaborator != core.CollaboratorStore {
			status = http.StatusBadGateway
		}
		writeError(w, status, "Upstream service failure", "")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", "")
	}
}
