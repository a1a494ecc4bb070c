package api

import (
	"context"
	"errors"
	"net/http"

	"agentchat.io/agent-chat/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// AuthMiddleware resolves the Authorization bearer token to an identity.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		identity, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, auth.ErrMissingToken) {
				message = "Authorization header is required"
			}
			writeError(w, http.StatusUnauthorized, message, "")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) auth.Identity {
	identity, _ := ctx.Value(identityKey).(auth.Identity)
	return identity
}
