package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"agentchat.io/agent-chat/internal/metrics"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)    // Basic request logging
	r.Use(middleware.Recoverer) // Recover from panics
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.Get("/models", apiHandler.ListModelsHandler)

		// The chat socket authenticates from its query string.
		r.Get("/chat/ws/{agentID}", apiHandler.ChatWebSocketHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.AuthMiddleware)

			r.Post("/agents", apiHandler.CreateAgentHandler)
			r.Get("/agents", apiHandler.ListAgentsHandler)
			r.Get("/agents/{agentID}", apiHandler.GetAgentHandler)
			r.Delete("/agents/{agentID}", apiHandler.DeleteAgentHandler)

			r.Post("/agents/{agentID}/kb/upload", apiHandler.UploadHandler)
			r.Get("/agents/{agentID}/kb", apiHandler.ListChunksHandler)
			r.Get("/agents/{agentID}/kb/files", apiHandler.ListFilesHandler)
			r.Get("/agents/{agentID}/kb/search", apiHandler.SearchHandler)

			r.Get("/chat/logs/{agentID}", apiHandler.ChatLogsHandler)
			r.Get("/chat/conversations/{conversationID}/messages", apiHandler.ConversationMessagesHandler)
		})
	})

	return r
}
