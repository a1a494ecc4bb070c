package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"agentchat.io/agent-chat/internal/api"
	"agentchat.io/agent-chat/internal/config"
	"agentchat.io/agent-chat/internal/core"
)

type Application struct {
	cfg       config.Config
	log       zerolog.Logger
	handler   *api.APIHandler
	registry  *core.Registry
	knowledge *core.KnowledgeService
}

func newApplication(cfg config.Config, log zerolog.Logger, handler *api.APIHandler, registry *core.Registry, knowledge *core.KnowledgeService) *Application {
	return &Application{
		cfg:       cfg,
		log:       log,
		handler:   handler,
		registry:  registry,
		knowledge: knowledge,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully. Live
// chat sessions are closed with a going-away code.
func (a *Application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           api.NewRouter(a.handler),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Chat sessions observe ctx through their request context.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	// Hijacked connections are invisible to Shutdown.
	srv.RegisterOnShutdown(func() {
		a.registry.CloseAll(core.CodeGoingAway, "server shutting down")
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		a.log.Info().Msg("server exited gracefully")
		return nil
	})
	return g.Wait()
}

// Ingest loads a local file into the knowledge base of an agent owned by
// userID.
func (a *Application) Ingest(ctx context.Context, userID, agentID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	result, err := a.knowledge.Upload(ctx, userID, agentID, filepath.Base(path), data)
	if err != nil {
		return err
	}
	a.log.Info().
		Str("file_id", result.FileID).
		Int("chunks", result.ChunksCreated).
		Int("pages", result.Metadata.PageCount).
		Msg("data ingestion complete")
	return nil
}
