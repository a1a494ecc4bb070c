//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	"agentchat.io/agent-chat/internal/config"
	"agentchat.io/agent-chat/internal/core"
	"agentchat.io/agent-chat/internal/store"
)

var coreSet = wire.NewSet(
	newStore,
	wire.Bind(new(core.RecordStore), new(*store.SQLiteStore)),
	newModelClients,
	provideBackend,
	provideEncoder,
	newVerifier,
	newRegistry,
	newRetrievalIndex,
	newCompletionSession,
	core.NewAgentService,
	newKnowledgeService,
	core.NewHistoryService,
	core.NewChatService,
)

func CreateApplication(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Application, func(), error) {
	wire.Build(coreSet, newAPIHandler, newApplication)
	return nil, nil, nil
}
