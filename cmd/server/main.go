package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentchat.io/agent-chat/internal/auth"
	"agentchat.io/agent-chat/internal/config"
	"agentchat.io/agent-chat/internal/logger"
)

func main() {
	ingestPath := flag.String("ingest", "", "Ingest a .txt, .md or .pdf file into an agent's knowledge base and exit")
	agentID := flag.String("agent", "", "Agent ID for -ingest")
	userID := flag.String("user", "", "Owner user ID for -ingest")
	mintToken := flag.String("mint-token", "", "Print an HS256 token for the given user ID and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of a token minted with -mint-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if *mintToken != "" {
		if cfg.JWTSecret == "" {
			log.Fatal().Msg("-mint-token requires JWT_SECRET")
		}
		token, err := auth.GenerateJWT(cfg.JWTSecret, cfg.AuthIssuer, *mintToken, "", *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("mint token")
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := CreateApplication(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("create application")
	}
	defer cleanup()

	if *ingestPath != "" {
		if *agentID == "" || *userID == "" {
			log.Error().Msg("-ingest requires -agent and -user")
			return
		}
		log.Info().Str("file", *ingestPath).Msg("starting data ingestion")
		if err := app.Ingest(ctx, *userID, *agentID, *ingestPath); err != nil {
			log.Error().Err(err).Msg("data ingestion failed")
		}
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}
