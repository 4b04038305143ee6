package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wylited/usthingy/internal/bot"
	"github.com/wylited/usthingy/internal/cache"
	"github.com/wylited/usthingy/internal/config"
	"github.com/wylited/usthingy/internal/database"
	"github.com/wylited/usthingy/internal/gateway"
	"github.com/wylited/usthingy/internal/identity"
	"github.com/wylited/usthingy/internal/refresh"
	"github.com/wylited/usthingy/internal/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabasePath, cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := gateway.NewClient(cfg.GitHubToken, cfg.GitHubOrg)
	store := cache.NewStore()

	refresher := refresh.New(gw, store, logger, refresh.Options{Interval: cfg.RefreshInterval})
	go refresher.Run(ctx)

	linker := identity.NewService(db, cfg.GitHubClientID, logger)
	sessions := session.NewManager(store, gw, linker, logger, cfg.SessionTimeout)
	go sessions.Run(ctx)

	discordBot, err := bot.New(bot.Deps{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Gateway:   gw,
		Refresher: refresher,
		Sessions:  sessions,
		Identity:  linker,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create Discord bot", "error", err)
		os.Exit(1)
	}

	if err := discordBot.Start(); err != nil {
		logger.Error("failed to start Discord bot", "error", err)
		os.Exit(1)
	}
	defer discordBot.Stop()

	logger.Info("bot is running", "org", cfg.GitHubOrg)
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
}
