package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/wader/goutubedl"

	"trackfetch/backend"
	"trackfetch/internal/api"
)

func main() {
	// Load config (env vars override file config)
	config, err := backend.LoadConfig("")
	if err != nil {
		backend.InitLogger("info")
		backend.Logger.Error("could not load config", "err", err)
		os.Exit(1)
	}
	backend.InitLogger(config.LogLevel)
	backend.Logger.Info("trackfetch server starting", "version", api.AppVersion)
	if config.Extractor.Binary != "" {
		goutubedl.Path = config.Extractor.Binary
	}

	resources := backend.NewResourceManager(config.Session)
	adapters := backend.DefaultAdapters(config, resources)
	if len(adapters) == 0 {
		backend.Logger.Error("no sources enabled")
		os.Exit(1)
	}
	orchestrator := backend.NewOrchestrator(config, resources, adapters...)

	server := api.NewServer(config, orchestrator, resources)

	// Publish attempt transitions via WebSocket
	orchestrator.SetAttemptCallback(server.BroadcastAttemptEvent)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		backend.Logger.Info("shutting down")
		if err := server.Shutdown(); err != nil {
			backend.Logger.Warn("server shutdown", "err", err)
		}
	}()

	backend.Logger.Info("server listening", "addr", config.Server.Listen)
	if err := server.Listen(config.Server.Listen); err != nil {
		backend.Logger.Error("server error", "err", err)
	}
	orchestrator.Shutdown()
}
