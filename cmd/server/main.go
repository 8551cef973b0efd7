package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	chatwebui "github.com/pencroft/chat-web-ui"
	"github.com/pencroft/chat-web-ui/internal/handlers"
	"github.com/pencroft/chat-web-ui/internal/services"
)

func main() {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
	}
	cfgPath := filepath.Join(cfgDir, "chatwebui")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		log.Fatal(fmt.Errorf("error creating config directory: %w", err))
	}

	cfg, err := loadConfig(filepath.Join(cfgPath, "config.yaml"))
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.slogLevel(),
	}))

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = filepath.Join(cfgPath, "store.db")
	}
	boltDB, err := services.NewBoltDB(storePath)
	if err != nil {
		log.Fatal(fmt.Errorf("error opening store: %w", err))
	}

	backend := services.NewBackend(cfg.BackendURL, logger)

	m, err := handlers.NewMain(backend, boltDB, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating handlers: %w", err))
	}

	// Serve static files
	staticFS, err := fs.Sub(chatwebui.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	// Create custom mux
	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChatTurn)
	mux.HandleFunc("/chats/new", m.HandleNewChat)
	mux.HandleFunc("/chats/rename", m.HandleRenameChat)
	mux.HandleFunc("/chats/delete", m.HandleDeleteChat)
	mux.HandleFunc("/settings", m.HandleSettings)
	mux.HandleFunc("/memories", m.HandleMemories)
	mux.HandleFunc("/models", m.HandleModels)
	mux.HandleFunc("/sse/messages", m.HandleSSE)
	mux.HandleFunc("/sse/chats", m.HandleSSE)

	// Create custom server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
		if err := boltDB.Close(); err != nil {
			logger.Error("Failed to close store", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt/terminate signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Blocking select waiting for either interrupt or server error
	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		// Create context with timeout for shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}
}
