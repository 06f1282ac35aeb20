package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/reinhart/zostelAgent/internal/assistant"
	"github.com/reinhart/zostelAgent/internal/configuration"
	"github.com/reinhart/zostelAgent/internal/conversation"
	"github.com/reinhart/zostelAgent/internal/logger"
	"github.com/reinhart/zostelAgent/internal/notify"
	"github.com/reinhart/zostelAgent/internal/webhook"
	"github.com/reinhart/zostelAgent/internal/zostel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load Configuration
	cfg, err := configuration.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(os.Stdout, cfg.LogLevel(), cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	if len(cfg.WATI.AllowedNumbers) == 0 {
		log.Warn("WHATSAPP_NUMBERS is empty; every inbound message will be ignored")
	}

	provider, err := cfg.NewProvider()
	if err != nil {
		return err
	}
	log.Info("LLM provider selected", "provider", provider.Name())

	directory, err := cfg.Directory()
	if err != nil {
		return err
	}
	registry := assistant.NewToolRegistry()
	if err := zostel.RegisterTools(registry, directory); err != nil {
		return err
	}

	store := conversation.NewStore(conversation.FilePrompt{Path: cfg.Agent.PromptPath}, conversation.Options{
		MaxConversations: cfg.Agent.MaxConversations,
		IdleTTL:          cfg.Agent.IdleTTL,
		Logger:           log,
	})
	defer store.Close()

	notifier, err := notify.NewWATI(notify.WATIConfig{
		BaseURL:   cfg.WATI.BaseURL,
		AuthToken: cfg.WATI.AuthToken,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	opts := cfg.OrchestratorOptions()
	opts.Logger = log
	orchestrator := assistant.NewOrchestrator(provider, registry, store, notifier, opts)

	handler := webhook.New(webhook.Config{
		Runner:         orchestrator,
		AllowedSenders: cfg.WATI.AllowedNumbers,
		TurnTimeout:    cfg.Server.TurnTimeout,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.TurnTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server is running", "addr", "http://localhost"+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
