// Command zostelConsole chats with the assistant from a terminal, using the
// same orchestrator, tools and prompt as the webhook server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/reinhart/zostelAgent/internal/assistant"
	"github.com/reinhart/zostelAgent/internal/configuration"
	"github.com/reinhart/zostelAgent/internal/conversation"
	"github.com/reinhart/zostelAgent/internal/logger"
	"github.com/reinhart/zostelAgent/internal/ui"
	"github.com/reinhart/zostelAgent/internal/zostel"
)

const (
	consoleKey    = "console"
	consoleSender = "console-user"
)

func main() {
	if err := run(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := configuration.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateLLM(); err != nil {
		return err
	}

	// Logs would corrupt the TUI; send them to a file in debug mode.
	var out io.Writer = io.Discard
	if cfg.Agent.Debug {
		f, err := tea.LogToFile("debug.log", "debug")
		if err != nil {
			return fmt.Errorf("could not open debug.log: %w", err)
		}
		defer f.Close()
		out = f
	}
	log, err := logger.New(out, cfg.LogLevel(), cfg.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	provider, err := cfg.NewProvider()
	if err != nil {
		return err
	}

	directory, err := cfg.Directory()
	if err != nil {
		return err
	}
	registry := assistant.NewToolRegistry()
	if err := zostel.RegisterTools(registry, directory); err != nil {
		return err
	}

	store := conversation.NewStore(conversation.FilePrompt{Path: cfg.Agent.PromptPath}, conversation.Options{
		Logger: log,
	})
	defer store.Close()

	notifier := ui.NewChannelNotifier(4)
	opts := cfg.OrchestratorOptions()
	opts.Logger = log
	orchestrator := assistant.NewOrchestrator(provider, registry, store, notifier, opts)

	model := ui.NewModel(ui.Config{
		Runner:          orchestrator,
		Resetter:        store,
		Notifier:        notifier,
		ConversationKey: consoleKey,
		Sender:          consoleSender,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}
