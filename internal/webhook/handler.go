// Package webhook receives WATI message events and runs them through the
// turn orchestrator.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reinhart/zostelAgent/internal/assistant"
)

// Response bodies. WATI only looks at the status code.
const (
	BodyIgnored   = "Message ignored"
	BodyProcessed = "Message processed successfully"
	BodyFailed    = "Error processing message"
	BodyInvalid   = "Invalid payload"
)

// DefaultTurnTimeout bounds one inbound message end to end.
const DefaultTurnTimeout = 3 * time.Minute

const maxBodyBytes = 1 << 20

// TurnRunner abstracts the orchestrator for testability.
type TurnRunner interface {
	HandleTurn(ctx context.Context, req assistant.TurnRequest) (*assistant.TurnResult, error)
}

// Event is the subset of a WATI webhook payload the relay reads.
type Event struct {
	WaID           string `json:"waId"`
	Text           string `json:"text"`
	ConversationID string `json:"conversationId"`
	Type           string `json:"type"`
}

// Outcome is what happened to one event.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeProcessed
	OutcomeFailed
)

// Config holds the dependencies for a Handler.
type Config struct {
	Runner         TurnRunner
	AllowedSenders []string
	TurnTimeout    time.Duration
	Logger         *slog.Logger
}

// Handler serves the webhook endpoint.
type Handler struct {
	runner      TurnRunner
	allowed     map[string]bool
	turnTimeout time.Duration
	logger      *slog.Logger
}

// New creates a webhook handler. An empty allow-list ignores everyone.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		runner:      cfg.Runner,
		allowed:     make(map[string]bool, len(cfg.AllowedSenders)),
		turnTimeout: cfg.TurnTimeout,
		logger:      logger.With("component", "webhook"),
	}
	if h.turnTimeout <= 0 {
		h.turnTimeout = DefaultTurnTimeout
	}
	for _, s := range cfg.AllowedSenders {
		if n := normalizeSender(s); n != "" {
			h.allowed[n] = true
		}
	}
	return h
}

// Routes returns the mux with the webhook and health endpoints.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /wati-webhook", h.handleWebhook)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var ev Event
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&ev); err != nil {
		h.logger.Debug("invalid webhook payload", "error", err)
		writeText(w, http.StatusBadRequest, BodyInvalid)
		return
	}

	// The turn outlives a client that hangs up; WATI does not wait long.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.turnTimeout)
	defer cancel()

	switch h.Process(ctx, ev) {
	case OutcomeIgnored:
		writeText(w, http.StatusOK, BodyIgnored)
	case OutcomeProcessed:
		writeText(w, http.StatusOK, BodyProcessed)
	default:
		writeText(w, http.StatusInternalServerError, BodyFailed)
	}
}

// Process filters one event and runs the turn. Delivery failures still
// count as processed: the model's work is done.
func (h *Handler) Process(ctx context.Context, ev Event) Outcome {
	if !h.Accepts(ev) {
		h.logger.Debug("event ignored", "sender", ev.WaID, "type", ev.Type)
		return OutcomeIgnored
	}

	key := ev.ConversationID
	if key == "" {
		key = ev.WaID
	}

	start := time.Now()
	result, err := h.runner.HandleTurn(ctx, assistant.TurnRequest{
		ConversationKey: key,
		Sender:          ev.WaID,
		Text:            ev.Text,
	})
	if err != nil {
		stage := assistant.Stage("unknown")
		var te *assistant.TurnError
		if errors.As(err, &te) {
			stage = te.Stage
		}
		h.logger.Error("turn failed",
			"conversation", key,
			"stage", stage,
			"elapsed", time.Since(start).Round(time.Millisecond),
			"error", err,
		)
		return OutcomeFailed
	}

	h.logger.Info("turn completed",
		"conversation", key,
		"turn_id", result.TurnID,
		"tool_rounds", result.ToolRounds,
		"delivered", result.Delivered(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return OutcomeProcessed
}

// Accepts reports whether ev is a text message from an allowed sender.
func (h *Handler) Accepts(ev Event) bool {
	if ev.Type != "text" || strings.TrimSpace(ev.Text) == "" {
		return false
	}
	return h.allowed[normalizeSender(ev.WaID)]
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		h.logger.Debug("failed to write JSON response", "error", err)
	}
}

// normalizeSender strips whitespace and a leading '+' so "+91 98..." and
// "9198..." style entries compare equal.
func normalizeSender(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	return strings.ReplaceAll(s, " ", "")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
