// Package notify delivers assistant replies to WhatsApp users through the
// WATI API.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reinhart/zostelAgent/internal/httpkit"
)

const (
	sendPath     = "/api/v1/sendSessionMessage/"
	maxErrorBody = 512
	maxRespBody  = 64 << 10
)

// WATIConfig holds the connection settings for a WATI account.
type WATIConfig struct {
	BaseURL   string
	AuthToken string
	Client    *http.Client // optional; defaults to an httpkit client
	Logger    *slog.Logger
}

// WATI sends session messages through the WATI REST API.
type WATI struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewWATI creates a WATI notifier.
func NewWATI(cfg WATIConfig) (*WATI, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("wati: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("wati: invalid base URL: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "wati")

	client := cfg.Client
	if client == nil {
		client = httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		)
	}

	return &WATI{
		baseURL: base,
		token:   cfg.AuthToken,
		client:  client,
		logger:  logger,
	}, nil
}

// Send posts text to the WhatsApp number recipient. Any non-2xx status is
// an error.
func (w *WATI) Send(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return errors.New("wati: recipient is required")
	}

	endpoint := w.baseURL + sendPath + url.PathEscape(recipient) +
		"?messageText=" + url.QueryEscape(text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("wati: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("wati: send: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := httpkit.ReadErrorBody(resp.Body, maxErrorBody)
		return &StatusError{StatusCode: resp.StatusCode, Body: body}
	}
	defer httpkit.DrainAndClose(resp.Body, 1024)

	var ack map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRespBody)).Decode(&ack); err != nil {
		w.logger.Debug("message sent, response not JSON", "recipient", recipient, "error", err)
		return nil
	}
	w.logger.Debug("message sent", "recipient", recipient, "result", ack["result"])
	return nil
}

// StatusError is a non-2xx reply from WATI.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wati: HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}
