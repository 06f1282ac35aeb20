package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/reinhart/zostelAgent/internal/assistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []assistant.TurnRequest
	result *assistant.TurnResult
	err    error
	ctxErr error
}

func (f *fakeRunner) HandleTurn(ctx context.Context, req assistant.TurnRequest) (*assistant.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &assistant.TurnResult{TurnID: "t", Reply: assistant.Message{Role: assistant.RoleAssistant, Content: "ok"}}, nil
}

func newTestHandler(runner TurnRunner) http.Handler {
	return New(Config{
		Runner:         runner,
		AllowedSenders: []string{"+91 98765 43210", "15550001111"},
	}).Routes()
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/wati-webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_Processed(t *testing.T) {
	runner := &fakeRunner{}
	rec := post(t, newTestHandler(runner), `{"waId":"919876543210","text":"Hi","conversationId":"conv-1","type":"text"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, BodyProcessed, rec.Body.String())
	require.Len(t, runner.calls, 1)
	assert.Equal(t, assistant.TurnRequest{ConversationKey: "conv-1", Sender: "919876543210", Text: "Hi"}, runner.calls[0])
	assert.NoError(t, runner.ctxErr)
}

func TestWebhook_KeyFallsBackToSender(t *testing.T) {
	runner := &fakeRunner{}
	rec := post(t, newTestHandler(runner), `{"waId":"15550001111","text":"Hi","type":"text"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "15550001111", runner.calls[0].ConversationKey)
}

func TestWebhook_Ignored(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown sender", `{"waId":"10000000000","text":"Hi","conversationId":"c","type":"text"}`},
		{"not text", `{"waId":"919876543210","text":"","conversationId":"c","type":"image"}`},
		{"blank text", `{"waId":"919876543210","text":"   ","conversationId":"c","type":"text"}`},
		{"missing sender", `{"text":"Hi","conversationId":"c","type":"text"}`},
		{"partial number", `{"waId":"9876543210","text":"Hi","conversationId":"c","type":"text"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := post(t, newTestHandler(runner), tt.body)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, BodyIgnored, rec.Body.String())
			assert.Empty(t, runner.calls)
		})
	}
}

func TestWebhook_EmptyAllowListIgnoresAll(t *testing.T) {
	runner := &fakeRunner{}
	h := New(Config{Runner: runner}).Routes()
	rec := post(t, h, `{"waId":"919876543210","text":"Hi","type":"text"}`)

	assert.Equal(t, BodyIgnored, rec.Body.String())
	assert.Empty(t, runner.calls)
}

func TestWebhook_Failed(t *testing.T) {
	runner := &fakeRunner{err: &assistant.TurnError{Key: "c", Stage: assistant.StageCompletion, Err: errors.New("down")}}
	rec := post(t, newTestHandler(runner), `{"waId":"919876543210","text":"Hi","conversationId":"c","type":"text"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, BodyFailed, rec.Body.String())
}

func TestWebhook_DeliveryFailureStillProcessed(t *testing.T) {
	runner := &fakeRunner{result: &assistant.TurnResult{
		TurnID:   "t",
		Delivery: &assistant.DeliveryError{Recipient: "919876543210", Err: errors.New("wati 500")},
	}}
	rec := post(t, newTestHandler(runner), `{"waId":"919876543210","text":"Hi","type":"text"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, BodyProcessed, rec.Body.String())
}

func TestWebhook_InvalidPayload(t *testing.T) {
	runner := &fakeRunner{}
	rec := post(t, newTestHandler(runner), `{"waId":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, BodyInvalid, rec.Body.String())
	assert.Empty(t, runner.calls)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&fakeRunner{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wati-webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhook_DetachesFromClientCancel(t *testing.T) {
	runner := &fakeRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/wati-webhook",
		strings.NewReader(`{"waId":"919876543210","text":"Hi","type":"text"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	newTestHandler(runner).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, runner.ctxErr)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(&fakeRunner{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestNormalizeSender(t *testing.T) {
	assert.Equal(t, "919876543210", normalizeSender(" +91 98765 43210 "))
	assert.Equal(t, "15550001111", normalizeSender("15550001111"))
	assert.Equal(t, "", normalizeSender("  "))
}
