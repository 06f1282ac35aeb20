package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAnthropicMessages(t *testing.T) {
	system, msgs := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "be helpful"},
		{Role: RoleUser, Content: "Rajasthan and Himachal?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "a", Function: FunctionCall{Name: "get_zostel_locations", Arguments: `{"location":"Rajasthan"}`}},
			{ID: "b", Function: FunctionCall{Name: "get_zostel_locations", Arguments: `not json`}},
		}},
		{Role: RoleTool, ToolCallID: "a", Content: `["Zostel Jaipur"]`},
		{Role: RoleTool, ToolCallID: "b", Content: `["Zostel Manali"]`},
		{Role: RoleAssistant, Content: "Both."},
	})

	assert.Equal(t, "be helpful", system)
	require.Len(t, msgs, 4)

	assert.Equal(t, anthropic.RoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Content, 2)
	assert.Equal(t, anthropic.MessagesContentTypeToolUse, msgs[1].Content[0].Type)

	// Both results travel in one user turn.
	assert.Equal(t, anthropic.RoleUser, msgs[2].Role)
	require.Len(t, msgs[2].Content, 2)
	assert.True(t, isToolResultTurn(msgs[2]))

	assert.Equal(t, anthropic.RoleAssistant, msgs[3].Role)
}

func TestToAnthropicMessages_SkipsEmptyAssistant(t *testing.T) {
	_, msgs := toAnthropicMessages([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant},
		{Role: RoleUser, Content: "again"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, anthropic.RoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.RoleUser, msgs[1].Role)
}

func fakeAnthropicServer(t *testing.T, status int, reply string, seen *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if seen != nil {
			*seen = append(*seen, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const anthropicTextReply = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-5-sonnet-20240620",
	"content": [{"type": "text", "text": "Jaipur, Udaipur and Jodhpur."}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 5}
}`

func TestAnthropicProvider_ReplayWithoutCatalog(t *testing.T) {
	var seen []map[string]any
	srv := fakeAnthropicServer(t, http.StatusOK, anthropicTextReply, &seen)
	p := NewAnthropicProvider("key", "", anthropic.WithBaseURL(srv.URL))

	// History as it stands when the tool-round cap is reached.
	history := []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "Rajasthan?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Type: "function", Function: FunctionCall{Name: "get_zostel_locations", Arguments: `{"location":"Rajasthan"}`}}}},
		{Role: RoleTool, ToolCallID: "t1", Name: "get_zostel_locations", Content: `["Zostel Jaipur"]`},
	}
	result, err := p.Complete(context.Background(), history, nil)
	require.NoError(t, err)
	assert.Equal(t, FinalMessage, result.Kind)
	assert.Equal(t, "Jaipur, Udaipur and Jodhpur.", result.Message.Content)

	require.Len(t, seen, 1)
	tools, ok := seen[0]["tools"].([]any)
	require.True(t, ok, "replayed tool blocks need declared tools")
	require.Len(t, tools, 1)
	assert.Equal(t, "get_zostel_locations", tools[0].(map[string]any)["name"])
	assert.Equal(t, map[string]any{"type": "none"}, seen[0]["tool_choice"])
}

func TestAnthropicProvider_PlainRequestHasNoTools(t *testing.T) {
	var seen []map[string]any
	srv := fakeAnthropicServer(t, http.StatusOK, anthropicTextReply, &seen)
	p := NewAnthropicProvider("key", "", anthropic.WithBaseURL(srv.URL))

	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, nil)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.NotContains(t, seen[0], "tools")
	assert.NotContains(t, seen[0], "tool_choice")
}

func TestAnthropicProvider_StatusCode(t *testing.T) {
	srv := fakeAnthropicServer(t, http.StatusBadRequest,
		`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad request"}}`, nil)
	p := NewAnthropicProvider("key", "", anthropic.WithBaseURL(srv.URL))

	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, nil)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "anthropic", pe.Provider)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
}

func TestAnthropicStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, anthropicStatus("rate_limit_error"))
	assert.Equal(t, 529, anthropicStatus("overloaded_error"))
	assert.Equal(t, 0, anthropicStatus("something_new"))
}

func TestAnthropicProvider_InvalidSchema(t *testing.T) {
	var seen []map[string]any
	srv := fakeAnthropicServer(t, http.StatusOK, anthropicTextReply, &seen)
	p := NewAnthropicProvider("key", "", anthropic.WithBaseURL(srv.URL))

	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, []ToolDefinition{{
		Name:       "broken",
		Parameters: json.RawMessage(`{"type":`),
	}})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "broken")
	assert.Empty(t, seen, "nothing is sent with a bad schema")
}
