package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

// AnthropicProvider implements LLMProvider using the Anthropic API
type AnthropicProvider struct {
	client   *anthropic.Client
	model    string
	sampling SamplingConfig
}

// NewAnthropicProvider creates a new Anthropic provider instance
func NewAnthropicProvider(apiKey string, model string, opts ...anthropic.ClientOption) *AnthropicProvider {
	if model == "" {
		model = string(anthropic.ModelClaude3Dot5Sonnet20240620)
	}

	httpClient := &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	opts = append([]anthropic.ClientOption{anthropic.WithHTTPClient(httpClient)}, opts...)

	return &AnthropicProvider{
		client:   anthropic.NewClient(apiKey, opts...),
		model:    model,
		sampling: DefaultSampling,
	}
}

// Name implements LLMProvider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete implements LLMProvider. Anthropic takes the system prompt out of
// band and expects tool results as user content blocks.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResult, error) {
	system, anthropicMessages := toAnthropicMessages(messages)

	anthropicTools, err := toAnthropicTools(tools)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}

	temperature := p.sampling.Temperature
	topP := p.sampling.TopP
	req := anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		Messages:    anthropicMessages,
		Tools:       anthropicTools,
		MaxTokens:   p.sampling.MaxTokens,
		System:      system,
		Temperature: &temperature,
		TopP:        &topP,
	}

	// Requests that replay tool blocks must declare tools. With no catalog
	// offered, declare the replayed ones and forbid calling them.
	if len(anthropicTools) == 0 {
		if used := replayedToolNames(messages); len(used) > 0 {
			for _, name := range used {
				req.Tools = append(req.Tools, anthropic.ToolDefinition{
					Name:        name,
					Description: "Not available for this reply.",
					InputSchema: map[string]interface{}{"type": "object"},
				})
			}
			req.ToolChoice = &anthropic.ToolChoice{Type: "none"}
		}
	}

	resp, err := p.client.CreateMessages(ctx, req)
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}

	result := Message{Role: RoleAssistant}
	for _, content := range resp.Content {
		switch content.Type {
		case anthropic.MessagesContentTypeText:
			if content.Text != nil {
				result.Content += *content.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   content.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      content.Name,
					Arguments: string(content.Input),
				},
			})
		}
	}
	return NewCompletionResult(result), nil
}

func (p *AnthropicProvider) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%w: %v", ctx.Err(), err)}
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: p.Name(), StatusCode: reqErr.StatusCode, Err: err}
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: p.Name(), StatusCode: anthropicStatus(string(apiErr.Type)), Err: err}
	}
	return &ProviderError{Provider: p.Name(), Err: err}
}

// anthropicStatus maps a documented Anthropic error type to its HTTP status.
func anthropicStatus(errType string) int {
	switch errType {
	case "invalid_request_error":
		return http.StatusBadRequest
	case "authentication_error":
		return http.StatusUnauthorized
	case "permission_error":
		return http.StatusForbidden
	case "not_found_error":
		return http.StatusNotFound
	case "request_too_large":
		return http.StatusRequestEntityTooLarge
	case "rate_limit_error":
		return http.StatusTooManyRequests
	case "api_error":
		return http.StatusInternalServerError
	case "overloaded_error":
		return 529
	}
	return 0
}

func toAnthropicTools(tools []ToolDefinition) ([]anthropic.ToolDefinition, error) {
	var out []anthropic.ToolDefinition
	for _, t := range tools {
		var params map[string]interface{}
		switch v := t.Parameters.(type) {
		case nil:
			params = map[string]interface{}{"type": "object"}
		case map[string]interface{}:
			params = v
		case json.RawMessage:
			if err := json.Unmarshal(v, &params); err != nil {
				return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", t.Name, err)
			}
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", t.Name, err)
			}
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", t.Name, err)
			}
		}
		if params == nil {
			return nil, fmt.Errorf("tool %s: parameter schema must be a JSON object", t.Name)
		}
		out = append(out, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: params,
		})
	}
	return out, nil
}

// replayedToolNames lists, in first-use order, the tools named by tool calls
// in the history.
func replayedToolNames(messages []Message) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			if !seen[tc.Function.Name] {
				seen[tc.Function.Name] = true
				names = append(names, tc.Function.Name)
			}
		}
	}
	return names
}

func toAnthropicMessages(messages []Message) (string, []anthropic.Message) {
	var system []string
	var out []anthropic.Message

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)

		case RoleTool:
			block := anthropic.NewToolResultMessageContent(msg.ToolCallID, msg.Content, false)
			// Consecutive tool results share one user turn.
			if n := len(out); n > 0 && out[n-1].Role == anthropic.RoleUser && isToolResultTurn(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{block},
			})

		case RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args, err := ParseArgs(tc.Function.Arguments)
				if err != nil {
					args = json.RawMessage("{}")
				}
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Function.Name, args))
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})

		default:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
			})
		}
	}
	return strings.Join(system, "\n"), out
}

func isToolResultTurn(m anthropic.Message) bool {
	for _, c := range m.Content {
		if c.Type != anthropic.MessagesContentTypeToolResult {
			return false
		}
	}
	return len(m.Content) > 0
}
