package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DeepSeekBaseURL is the OpenAI-compatible DeepSeek endpoint.
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	// DeepSeekModel is the default chat model on DeepSeek.
	DeepSeekModel = "deepseek-chat"
)

// OpenAIProvider implements LLMProvider against any OpenAI-compatible API
// (DeepSeek, OpenAI, Ollama).
type OpenAIProvider struct {
	name     string
	client   *openai.Client
	model    string
	sampling SamplingConfig
}

// OpenAIOption customizes an OpenAIProvider.
type OpenAIOption func(*openai.ClientConfig)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(cfg *openai.ClientConfig) { cfg.HTTPClient = c }
}

// NewOpenAICompatibleProvider creates a provider for an OpenAI-compatible
// endpoint. An empty baseURL keeps the library default (api.openai.com).
func NewOpenAICompatibleProvider(name, apiKey, baseURL, model string, opts ...OpenAIOption) *OpenAIProvider {
	// Create HTTP client with proper timeouts
	httpClient := &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = httpClient
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &OpenAIProvider{
		name:     name,
		client:   openai.NewClientWithConfig(config),
		model:    model,
		sampling: DefaultSampling,
	}
}

// NewDeepSeekProvider creates a provider for DeepSeek.
func NewDeepSeekProvider(apiKey, baseURL, model string, opts ...OpenAIOption) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	if model == "" {
		model = DeepSeekModel
	}
	return NewOpenAICompatibleProvider("deepseek", apiKey, baseURL, model, opts...)
}

// NewOpenAIProvider creates a new OpenAI provider instance
func NewOpenAIProvider(apiKey, model string, opts ...OpenAIOption) *OpenAIProvider {
	if model == "" {
		model = openai.GPT4oMini
	}
	return NewOpenAICompatibleProvider("openai", apiKey, "", model, opts...)
}

// NewOllamaProvider creates a new OpenAI provider configured for local Ollama
func NewOllamaProvider(host, model string, opts ...OpenAIOption) *OpenAIProvider {
	if host == "" {
		host = "http://localhost:11434/v1"
	}
	if model == "" {
		model = "llama3"
	}
	// API key is ignored by Ollama
	return NewOpenAICompatibleProvider("ollama", "ollama", host, model, opts...)
}

// Name implements LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

// Complete sends messages to the LLM and classifies the response. There is
// no retry here; a failure aborts the turn.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResult, error) {
	req := openai.ChatCompletionRequest{
		Model:            p.model,
		Messages:         toOpenAIMessages(messages),
		Tools:            toOpenAITools(tools),
		Temperature:      p.sampling.Temperature,
		MaxTokens:        p.sampling.MaxTokens,
		TopP:             p.sampling.TopP,
		FrequencyPenalty: p.sampling.FrequencyPenalty,
		PresencePenalty:  p.sampling.PresencePenalty,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, p.wrapError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Err: errors.New("no choices returned")}
	}

	msg := resp.Choices[0].Message
	result := Message{
		Role:    RoleAssistant,
		Content: msg.Content,
	}
	if len(msg.ToolCalls) > 0 {
		result.ToolCalls = make([]ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			result.ToolCalls[i] = ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return NewCompletionResult(result), nil
}

func (p *OpenAIProvider) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &ProviderError{Provider: p.name, Err: fmt.Errorf("%w: %v", ctx.Err(), err)}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: p.name, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: p.name, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &ProviderError{Provider: p.name, Err: err}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	apiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case RoleTool:
			role = openai.ChatMessageRoleTool
		}

		var toolCalls []openai.ToolCall
		if len(msg.ToolCalls) > 0 {
			toolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				toolCalls[j] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolType(tc.Type),
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}

		// Tool content cannot be null on the wire.
		content := msg.Content
		if role == openai.ChatMessageRoleTool && content == "" {
			content = "{}"
		}

		apiMessages[i] = openai.ChatCompletionMessage{
			Role:       role,
			Content:    content,
			Name:       msg.Name,
			ToolCalls:  toolCalls,
			ToolCallID: msg.ToolCallID,
		}
	}
	return apiMessages
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	apiTools := make([]openai.Tool, len(tools))
	for i, t := range tools {
		apiTools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return apiTools
}
