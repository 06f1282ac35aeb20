package assistant

import (
	"context"
)

// Role represents the role of a message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message represents a single message in the conversation
type Message struct {
	Role       Role
	Content    string
	Name       string     // Optional, used for tool responses
	ToolCalls  []ToolCall // Only on assistant messages that request tools
	ToolCallID string     // Used when Role is Tool to link back to the call
}

// Clone returns a deep copy so callers can't alias a stored ToolCalls slice.
func (m Message) Clone() Message {
	if len(m.ToolCalls) > 0 {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}

// ToolCall represents a request from the LLM to execute a tool
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

// FunctionCall represents the details of a function execution request
type FunctionCall struct {
	Name      string
	Arguments string // JSON string of arguments
}

// ToolDefinition defines a tool that can be used by the LLM
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  interface{} // JSON Schema describing the parameters
}

// CompletionKind tags the two shapes a completion can take.
type CompletionKind int

const (
	// FinalMessage is a plain assistant reply that ends the turn.
	FinalMessage CompletionKind = iota
	// ToolCallRequest asks the orchestrator to run one or more tools.
	ToolCallRequest
)

func (k CompletionKind) String() string {
	switch k {
	case FinalMessage:
		return "final_message"
	case ToolCallRequest:
		return "tool_call_request"
	default:
		return "unknown"
	}
}

// CompletionResult is the outcome of a single provider call.
type CompletionResult struct {
	Kind    CompletionKind
	Message Message
}

// Invocations returns the tool calls carried by a ToolCallRequest, in the
// order the model issued them.
func (r *CompletionResult) Invocations() []ToolCall {
	if r.Kind != ToolCallRequest {
		return nil
	}
	return r.Message.ToolCalls
}

// NewCompletionResult classifies an assistant message by whether it
// carries tool calls.
func NewCompletionResult(msg Message) *CompletionResult {
	msg.Role = RoleAssistant
	if len(msg.ToolCalls) > 0 {
		return &CompletionResult{Kind: ToolCallRequest, Message: msg}
	}
	return &CompletionResult{Kind: FinalMessage, Message: msg}
}

// SamplingConfig holds the fixed sampling policy sent with every request.
type SamplingConfig struct {
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
}

// DefaultSampling is the sampling policy used by every provider.
var DefaultSampling = SamplingConfig{
	Temperature:      0.7,
	MaxTokens:        2000,
	TopP:             0.95,
	FrequencyPenalty: 0,
	PresencePenalty:  0,
}

// LLMProvider defines the interface for interacting with LLM backends
type LLMProvider interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Complete sends the history and tool catalog to the model and returns
	// either a final message or a tool call request.
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (*CompletionResult, error)
}
