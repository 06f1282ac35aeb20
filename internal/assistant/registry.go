package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Tool defines the interface for a tool
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ToolRegistry manages the available tools
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Names must be unique.
func (r *ToolRegistry) Register(t Tool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	name := t.Definition().Name
	if name == "" {
		return errors.New("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get retrieves a tool by name
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the definitions of all registered tools in
// registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Invoke parses rawArguments and dispatches to the named tool. Unknown names
// fail with ErrUnknownTool; everything else that goes wrong is a
// *ToolExecutionError.
func (r *ToolRegistry) Invoke(ctx context.Context, name, rawArguments string) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args, err := ParseArgs(rawArguments)
	if err != nil {
		return nil, &ToolExecutionError{Tool: name, Err: err}
	}

	result, err := t.Execute(ctx, args)
	if err != nil {
		return nil, &ToolExecutionError{Tool: name, Err: err}
	}
	return result, nil
}

// ParseArgs validates that a model-supplied argument payload is a JSON
// object. An empty payload is treated as {}.
func ParseArgs(raw string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if obj == nil {
		return nil, errors.New("invalid arguments: expected a JSON object")
	}
	return json.RawMessage(trimmed), nil
}

// DecodeArgs unmarshals a validated payload into v.
func DecodeArgs(args json.RawMessage, v interface{}) error {
	return json.Unmarshal(args, v)
}
