package assistant_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/reinhart/zostelAgent/internal/assistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	name string
}

func (e echoTool) Definition() assistant.ToolDefinition {
	return assistant.ToolDefinition{Name: e.name}
}

func (e echoTool) Execute(_ context.Context, args json.RawMessage) (any, error) {
	var v map[string]any
	if err := assistant.DecodeArgs(args, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func TestToolRegistry_Register(t *testing.T) {
	r := assistant.NewToolRegistry()
	require.NoError(t, r.Register(echoTool{name: "b"}))
	require.NoError(t, r.Register(echoTool{name: "a"}))

	assert.Error(t, r.Register(echoTool{name: "a"}), "duplicate")
	assert.Error(t, r.Register(echoTool{name: ""}), "empty name")
	assert.Error(t, r.Register(nil), "nil tool")

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)

	_, ok := r.Get("a")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestToolRegistry_Invoke(t *testing.T) {
	r := assistant.NewToolRegistry()
	require.NoError(t, r.Register(echoTool{name: "echo"}))

	tests := []struct {
		name    string
		tool    string
		args    string
		want    any
		wantErr error
		toolErr bool
	}{
		{name: "object", tool: "echo", args: `{"x":1}`, want: map[string]any{"x": float64(1)}},
		{name: "empty means no args", tool: "echo", args: "  ", want: map[string]any{}},
		{name: "unknown tool", tool: "nope", args: `{}`, wantErr: assistant.ErrUnknownTool},
		{name: "malformed", tool: "echo", args: `{"x":`, toolErr: true},
		{name: "array", tool: "echo", args: `[1,2]`, toolErr: true},
		{name: "null", tool: "echo", args: `null`, toolErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Invoke(context.Background(), tt.tool, tt.args)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.toolErr:
				var te *assistant.ToolExecutionError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.tool, te.Tool)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("cause")

	assert.ErrorIs(t, &assistant.ProviderError{Provider: "p", Err: cause}, cause)
	assert.ErrorIs(t, &assistant.DeliveryError{Recipient: "r", Err: cause}, cause)
	assert.ErrorIs(t, &assistant.TurnError{Key: "k", Stage: assistant.StageTools, Err: &assistant.ToolExecutionError{Tool: "t", Err: cause}}, cause)

	assert.Contains(t, (&assistant.ProviderError{Provider: "deepseek", StatusCode: 429, Err: cause}).Error(), "status 429")
}
