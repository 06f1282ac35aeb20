package assistant

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned when the model names a tool that is not
// registered.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolRoundLimit is returned when the model keeps requesting tools after
// the round-trip cap has been spent.
var ErrToolRoundLimit = errors.New("tool round limit reached")

// ProviderError wraps a failed call to the model backend.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when the failure happened before a response
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failure raised by a tool implementation or by
// its argument payload.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// DeliveryError reports that a computed reply could not be delivered.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver reply to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Stage names the part of a turn that failed.
type Stage string

const (
	StagePriming    Stage = "priming"
	StageCompletion Stage = "completion"
	StageTools      Stage = "tools"
	StageHistory    Stage = "history"
)

// TurnError is returned by HandleTurn when a turn aborts.
type TurnError struct {
	Key   string
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn for %s failed at %s: %v", e.Key, e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }
