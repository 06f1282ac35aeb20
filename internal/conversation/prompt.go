package conversation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// PromptSource supplies the system message that primes a new conversation.
type PromptSource interface {
	Load(ctx context.Context) (string, error)
}

// PrimingLoadError means a new conversation could not be primed. The
// conversation is not created.
type PrimingLoadError struct {
	Err error
}

func (e *PrimingLoadError) Error() string {
	return fmt.Sprintf("load priming prompt: %v", e.Err)
}

func (e *PrimingLoadError) Unwrap() error { return e.Err }

// FilePrompt reads the priming prompt from a file every time a conversation
// is created, so edits take effect without a restart.
type FilePrompt struct {
	Path string
}

// Load implements PromptSource.
func (p FilePrompt) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(p.Path)
	if err != nil {
		return "", err
	}
	text := string(b)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("prompt file %s is empty", p.Path)
	}
	return text, nil
}

// StaticPrompt is a fixed priming prompt.
type StaticPrompt string

// Load implements PromptSource.
func (p StaticPrompt) Load(context.Context) (string, error) {
	if strings.TrimSpace(string(p)) == "" {
		return "", errors.New("prompt is empty")
	}
	return string(p), nil
}
