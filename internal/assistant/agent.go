package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Defaults for the turn policy.
const (
	DefaultWindow            = 10
	DefaultMaxToolRounds     = 3
	DefaultCompletionTimeout = 60 * time.Second
	DefaultNotifyTimeout     = 30 * time.Second
)

// HistoryStore is the conversation state the orchestrator needs.
type HistoryStore interface {
	// Lock serializes turns for one conversation key. The returned func
	// releases the lock.
	Lock(ctx context.Context, key string) (func(), error)
	// GetOrCreate returns a copy of the history, creating it seeded with
	// the priming message when the key is new.
	GetOrCreate(ctx context.Context, key string) ([]Message, error)
	Append(key string, msgs ...Message) error
	Truncate(key string, window int) error
}

// Notifier delivers the final reply to the end user.
type Notifier interface {
	Send(ctx context.Context, recipient, text string) error
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	ConversationKey string
	Sender          string
	Text            string
}

// TurnResult describes a completed turn.
type TurnResult struct {
	TurnID     string
	Reply      Message
	ToolRounds int
	// Delivery is nil when the reply reached the notifier successfully.
	Delivery *DeliveryError
}

// Delivered reports whether the notifier accepted the reply.
func (r *TurnResult) Delivered() bool { return r.Delivery == nil }

// Options tune the orchestrator. Zero values pick the defaults.
type Options struct {
	Window            int
	MaxToolRounds     int
	CompletionTimeout time.Duration
	NotifyTimeout     time.Duration
	Logger            *slog.Logger
}

// Orchestrator runs conversation turns against the model and the tool registry.
type Orchestrator struct {
	provider LLMProvider
	registry *ToolRegistry
	store    HistoryStore
	notifier Notifier
	logger   *slog.Logger

	window            int
	maxToolRounds     int
	completionTimeout time.Duration
	notifyTimeout     time.Duration
}

// NewOrchestrator creates a new orchestrator instance
func NewOrchestrator(provider LLMProvider, registry *ToolRegistry, store HistoryStore, notifier Notifier, opts Options) *Orchestrator {
	o := &Orchestrator{
		provider:          provider,
		registry:          registry,
		store:             store,
		notifier:          notifier,
		logger:            opts.Logger,
		window:            opts.Window,
		maxToolRounds:     opts.MaxToolRounds,
		completionTimeout: opts.CompletionTimeout,
		notifyTimeout:     opts.NotifyTimeout,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.window <= 0 {
		o.window = DefaultWindow
	}
	if o.maxToolRounds < 0 {
		o.maxToolRounds = 0
	} else if o.maxToolRounds == 0 {
		o.maxToolRounds = DefaultMaxToolRounds
	}
	if o.completionTimeout <= 0 {
		o.completionTimeout = DefaultCompletionTimeout
	}
	if o.notifyTimeout <= 0 {
		o.notifyTimeout = DefaultNotifyTimeout
	}
	return o
}

// HandleTurn runs one inbound user message through to a final reply and
// hands it to the notifier. The conversation stays locked until delivery
// returns, so replies for one key go out in turn order. A failed delivery
// is reported in the result, not as an error.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	turnID := uuid.New().String()
	log := o.logger.With("conversation", req.ConversationKey, "turn_id", turnID)

	unlock, err := o.store.Lock(ctx, req.ConversationKey)
	if err != nil {
		err = &TurnError{Key: req.ConversationKey, Stage: StageHistory, Err: err}
		log.Error("turn aborted", "stage", StageHistory, "error", err)
		return nil, err
	}
	defer unlock()

	reply, rounds, err := o.runTurn(ctx, req, log)
	if err != nil {
		var te *TurnError
		if errors.As(err, &te) {
			log.Error("turn aborted", "stage", te.Stage, "error", te.Err)
		} else {
			log.Error("turn aborted", "error", err)
		}
		return nil, err
	}

	result := &TurnResult{TurnID: turnID, Reply: reply, ToolRounds: rounds}

	sendCtx, cancel := context.WithTimeout(ctx, o.notifyTimeout)
	defer cancel()
	if err := o.notifier.Send(sendCtx, req.Sender, reply.Content); err != nil {
		result.Delivery = &DeliveryError{Recipient: req.Sender, Err: err}
		log.Warn("reply delivery failed", "recipient", req.Sender, "error", err)
	} else {
		log.Debug("reply delivered", "recipient", req.Sender)
	}
	return result, nil
}

// runTurn drives the completion loop up to and including truncation. The
// caller holds the conversation lock.
func (o *Orchestrator) runTurn(ctx context.Context, req TurnRequest, log *slog.Logger) (Message, int, error) {
	key := req.ConversationKey
	fail := func(stage Stage, err error) (Message, int, error) {
		return Message{}, 0, &TurnError{Key: key, Stage: stage, Err: err}
	}

	history, err := o.store.GetOrCreate(ctx, key)
	if err != nil {
		return fail(StagePriming, err)
	}

	user := Message{Role: RoleUser, Content: req.Text}
	if err := o.store.Append(key, user); err != nil {
		return fail(StageHistory, err)
	}
	history = append(history, user)
	log.Info("processing user message", "history_len", len(history))

	catalog := o.registry.Definitions()
	rounds := 0
	for {
		tools := catalog
		if rounds >= o.maxToolRounds {
			// Out of tool rounds: ask for a plain answer.
			tools = nil
		}

		log.Debug("requesting completion", "round", rounds, "tools", len(tools))
		result, err := o.complete(ctx, history, tools)
		if err != nil {
			return fail(StageCompletion, err)
		}

		if result.Kind == FinalMessage {
			if err := o.store.Append(key, result.Message); err != nil {
				return fail(StageHistory, err)
			}
			if err := o.store.Truncate(key, o.window); err != nil {
				return fail(StageHistory, err)
			}
			log.Info("final response received", "tool_rounds", rounds)
			return result.Message, rounds, nil
		}

		if rounds >= o.maxToolRounds {
			return fail(StageTools, fmt.Errorf("%w (%d)", ErrToolRoundLimit, o.maxToolRounds))
		}
		rounds++

		assistantMsg := withCallIDs(result.Message)
		if err := o.store.Append(key, assistantMsg); err != nil {
			return fail(StageHistory, err)
		}
		history = append(history, assistantMsg)

		toolMsgs, err := o.runTools(ctx, assistantMsg.ToolCalls, log)
		if err != nil {
			return fail(StageTools, err)
		}
		if err := o.store.Append(key, toolMsgs...); err != nil {
			return fail(StageHistory, err)
		}
		history = append(history, toolMsgs...)
	}
}

func (o *Orchestrator) complete(ctx context.Context, history []Message, tools []ToolDefinition) (*CompletionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.completionTimeout)
	defer cancel()

	result, err := o.provider.Complete(callCtx, ReplayHistory(history), tools)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &ProviderError{Provider: o.provider.Name(), Err: err}
	}
	if result == nil {
		return nil, &ProviderError{Provider: o.provider.Name(), Err: errors.New("empty completion")}
	}
	return result, nil
}

// runTools executes every invocation in the order the model issued them.
// Nothing is returned unless all of them succeed, so a failed round leaves
// no partial tool results behind.
func (o *Orchestrator) runTools(ctx context.Context, calls []ToolCall, log *slog.Logger) ([]Message, error) {
	for _, tc := range calls {
		if _, ok := o.registry.Get(tc.Function.Name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tc.Function.Name)
		}
	}

	results := make([]Message, 0, len(calls))
	for _, tc := range calls {
		log.Info("tool call", "tool", tc.Function.Name, "call_id", tc.ID)

		out, err := o.registry.Invoke(ctx, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			return nil, err
		}
		content, err := json.Marshal(out)
		if err != nil {
			return nil, &ToolExecutionError{Tool: tc.Function.Name, Err: fmt.Errorf("encode result: %w", err)}
		}
		log.Debug("tool output", "tool", tc.Function.Name, "bytes", len(content))

		results = append(results, Message{
			Role:       RoleTool,
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Content:    string(content),
		})
	}
	return results, nil
}

// withCallIDs fills in ids for backends that don't return them so every
// tool result can be paired with its request.
func withCallIDs(msg Message) Message {
	msg = msg.Clone()
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = "call_" + uuid.New().String()
		}
		if msg.ToolCalls[i].Type == "" {
			msg.ToolCalls[i].Type = "function"
		}
	}
	return msg
}

// ReplayHistory prepares stored history for a provider request. Tool calls
// left without results by an aborted turn are dropped, as are tool
// results whose request is gone; providers reject both.
func ReplayHistory(history []Message) []Message {
	answered := make(map[string]bool)
	requested := make(map[string]bool)
	for _, m := range history {
		switch m.Role {
		case RoleTool:
			answered[m.ToolCallID] = true
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				requested[tc.ID] = true
			}
		}
	}

	out := make([]Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleTool:
			if !requested[m.ToolCallID] {
				continue
			}
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				break
			}
			complete := true
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					complete = false
					break
				}
			}
			if !complete {
				// Any partial results go with the request.
				for _, tc := range m.ToolCalls {
					delete(requested, tc.ID)
				}
				if m.Content == "" {
					continue
				}
				m = m.Clone()
				m.ToolCalls = nil
			}
		}
		out = append(out, m)
	}
	return out
}
