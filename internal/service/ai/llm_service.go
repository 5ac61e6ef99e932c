package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/digital-twin/backend/internal/model/chat"
	"github.com/zhouzirui/digital-twin/backend/internal/model/persona"
	"github.com/zhouzirui/digital-twin/backend/internal/notify"
)

const (
	defaultMaxToolRounds = 8
	defaultTurnTimeout   = 2 * time.Minute
)

// Options tunes the orchestrator.
type Options struct {
	// MaxToolRounds caps how many times one turn may execute tool calls.
	MaxToolRounds int
	// TurnTimeout bounds a whole turn, model calls and tools included.
	TurnTimeout time.Duration
	// ContactURL replaces the persona's LinkedIn URL as the fallback channel.
	ContactURL string
	// DisableIntentRule drops the duplicate-intent section from the prompt.
	DisableIntentRule bool
}

// Service drives the tool-augmented conversation with the language model.
type Service struct {
	chatModel    model.ToolCallingChatModel
	template     prompt.ChatTemplate
	recorder     Recorder
	notifier     notify.Notifier
	systemPrompt string
	contact      string
	maxRounds    int
	turnTimeout  time.Duration
	logger       *zap.Logger
}

// NewService binds the recording tools to chatModel and renders the system prompt once.
func NewService(chatModel model.ToolCallingChatModel, p persona.Persona, recorder Recorder, notifier notify.Notifier, logger *zap.Logger, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}

	bound, err := chatModel.WithTools(ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	contact := ContactChannel(p, opts.ContactURL)
	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}
	turnTimeout := opts.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = defaultTurnTimeout
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	return &Service{
		chatModel:    bound,
		template:     promptTemplate,
		recorder:     recorder,
		notifier:     notifier,
		systemPrompt: NewPersonaPromptManager(contact, !opts.DisableIntentRule).BuildSystemPrompt(p),
		contact:      contact,
		maxRounds:    maxRounds,
		turnTimeout:  turnTimeout,
		logger:       logger,
	}, nil
}

// ContactChannel renders the public fallback channel mentioned in prompts and apologies.
func ContactChannel(p persona.Persona, override string) string {
	if override != "" {
		return override
	}
	return "LinkedIn: " + p.LinkedInURL
}

// SystemPrompt returns the rendered system prompt.
func (s *Service) SystemPrompt() string {
	return s.systemPrompt
}

// EventKind labels orchestrator progress events.
type EventKind string

const (
	EventTool    EventKind = "tool"
	EventMessage EventKind = "message"
)

// Event reports progress of a turn to an observer.
type Event struct {
	Kind    EventKind
	Tool    string
	Result  string
	Content string
}

// Observer receives events synchronously on the turn's goroutine.
type Observer func(Event)

type chatOptions struct {
	observer Observer
}

// ChatOption customizes a single Chat call.
type ChatOption func(*chatOptions)

// WithObserver streams tool and message events of the turn to fn.
func WithObserver(fn Observer) ChatOption {
	return func(o *chatOptions) { o.observer = fn }
}

// ResolveObserver returns the observer selected by opts, or a no-op.
func ResolveObserver(opts ...ChatOption) Observer {
	o := chatOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		return func(Event) {}
	}
	return o.observer
}

// Chat answers message in the context of history and returns the reply text.
// Model failures never surface as errors: the visitor gets a fallback reply and
// the operator gets a notification.
//
// The turn is detached from ctx cancellation so a client that goes away does not
// abort recordings half way; TurnTimeout still bounds it.
func (s *Service) Chat(ctx context.Context, sessionID, message string, history []chat.Message, opts ...ChatOption) string {
	observe := ResolveObserver(opts...)

	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)
	defer cancel()

	started := time.Now()
	reply, stats, err := s.converse(turnCtx, sessionID, message, history, observe)
	if err != nil {
		reply = s.fallback(turnCtx, sessionID, err)
	} else {
		reply = sanitizeReply(reply)
		s.logger.Info("generated response",
			zap.String("session", sessionID),
			zap.Int("rounds", stats.rounds),
			zap.Int("length", len(reply)),
			zap.Int("prompt_tokens", stats.usage.PromptTokens),
			zap.Int("completion_tokens", stats.usage.CompletionTokens),
			zap.Int("total_tokens", stats.usage.TotalTokens),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	observe(Event{Kind: EventMessage, Content: reply})
	return reply
}

// turnStats counts model rounds and the token usage summed across them.
type turnStats struct {
	rounds int
	usage  schema.TokenUsage
}

func (t *turnStats) add(resp *schema.Message) {
	if resp == nil || resp.ResponseMeta == nil || resp.ResponseMeta.Usage == nil {
		return
	}
	u := resp.ResponseMeta.Usage
	t.usage.PromptTokens += u.PromptTokens
	t.usage.CompletionTokens += u.CompletionTokens
	t.usage.TotalTokens += u.TotalTokens
}

// converse runs AwaitingModel -> ToolCallRequested -> ToolsExecuted until the
// model answers without tool calls or the round limit is hit.
func (s *Service) converse(ctx context.Context, sessionID, message string, history []chat.Message, observe Observer) (string, turnStats, error) {
	var stats turnStats
	messages, err := s.template.Format(ctx, map[string]any{
		"system":  s.systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   message,
	})
	if err != nil {
		return "", stats, fmt.Errorf("failed to format prompt: %w", err)
	}

	for round := 0; ; round++ {
		stats.rounds = round
		resp, err := s.chatModel.Generate(ctx, messages)
		if err != nil {
			return "", stats, fmt.Errorf("failed to generate response: %w", err)
		}
		if resp == nil {
			return "", stats, fmt.Errorf("model returned no message")
		}
		stats.add(resp)
		if len(resp.ToolCalls) == 0 {
			return resp.Content, stats, nil
		}
		if round >= s.maxRounds {
			return "", stats, fmt.Errorf("%w after %d rounds", ErrToolLoopExhausted, round)
		}

		messages = append(messages, resp)
		for _, call := range resp.ToolCalls {
			result := s.runTool(ctx, sessionID, call)
			observe(Event{Kind: EventTool, Tool: call.Function.Name, Result: result})
			messages = append(messages, schema.ToolMessage(result, call.ID))
		}
	}
}

func (s *Service) fallback(ctx context.Context, sessionID string, err error) string {
	kind := classifyFailure(err)
	s.logger.Error("chat turn failed",
		zap.String("session", sessionID),
		zap.String("kind", kind.String()),
		zap.Error(err),
	)
	if notifyErr := s.notifier.Notify(ctx, failureNotice(kind, err)); notifyErr != nil {
		s.logger.Warn("failure notification failed", zap.Error(notifyErr))
	}
	return failureReply(kind, s.contact)
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(msg.Content))
		}
	}
	return history
}

func sanitizeReply(reply string) string {
	if !strings.ContainsRune(reply, ForbiddenRune) {
		return reply
	}
	return strings.ReplaceAll(reply, string(ForbiddenRune), "-")
}
