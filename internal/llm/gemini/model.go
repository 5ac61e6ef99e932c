// Package gemini adapts the Google GenAI SDK to eino's tool calling chat model.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/zhouzirui/digital-twin/backend/internal/llm"
)

const providerName = "gemini"

// Config configures the Gemini chat model.
type Config struct {
	APIKey      string
	Model       string
	Temperature *float32
	MaxTokens   int
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ChatModel implements model.ToolCallingChatModel on top of GenerateContent.
type ChatModel struct {
	gen   generator
	cfg   Config
	tools []*genai.Tool
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

// NewChatModel creates a Gemini API backed chat model.
func NewChatModel(ctx context.Context, cfg Config) (*ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &ChatModel{gen: client.Models, cfg: cfg}, nil
}

// WithTools returns a copy of the model with tools declared on every request.
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl, err := toFunctionDeclaration(t)
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}

	next := *m
	next.tools = nil
	if len(decls) > 0 {
		next.tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return &next, nil
}

// Generate sends the conversation and converts the first candidate back to a message.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	system, contents := toContents(input)

	options := model.GetCommonOptions(&model.Options{
		Temperature: m.cfg.Temperature,
	}, opts...)

	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             m.tools,
		Temperature:       options.Temperature,
	}
	if m.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(m.cfg.MaxTokens)
	}
	if options.MaxTokens != nil {
		config.MaxOutputTokens = int32(*options.MaxTokens)
	}
	modelName := m.cfg.Model
	if options.Model != nil && *options.Model != "" {
		modelName = *options.Model
	}

	resp, err := m.gen.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	return fromResponse(resp)
}

// Stream is not incremental: it yields the full Generate result as one chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toFunctionDeclaration(t *schema.ToolInfo) (*genai.FunctionDeclaration, error) {
	decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Desc}
	if t.ParamsOneOf == nil {
		return decl, nil
	}

	js, err := t.ParamsOneOf.ToJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to build parameter schema: %w", t.Name, err)
	}
	raw, err := json.Marshal(js)
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to encode parameter schema: %w", t.Name, err)
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("tool %s: failed to decode parameter schema: %w", t.Name, err)
	}
	decl.ParametersJsonSchema = params
	return decl, nil
}

// toContents splits system messages into the system instruction and maps the
// rest onto user/model turns. Tool results become function responses.
func toContents(input []*schema.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(input))
	callNames := make(map[string]string)

	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			if system == nil {
				system = &genai.Content{Role: genai.RoleUser}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})

		case schema.User:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case schema.Assistant:
			c := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				callNames[call.ID] = call.Function.Name
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Function.Name,
					Args: decodeObject(call.Function.Arguments),
				}})
			}
			contents = append(contents, c)

		case schema.Tool:
			name := msg.ToolName
			if name == "" {
				name = callNames[msg.ToolCallID]
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolCallID,
				Name:     name,
				Response: decodeObject(msg.Content),
			}}
			// Consecutive tool results answer one model turn and travel together.
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		}
	}
	return system, contents
}

func isFunctionResponseTurn(c *genai.Content) bool {
	return c.Role == genai.RoleUser && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// decodeObject parses a JSON object. Anything else is wrapped as {"output": raw}.
func decodeObject(raw string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		return obj
	}
	if raw == "" {
		return map[string]any{}
	}
	return map[string]any{"output": raw}
}

func fromResponse(resp *genai.GenerateContentResponse) (*schema.Message, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini returned %s", reason)
	}

	msg := &schema.Message{Role: schema.Assistant}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to encode function call args: %w", err)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				ID:   id,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
			continue
		}
		msg.Content += part.Text
	}

	if usage := resp.UsageMetadata; usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     int(usage.PromptTokenCount),
				CompletionTokens: int(usage.CandidatesTokenCount),
				TotalTokens:      int(usage.TotalTokenCount),
			},
		}
	}
	return msg, nil
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.StatusError{Provider: providerName, StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &llm.StatusError{Provider: providerName, StatusCode: apiErrPtr.Code, Err: err}
	}
	return fmt.Errorf("gemini generate: %w", err)
}
