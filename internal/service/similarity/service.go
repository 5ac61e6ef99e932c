package similarity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Service asks a language model whether two questions request the same information.
type Service struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the classifier chain on top of chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("similarity: chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile similarity classifier chain: %w", err)
	}
	return &Service{classifier: runnable}, nil
}

// Equivalent reports whether candidate asks for the same information as recorded.
func (s *Service) Equivalent(ctx context.Context, recorded, candidate string) (bool, error) {
	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"recorded":  strings.TrimSpace(recorded),
		"candidate": strings.TrimSpace(candidate),
	})
	if err != nil {
		return false, fmt.Errorf("similarity classifier invoke: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return false, fmt.Errorf("similarity classifier returned empty output")
	}

	verdict, err := parseVerdict(msg.Content)
	if err != nil {
		return false, fmt.Errorf("similarity classifier output: %w", err)
	}
	return verdict, nil
}

type verdictPayload struct {
	Similar *bool `json:"similar"`
}

// parseVerdict extracts the first JSON object from the model output.
func parseVerdict(content string) (bool, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return false, fmt.Errorf("missing json object")
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return false, err
	}
	if payload.Similar == nil {
		return false, fmt.Errorf("missing similar field")
	}
	return *payload.Similar, nil
}

// Braces are doubled because the template is rendered with FString.
const classifierSystemPrompt = `You are a semantic similarity classifier. Respond with JSON only: {{"similar": true}} or {{"similar": false}}.`

const classifierUserPrompt = "Question A: {recorded}\nQuestion B: {candidate}\n\nAre these two questions semantically equivalent, meaning they ask for the same information even if worded differently?"
