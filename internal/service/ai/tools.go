package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/digital-twin/backend/internal/service/recording"
)

// Tool names as declared to the model.
const (
	toolRecordUserDetails       = "record_user_details"
	toolRecordUnknownQuestion   = "record_unknown_question"
	toolCheckQuestionSimilarity = "check_question_similarity"
)

type toolKind int

const (
	toolUnknown toolKind = iota
	toolKindRecordUserDetails
	toolKindRecordUnknownQuestion
	toolKindCheckQuestionSimilarity
)

func parseToolKind(name string) toolKind {
	switch name {
	case toolRecordUserDetails:
		return toolKindRecordUserDetails
	case toolRecordUnknownQuestion:
		return toolKindRecordUnknownQuestion
	case toolCheckQuestionSimilarity:
		return toolKindCheckQuestionSimilarity
	default:
		return toolUnknown
	}
}

// emptyToolResult answers unknown tools and undecodable arguments.
const emptyToolResult = "{}"

// ToolInfos declares the recording tools to the model.
func ToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: toolRecordUserDetails,
			Desc: "Use this tool to record that a user is interested in being in touch and provided an email address",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"email": {Type: schema.String, Desc: "The email address of this user", Required: true},
				"name":  {Type: schema.String, Desc: "The user's name, if they provided it"},
				"notes": {Type: schema.String, Desc: "Any additional information about the conversation that's worth recording to give context"},
				"override": {
					Type: schema.Boolean,
					Desc: "Set to true ONLY when the user explicitly asks to replace a previously provided email " +
						"(e.g. 'please ignore my previous email and use this one'). Never set for first-time recordings.",
				},
			}),
		},
		{
			Name: toolCheckQuestionSimilarity,
			Desc: "Call this tool BEFORE record_unknown_question to check whether a semantically equivalent question " +
				"has already been recorded. Returns {\"already_recorded\": true} if the question is a duplicate " +
				"(including rephrasing or synonyms). If already_recorded is true, skip record_unknown_question.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"question": {Type: schema.String, Desc: "The question to check for similarity", Required: true},
			}),
		},
		{
			Name: toolRecordUnknownQuestion,
			Desc: "Always use this tool to record any question you didn't answer, whether because you didn't know the answer " +
				"or because it was outside the professional scope. Before calling, check if a semantically equivalent question " +
				"already appears in the `recorded_questions` list from a prior call response. If so, skip this call.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"question": {Type: schema.String, Desc: "The question that couldn't be answered", Required: true},
			}),
		},
	}
}

// Recorder is the recording surface the tools act on.
type Recorder interface {
	RecordContactDetails(ctx context.Context, sessionID string, d recording.ContactDetails) recording.Outcome
	RecordUnknownQuestion(ctx context.Context, question string) (recording.Outcome, []string)
	CheckQuestionSimilarity(ctx context.Context, question string) bool
}

type recordUserDetailsArgs struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Notes    string `json:"notes"`
	Override bool   `json:"override"`
}

type questionArgs struct {
	Question string `json:"question"`
}

type recordUserDetailsResult struct {
	Recorded recording.Outcome `json:"recorded"`
}

type recordUnknownQuestionResult struct {
	Recorded          recording.Outcome `json:"recorded"`
	RecordedQuestions []string          `json:"recorded_questions"`
}

type similarityResult struct {
	Question        string `json:"question"`
	AlreadyRecorded bool   `json:"already_recorded"`
}

// runTool executes one model-requested call and returns the JSON tool result.
func (s *Service) runTool(ctx context.Context, sessionID string, call schema.ToolCall) string {
	name := call.Function.Name
	s.logger.Info("tool called", zap.String("session", sessionID), zap.String("tool", name))

	switch parseToolKind(name) {
	case toolKindRecordUserDetails:
		var args recordUserDetailsArgs
		if !s.decodeArgs(call, &args) || strings.TrimSpace(args.Email) == "" {
			return emptyToolResult
		}
		outcome := s.recorder.RecordContactDetails(ctx, sessionID, recording.ContactDetails{
			Email:    args.Email,
			Name:     args.Name,
			Notes:    args.Notes,
			Override: args.Override,
		})
		return encodeResult(recordUserDetailsResult{Recorded: outcome})

	case toolKindRecordUnknownQuestion:
		var args questionArgs
		if !s.decodeArgs(call, &args) || strings.TrimSpace(args.Question) == "" {
			return emptyToolResult
		}
		outcome, recorded := s.recorder.RecordUnknownQuestion(ctx, args.Question)
		return encodeResult(recordUnknownQuestionResult{Recorded: outcome, RecordedQuestions: recorded})

	case toolKindCheckQuestionSimilarity:
		var args questionArgs
		if !s.decodeArgs(call, &args) || strings.TrimSpace(args.Question) == "" {
			return emptyToolResult
		}
		return encodeResult(similarityResult{
			Question:        args.Question,
			AlreadyRecorded: s.recorder.CheckQuestionSimilarity(ctx, args.Question),
		})

	case toolUnknown:
		s.logger.Warn("unknown tool requested", zap.String("tool", name))
		return emptyToolResult
	}
	return emptyToolResult
}

func (s *Service) decodeArgs(call schema.ToolCall, dst any) bool {
	raw := strings.TrimSpace(call.Function.Arguments)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Warn("invalid tool arguments", zap.String("tool", call.Function.Name), zap.Error(err))
		return false
	}
	return true
}

func encodeResult(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return emptyToolResult
	}
	return string(data)
}
