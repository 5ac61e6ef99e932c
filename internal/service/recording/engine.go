// Package recording tracks what has been reported to the operator: contact
// details per session and unknown questions process-wide.
package recording

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/digital-twin/backend/internal/notify"
	"github.com/zhouzirui/digital-twin/backend/internal/service/session"
)

// Classifier decides whether two questions ask for the same information.
type Classifier interface {
	Equivalent(ctx context.Context, recorded, candidate string) (bool, error)
}

// Engine applies the recording rules and delivers operator notifications.
type Engine struct {
	sessions   *session.Store
	questions  *QuestionRegistry
	notifier   notify.Notifier
	classifier Classifier
	logger     *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClassifier enables the semantic similarity path of CheckQuestionSimilarity.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithQuestionRegistry shares an existing registry.
func WithQuestionRegistry(r *QuestionRegistry) Option {
	return func(e *Engine) { e.questions = r }
}

// NewEngine wires the engine to its state stores and notifier.
func NewEngine(sessions *session.Store, notifier notify.Notifier, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		notifier: notifier,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.questions == nil {
		e.questions = NewQuestionRegistry()
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	return e
}

// Questions exposes the recorded raw questions.
func (e *Engine) Questions() []string {
	return e.questions.Questions()
}

// RecordContactDetails records a visitor's contact details for sessionID.
//
// At most one notification is sent per recording cycle. A later different email
// is accepted once as a correction; any further change is refused as
// suspicious. An override starts a new cycle and may be used once per session.
func (e *Engine) RecordContactDetails(ctx context.Context, sessionID string, d ContactDetails) Outcome {
	key := NormalizeEmail(d.Email)
	name := d.Name
	if name == "" {
		name = defaultContactName
	}
	notes := d.Notes
	if notes == "" {
		notes = defaultContactNotes
	}

	var outcome Outcome
	e.sessions.Update(sessionID, func(st *session.State) {
		if d.Override {
			if st.OverrideUsed {
				outcome = OutcomeAlreadyOverridden
				return
			}
			st.NotificationSent = false
			st.OverrideUsed = true
		}

		if st.NotificationSent {
			if key == st.RecordedEmail {
				outcome = OutcomeAlreadyRecorded
				return
			}
			st.EmailChangeCount++
			if st.EmailChangeCount > 1 {
				outcome = OutcomeSuspicious
				return
			}
			st.RecordedEmail = key
			outcome = OutcomeCorrected
			return
		}

		e.deliver(ctx, fmt.Sprintf("Recording '%s' with email '%s' and notes '%s'", name, d.Email, notes))
		st.NotificationSent = true
		st.RecordedEmail = key
		outcome = OutcomeOK
	})

	e.logger.Info("contact details recorded",
		zap.String("session", sessionID),
		zap.String("outcome", string(outcome)),
		zap.Bool("override", d.Override),
	)
	return outcome
}

// RecordUnknownQuestion records a question the assistant could not answer and
// returns the recorded questions so the model can spot near duplicates.
func (e *Engine) RecordUnknownQuestion(ctx context.Context, question string) (Outcome, []string) {
	added, snapshot := e.questions.Add(NormalizeQuestion(question), question)
	if !added {
		e.logger.Debug("unknown question already recorded", zap.String("question", question))
		return OutcomeAlreadyRecorded, snapshot
	}

	e.deliver(ctx, fmt.Sprintf("Recording '%s' asked that I couldn't answer", question))
	e.logger.Info("unknown question recorded", zap.String("question", question), zap.Int("total", len(snapshot)))
	return OutcomeOK, snapshot
}

// CheckQuestionSimilarity reports whether question, or one asking for the same
// information, has already been recorded. Classifier failures count as "not
// similar" for that candidate only.
func (e *Engine) CheckQuestionSimilarity(ctx context.Context, question string) bool {
	if e.questions.Contains(NormalizeQuestion(question)) {
		return true
	}
	if e.classifier == nil {
		return false
	}

	for _, recorded := range e.questions.Questions() {
		similar, err := e.classifier.Equivalent(ctx, recorded, question)
		if err != nil {
			e.logger.Warn("similarity check failed, treating as distinct",
				zap.String("recorded", recorded),
				zap.Error(err),
			)
			continue
		}
		if similar {
			return true
		}
	}
	return false
}

func (e *Engine) deliver(ctx context.Context, text string) {
	if err := e.notifier.Notify(ctx, text); err != nil {
		e.logger.Warn("notification failed", zap.Error(err))
	}
}
