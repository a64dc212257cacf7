// Package lifecycle owns the question state machine and the response
// flow: submission with classification, viewing, responding, voting,
// acceptance, closing and response deletion.
package lifecycle

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/audit"
	"github.com/ziadkadry99/expertroute/internal/classifier"
	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/forwarding"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/network"
	"github.com/ziadkadry99/expertroute/internal/notifications"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/synthetic"
	"github.com/ziadkadry99/expertroute/internal/telemetry"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Classifier enriches question text. *classifier.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, title, body string) (*classifier.Analysis, error)
}

// Options are the lifecycle rules.
type Options struct {
	AnswerPolicy config.AnswerPolicy
	Limits       questions.Limits
	// TTL is how long a question stays open after submission.
	TTL time.Duration
}

// OptionsFromConfig converts the lifecycle configuration section.
func OptionsFromConfig(c config.LifecycleConfig) Options {
	return Options{
		AnswerPolicy: c.AnswerPolicy,
		Limits: questions.Limits{
			TitleMin: c.TitleMinLen,
			TitleMax: c.TitleMaxLen,
			BodyMin:  c.BodyMinLen,
			BodyMax:  c.BodyMaxLen,
		},
		TTL: time.Duration(c.TTLDays) * 24 * time.Hour,
	}
}

// Deps are the collaborators of a Manager. Classifier, Generator,
// Dispatcher, Audit and Telemetry are optional.
type Deps struct {
	DB         *db.DB
	Questions  *questions.Store
	Forwards   *forwarding.Store
	Network    *network.Store
	Matches    *matching.Store
	Experts    *experts.Store
	Classifier Classifier
	Generator  *synthetic.Generator
	Dispatcher *notifications.Dispatcher
	Audit      *audit.Recorder
	Telemetry  *telemetry.Provider
	Logger     logger.Logger
}

// Manager applies lifecycle rules on top of the stores.
type Manager struct {
	Deps
	opts Options
	now  func() time.Time
}

// NewManager creates a Manager.
func NewManager(deps Deps, opts Options) *Manager {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if opts.AnswerPolicy == "" {
		opts.AnswerPolicy = config.AnswerOnFirstResponse
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	return &Manager{Deps: deps, opts: opts, now: time.Now}
}

// Submit validates and persists a question as active, then enriches it with
// the classifier. Classification failure is logged and the question keeps
// its default analysis.
func (m *Manager) Submit(ctx context.Context, in questions.NewQuestion) (*questions.Question, error) {
	if err := in.Validate(m.opts.Limits); err != nil {
		return nil, err
	}

	now := m.now()
	q := &questions.Question{
		AskerID:         in.AskerID,
		Title:           in.Title,
		Body:            in.Body,
		VisibilityLevel: in.VisibilityLevel,
		IsAnonymous:     in.IsAnonymous,
		IsSensitive:     in.IsSensitive,
		Status:          questions.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(m.opts.TTL),
	}
	if err := m.Questions.Create(ctx, q); err != nil {
		return nil, err
	}
	m.Telemetry.RecordSubmission()
	m.Audit.Record(ctx, audit.Entry{
		ActorType:     audit.ActorUser,
		ActorID:       q.AskerID,
		Action:        audit.ActionQuestionSubmitted,
		Scope:         audit.ScopeQuestion,
		ScopeID:       q.ID,
		Summary:       q.Title,
		AffectedUsers: []string{q.AskerID},
		NewValue:      string(q.VisibilityLevel),
	})

	if err := m.classify(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// classify patches q with the classifier's analysis. Only store failures
// are returned.
func (m *Manager) classify(ctx context.Context, q *questions.Question) error {
	if m.Classifier == nil {
		return nil
	}
	start := time.Now()
	analysis, err := m.Classifier.Classify(ctx, q.Title, q.Body)
	m.Telemetry.RecordClassification(err != nil, time.Since(start))
	if err != nil {
		m.Logger.Warn("classification degraded, keeping default analysis",
			logger.String("question_id", q.ID),
			logger.Error(err),
		)
		return nil
	}

	at := m.now()
	c := analysis.Classification()
	if err := m.Questions.ApplyClassification(ctx, q.ID, c, at); err != nil {
		return err
	}
	q.PrimaryTags = c.PrimaryTags
	q.SecondaryTags = c.SecondaryTags
	q.ExpectedAnswerType = c.ExpectedAnswerType
	q.Urgency = c.Urgency
	q.AISummary = c.Summary
	q.ClassificationConfidence = c.Confidence
	q.ClassifiedAt = &at
	q.UpdatedAt = at

	m.Audit.Record(ctx, audit.Entry{
		ActorType: audit.ActorSystem,
		ActorID:   "classifier",
		Action:    audit.ActionQuestionClassified,
		Scope:     audit.ScopeQuestion,
		ScopeID:   q.ID,
		Summary:   c.Summary,
		NewValue:  strings.Join(c.PrimaryTags, ","),
	})
	return nil
}

// Get returns a question without visibility checks. It is meant for
// internal callers; user-facing reads go through View.
func (m *Manager) Get(ctx context.Context, questionID string) (*questions.Question, error) {
	return m.Questions.Get(ctx, questionID)
}

// View returns the question as seen by viewerID. Views by anyone but the
// asker are counted and stamped on the viewer's match.
func (m *Manager) View(ctx context.Context, questionID, viewerID string) (*questions.Question, error) {
	const op = "lifecycle.View"
	q, err := m.Questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, op, m.Forwards, m.Network, q, viewerID); err != nil {
		return nil, err
	}

	if viewerID != q.AskerID {
		if err := m.Questions.IncrementViews(ctx, q.ID); err != nil {
			return nil, err
		}
		q.ViewCount++
		if err := m.Matches.MarkViewed(ctx, q.ID, viewerID, m.now()); err != nil {
			return nil, err
		}
	}
	return q.Redacted(viewerID), nil
}

// Authorize returns the question as seen by viewerID without counting a
// view.
func (m *Manager) Authorize(ctx context.Context, questionID, viewerID string) (*questions.Question, error) {
	q, err := m.Questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, "lifecycle.Authorize", m.Forwards, m.Network, q, viewerID); err != nil {
		return nil, err
	}
	return q.Redacted(viewerID), nil
}

// Close moves a question to closed. Only the asker may close it; closing a
// closed question fails with QuestionClosed.
func (m *Manager) Close(ctx context.Context, questionID, userID string) (*questions.Question, error) {
	const op = "lifecycle.Close"
	q, err := m.Questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if userID != q.AskerID {
		return nil, apperr.NotAuthorized(op, "only the asker can close question %s", questionID)
	}

	from := q.Status
	ok, err := m.Questions.Transition(ctx, q.ID, questions.StatusClosed, questions.StatusActive, questions.StatusAnswered)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.QuestionClosed(op, questionID)
	}
	q.Status = questions.StatusClosed

	m.Audit.Record(ctx, audit.Entry{
		ActorType:     audit.ActorUser,
		ActorID:       userID,
		Action:        audit.ActionQuestionClosed,
		Scope:         audit.ScopeQuestion,
		ScopeID:       q.ID,
		AffectedUsers: []string{q.AskerID},
		PreviousValue: string(from),
		NewValue:      string(questions.StatusClosed),
	})
	return q, nil
}

// authorize fails with NotAuthorized unless userID can view q. The stores
// passed in decide whether the check runs inside a transaction.
func (m *Manager) authorize(ctx context.Context, op string, fwd *forwarding.Store, graph *network.Store, q *questions.Question, userID string) error {
	if userID == "" {
		return apperr.Validation(op, "user id is required")
	}
	grants, err := fwd.Grants(ctx, q.ID)
	if err != nil {
		return err
	}
	ok, _, err := visibility.Check(ctx, graph, q.Target(), userID, grants)
	if err != nil {
		return apperr.StoreUnavailable(op, err)
	}
	if !ok {
		return apperr.NotAuthorized(op, "user %s cannot see question %s", userID, q.ID)
	}
	return nil
}

// txStores binds every store a write path reads or writes to tx.
type txStores struct {
	questions *questions.Store
	forwards  *forwarding.Store
	network   *network.Store
	matches   *matching.Store
}

func (m *Manager) bind(tx *sql.Tx) txStores {
	return txStores{
		questions: m.Questions.WithTx(tx),
		forwards:  m.Forwards.WithTx(tx),
		network:   m.Network.WithTx(tx),
		matches:   m.Matches.WithTx(tx),
	}
}
