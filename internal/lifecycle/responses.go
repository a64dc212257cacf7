package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/audit"
	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/notifications"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/synthetic"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// RespondInput is a response submission.
type RespondInput struct {
	QuestionID  string `json:"question_id"`
	ResponderID string `json:"responder_id"`
	Content     string `json:"content"`
	// ResponseType defaults to the question's expected answer type.
	ResponseType questions.AnswerType   `json:"response_type,omitempty"`
	SourceType   questions.SourceType   `json:"source_type,omitempty"`
	QualityLevel questions.QualityLevel `json:"quality_level,omitempty"`
	// VisibleTo restricts who may read the response. Every id must be able
	// to see the question.
	VisibleTo []string `json:"visible_to,omitempty"`
}

func (in *RespondInput) validate() error {
	const op = "lifecycle.Respond"
	in.Content = strings.TrimSpace(in.Content)
	if in.QuestionID == "" || in.ResponderID == "" {
		return apperr.Validation(op, "question id and responder id are required")
	}
	if in.Content == "" {
		return apperr.Validation(op, "content is required")
	}
	if in.ResponseType != "" && !in.ResponseType.Valid() {
		return apperr.Validation(op, "invalid response type %q", in.ResponseType)
	}
	if in.SourceType == "" {
		in.SourceType = questions.SourceHuman
	}
	switch in.SourceType {
	case questions.SourceHuman:
		if in.QualityLevel != "" {
			return apperr.Validation(op, "quality level applies only to synthetic responses")
		}
	case questions.SourceSyntheticAssisted:
		if !in.QualityLevel.Valid() {
			return apperr.Validation(op, "synthetic responses need a quality level, got %q", in.QualityLevel)
		}
	default:
		return apperr.Validation(op, "invalid source type %q", in.SourceType)
	}
	return nil
}

// Respond adds a response to an open question. The responder must be able
// to see the question and so must everyone in VisibleTo. The insert and the
// response counter update share one transaction. Under the first_response
// policy a human response from anyone but the asker is accepted on arrival
// and answers the question.
func (m *Manager) Respond(ctx context.Context, in RespondInput) (*questions.Response, error) {
	const op = "lifecycle.Respond"
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		resp     *questions.Response
		question *questions.Question
	)
	err := m.DB.WithTx(ctx, func(tx *sql.Tx) error {
		st := m.bind(tx)
		q, err := st.questions.Get(ctx, in.QuestionID)
		if err != nil {
			return err
		}
		now := m.now()
		if !q.AcceptsWrites(now) {
			return apperr.QuestionClosed(op, q.ID)
		}
		if err := m.authorize(ctx, op, st.forwards, st.network, q, in.ResponderID); err != nil {
			return err
		}
		visibleTo, err := m.checkAudience(ctx, st, q, in.VisibleTo)
		if err != nil {
			return err
		}

		r := &questions.Response{
			QuestionID:   q.ID,
			ResponderID:  in.ResponderID,
			Content:      in.Content,
			ResponseType: in.ResponseType,
			SourceType:   in.SourceType,
			VisibleTo:    visibleTo,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if r.ResponseType == "" {
			r.ResponseType = q.ExpectedAnswerType
		}
		if r.SourceType == questions.SourceSyntheticAssisted {
			score := in.QualityLevel.Score()
			r.QualityLevel = in.QualityLevel
			r.QualityScore = &score
		}
		if err := st.questions.CreateResponse(ctx, r); err != nil {
			return err
		}
		if err := st.questions.IncrementResponses(ctx, q.ID, 1); err != nil {
			return err
		}
		q.ResponseCount++

		if r.SourceType == questions.SourceHuman && r.ResponderID != q.AskerID &&
			m.opts.AnswerPolicy == config.AnswerOnFirstResponse {
			if err := m.accept(ctx, st.questions, q, r); err != nil {
				return err
			}
		}
		if err := st.matches.MarkResponded(ctx, q.ID, in.ResponderID, now); err != nil {
			return err
		}
		resp, question = r, q
		return nil
	})
	if err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}

	m.afterRespond(ctx, question, resp)
	return resp, nil
}

// checkAudience normalizes visibleTo and verifies that each user in it can
// see q.
func (m *Manager) checkAudience(ctx context.Context, st txStores, q *questions.Question, visibleTo []string) ([]string, error) {
	const op = "lifecycle.Respond"
	if len(visibleTo) == 0 {
		return []string{}, nil
	}
	grants, err := st.forwards.Grants(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(visibleTo))
	out := make([]string, 0, len(visibleTo))
	for _, id := range visibleTo {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ok, _, err := visibility.Check(ctx, st.network, q.Target(), id, grants)
		if err != nil {
			return nil, apperr.StoreUnavailable(op, err)
		}
		if !ok {
			return nil, apperr.Validation(op, "user %s is outside the audience of question %s", id, q.ID)
		}
		out = append(out, id)
	}
	return out, nil
}

// accept marks r accepted and moves q from active to answered.
func (m *Manager) accept(ctx context.Context, qs *questions.Store, q *questions.Question, r *questions.Response) error {
	const op = "lifecycle.accept"
	ok, err := qs.MarkAccepted(ctx, r.ID, m.now())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation(op, "response %s cannot be accepted", r.ID)
	}
	moved, err := qs.Transition(ctx, q.ID, questions.StatusAnswered, questions.StatusActive)
	if err != nil {
		return err
	}
	if !moved {
		return apperr.QuestionClosed(op, q.ID)
	}
	r.IsAccepted = true
	q.Status = questions.StatusAnswered
	return nil
}

// afterRespond runs the best-effort side effects of a committed response.
func (m *Manager) afterRespond(ctx context.Context, q *questions.Question, r *questions.Response) {
	m.Telemetry.RecordResponse(string(r.SourceType))

	if r.SourceType == questions.SourceHuman && m.Experts != nil {
		if err := m.Experts.Touch(ctx, r.ResponderID, r.CreatedAt); err != nil {
			m.Logger.Warn("recording responder activity",
				logger.String("user_id", r.ResponderID),
				logger.Error(err),
			)
		}
	}

	m.Audit.Record(ctx, audit.Entry{
		ActorType:     audit.ActorUser,
		ActorID:       r.ResponderID,
		Action:        audit.ActionResponseCreated,
		Scope:         audit.ScopeResponse,
		ScopeID:       r.ID,
		Summary:       fmt.Sprintf("%s response to %s", r.SourceType, q.ID),
		AffectedUsers: []string{q.AskerID, r.ResponderID},
		NewValue:      string(r.ResponseType),
	})
	if r.IsAccepted {
		m.recordAccepted(ctx, r.ResponderID, q, r)
	}

	if m.Dispatcher == nil || r.ResponderID == q.AskerID {
		return
	}
	n := &notifications.Notification{
		Type:        notifications.TypeResponseReceived,
		RecipientID: q.AskerID,
		QuestionID:  q.ID,
		Title:       q.Title,
		Message:     "Your question received a new response",
		Score:       1,
	}
	if err := m.Dispatcher.Dispatch(ctx, n); err != nil {
		m.Logger.Warn("notifying asker of response",
			logger.String("question_id", q.ID),
			logger.Error(err),
		)
		return
	}
	m.Telemetry.RecordNotification(string(n.Type))
}

func (m *Manager) recordAccepted(ctx context.Context, actorID string, q *questions.Question, r *questions.Response) {
	m.Audit.Record(ctx, audit.Entry{
		ActorType:     audit.ActorUser,
		ActorID:       actorID,
		Action:        audit.ActionResponseAccepted,
		Scope:         audit.ScopeQuestion,
		ScopeID:       q.ID,
		Summary:       "accepted response " + r.ID,
		AffectedUsers: []string{q.AskerID, r.ResponderID},
		PreviousValue: string(questions.StatusActive),
		NewValue:      string(questions.StatusAnswered),
	})
}

// Accept lets the asker accept a human response, answering the question.
func (m *Manager) Accept(ctx context.Context, responseID, askerID string) (*questions.Response, error) {
	const op = "lifecycle.Accept"
	var (
		resp     *questions.Response
		question *questions.Question
	)
	err := m.DB.WithTx(ctx, func(tx *sql.Tx) error {
		qs := m.Questions.WithTx(tx)
		r, err := qs.GetResponse(ctx, responseID)
		if err != nil {
			return err
		}
		if r.DeletedAt != nil {
			return apperr.NotFound(op, "response", responseID)
		}
		q, err := qs.Get(ctx, r.QuestionID)
		if err != nil {
			return err
		}
		if askerID != q.AskerID {
			return apperr.NotAuthorized(op, "only the asker can accept responses to question %s", q.ID)
		}
		if r.SourceType != questions.SourceHuman {
			return apperr.Validation(op, "synthetic responses cannot be accepted")
		}
		if r.ResponderID == q.AskerID {
			return apperr.Validation(op, "cannot accept your own response")
		}
		if !q.AcceptsWrites(m.now()) {
			return apperr.QuestionClosed(op, q.ID)
		}
		if err := m.accept(ctx, qs, q, r); err != nil {
			return err
		}
		resp, question = r, q
		return nil
	})
	if err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}
	m.recordAccepted(ctx, askerID, question, resp)
	return resp, nil
}

// Vote records a helpful or unhelpful vote. The response's flag follows the
// latest vote, and helpful votes also count toward the question's tally.
// Votes never change the question's status.
func (m *Manager) Vote(ctx context.Context, responseID, voterID string, helpful bool) (*questions.Response, error) {
	const op = "lifecycle.Vote"
	if voterID == "" {
		return nil, apperr.Validation(op, "voter id is required")
	}

	var resp *questions.Response
	err := m.DB.WithTx(ctx, func(tx *sql.Tx) error {
		st := m.bind(tx)
		r, err := st.questions.GetResponse(ctx, responseID)
		if err != nil {
			return err
		}
		if r.DeletedAt != nil {
			return apperr.NotFound(op, "response", responseID)
		}
		if r.ResponderID == voterID {
			return apperr.Validation(op, "cannot vote on your own response")
		}
		q, err := st.questions.Get(ctx, r.QuestionID)
		if err != nil {
			return err
		}
		if err := m.authorize(ctx, op, st.forwards, st.network, q, voterID); err != nil {
			return err
		}
		if !r.VisibleToUser(voterID, q.AskerID) {
			return apperr.NotAuthorized(op, "user %s cannot see response %s", voterID, responseID)
		}

		if err := st.questions.RecordVote(ctx, r.ID, helpful, m.now()); err != nil {
			return err
		}
		if helpful {
			if err := st.questions.IncrementHelpfulVotes(ctx, q.ID, 1); err != nil {
				return err
			}
		}
		resp, err = st.questions.GetResponse(ctx, r.ID)
		return err
	})
	if err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}

	m.Telemetry.RecordVote(helpful)
	direction := "unhelpful"
	if helpful {
		direction = "helpful"
	}
	m.Audit.Record(ctx, audit.Entry{
		ActorType:     audit.ActorUser,
		ActorID:       voterID,
		Action:        audit.ActionResponseVoted,
		Scope:         audit.ScopeResponse,
		ScopeID:       resp.ID,
		AffectedUsers: []string{resp.ResponderID},
		NewValue:      direction,
	})
	return resp, nil
}

// DeleteResponse soft-deletes a response. Only its author may delete it.
// The question's response counter drops in the same transaction.
func (m *Manager) DeleteResponse(ctx context.Context, responseID, userID string) error {
	const op = "lifecycle.DeleteResponse"
	var resp *questions.Response
	err := m.DB.WithTx(ctx, func(tx *sql.Tx) error {
		qs := m.Questions.WithTx(tx)
		r, err := qs.GetResponse(ctx, responseID)
		if err != nil {
			return err
		}
		if r.ResponderID != userID {
			return apperr.NotAuthorized(op, "only the author can delete response %s", responseID)
		}
		deleted, err := qs.SoftDeleteResponse(ctx, r.ID, m.now())
		if err != nil {
			return err
		}
		if !deleted {
			return apperr.NotFound(op, "response", responseID)
		}
		resp = r
		return qs.IncrementResponses(ctx, r.QuestionID, -1)
	})
	if err != nil {
		return apperr.StoreUnavailable(op, err)
	}

	m.Audit.Record(ctx, audit.Entry{
		ActorType: audit.ActorUser,
		ActorID:   userID,
		Action:    audit.ActionResponseDeleted,
		Scope:     audit.ScopeResponse,
		ScopeID:   resp.ID,
		Summary:   "deleted response to " + resp.QuestionID,
	})
	return nil
}

// ListResponses returns the live responses viewerID may read.
func (m *Manager) ListResponses(ctx context.Context, questionID, viewerID string) ([]questions.Response, error) {
	const op = "lifecycle.ListResponses"
	q, err := m.Questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, op, m.Forwards, m.Network, q, viewerID); err != nil {
		return nil, err
	}
	all, err := m.Questions.ListResponses(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	out := make([]questions.Response, 0, len(all))
	for _, r := range all {
		if r.VisibleToUser(viewerID, q.AskerID) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GenerateSyntheticResponse produces a demonstration response at level and
// posts it on behalf of requesterID, who must be able to see the question.
// Synthetic responses never answer a question.
func (m *Manager) GenerateSyntheticResponse(ctx context.Context, questionID, requesterID string, level questions.QualityLevel) (*questions.Response, error) {
	const op = "lifecycle.GenerateSyntheticResponse"
	if m.Generator == nil {
		return nil, apperr.Validation(op, "synthetic responses are disabled")
	}
	if !level.Valid() {
		return nil, apperr.Validation(op, "invalid quality level %q", level)
	}
	q, err := m.Questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !q.AcceptsWrites(m.now()) {
		return nil, apperr.QuestionClosed(op, q.ID)
	}
	if err := m.authorize(ctx, op, m.Forwards, m.Network, q, requesterID); err != nil {
		return nil, err
	}

	content, err := m.Generator.Generate(ctx, synthetic.Request{
		Title:        q.Title,
		Body:         q.Body,
		Tags:         q.Tags(),
		QualityLevel: level,
	})
	if err != nil {
		return nil, fmt.Errorf("generating synthetic response: %w", err)
	}

	return m.Respond(ctx, RespondInput{
		QuestionID:   q.ID,
		ResponderID:  requesterID,
		Content:      content,
		ResponseType: q.ExpectedAnswerType,
		SourceType:   questions.SourceSyntheticAssisted,
		QualityLevel: level,
	})
}
