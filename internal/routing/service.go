// Package routing ties the engine together: it submits questions through
// the lifecycle manager, builds candidate pools from the expert directory
// and the social graph, scores and stores matches, notifies the best
// experts and records forwards.
package routing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/audit"
	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/forwarding"
	"github.com/ziadkadry99/expertroute/internal/lifecycle"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/network"
	"github.com/ziadkadry99/expertroute/internal/notifications"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/telemetry"
	"github.com/ziadkadry99/expertroute/internal/vectordb"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Deps are the collaborators of a Service. Notifier, Audit, Telemetry and
// Index are optional.
type Deps struct {
	Lifecycle *lifecycle.Manager
	Ledger    *forwarding.Ledger
	Engine    *matching.Engine
	Questions *questions.Store
	Forwards  *forwarding.Store
	Matches   *matching.Store
	Experts   *experts.Store
	Network   *network.Store
	Notifier  *notifications.MatchNotifier
	Audit     *audit.Recorder
	Telemetry *telemetry.Provider
	Logger    logger.Logger
	// Index holds question embeddings for similar-question search.
	Index vectordb.VectorStore
	// MinSimilarity drops weaker similar-question results.
	MinSimilarity float32
	// CandidateLimit bounds the directory query per question to the experts
	// most confident in its tags. Zero means no limit.
	CandidateLimit int
}

// Service is the entry point used by the HTTP API, the MCP tools and the
// sweep.
type Service struct {
	Deps
	now func() time.Time
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	return &Service{Deps: deps, now: time.Now}
}

// Submission is a submitted question together with its first matches.
type Submission struct {
	Question *questions.Question     `json:"question"`
	Matches  []matching.QuestionMatch `json:"matches"`
}

// Submit persists and classifies a question, then matches it. A matching
// failure is logged and left to the sweep; the question is still returned.
func (s *Service) Submit(ctx context.Context, in questions.NewQuestion) (*Submission, error) {
	ctx, span := s.Telemetry.StartSpan(ctx, "routing.Submit", attribute.String("asker_id", in.AskerID))
	defer span.End()

	q, err := s.Lifecycle.Submit(ctx, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("question_id", q.ID))
	s.index(ctx, q)

	ms, err := s.match(ctx, q)
	if err != nil {
		s.Logger.Warn("matching new question failed, leaving it to the sweep",
			logger.String("question_id", q.ID),
			logger.Error(err),
		)
	}
	return &Submission{Question: q.Redacted(in.AskerID), Matches: ms}, nil
}

// MatchQuestion rescores the candidate pool of an open question, stores the
// matches, drops stale un-notified ones and notifies the best experts.
func (s *Service) MatchQuestion(ctx context.Context, questionID string) ([]matching.QuestionMatch, error) {
	ctx, span := s.Telemetry.StartSpan(ctx, "routing.MatchQuestion", attribute.String("question_id", questionID))
	defer span.End()

	q, err := s.Questions.Get(ctx, questionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !q.AcceptsWrites(s.now()) {
		return nil, apperr.QuestionClosed("routing.MatchQuestion", q.ID)
	}
	ms, err := s.match(ctx, q)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ms, nil
}

func (s *Service) match(ctx context.Context, q *questions.Question) ([]matching.QuestionMatch, error) {
	start := time.Now()
	grants, err := s.Forwards.Grants(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates(ctx, q, grants)
	if err != nil {
		return nil, err
	}

	ms := s.Engine.Match(q, candidates, grants, s.now())
	if err := s.Matches.Upsert(ctx, ms); err != nil {
		return nil, err
	}
	keep := make([]string, len(ms))
	for i, m := range ms {
		keep[i] = m.ExpertID
	}
	if _, err := s.Matches.Prune(ctx, q.ID, keep); err != nil {
		return nil, err
	}
	s.Telemetry.RecordMatch(len(candidates), len(ms), time.Since(start))
	s.Logger.Debug("question matched",
		logger.String("question_id", q.ID),
		logger.Int("candidates", len(candidates)),
		logger.Int("matches", len(ms)),
	)

	if err := s.notifyTop(ctx, q); err != nil {
		return ms, err
	}
	return ms, s.syncStamps(ctx, q.ID, ms)
}

// syncStamps copies the stored notification and engagement stamps onto
// freshly scored matches, which carry none.
func (s *Service) syncStamps(ctx context.Context, questionID string, ms []matching.QuestionMatch) error {
	stored, err := s.Matches.List(ctx, questionID)
	if err != nil {
		return err
	}
	byExpert := make(map[string]*matching.QuestionMatch, len(stored))
	for i := range stored {
		byExpert[stored[i].ExpertID] = &stored[i]
	}
	for i := range ms {
		st, ok := byExpert[ms[i].ExpertID]
		if !ok {
			continue
		}
		ms[i].IsNotified = st.IsNotified
		ms[i].NotifiedAt = st.NotifiedAt
		ms[i].ViewedAt = st.ViewedAt
		ms[i].RespondedAt = st.RespondedAt
		ms[i].CreatedAt = st.CreatedAt
	}
	return nil
}

// candidates builds the pool for q: directory experts sharing a tag plus
// every forward recipient with a profile, each with its degree from the
// asker.
func (s *Service) candidates(ctx context.Context, q *questions.Question, grants visibility.Grants) ([]matching.Candidate, error) {
	pool, err := s.Experts.ListCandidates(ctx, q.Tags(), s.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}

	inPool := make(map[string]bool, len(pool))
	for _, p := range pool {
		inPool[p.UserID] = true
	}
	var extra []string
	for id := range grants {
		if !inPool[id] {
			extra = append(extra, id)
		}
	}
	if len(extra) > 0 {
		recipients, err := s.Experts.GetMany(ctx, extra)
		if err != nil {
			return nil, fmt.Errorf("loading forward recipients: %w", err)
		}
		pool = append(pool, recipients...)
	}

	ids := make([]string, len(pool))
	for i, p := range pool {
		ids[i] = p.UserID
	}
	degrees, err := s.Network.DegreesTo(ctx, q.AskerID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving degrees: %w", err)
	}

	out := make([]matching.Candidate, len(pool))
	for i, p := range pool {
		out[i] = matching.Candidate{Profile: p, Degree: degrees[p.UserID]}
	}
	return out, nil
}

func (s *Service) notifyTop(ctx context.Context, q *questions.Question) error {
	if s.Notifier == nil {
		return nil
	}
	notified, err := s.Notifier.NotifyTop(ctx, q)
	for _, id := range notified {
		s.Telemetry.RecordNotification(string(notifications.TypeQuestionMatched))
		s.Audit.Record(ctx, audit.Entry{
			ActorType:     audit.ActorSystem,
			ActorID:       "matcher",
			Action:        audit.ActionMatchNotified,
			Scope:         audit.ScopeExpert,
			ScopeID:       id,
			Summary:       "notified of question " + q.ID,
			AffectedUsers: []string{id},
		})
	}
	if err != nil {
		return fmt.Errorf("notifying matches: %w", err)
	}
	return nil
}

// Forward records a forward and then scores the recipient against the
// question, if they have an expert profile, so they appear among the
// matches with their distance penalty. The recipient is notified either
// way.
func (s *Service) Forward(ctx context.Context, questionID, by, to, reason string) (*forwarding.Record, error) {
	ctx, span := s.Telemetry.StartSpan(ctx, "routing.Forward",
		attribute.String("question_id", questionID),
		attribute.String("forwarded_by", by),
		attribute.String("forwarded_to", to),
	)
	defer span.End()

	rec, err := s.Ledger.Forward(ctx, questionID, by, to, reason)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("degree_at_forward", int(rec.NetworkDegreeAtForward)))
	s.Telemetry.RecordForward()

	q, err := s.Questions.Get(ctx, questionID)
	if err != nil {
		return rec, err
	}
	s.Audit.Record(ctx, audit.Entry{
		ActorType:     audit.ActorUser,
		ActorID:       by,
		Action:        audit.ActionQuestionForwarded,
		Scope:         audit.ScopeQuestion,
		ScopeID:       questionID,
		Summary:       rec.Reason,
		AffectedUsers: []string{q.AskerID, to},
		NewValue:      to,
	})

	qm, err := s.matchRecipient(ctx, q, rec)
	if err != nil {
		return rec, err
	}
	if s.Notifier != nil {
		if err := s.Notifier.NotifyForward(ctx, q, to, by, rec.Reason, qm); err != nil {
			s.Logger.Warn("notifying forward recipient",
				logger.String("question_id", q.ID),
				logger.String("recipient_id", to),
				logger.Error(err),
			)
		} else {
			s.Telemetry.RecordNotification(string(notifications.TypeQuestionForwarded))
		}
	}
	return rec, nil
}

// matchRecipient scores and stores the match of a forward recipient. It
// returns nil when the recipient has no profile or is not eligible.
func (s *Service) matchRecipient(ctx context.Context, q *questions.Question, rec *forwarding.Record) (*matching.QuestionMatch, error) {
	profiles, err := s.Experts.GetMany(ctx, []string{rec.ForwardedTo})
	if err != nil {
		return nil, fmt.Errorf("loading forward recipient: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	grants, err := s.Forwards.Grants(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	c := matching.Candidate{Profile: profiles[0], Degree: rec.NetworkDegreeAtForward}
	qm, ok := s.Engine.Score(q, c, grants, s.now())
	if !ok {
		return nil, nil
	}
	if err := s.Matches.Upsert(ctx, []matching.QuestionMatch{qm}); err != nil {
		return nil, err
	}
	return &qm, nil
}

// Feed returns the open questions viewerID can see, oldest first, with
// anonymous askers redacted.
func (s *Service) Feed(ctx context.Context, viewerID string, limit int) ([]questions.Question, error) {
	if viewerID == "" {
		return nil, apperr.Validation("routing.Feed", "viewer id is required")
	}
	hood, err := s.Network.Neighborhood(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	active, err := s.Questions.ListActive(ctx, questions.ActiveFilter{Now: s.now()})
	if err != nil {
		return nil, err
	}

	out := []questions.Question{}
	for i := range active {
		q := &active[i]
		d, ok := hood[q.AskerID]
		switch {
		case q.AskerID == viewerID:
			d = 0
		case !ok:
			d = visibility.Unreachable
		}
		if !q.VisibilityLevel.Allows(d) && q.AskerID != viewerID {
			grants, err := s.Forwards.Grants(ctx, q.ID)
			if err != nil {
				return nil, err
			}
			if !grants.Has(viewerID) {
				continue
			}
		}
		out = append(out, *q.Redacted(viewerID))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListMatches returns the stored matches of a question. Only the asker may
// see them.
func (s *Service) ListMatches(ctx context.Context, questionID, userID string) ([]matching.QuestionMatch, error) {
	q, err := s.Questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if userID != q.AskerID {
		return nil, apperr.NotAuthorized("routing.ListMatches", "only the asker can list matches of question %s", questionID)
	}
	return s.Matches.List(ctx, questionID)
}

// ExpertMatches returns the questions an expert was matched to, best first.
func (s *Service) ExpertMatches(ctx context.Context, expertID string, limit int) ([]matching.QuestionMatch, error) {
	return s.Matches.ListForExpert(ctx, expertID, limit)
}

// ForwardHistory returns the forwards of a question to anyone who can see
// it.
func (s *Service) ForwardHistory(ctx context.Context, questionID, viewerID string) ([]forwarding.Record, error) {
	q, err := s.Questions.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	grants, err := s.Ledger.Grants(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	ok, _, err := visibility.Check(ctx, s.Network, q.Target(), viewerID, grants)
	if err != nil {
		return nil, apperr.StoreUnavailable("routing.ForwardHistory", err)
	}
	if !ok {
		return nil, apperr.NotAuthorized("routing.ForwardHistory", "user %s cannot see question %s", viewerID, q.ID)
	}
	return s.Ledger.History(ctx, q.ID)
}
