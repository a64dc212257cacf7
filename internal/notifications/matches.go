package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/questions"
)

// MatchNotifier tells the best-matched experts about a question. Each
// match is notified at most once and counts against the expert's weekly
// quota.
type MatchNotifier struct {
	matches    *matching.Store
	experts    *experts.Store
	dispatcher *Dispatcher
	topN       int
	log        logger.Logger
	now        func() time.Time
}

// NewMatchNotifier creates a MatchNotifier that notifies at most topN
// experts per question.
func NewMatchNotifier(matches *matching.Store, directory *experts.Store, dispatcher *Dispatcher, topN int, log logger.Logger) *MatchNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &MatchNotifier{
		matches:    matches,
		experts:    directory,
		dispatcher: dispatcher,
		topN:       topN,
		log:        log,
		now:        time.Now,
	}
}

// NotifyTop notifies the best un-notified matches of q until topN experts
// in total have been notified for it. It returns the ids of the experts
// notified by this call.
func (m *MatchNotifier) NotifyTop(ctx context.Context, q *questions.Question) ([]string, error) {
	if m.topN <= 0 {
		return nil, nil
	}
	all, err := m.matches.List(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}

	budget := m.topN
	var pending []matching.QuestionMatch
	for _, qm := range all {
		if qm.IsNotified {
			budget--
		} else {
			pending = append(pending, qm)
		}
	}

	var notified []string
	for _, qm := range pending {
		if budget <= 0 {
			break
		}
		ok, err := m.notify(ctx, q, qm)
		if err != nil {
			return notified, err
		}
		if ok {
			notified = append(notified, qm.ExpertID)
			budget--
		}
	}
	return notified, nil
}

// NotifyForward tells the recipient of a forward about the question. A
// person chose the recipient, so the top-N budget and the weekly quota do
// not apply. When qm is set the match is claimed so NotifyTop will not
// notify the same expert again.
func (m *MatchNotifier) NotifyForward(ctx context.Context, q *questions.Question, recipientID, forwardedBy, reason string, qm *matching.QuestionMatch) error {
	score := 1.0
	if qm != nil {
		if _, err := m.matches.MarkNotified(ctx, q.ID, qm.ExpertID, m.now()); err != nil {
			return fmt.Errorf("claiming match: %w", err)
		}
		score = qm.MatchScore
	}

	msg := fmt.Sprintf("%s forwarded you a question", forwardedBy)
	if reason != "" {
		msg += ": " + reason
	}
	return m.dispatcher.Dispatch(ctx, &Notification{
		Type:        TypeQuestionForwarded,
		RecipientID: recipientID,
		QuestionID:  q.ID,
		Title:       q.Title,
		Message:     msg,
		Score:       score,
	})
}

func (m *MatchNotifier) notify(ctx context.Context, q *questions.Question, qm matching.QuestionMatch) (bool, error) {
	claimed, err := m.matches.MarkNotified(ctx, q.ID, qm.ExpertID, m.now())
	if err != nil {
		return false, fmt.Errorf("claiming match: %w", err)
	}
	if !claimed {
		return false, nil
	}

	underQuota, err := m.experts.IncrementWeekCount(ctx, qm.ExpertID)
	if err != nil || !underQuota {
		if rerr := m.matches.ReleaseNotified(ctx, q.ID, qm.ExpertID, m.now()); rerr != nil {
			m.log.Warn("releasing match claim failed",
				logger.String("question_id", q.ID),
				logger.String("expert_id", qm.ExpertID),
				logger.Error(rerr),
			)
		}
	}
	if err != nil {
		return false, fmt.Errorf("counting weekly quota: %w", err)
	}
	if !underQuota {
		m.log.Info("expert reached weekly quota, notification skipped",
			logger.String("question_id", q.ID),
			logger.String("expert_id", qm.ExpertID),
		)
		return false, nil
	}

	n := &Notification{
		Type:        TypeQuestionMatched,
		RecipientID: qm.ExpertID,
		QuestionID:  q.ID,
		Title:       q.Title,
		Message:     fmt.Sprintf("A question matches your expertise (score %.2f)", qm.MatchScore),
		Score:       qm.MatchScore,
	}
	if err := m.dispatcher.Dispatch(ctx, n); err != nil {
		return false, err
	}
	return true, nil
}
