package forwarding

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/network"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Ledger validates and records forwards.
type Ledger struct {
	db        *db.DB
	store     *Store
	questions *questions.Store
	network   *network.Store
	now       func() time.Time
}

// NewLedger creates a Ledger.
func NewLedger(database *db.DB, store *Store, qs *questions.Store, graph *network.Store) *Ledger {
	return &Ledger{db: database, store: store, questions: qs, network: graph, now: time.Now}
}

// Forward records that by forwarded the question to to. by must be able to
// see the question at the time of the call. The visibility check, the
// append and the forward counter update happen in one transaction.
func (l *Ledger) Forward(ctx context.Context, questionID, by, to, reason string) (*Record, error) {
	const op = "forwarding.Forward"
	by, to = strings.TrimSpace(by), strings.TrimSpace(to)
	if by == "" || to == "" {
		return nil, apperr.Validation(op, "forwarder and recipient are required")
	}
	if by == to {
		return nil, apperr.Validation(op, "cannot forward a question to yourself")
	}

	var rec *Record
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		qs := l.questions.WithTx(tx)
		q, err := qs.Get(ctx, questionID)
		if err != nil {
			return err
		}
		now := l.now()
		if !q.AcceptsWrites(now) {
			return apperr.QuestionClosed(op, questionID)
		}
		if to == q.AskerID {
			return apperr.Validation(op, "cannot forward a question to its asker")
		}

		ledger := l.store.WithTx(tx)
		grants, err := ledger.Grants(ctx, questionID)
		if err != nil {
			return err
		}
		graph := l.network.WithTx(tx)
		ok, _, err := visibility.Check(ctx, graph, q.Target(), by, grants)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotAuthorized(op, "user %s cannot see question %s", by, questionID)
		}

		degree, err := graph.Degree(ctx, q.AskerID, to)
		if err != nil {
			return err
		}
		rec = &Record{
			QuestionID:             questionID,
			ForwardedBy:            by,
			ForwardedTo:            to,
			Reason:                 strings.TrimSpace(reason),
			NetworkDegreeAtForward: degree,
			CreatedAt:              now,
		}
		if err := ledger.Append(ctx, rec); err != nil {
			return err
		}
		return qs.IncrementForwards(ctx, questionID)
	})
	if err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}
	return rec, nil
}

// Grants returns the users a question has been forwarded to.
func (l *Ledger) Grants(ctx context.Context, questionID string) (visibility.Grants, error) {
	return l.store.Grants(ctx, questionID)
}

// History returns a question's forwards, oldest first.
func (l *Ledger) History(ctx context.Context, questionID string) ([]Record, error) {
	return l.store.List(ctx, questionID)
}
