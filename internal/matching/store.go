package matching

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Store persists question matches. There is at most one row per question
// and expert.
type Store struct {
	db   *db.DB
	q    db.Querier
	inTx bool
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, q: database}
}

// WithTx returns a Store whose statements run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx, inTx: true}
}

const matchColumns = `question_id, expert_id, match_score, tag_relevance, expertise_confidence,
	response_history, activity, network_distance, network_degree, is_notified, notified_at,
	viewed_at, responded_at, created_at, updated_at`

// orderBest mirrors Sort as far as stored columns allow.
const orderBest = ` ORDER BY match_score DESC, CASE WHEN network_degree < 0 THEN 1 ELSE 0 END,
	network_degree, expert_id`

// Upsert writes matches. Scores and degree are refreshed on conflict while
// notification, view and response state is kept.
func (s *Store) Upsert(ctx context.Context, ms []QuestionMatch) error {
	if len(ms) == 0 {
		return nil
	}
	if s.inTx {
		return upsert(ctx, s.q, ms)
	}
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return upsert(ctx, tx, ms)
	})
}

func upsert(ctx context.Context, q db.Querier, ms []QuestionMatch) error {
	for _, m := range ms {
		created := m.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		updated := m.UpdatedAt
		if updated.IsZero() {
			updated = created
		}
		c := m.Components
		_, err := q.ExecContext(ctx, `
			INSERT INTO question_matches (`+matchColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, NULL, ?, ?)
			ON CONFLICT(question_id, expert_id) DO UPDATE SET
				match_score = excluded.match_score,
				tag_relevance = excluded.tag_relevance,
				expertise_confidence = excluded.expertise_confidence,
				response_history = excluded.response_history,
				activity = excluded.activity,
				network_distance = excluded.network_distance,
				network_degree = excluded.network_degree,
				updated_at = excluded.updated_at`,
			m.QuestionID, m.ExpertID, m.MatchScore, c.TagRelevance, c.ExpertiseConfidence,
			c.ResponseHistory, c.Activity, c.NetworkDistance, int(m.NetworkDegree),
			db.FormatTime(created), db.FormatTime(updated),
		)
		if err != nil {
			return apperr.StoreUnavailable("matching.Upsert", fmt.Errorf("upserting match %s/%s: %w", m.QuestionID, m.ExpertID, err))
		}
	}
	return nil
}

// List returns the stored matches for a question, best first.
func (s *Store) List(ctx context.Context, questionID string) ([]QuestionMatch, error) {
	return s.query(ctx, "matching.List",
		"SELECT "+matchColumns+" FROM question_matches WHERE question_id = ?"+orderBest, questionID)
}

// Pending returns up to limit matches for a question that have not been
// notified yet, best first.
func (s *Store) Pending(ctx context.Context, questionID string, limit int) ([]QuestionMatch, error) {
	query := "SELECT " + matchColumns + " FROM question_matches WHERE question_id = ? AND is_notified = 0" + orderBest
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.query(ctx, "matching.Pending", query, questionID)
}

// ListForExpert returns an expert's matches, newest first.
func (s *Store) ListForExpert(ctx context.Context, expertID string, limit int) ([]QuestionMatch, error) {
	query := "SELECT " + matchColumns + " FROM question_matches WHERE expert_id = ? ORDER BY created_at DESC, question_id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.query(ctx, "matching.ListForExpert", query, expertID)
}

// MarkNotified flags a match as notified. It reports false when the match
// does not exist or was already notified.
func (s *Store) MarkNotified(ctx context.Context, questionID, expertID string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE question_matches SET is_notified = 1, notified_at = ?, updated_at = ?
		WHERE question_id = ? AND expert_id = ? AND is_notified = 0`,
		db.FormatTime(at), db.FormatTime(at), questionID, expertID,
	)
	if err != nil {
		return false, apperr.StoreUnavailable("matching.MarkNotified", fmt.Errorf("marking match notified: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.StoreUnavailable("matching.MarkNotified", err)
	}
	return n == 1, nil
}

// ReleaseNotified undoes a MarkNotified claim whose notification was never
// sent, so the match can be offered again later.
func (s *Store) ReleaseNotified(ctx context.Context, questionID, expertID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE question_matches SET is_notified = 0, notified_at = NULL, updated_at = ?
		WHERE question_id = ? AND expert_id = ? AND is_notified = 1`,
		db.FormatTime(at), questionID, expertID,
	)
	if err != nil {
		return apperr.StoreUnavailable("matching.ReleaseNotified", fmt.Errorf("releasing match claim: %w", err))
	}
	return nil
}

// MarkViewed records the first time the expert viewed the question. It is a
// no-op for users without a match.
func (s *Store) MarkViewed(ctx context.Context, questionID, expertID string, at time.Time) error {
	return s.stamp(ctx, "matching.MarkViewed", "viewed_at", questionID, expertID, at)
}

// MarkResponded records the first time the expert responded.
func (s *Store) MarkResponded(ctx context.Context, questionID, expertID string, at time.Time) error {
	return s.stamp(ctx, "matching.MarkResponded", "responded_at", questionID, expertID, at)
}

func (s *Store) stamp(ctx context.Context, op, col, questionID, expertID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE question_matches SET "+col+" = COALESCE("+col+", ?), updated_at = ? WHERE question_id = ? AND expert_id = ?",
		db.FormatTime(at), db.FormatTime(at), questionID, expertID,
	)
	if err != nil {
		return apperr.StoreUnavailable(op, fmt.Errorf("setting %s: %w", col, err))
	}
	return nil
}

// Prune deletes un-notified matches for a question whose expert is not in
// keep. Notified matches are history and stay.
func (s *Store) Prune(ctx context.Context, questionID string, keep []string) (int64, error) {
	query := "DELETE FROM question_matches WHERE question_id = ? AND is_notified = 0"
	args := []any{questionID}
	if len(keep) > 0 {
		query += " AND expert_id NOT IN (" + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + ")"
		for _, id := range keep {
			args = append(args, id)
		}
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperr.StoreUnavailable("matching.Prune", fmt.Errorf("pruning matches: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.StoreUnavailable("matching.Prune", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]QuestionMatch, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable(op, fmt.Errorf("querying matches: %w", err))
	}
	defer rows.Close()

	out := []QuestionMatch{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable(op, fmt.Errorf("scanning match: %w", err))
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(sc scanner) (*QuestionMatch, error) {
	var (
		m                            QuestionMatch
		degree, notified             int
		notifiedAt, viewed, answered sql.NullString
		created, updated             string
	)
	err := sc.Scan(
		&m.QuestionID, &m.ExpertID, &m.MatchScore, &m.Components.TagRelevance,
		&m.Components.ExpertiseConfidence, &m.Components.ResponseHistory, &m.Components.Activity,
		&m.Components.NetworkDistance, &degree, &notified, &notifiedAt, &viewed, &answered,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	m.NetworkDegree = visibility.Degree(degree)
	m.IsNotified = notified != 0
	m.NotifiedAt = db.ParseNullTime(notifiedAt)
	m.ViewedAt = db.ParseNullTime(viewed)
	m.RespondedAt = db.ParseNullTime(answered)
	m.CreatedAt = db.ParseTime(created)
	m.UpdatedAt = db.ParseTime(updated)
	return &m, nil
}
