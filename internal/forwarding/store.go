// Package forwarding is the append-only ledger of question forwards. Each
// record grants its recipient visibility of the question.
package forwarding

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Record is one forward of a question from a user who could see it to
// another user.
type Record struct {
	ID                     string            `json:"id"`
	QuestionID             string            `json:"question_id"`
	ForwardedBy            string            `json:"forwarded_by"`
	ForwardedTo            string            `json:"forwarded_to"`
	Reason                 string            `json:"reason,omitempty"`
	NetworkDegreeAtForward visibility.Degree `json:"network_degree_at_forward"`
	CreatedAt              time.Time         `json:"created_at"`
}

// Store reads and appends forward records. Records are never updated.
type Store struct {
	q db.Querier
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{q: database}
}

// WithTx returns a Store whose statements run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx}
}

// Append inserts a record, assigning an id and timestamp when missing.
func (s *Store) Append(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var reason sql.NullString
	if r.Reason != "" {
		reason = sql.NullString{String: r.Reason, Valid: true}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO forward_records (id, question_id, forwarded_by, forwarded_to, reason, network_degree_at_forward, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.QuestionID, r.ForwardedBy, r.ForwardedTo, reason, int(r.NetworkDegreeAtForward),
		db.FormatTime(r.CreatedAt),
	)
	if err != nil {
		return apperr.StoreUnavailable("forwarding.Append", fmt.Errorf("inserting forward record: %w", err))
	}
	return nil
}

// List returns the forwards of a question, oldest first.
func (s *Store) List(ctx context.Context, questionID string) ([]Record, error) {
	return s.query(ctx, "forwarding.List", `
		SELECT id, question_id, forwarded_by, forwarded_to, reason, network_degree_at_forward, created_at
		FROM forward_records WHERE question_id = ? ORDER BY created_at, id`, questionID)
}

// ListReceived returns the forwards a user has received, newest first.
func (s *Store) ListReceived(ctx context.Context, userID string, limit int) ([]Record, error) {
	query := `
		SELECT id, question_id, forwarded_by, forwarded_to, reason, network_degree_at_forward, created_at
		FROM forward_records WHERE forwarded_to = ? ORDER BY created_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.query(ctx, "forwarding.ListReceived", query, userID)
}

// Grants returns the set of users a question has been forwarded to.
func (s *Store) Grants(ctx context.Context, questionID string) (visibility.Grants, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT DISTINCT forwarded_to FROM forward_records WHERE question_id = ?", questionID)
	if err != nil {
		return nil, apperr.StoreUnavailable("forwarding.Grants", fmt.Errorf("querying grants: %w", err))
	}
	defer rows.Close()

	grants := visibility.Grants{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.StoreUnavailable("forwarding.Grants", fmt.Errorf("scanning grant: %w", err))
		}
		grants[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("forwarding.Grants", err)
	}
	return grants, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]Record, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable(op, fmt.Errorf("querying forward records: %w", err))
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r       Record
			reason  sql.NullString
			degree  int
			created string
		)
		if err := rows.Scan(&r.ID, &r.QuestionID, &r.ForwardedBy, &r.ForwardedTo, &reason, &degree, &created); err != nil {
			return nil, apperr.StoreUnavailable(op, fmt.Errorf("scanning forward record: %w", err))
		}
		r.Reason = reason.String
		r.NetworkDegreeAtForward = visibility.Degree(degree)
		r.CreatedAt = db.ParseTime(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}
	return out, nil
}
