package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Store provides persistence for questions and their responses.
type Store struct {
	db *db.DB
	q  db.Querier
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, q: database}
}

// WithTx returns a Store whose statements run inside tx.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx}
}

// Classification is the enrichment patched onto a question after it is
// persisted.
type Classification struct {
	PrimaryTags        []string
	SecondaryTags      []string
	ExpectedAnswerType AnswerType
	Urgency            Urgency
	Summary            string
	Confidence         float64
}

const questionColumns = `id, asker_id, title, body, primary_tags, secondary_tags,
	expected_answer_type, urgency, ai_summary, classification_confidence, classified_at,
	visibility_level, is_anonymous, is_sensitive, status, forward_count, view_count,
	response_count, helpful_votes, created_at, updated_at, expires_at`

// Create inserts a question. Empty ID, status and enum fields are filled
// with defaults.
func (s *Store) Create(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.Status == "" {
		q.Status = StatusActive
	}
	if q.ExpectedAnswerType == "" {
		q.ExpectedAnswerType = AnswerTactical
	}
	if q.Urgency == "" {
		q.Urgency = UrgencyMedium
	}
	if q.PrimaryTags == nil {
		q.PrimaryTags = []string{}
	}
	if q.SecondaryTags == nil {
		q.SecondaryTags = []string{}
	}

	primary, err := json.Marshal(q.PrimaryTags)
	if err != nil {
		return fmt.Errorf("marshalling primary tags: %w", err)
	}
	secondary, err := json.Marshal(q.SecondaryTags)
	if err != nil {
		return fmt.Errorf("marshalling secondary tags: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO questions (`+questionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.AskerID, q.Title, q.Body, string(primary), string(secondary),
		string(q.ExpectedAnswerType), string(q.Urgency), q.AISummary, q.ClassificationConfidence,
		db.NullTime(q.ClassifiedAt), string(q.VisibilityLevel), db.BoolInt(q.IsAnonymous),
		db.BoolInt(q.IsSensitive), string(q.Status), q.ForwardCount, q.ViewCount,
		q.ResponseCount, q.HelpfulVotes, db.FormatTime(q.CreatedAt), db.FormatTime(q.UpdatedAt),
		db.FormatTime(q.ExpiresAt),
	)
	if err != nil {
		return apperr.StoreUnavailable("questions.Create", fmt.Errorf("inserting question: %w", err))
	}
	return nil
}

// Get retrieves a question by id.
func (s *Store) Get(ctx context.Context, id string) (*Question, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = ?", id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("questions.Get", "question", id)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable("questions.Get", fmt.Errorf("reading question: %w", err))
	}
	return q, nil
}

// ApplyClassification patches the enrichment fields of a question.
func (s *Store) ApplyClassification(ctx context.Context, id string, c Classification, at time.Time) error {
	primary, err := json.Marshal(nonNil(c.PrimaryTags))
	if err != nil {
		return fmt.Errorf("marshalling primary tags: %w", err)
	}
	secondary, err := json.Marshal(nonNil(c.SecondaryTags))
	if err != nil {
		return fmt.Errorf("marshalling secondary tags: %w", err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE questions SET primary_tags = ?, secondary_tags = ?, expected_answer_type = ?,
			urgency = ?, ai_summary = ?, classification_confidence = ?, classified_at = ?, updated_at = ?
		WHERE id = ?`,
		string(primary), string(secondary), string(c.ExpectedAnswerType), string(c.Urgency),
		c.Summary, c.Confidence, db.FormatTime(at), db.FormatTime(at), id,
	)
	if err != nil {
		return apperr.StoreUnavailable("questions.ApplyClassification", fmt.Errorf("updating classification: %w", err))
	}
	return requireOne(res, "questions.ApplyClassification", "question", id)
}

// counterColumns whitelists the columns increment may touch.
var counterColumns = map[string]bool{
	"view_count":     true,
	"response_count": true,
	"forward_count":  true,
	"helpful_votes":  true,
}

// increment applies col = col + delta in a single statement.
func (s *Store) increment(ctx context.Context, op, id, col string, delta int) error {
	if !counterColumns[col] {
		return fmt.Errorf("%s: column %q is not a counter", op, col)
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE questions SET "+col+" = "+col+" + ?, updated_at = ? WHERE id = ?",
		delta, db.FormatTime(time.Now()), id,
	)
	if err != nil {
		return apperr.StoreUnavailable(op, fmt.Errorf("incrementing %s: %w", col, err))
	}
	return requireOne(res, op, "question", id)
}

// IncrementViews adds one to the view counter.
func (s *Store) IncrementViews(ctx context.Context, id string) error {
	return s.increment(ctx, "questions.IncrementViews", id, "view_count", 1)
}

// IncrementResponses adjusts the response counter by delta.
func (s *Store) IncrementResponses(ctx context.Context, id string, delta int) error {
	return s.increment(ctx, "questions.IncrementResponses", id, "response_count", delta)
}

// IncrementForwards adds one to the forward counter.
func (s *Store) IncrementForwards(ctx context.Context, id string) error {
	return s.increment(ctx, "questions.IncrementForwards", id, "forward_count", 1)
}

// IncrementHelpfulVotes adjusts the question's helpful vote tally.
func (s *Store) IncrementHelpfulVotes(ctx context.Context, id string, delta int) error {
	return s.increment(ctx, "questions.IncrementHelpfulVotes", id, "helpful_votes", delta)
}

// Transition moves a question from one of the given states to to. It
// reports false when the question was not in any of them.
func (s *Store) Transition(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("questions.Transition: no source states")
	}
	args := []any{string(to), db.FormatTime(time.Now()), id}
	for _, f := range from {
		args = append(args, string(f))
	}
	res, err := s.q.ExecContext(ctx,
		"UPDATE questions SET status = ?, updated_at = ? WHERE id = ? AND status IN ("+placeholders(len(from))+")",
		args...,
	)
	if err != nil {
		return false, apperr.StoreUnavailable("questions.Transition", fmt.Errorf("updating status: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.StoreUnavailable("questions.Transition", err)
	}
	return n == 1, nil
}

// ActiveFilter selects open questions.
type ActiveFilter struct {
	// Now excludes questions expired at this instant. Zero means time.Now.
	Now time.Time
	// VisibleAt, when set, keeps only questions whose level admits a viewer
	// at this degree.
	VisibleAt *visibility.Degree
	AskerID   string
	Limit     int
	Offset    int
}

// ListActive returns active, unexpired questions, oldest first.
func (s *Store) ListActive(ctx context.Context, f ActiveFilter) ([]Question, error) {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	clauses := []string{"status = ?", "expires_at > ?"}
	args := []any{string(StatusActive), db.FormatTime(now)}

	if f.VisibleAt != nil {
		levels := visibility.LevelsAllowing(*f.VisibleAt)
		clauses = append(clauses, "visibility_level IN ("+placeholders(len(levels))+")")
		for _, l := range levels {
			args = append(args, string(l))
		}
	}
	if f.AskerID != "" {
		clauses = append(clauses, "asker_id = ?")
		args = append(args, f.AskerID)
	}

	query := "SELECT " + questionColumns + " FROM questions WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY created_at, id"
	query += db.Page(f.Limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable("questions.ListActive", fmt.Errorf("querying questions: %w", err))
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable("questions.ListActive", fmt.Errorf("scanning question: %w", err))
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("questions.ListActive", err)
	}
	return out, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (*Question, error) {
	var (
		q                                  Question
		primary, secondary                 string
		answerType, urgency, level, status string
		classifiedAt                       sql.NullString
		anonymous, sensitive               int
		created, updated, expires          string
	)
	err := sc.Scan(
		&q.ID, &q.AskerID, &q.Title, &q.Body, &primary, &secondary,
		&answerType, &urgency, &q.AISummary, &q.ClassificationConfidence, &classifiedAt,
		&level, &anonymous, &sensitive, &status, &q.ForwardCount, &q.ViewCount,
		&q.ResponseCount, &q.HelpfulVotes, &created, &updated, &expires,
	)
	if err != nil {
		return nil, err
	}

	q.ExpectedAnswerType = AnswerType(answerType)
	q.Urgency = Urgency(urgency)
	q.VisibilityLevel = visibility.Level(level)
	q.Status = Status(status)
	q.IsAnonymous = anonymous != 0
	q.IsSensitive = sensitive != 0
	q.ClassifiedAt = db.ParseNullTime(classifiedAt)
	q.CreatedAt = db.ParseTime(created)
	q.UpdatedAt = db.ParseTime(updated)
	q.ExpiresAt = db.ParseTime(expires)

	if err := json.Unmarshal([]byte(primary), &q.PrimaryTags); err != nil {
		q.PrimaryTags = []string{}
	}
	if err := json.Unmarshal([]byte(secondary), &q.SecondaryTags); err != nil {
		q.SecondaryTags = []string{}
	}
	return &q, nil
}

func requireOne(res sql.Result, op, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StoreUnavailable(op, err)
	}
	if n == 0 {
		return apperr.NotFound(op, what, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
