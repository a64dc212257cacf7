package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
)

const responseColumns = `id, question_id, responder_id, content, response_type,
	helpful_votes, unhelpful_votes, is_marked_helpful, is_accepted, quality_score,
	source_type, quality_level, visible_to, created_at, updated_at, deleted_at`

// CreateResponse inserts a response. It does not touch the question's
// response counter; callers pair it with IncrementResponses in one
// transaction.
func (s *Store) CreateResponse(ctx context.Context, r *Response) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.SourceType == "" {
		r.SourceType = SourceHuman
	}
	if r.VisibleTo == nil {
		r.VisibleTo = []string{}
	}
	visibleTo, err := json.Marshal(r.VisibleTo)
	if err != nil {
		return fmt.Errorf("marshalling visible_to: %w", err)
	}

	var quality sql.NullFloat64
	if r.QualityScore != nil {
		quality = sql.NullFloat64{Float64: *r.QualityScore, Valid: true}
	}
	var level sql.NullString
	if r.QualityLevel != "" {
		level = sql.NullString{String: string(r.QualityLevel), Valid: true}
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO question_responses (`+responseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		r.ID, r.QuestionID, r.ResponderID, r.Content, string(r.ResponseType),
		r.HelpfulVotes, r.UnhelpfulVotes, db.BoolInt(r.IsMarkedHelpful), db.BoolInt(r.IsAccepted),
		quality, string(r.SourceType), level, string(visibleTo),
		db.FormatTime(r.CreatedAt), db.FormatTime(r.UpdatedAt),
	)
	if err != nil {
		return apperr.StoreUnavailable("questions.CreateResponse", fmt.Errorf("inserting response: %w", err))
	}
	return nil
}

// GetResponse retrieves a response by id, including soft-deleted ones.
func (s *Store) GetResponse(ctx context.Context, id string) (*Response, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+responseColumns+" FROM question_responses WHERE id = ?", id)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("questions.GetResponse", "response", id)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable("questions.GetResponse", fmt.Errorf("reading response: %w", err))
	}
	return r, nil
}

// ListResponses returns the live responses to a question, oldest first.
func (s *Store) ListResponses(ctx context.Context, questionID string) ([]Response, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+responseColumns+` FROM question_responses
		WHERE question_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, questionID)
	if err != nil {
		return nil, apperr.StoreUnavailable("questions.ListResponses", fmt.Errorf("querying responses: %w", err))
	}
	defer rows.Close()

	var out []Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable("questions.ListResponses", fmt.Errorf("scanning response: %w", err))
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("questions.ListResponses", err)
	}
	return out, nil
}

// CountLiveResponses counts non-deleted responses to a question.
func (s *Store) CountLiveResponses(ctx context.Context, questionID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM question_responses WHERE question_id = ? AND deleted_at IS NULL",
		questionID,
	).Scan(&n)
	if err != nil {
		return 0, apperr.StoreUnavailable("questions.CountLiveResponses", err)
	}
	return n, nil
}

// RecordVote tallies one vote in a single statement: the matching counter
// goes up, is_marked_helpful takes the vote's direction, and human responses
// get their quality score recomputed from the new tallies.
func (s *Store) RecordVote(ctx context.Context, id string, helpful bool, at time.Time) error {
	dh, du := 0, 1
	if helpful {
		dh, du = 1, 0
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE question_responses SET
			helpful_votes = helpful_votes + ?,
			unhelpful_votes = unhelpful_votes + ?,
			is_marked_helpful = ?,
			quality_score = CASE WHEN source_type = 'human'
				THEN (helpful_votes + ? + 1.0) / (helpful_votes + unhelpful_votes + 1 + 2.0)
				ELSE quality_score END,
			updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		dh, du, db.BoolInt(helpful), dh, db.FormatTime(at), id,
	)
	if err != nil {
		return apperr.StoreUnavailable("questions.RecordVote", fmt.Errorf("recording vote: %w", err))
	}
	return requireOne(res, "questions.RecordVote", "response", id)
}

// MarkAccepted flags a live human response as accepted. It reports false if
// the response was already accepted, deleted or synthetic.
func (s *Store) MarkAccepted(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE question_responses SET is_accepted = 1, updated_at = ?
		WHERE id = ? AND is_accepted = 0 AND deleted_at IS NULL AND source_type = 'human'`,
		db.FormatTime(at), id,
	)
	if err != nil {
		return false, apperr.StoreUnavailable("questions.MarkAccepted", fmt.Errorf("accepting response: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.StoreUnavailable("questions.MarkAccepted", err)
	}
	return n == 1, nil
}

// SoftDeleteResponse stamps deleted_at on a live response. It reports false
// if the response was already deleted.
func (s *Store) SoftDeleteResponse(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE question_responses SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		db.FormatTime(at), db.FormatTime(at), id,
	)
	if err != nil {
		return false, apperr.StoreUnavailable("questions.SoftDeleteResponse", fmt.Errorf("deleting response: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.StoreUnavailable("questions.SoftDeleteResponse", err)
	}
	return n == 1, nil
}

func scanResponse(sc scanner) (*Response, error) {
	var (
		r                                 Response
		responseType, sourceType, visible string
		markedHelpful, accepted           int
		quality                           sql.NullFloat64
		level                             sql.NullString
		created, updated                  string
		deleted                           sql.NullString
	)
	err := sc.Scan(
		&r.ID, &r.QuestionID, &r.ResponderID, &r.Content, &responseType,
		&r.HelpfulVotes, &r.UnhelpfulVotes, &markedHelpful, &accepted, &quality,
		&sourceType, &level, &visible, &created, &updated, &deleted,
	)
	if err != nil {
		return nil, err
	}

	r.ResponseType = AnswerType(responseType)
	r.SourceType = SourceType(sourceType)
	r.IsMarkedHelpful = markedHelpful != 0
	r.IsAccepted = accepted != 0
	if quality.Valid {
		v := quality.Float64
		r.QualityScore = &v
	}
	if level.Valid {
		r.QualityLevel = QualityLevel(level.String)
	}
	r.CreatedAt = db.ParseTime(created)
	r.UpdatedAt = db.ParseTime(updated)
	r.DeletedAt = db.ParseNullTime(deleted)

	if err := json.Unmarshal([]byte(visible), &r.VisibleTo); err != nil {
		r.VisibleTo = []string{}
	}
	return &r, nil
}
