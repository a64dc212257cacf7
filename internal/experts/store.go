// Package experts is the expert directory: routing profiles, expertise tags
// and weekly question quotas.
package experts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/logger"
)

// Week is the quota period.
const Week = 7 * 24 * time.Hour

// Store provides persistence for expert profiles, backed by an optional
// candidate pool cache.
type Store struct {
	db    *db.DB
	cache Cache
	log   logger.Logger
}

// NewStore creates a Store backed by the given database with caching
// disabled.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, cache: NopCache{}, log: logger.NewNop()}
}

// WithCache returns a copy of the store that serves candidate pools through
// cache. Cache failures are logged and fall back to the database.
func (s *Store) WithCache(cache Cache, log logger.Logger) *Store {
	return &Store{db: s.db, cache: cache, log: log}
}

// Upsert creates or updates a profile and replaces its expertise tags. The
// weekly counter is kept on update.
func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	const op = "experts.Upsert"
	if err := p.Validate(); err != nil {
		return apperr.Validation(op, "%v", err)
	}

	now := time.Now()
	if p.WeekStartedAt.IsZero() {
		p.WeekStartedAt = now
	}
	var lastActive sql.NullString
	if !p.LastActiveAt.IsZero() {
		lastActive = sql.NullString{String: db.FormatTime(p.LastActiveAt), Valid: true}
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO experts (
				user_id, is_available, response_rate, avg_response_latency_ms, last_active_at,
				max_questions_per_week, current_week_count, week_started_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				is_available = excluded.is_available,
				response_rate = excluded.response_rate,
				avg_response_latency_ms = excluded.avg_response_latency_ms,
				last_active_at = COALESCE(excluded.last_active_at, experts.last_active_at),
				max_questions_per_week = excluded.max_questions_per_week,
				updated_at = excluded.updated_at`,
			p.UserID, db.BoolInt(p.IsAvailable), p.ResponseRate, p.AvgResponseLatency.Milliseconds(),
			lastActive, p.MaxQuestionsPerWeek, p.CurrentWeekCount, db.FormatTime(p.WeekStartedAt),
			db.FormatTime(now), db.FormatTime(now),
		)
		if err != nil {
			return fmt.Errorf("upserting expert: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM expertise_tags WHERE user_id = ?", p.UserID); err != nil {
			return fmt.Errorf("clearing expertise tags: %w", err)
		}
		for tag, conf := range p.ExpertiseTags {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO expertise_tags (user_id, tag, confidence) VALUES (?, ?, ?)",
				p.UserID, tag, conf,
			); err != nil {
				return fmt.Errorf("inserting expertise tag %q: %w", tag, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperr.StoreUnavailable(op, err)
	}
	s.invalidate(ctx)
	return nil
}

// Get retrieves a profile with its expertise tags.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	ps, err := s.GetMany(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, apperr.NotFound("experts.Get", "expert", userID)
	}
	return &ps[0], nil
}

// GetMany loads the profiles that exist among userIDs, ordered by user id.
// Unknown ids are skipped.
func (s *Store) GetMany(ctx context.Context, userIDs []string) ([]Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	return s.query(ctx, "experts.GetMany",
		"SELECT "+profileColumns+" FROM experts e WHERE e.user_id IN ("+placeholders(len(userIDs))+") ORDER BY e.user_id",
		args...)
}

// ListCandidates returns available experts under quota whose expertise
// overlaps tags. With no tags every available expert under quota is a
// candidate. limit <= 0 means no limit.
func (s *Store) ListCandidates(ctx context.Context, tags []string, limit int) ([]Profile, error) {
	tags = normalizeTags(tags)
	key := fmt.Sprintf("%s|%d", strings.Join(tags, ","), limit)

	gen, err := s.cache.Generation(ctx)
	cacheOK := err == nil
	if err != nil {
		s.log.Warn("candidate cache unavailable", logger.Error(err))
	}
	if cacheOK {
		cached, hit, err := s.cache.GetCandidates(ctx, gen, key)
		if err != nil {
			s.log.Warn("reading candidate cache", logger.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	query := "SELECT " + profileColumns + ` FROM experts e
		WHERE e.is_available = 1 AND e.current_week_count < e.max_questions_per_week`
	var args []any
	if len(tags) > 0 {
		in := placeholders(len(tags))
		query += " AND EXISTS (SELECT 1 FROM expertise_tags t WHERE t.user_id = e.user_id AND t.tag IN (" + in + "))"
		// A limited pool keeps the experts most confident in the asked tags.
		query += " ORDER BY (SELECT MAX(t.confidence) FROM expertise_tags t WHERE t.user_id = e.user_id AND t.tag IN (" +
			in + ")) DESC, e.user_id"
		for range 2 {
			for _, t := range tags {
				args = append(args, t)
			}
		}
	} else {
		query += " ORDER BY e.user_id"
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	out, err := s.query(ctx, "experts.ListCandidates", query, args...)
	if err != nil {
		return nil, err
	}

	if cacheOK {
		if err := s.cache.SetCandidates(ctx, gen, key, out); err != nil {
			s.log.Warn("writing candidate cache", logger.Error(err))
		}
	}
	return out, nil
}

// SetTag creates or updates one expertise tag.
func (s *Store) SetTag(ctx context.Context, userID, tag string, confidence float64) error {
	const op = "experts.SetTag"
	tag = NormalizeTag(tag)
	if tag == "" {
		return apperr.Validation(op, "tag is required")
	}
	if confidence < 0 || confidence > 1 {
		return apperr.Validation(op, "confidence %v outside [0,1]", confidence)
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expertise_tags (user_id, tag, confidence) VALUES (?, ?, ?)
		ON CONFLICT(user_id, tag) DO UPDATE SET confidence = excluded.confidence`,
		userID, tag, confidence,
	)
	if err != nil {
		return apperr.StoreUnavailable(op, fmt.Errorf("setting tag: %w", err))
	}
	s.invalidate(ctx)
	return nil
}

// RemoveTag deletes one expertise tag.
func (s *Store) RemoveTag(ctx context.Context, userID, tag string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM expertise_tags WHERE user_id = ? AND tag = ?", userID, NormalizeTag(tag))
	if err != nil {
		return apperr.StoreUnavailable("experts.RemoveTag", fmt.Errorf("removing tag: %w", err))
	}
	s.invalidate(ctx)
	return nil
}

// Touch records activity by the expert at the given time. Unknown users
// are ignored.
func (s *Store) Touch(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE experts SET last_active_at = ?, updated_at = ? WHERE user_id = ?",
		db.FormatTime(at), db.FormatTime(at), userID,
	)
	if err != nil {
		return apperr.StoreUnavailable("experts.Touch", fmt.Errorf("touching expert: %w", err))
	}
	s.invalidate(ctx)
	return nil
}

// IncrementWeekCount takes one slot of the expert's weekly quota. It
// reports false when the expert is unknown or already at quota.
func (s *Store) IncrementWeekCount(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE experts SET current_week_count = current_week_count + 1, updated_at = ?
		WHERE user_id = ? AND current_week_count < max_questions_per_week`,
		db.FormatTime(time.Now()), userID,
	)
	if err != nil {
		return false, apperr.StoreUnavailable("experts.IncrementWeekCount", fmt.Errorf("incrementing week count: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.StoreUnavailable("experts.IncrementWeekCount", err)
	}
	if n == 1 {
		s.invalidate(ctx)
	}
	return n == 1, nil
}

// ResetStaleWeeks zeroes the quota of every expert whose week began at
// least a Week before now. It returns the number of experts reset.
func (s *Store) ResetStaleWeeks(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE experts SET current_week_count = 0, week_started_at = ?, updated_at = ?
		WHERE week_started_at <= ?`,
		db.FormatTime(now), db.FormatTime(now), db.FormatTime(now.Add(-Week)),
	)
	if err != nil {
		return 0, apperr.StoreUnavailable("experts.ResetStaleWeeks", fmt.Errorf("resetting weekly quotas: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.StoreUnavailable("experts.ResetStaleWeeks", err)
	}
	if n > 0 {
		s.invalidate(ctx)
	}
	return n, nil
}

func (s *Store) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("invalidating candidate cache", logger.Error(err))
	}
}

const profileColumns = `e.user_id, e.is_available, e.response_rate, e.avg_response_latency_ms,
	e.last_active_at, e.max_questions_per_week, e.current_week_count, e.week_started_at,
	e.created_at, e.updated_at`

// query runs a profile query aliased as e and attaches expertise tags.
func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable(op, fmt.Errorf("querying experts: %w", err))
	}

	var (
		out   []Profile
		index = map[string]int{}
	)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			rows.Close()
			return nil, apperr.StoreUnavailable(op, fmt.Errorf("scanning expert: %w", err))
		}
		index[p.UserID] = len(out)
		out = append(out, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]any, len(out))
	for i, p := range out {
		ids[i] = p.UserID
	}
	tagRows, err := s.db.QueryContext(ctx,
		"SELECT user_id, tag, confidence FROM expertise_tags WHERE user_id IN ("+placeholders(len(ids))+")",
		ids...,
	)
	if err != nil {
		return nil, apperr.StoreUnavailable(op, fmt.Errorf("querying expertise tags: %w", err))
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var (
			userID, tag string
			conf        float64
		)
		if err := tagRows.Scan(&userID, &tag, &conf); err != nil {
			return nil, apperr.StoreUnavailable(op, fmt.Errorf("scanning expertise tag: %w", err))
		}
		out[index[userID]].ExpertiseTags[tag] = conf
	}
	if err := tagRows.Err(); err != nil {
		return nil, apperr.StoreUnavailable(op, err)
	}
	return out, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(sc scanner) (*Profile, error) {
	var (
		p                       Profile
		available               int
		latencyMS               int64
		lastActive              sql.NullString
		weekStart, created, upd string
	)
	if err := sc.Scan(
		&p.UserID, &available, &p.ResponseRate, &latencyMS, &lastActive,
		&p.MaxQuestionsPerWeek, &p.CurrentWeekCount, &weekStart, &created, &upd,
	); err != nil {
		return nil, err
	}
	p.IsAvailable = available != 0
	p.AvgResponseLatency = time.Duration(latencyMS) * time.Millisecond
	if t := db.ParseNullTime(lastActive); t != nil {
		p.LastActiveAt = *t
	}
	p.WeekStartedAt = db.ParseTime(weekStart)
	p.CreatedAt = db.ParseTime(created)
	p.UpdatedAt = db.ParseTime(upd)
	p.ExpertiseTags = map[string]float64{}
	return &p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
