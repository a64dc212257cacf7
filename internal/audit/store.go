package audit

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
	"github.com/ziadkadry99/expertroute/internal/logger"
)

// Store provides CRUD operations for audit entries.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const entryColumns = `id, timestamp, actor_type, actor_id, action, scope, scope_id,
	summary, affected_users, previous_value, new_value`

// Log inserts a new audit entry. An empty ID is replaced by a UUID and a
// zero timestamp by the current time.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.AffectedUsers == nil {
		entry.AffectedUsers = []string{}
	}

	affected, err := json.Marshal(entry.AffectedUsers)
	if err != nil {
		return fmt.Errorf("marshalling affected users: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		db.FormatTime(entry.Timestamp),
		string(entry.ActorType),
		entry.ActorID,
		string(entry.Action),
		string(entry.Scope),
		entry.ScopeID,
		entry.Summary,
		string(affected),
		nullString(entry.PreviousValue),
		nullString(entry.NewValue),
	)
	if err != nil {
		return apperr.StoreUnavailable("audit.Log", fmt.Errorf("inserting audit entry: %w", err))
	}
	return nil
}

// GetByID retrieves a single audit entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM audit_entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("audit.GetByID", "audit entry", id)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable("audit.GetByID", fmt.Errorf("reading audit entry: %w", err))
	}
	return e, nil
}

// QueryFilter controls which audit entries are returned by Query.
type QueryFilter struct {
	ActorID      string
	Scope        Scope
	ScopeID      string
	Action       Action
	Since        *time.Time
	Until        *time.Time
	AffectedUser string
	Limit        int
	Offset       int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Scope != "" {
		clauses = append(clauses, "scope = ?")
		args = append(args, string(filter.Scope))
	}
	if filter.ScopeID != "" {
		clauses = append(clauses, "scope_id = ?")
		args = append(args, filter.ScopeID)
	}
	if filter.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, db.FormatTime(*filter.Since))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, db.FormatTime(*filter.Until))
	}
	if filter.AffectedUser != "" {
		// JSON array stored as text; match the quoted element.
		clauses = append(clauses, "affected_users LIKE ?")
		args = append(args, `%"`+filter.AffectedUser+`"%`)
	}

	query := "SELECT " + entryColumns + " FROM audit_entries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, id"

	query += db.Page(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable("audit.Query", fmt.Errorf("querying audit entries: %w", err))
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable("audit.Query", fmt.Errorf("scanning audit entry: %w", err))
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("audit.Query", err)
	}
	return entries, nil
}

// DeleteBefore removes all audit entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_entries WHERE timestamp < ?",
		db.FormatTime(before),
	)
	if err != nil {
		return 0, apperr.StoreUnavailable("audit.DeleteBefore", fmt.Errorf("deleting old audit entries: %w", err))
	}
	return res.RowsAffected()
}

// Recorder writes audit entries on a best-effort basis: failures are
// logged and never surface to the caller.
type Recorder struct {
	store *Store
	log   logger.Logger
}

// NewRecorder creates a Recorder. A nil store makes it a no-op.
func NewRecorder(store *Store, log logger.Logger) *Recorder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Recorder{store: store, log: log}
}

// Record logs entry, reporting any failure through the logger.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Log(ctx, entry); err != nil {
		r.log.Warn("writing audit entry",
			logger.String("action", string(entry.Action)),
			logger.String("scope_id", entry.ScopeID),
			logger.Error(err),
		)
	}
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e                        Entry
		actorType, action, scope string
		ts                       string
		affectedJSON             string
		previousValue, newValue  sql.NullString
	)

	err := sc.Scan(
		&e.ID, &ts, &actorType, &e.ActorID, &action, &scope, &e.ScopeID,
		&e.Summary, &affectedJSON, &previousValue, &newValue,
	)
	if err != nil {
		return nil, err
	}

	e.ActorType = ActorType(actorType)
	e.Action = Action(action)
	e.Scope = Scope(scope)
	e.Timestamp = db.ParseTime(ts)
	e.PreviousValue = previousValue.String
	e.NewValue = newValue.String

	if err := json.Unmarshal([]byte(affectedJSON), &e.AffectedUsers); err != nil {
		e.AffectedUsers = []string{}
	}

	return &e, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
