// Package notifications records messages for users and pushes them to
// webhook subscribers.
package notifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
)

// ListFilter controls which notifications are returned by List.
type ListFilter struct {
	RecipientID string
	QuestionID  string
	Type        NotificationType
	Delivered   *bool
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// Store provides CRUD operations for notifications and preferences.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const notificationColumns = "id, type, recipient_id, question_id, title, message, score, delivered, created_at"

// Create inserts a new notification, filling in ID and CreatedAt when
// they are empty.
func (s *Store) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), n.RecipientID, n.QuestionID, n.Title, n.Message,
		n.Score, db.BoolInt(n.Delivered), db.FormatTime(n.CreatedAt),
	)
	if err != nil {
		return apperr.StoreUnavailable("notifications.Create", fmt.Errorf("inserting notification: %w", err))
	}
	return nil
}

// GetByID retrieves a single notification.
func (s *Store) GetByID(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("notifications.GetByID", "notification", id)
	}
	if err != nil {
		return nil, apperr.StoreUnavailable("notifications.GetByID", fmt.Errorf("reading notification: %w", err))
	}
	return n, nil
}

// List returns notifications matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.RecipientID != "" {
		clauses = append(clauses, "recipient_id = ?")
		args = append(args, filter.RecipientID)
	}
	if filter.QuestionID != "" {
		clauses = append(clauses, "question_id = ?")
		args = append(args, filter.QuestionID)
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Delivered != nil {
		clauses = append(clauses, "delivered = ?")
		args = append(args, db.BoolInt(*filter.Delivered))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, db.FormatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, db.FormatTime(filter.Until))
	}

	query := "SELECT " + notificationColumns + " FROM notifications"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	query += db.Page(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.StoreUnavailable("notifications.List", fmt.Errorf("querying notifications: %w", err))
	}
	defer rows.Close()

	result := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, apperr.StoreUnavailable("notifications.List", fmt.Errorf("scanning notification: %w", err))
		}
		result = append(result, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("notifications.List", err)
	}
	return result, nil
}

// MarkDelivered sets delivered=1 for the given notification.
func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET delivered = 1 WHERE id = ?", id)
	if err != nil {
		return apperr.StoreUnavailable("notifications.MarkDelivered", fmt.Errorf("marking notification delivered: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.StoreUnavailable("notifications.MarkDelivered", err)
	}
	if n == 0 {
		return apperr.NotFound("notifications.MarkDelivered", "notification", id)
	}
	return nil
}

// AcknowledgeAll marks every pending notification of a recipient delivered
// and returns how many changed.
func (s *Store) AcknowledgeAll(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET delivered = 1 WHERE recipient_id = ? AND delivered = 0", recipientID)
	if err != nil {
		return 0, apperr.StoreUnavailable("notifications.AcknowledgeAll", fmt.Errorf("acknowledging notifications: %w", err))
	}
	return res.RowsAffected()
}

// GetPending returns a user's undelivered notifications.
func (s *Store) GetPending(ctx context.Context, recipientID string) ([]Notification, error) {
	delivered := false
	return s.List(ctx, ListFilter{RecipientID: recipientID, Delivered: &delivered})
}

// SetPreference upserts a notification preference.
func (s *Store) SetPreference(ctx context.Context, pref Preference) error {
	var webhookURL sql.NullString
	if pref.WebhookURL != "" {
		webhookURL = sql.NullString{String: pref.WebhookURL, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, channel, webhook_url, min_score)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, channel) DO UPDATE SET
			webhook_url = excluded.webhook_url,
			min_score = excluded.min_score`,
		pref.UserID, pref.Channel, webhookURL, pref.MinScore,
	)
	if err != nil {
		return apperr.StoreUnavailable("notifications.SetPreference", fmt.Errorf("upserting preference: %w", err))
	}
	return nil
}

// GetPreferences returns all notification preferences for a user.
func (s *Store) GetPreferences(ctx context.Context, userID string) ([]Preference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, channel, webhook_url, min_score
		FROM notification_preferences WHERE user_id = ? ORDER BY channel`, userID)
	if err != nil {
		return nil, apperr.StoreUnavailable("notifications.GetPreferences", fmt.Errorf("querying preferences: %w", err))
	}
	defer rows.Close()

	prefs := []Preference{}
	for rows.Next() {
		var (
			p          Preference
			webhookURL sql.NullString
		)
		if err := rows.Scan(&p.UserID, &p.Channel, &webhookURL, &p.MinScore); err != nil {
			return nil, apperr.StoreUnavailable("notifications.GetPreferences", fmt.Errorf("scanning preference: %w", err))
		}
		p.WebhookURL = webhookURL.String
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreUnavailable("notifications.GetPreferences", err)
	}
	return prefs, nil
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(sc scanner) (*Notification, error) {
	var (
		n         Notification
		ntype     string
		delivered int
		ts        string
	)

	err := sc.Scan(&n.ID, &ntype, &n.RecipientID, &n.QuestionID, &n.Title, &n.Message,
		&n.Score, &delivered, &ts)
	if err != nil {
		return nil, err
	}

	n.Type = NotificationType(ntype)
	n.Delivered = delivered != 0
	n.CreatedAt = db.ParseTime(ts)
	return &n, nil
}
