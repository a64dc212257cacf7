package notifications

import (
	"net/url"
	"time"

	"github.com/ziadkadry99/expertroute/internal/apperr"
)

// NotificationType categorises the event that triggered the notification.
type NotificationType string

const (
	TypeQuestionMatched   NotificationType = "question_matched"
	TypeQuestionForwarded NotificationType = "question_forwarded"
	TypeResponseReceived  NotificationType = "response_received"
)

// Notification is a message addressed to one user.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id"`
	QuestionID  string           `json:"question_id,omitempty"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	// Score is the match score for question_matched, 1 otherwise.
	Score     float64   `json:"score"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

// Preference stores a user's delivery settings for one channel.
type Preference struct {
	UserID     string `json:"user_id"`
	Channel    string `json:"channel"`
	WebhookURL string `json:"webhook_url,omitempty"`
	// MinScore suppresses webhook delivery of weaker notifications.
	MinScore float64 `json:"min_score"`
}

// Validate checks a preference before it is stored.
func (p Preference) Validate() error {
	const op = "notifications.Preference"
	if p.UserID == "" || p.Channel == "" {
		return apperr.Validation(op, "user_id and channel are required")
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return apperr.Validation(op, "min_score must be between 0 and 1")
	}
	if p.WebhookURL != "" {
		u, err := url.ParseRequestURI(p.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperr.Validation(op, "webhook_url must be an absolute http(s) URL")
		}
	}
	return nil
}
