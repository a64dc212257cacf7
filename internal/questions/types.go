package questions

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// AnswerType is the kind of answer a question expects. Responses use the
// same enum.
type AnswerType string

const (
	AnswerTactical      AnswerType = "tactical"
	AnswerStrategic     AnswerType = "strategic"
	AnswerResource      AnswerType = "resource"
	AnswerIntroduction  AnswerType = "introduction"
	AnswerBrainstorming AnswerType = "brainstorming"
)

func (a AnswerType) Valid() bool {
	switch a {
	case AnswerTactical, AnswerStrategic, AnswerResource, AnswerIntroduction, AnswerBrainstorming:
		return true
	}
	return false
}

// Urgency is how soon the asker needs an answer.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}

// Status is the stored lifecycle state of a question.
type Status string

const (
	StatusActive   Status = "active"
	StatusAnswered Status = "answered"
	StatusClosed   Status = "closed"
)

// DisplayForwarded is reported by DisplayStatus for an active question that
// has been forwarded at least once. It is never stored.
const DisplayForwarded = "forwarded"

// Question is a request for help posted by an asker.
type Question struct {
	ID                       string           `json:"id"`
	AskerID                  string           `json:"asker_id,omitempty"`
	Title                    string           `json:"title"`
	Body                     string           `json:"body"`
	PrimaryTags              []string         `json:"primary_tags"`
	SecondaryTags            []string         `json:"secondary_tags"`
	ExpectedAnswerType       AnswerType       `json:"expected_answer_type"`
	Urgency                  Urgency          `json:"urgency"`
	AISummary                string           `json:"ai_summary"`
	ClassificationConfidence float64          `json:"classification_confidence"`
	ClassifiedAt             *time.Time       `json:"classified_at,omitempty"`
	VisibilityLevel          visibility.Level `json:"visibility_level"`
	IsAnonymous              bool             `json:"is_anonymous"`
	IsSensitive              bool             `json:"is_sensitive"`
	Status                   Status           `json:"status"`
	ForwardCount             int              `json:"forward_count"`
	ViewCount                int              `json:"view_count"`
	ResponseCount            int              `json:"response_count"`
	HelpfulVotes             int              `json:"helpful_votes"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`
	ExpiresAt                time.Time        `json:"expires_at"`
}

// Target returns the visibility inputs of the question.
func (q *Question) Target() visibility.Target {
	return visibility.Target{AskerID: q.AskerID, Level: q.VisibilityLevel}
}

// DisplayStatus reports the stored status, except that an active question
// with forwards shows as forwarded.
func (q *Question) DisplayStatus() string {
	if q.Status == StatusActive && q.ForwardCount > 0 {
		return DisplayForwarded
	}
	return string(q.Status)
}

// IsExpired reports whether the question is past its expiry at now.
func (q *Question) IsExpired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt)
}

// AcceptsWrites reports whether responses and forwards are still allowed.
func (q *Question) AcceptsWrites(now time.Time) bool {
	return q.Status == StatusActive && !q.IsExpired(now)
}

// Tags returns primary then secondary tags.
func (q *Question) Tags() []string {
	out := make([]string, 0, len(q.PrimaryTags)+len(q.SecondaryTags))
	out = append(out, q.PrimaryTags...)
	return append(out, q.SecondaryTags...)
}

// Redacted returns a copy safe to show viewerID: anonymous questions hide
// the asker from everyone but the asker.
func (q *Question) Redacted(viewerID string) *Question {
	c := *q
	if q.IsAnonymous && viewerID != q.AskerID {
		c.AskerID = ""
	}
	return &c
}

// MarshalJSON adds the derived display status to the wire form.
func (q Question) MarshalJSON() ([]byte, error) {
	type alias Question
	return json.Marshal(struct {
		alias
		DisplayStatus string `json:"display_status"`
	}{alias(q), q.DisplayStatus()})
}

// Limits bounds title and body lengths, counted in runes.
type Limits struct {
	TitleMin, TitleMax int
	BodyMin, BodyMax   int
}

// NewQuestion is the asker-supplied part of a question.
type NewQuestion struct {
	AskerID         string           `json:"asker_id"`
	Title           string           `json:"title"`
	Body            string           `json:"body"`
	VisibilityLevel visibility.Level `json:"visibility_level"`
	IsAnonymous     bool             `json:"is_anonymous"`
	IsSensitive     bool             `json:"is_sensitive"`
}

// Validate trims the input in place and checks it against limits.
func (n *NewQuestion) Validate(l Limits) error {
	const op = "questions.Validate"
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)

	if n.AskerID == "" {
		return apperr.Validation(op, "asker id is required")
	}
	if err := checkLen("title", n.Title, l.TitleMin, l.TitleMax); err != nil {
		return apperr.Validation(op, "%v", err)
	}
	if err := checkLen("body", n.Body, l.BodyMin, l.BodyMax); err != nil {
		return apperr.Validation(op, "%v", err)
	}
	if n.VisibilityLevel == "" {
		n.VisibilityLevel = visibility.SecondDegree
	}
	if !n.VisibilityLevel.Valid() {
		return apperr.Validation(op, "invalid visibility level %q", n.VisibilityLevel)
	}
	return nil
}

func checkLen(field, s string, min, max int) error {
	n := utf8.RuneCountInString(s)
	if n < min {
		return fmt.Errorf("%s must be at least %d characters", field, min)
	}
	if max > 0 && n > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}

// SourceType tells human responses apart from generated demonstration ones.
type SourceType string

const (
	SourceHuman             SourceType = "human"
	SourceSyntheticAssisted SourceType = "syntheticAssisted"
)

func (s SourceType) Valid() bool {
	return s == SourceHuman || s == SourceSyntheticAssisted
}

// QualityLevel is the tier a synthetic response was generated at.
type QualityLevel string

const (
	QualityLow    QualityLevel = "low"
	QualityMedium QualityLevel = "medium"
	QualityHigh   QualityLevel = "high"
)

func (l QualityLevel) Valid() bool {
	switch l {
	case QualityLow, QualityMedium, QualityHigh:
		return true
	}
	return false
}

// Score is the fixed quality score assigned to a synthetic response.
func (l QualityLevel) Score() float64 {
	switch l {
	case QualityLow:
		return 0.3
	case QualityMedium:
		return 0.6
	case QualityHigh:
		return 0.9
	}
	return 0
}

// HumanQualityScore is the smoothed helpful ratio used for human responses.
func HumanQualityScore(helpful, unhelpful int) float64 {
	return float64(helpful+1) / float64(helpful+unhelpful+2)
}

// Response is an answer to a question.
type Response struct {
	ID              string       `json:"id"`
	QuestionID      string       `json:"question_id"`
	ResponderID     string       `json:"responder_id"`
	Content         string       `json:"content"`
	ResponseType    AnswerType   `json:"response_type"`
	HelpfulVotes    int          `json:"helpful_votes"`
	UnhelpfulVotes  int          `json:"unhelpful_votes"`
	IsMarkedHelpful bool         `json:"is_marked_helpful"`
	IsAccepted      bool         `json:"is_accepted"`
	QualityScore    *float64     `json:"quality_score,omitempty"`
	SourceType      SourceType   `json:"source_type"`
	QualityLevel    QualityLevel `json:"quality_level,omitempty"`
	VisibleTo       []string     `json:"visible_to"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	DeletedAt       *time.Time   `json:"deleted_at,omitempty"`
}

// VisibleToUser reports whether viewerID may read the response. An empty
// VisibleTo means everyone who can see the question. The responder and the
// asker always can.
func (r *Response) VisibleToUser(viewerID, askerID string) bool {
	if len(r.VisibleTo) == 0 || viewerID == r.ResponderID || viewerID == askerID {
		return true
	}
	for _, id := range r.VisibleTo {
		if id == viewerID {
			return true
		}
	}
	return false
}
