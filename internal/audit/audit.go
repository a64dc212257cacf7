// Package audit keeps the activity trail of questions: who submitted,
// forwarded, answered, voted on and closed what.
package audit

import "time"

// ActorType identifies who performed an action.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// Action describes what was done.
type Action string

const (
	ActionQuestionSubmitted  Action = "question_submitted"
	ActionQuestionClassified Action = "question_classified"
	ActionQuestionForwarded  Action = "question_forwarded"
	ActionQuestionClosed     Action = "question_closed"
	ActionResponseCreated    Action = "response_created"
	ActionResponseDeleted    Action = "response_deleted"
	ActionResponseVoted      Action = "response_voted"
	ActionResponseAccepted   Action = "response_accepted"
	ActionMatchNotified      Action = "match_notified"
)

// Scope is the kind of object an action applies to.
type Scope string

const (
	ScopeQuestion Scope = "question"
	ScopeResponse Scope = "response"
	ScopeExpert   Scope = "expert"
)

// Entry is a single audit trail record.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	ActorType     ActorType `json:"actor_type"`
	ActorID       string    `json:"actor_id"`
	Action        Action    `json:"action"`
	Scope         Scope     `json:"scope"`
	ScopeID       string    `json:"scope_id"`
	Summary       string    `json:"summary"`
	AffectedUsers []string  `json:"affected_users"`
	PreviousValue string    `json:"previous_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
}
