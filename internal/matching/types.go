// Package matching scores candidate experts against a question and keeps
// the resulting matches.
package matching

import (
	"time"

	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

// Components are the per-factor scores behind a match, each in [0,1].
type Components struct {
	TagRelevance        float64 `json:"tag_relevance"`
	ExpertiseConfidence float64 `json:"expertise_confidence"`
	ResponseHistory     float64 `json:"response_history"`
	Activity            float64 `json:"activity"`
	NetworkDistance     float64 `json:"network_distance"`
}

// QuestionMatch is a scored pairing of a question and an expert.
type QuestionMatch struct {
	QuestionID    string            `json:"question_id"`
	ExpertID      string            `json:"expert_id"`
	MatchScore    float64           `json:"match_score"`
	Components    Components        `json:"component_scores"`
	NetworkDegree visibility.Degree `json:"network_degree"`
	IsNotified    bool              `json:"is_notified"`
	NotifiedAt    *time.Time        `json:"notified_at,omitempty"`
	ViewedAt      *time.Time        `json:"viewed_at,omitempty"`
	RespondedAt   *time.Time        `json:"responded_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	// responseRate is carried only for tie-breaking.
	responseRate float64
}

// Candidate is an expert profile together with its distance from the asker.
type Candidate struct {
	experts.Profile
	Degree visibility.Degree
}
