package experts

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profile is an expert's routing record: availability, quota, activity
// statistics and expertise tags with their confidence.
type Profile struct {
	UserID              string             `json:"user_id"`
	IsAvailable         bool               `json:"is_available"`
	ResponseRate        float64            `json:"response_rate"`
	AvgResponseLatency  time.Duration      `json:"avg_response_latency"`
	LastActiveAt        time.Time          `json:"last_active_at"`
	MaxQuestionsPerWeek int                `json:"max_questions_per_week"`
	CurrentWeekCount    int                `json:"current_week_count"`
	WeekStartedAt       time.Time          `json:"week_started_at"`
	ExpertiseTags       map[string]float64 `json:"expertise_tags"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// HasCapacity reports whether the expert can take another question this week.
func (p *Profile) HasCapacity() bool {
	return p.CurrentWeekCount < p.MaxQuestionsPerWeek
}

// Validate checks ranges and normalizes tag keys in place.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if p.ResponseRate < 0 || p.ResponseRate > 1 {
		return fmt.Errorf("response rate %v outside [0,1]", p.ResponseRate)
	}
	if p.MaxQuestionsPerWeek < 0 {
		return fmt.Errorf("max questions per week must be non-negative")
	}
	if p.AvgResponseLatency < 0 {
		return fmt.Errorf("average response latency must be non-negative")
	}
	norm := make(map[string]float64, len(p.ExpertiseTags))
	for tag, c := range p.ExpertiseTags {
		if c < 0 || c > 1 {
			return fmt.Errorf("confidence %v for tag %q outside [0,1]", c, tag)
		}
		t := NormalizeTag(tag)
		if t == "" {
			return fmt.Errorf("empty expertise tag")
		}
		if prev, ok := norm[t]; !ok || c > prev {
			norm[t] = c
		}
	}
	p.ExpertiseTags = norm
	return nil
}

// NormalizeTag lower-cases and trims a tag.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// normalizeTags returns the sorted, deduplicated, normalized form of tags.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
