// Package classifier turns question text into routing metadata using an
// LLM provider in JSON mode.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/llm"
	"github.com/ziadkadry99/expertroute/internal/questions"
)

const (
	maxPrimaryTags   = 3
	maxSecondaryTags = 5
)

// Analysis is the structured classification of a question.
type Analysis struct {
	PrimaryTags        []string             `json:"primary_tags"`
	SecondaryTags      []string             `json:"secondary_tags"`
	ExpectedAnswerType questions.AnswerType `json:"expected_answer_type"`
	Urgency            questions.Urgency    `json:"urgency"`
	Summary            string               `json:"summary"`
	Confidence         float64              `json:"confidence"`
}

// DefaultAnalysis is used when classification fails: no tags, medium
// urgency, tactical answer type, zero confidence.
func DefaultAnalysis() *Analysis {
	return &Analysis{
		PrimaryTags:        []string{},
		SecondaryTags:      []string{},
		ExpectedAnswerType: questions.AnswerTactical,
		Urgency:            questions.UrgencyMedium,
		Confidence:         0,
	}
}

// Classification converts the analysis to the form patched onto a question.
func (a *Analysis) Classification() questions.Classification {
	return questions.Classification{
		PrimaryTags:        a.PrimaryTags,
		SecondaryTags:      a.SecondaryTags,
		ExpectedAnswerType: a.ExpectedAnswerType,
		Urgency:            a.Urgency,
		Summary:            a.Summary,
		Confidence:         a.Confidence,
	}
}

// Classifier calls the classification service once per question.
type Classifier struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
}

// New creates a Classifier. A non-positive timeout leaves the caller's
// deadline as the only bound.
func New(provider llm.Provider, model string, timeout time.Duration) *Classifier {
	return &Classifier{provider: provider, model: model, timeout: timeout}
}

// Classify analyses a question. Any service failure, including timeouts and
// malformed output, is returned as a ClassificationDegraded error; callers
// continue with DefaultAnalysis.
func (c *Classifier) Classify(ctx context.Context, title, body string) (*Analysis, error) {
	const op = "classifier.Classify"
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if title == "" || body == "" {
		return nil, apperr.Validation(op, "title and body are required")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(title, body),
		MaxTokens:   512,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return nil, apperr.ClassificationDegraded(op, fmt.Errorf("llm completion: %w", err))
	}
	if resp.Truncated() {
		return nil, apperr.ClassificationDegraded(op, fmt.Errorf("analysis cut off after %d tokens", resp.OutputTokens))
	}

	a, err := parseAnalysis(resp.Content)
	if err != nil {
		return nil, apperr.ClassificationDegraded(op, err)
	}
	return a, nil
}

// rawAnalysis mirrors the service's response shape.
type rawAnalysis struct {
	PrimaryTags        []string `json:"primaryTags"`
	SecondaryTags      []string `json:"secondaryTags"`
	ExpectedAnswerType string   `json:"expectedAnswerType"`
	UrgencyLevel       string   `json:"urgencyLevel"`
	Summary            string   `json:"summary"`
	Confidence         float64  `json:"confidence"`
}

// parseAnalysis parses and normalizes an LLM JSON response.
func parseAnalysis(raw string) (*Analysis, error) {
	raw = strings.TrimSpace(raw)

	// Strip markdown code fences if present.
	if strings.HasPrefix(raw, "```") {
		lines := strings.Split(raw, "\n")
		if len(lines) >= 2 {
			end := len(lines)
			if strings.TrimSpace(lines[end-1]) == "```" {
				end--
			}
			raw = strings.Join(lines[1:end], "\n")
		}
	}

	var r rawAnalysis
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("json parse: %w", err)
	}

	a := DefaultAnalysis()
	a.PrimaryTags = NormalizeTags(r.PrimaryTags, nil, maxPrimaryTags)
	a.SecondaryTags = NormalizeTags(r.SecondaryTags, a.PrimaryTags, maxSecondaryTags)
	if t := questions.AnswerType(strings.ToLower(strings.TrimSpace(r.ExpectedAnswerType))); t.Valid() {
		a.ExpectedAnswerType = t
	}
	if u := questions.Urgency(strings.ToLower(strings.TrimSpace(r.UrgencyLevel))); u.Valid() {
		a.Urgency = u
	}
	a.Summary = strings.TrimSpace(r.Summary)
	a.Confidence = clamp01(r.Confidence)
	return a, nil
}

// NormalizeTags lower-cases, trims and deduplicates tags, drops any found
// in exclude, and keeps at most limit of them in their original order.
func NormalizeTags(tags, exclude []string, limit int) []string {
	skip := make(map[string]bool, len(exclude)+len(tags))
	for _, t := range exclude {
		skip[t] = true
	}
	out := []string{}
	for _, t := range tags {
		n := strings.ToLower(strings.TrimSpace(t))
		if n == "" || skip[n] {
			continue
		}
		skip[n] = true
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
