package matching

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

const (
	primaryTagWeight   = 2.0
	secondaryTagWeight = 1.0
	expertTagWeight    = 1.0
)

// Weights are the coefficients of each component in the match score.
type Weights struct {
	TagRelevance        float64
	ExpertiseConfidence float64
	ResponseHistory     float64
	Activity            float64
	NetworkDistance     float64
}

// Options configure an Engine.
type Options struct {
	Weights Weights
	// ActivityHalfLife is the idle time after which the activity score halves.
	ActivityHalfLife time.Duration
	// ForwardedDistanceScore is the distance score for degrees beyond three
	// or unreachable candidates. It must be below 1/3.
	ForwardedDistanceScore float64
	// MinScore drops matches scoring below it.
	MinScore float64
	// Workers bounds concurrent scoring. Zero or less scores serially.
	Workers int
}

// OptionsFromConfig converts the matching configuration section.
func OptionsFromConfig(c config.MatchingConfig) Options {
	return Options{
		Weights: Weights{
			TagRelevance:        c.Weights.TagRelevance,
			ExpertiseConfidence: c.Weights.ExpertiseConfidence,
			ResponseHistory:     c.Weights.ResponseHistory,
			Activity:            c.Weights.Activity,
			NetworkDistance:     c.Weights.NetworkDistance,
		},
		ActivityHalfLife:       time.Duration(c.ActivityHalfLifeHours * float64(time.Hour)),
		ForwardedDistanceScore: c.ForwardedDistanceScore,
		MinScore:               c.MinScore,
		Workers:                c.Workers,
	}
}

// Engine computes matches. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	opts Options
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	w := opts.Weights
	for _, v := range []float64{w.TagRelevance, w.ExpertiseConfidence, w.ResponseHistory, w.Activity, w.NetworkDistance} {
		if v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("match weights must be non-negative")
		}
	}
	if w.TagRelevance+w.ExpertiseConfidence+w.ResponseHistory+w.Activity+w.NetworkDistance <= 0 {
		return nil, fmt.Errorf("match weights must not all be zero")
	}
	if opts.ActivityHalfLife <= 0 {
		return nil, fmt.Errorf("activity half-life must be positive")
	}
	if opts.ForwardedDistanceScore <= 0 || opts.ForwardedDistanceScore >= 1.0/3.0 {
		return nil, fmt.Errorf("forwarded distance score %v must be in (0, 1/3)", opts.ForwardedDistanceScore)
	}
	return &Engine{opts: opts}, nil
}

// Match scores every eligible candidate and returns the matches ordered by
// score, then lower degree, then higher response rate, then expert id.
// The result depends only on the arguments.
func (e *Engine) Match(q *questions.Question, candidates []Candidate, grants visibility.Grants, asOf time.Time) []QuestionMatch {
	results := make([]*QuestionMatch, len(candidates))

	if e.opts.Workers <= 1 || len(candidates) < 2 {
		for i := range candidates {
			results[i] = e.score(q, &candidates[i], grants, asOf)
		}
	} else {
		sem := make(chan struct{}, e.opts.Workers)
		var wg sync.WaitGroup
		for i := range candidates {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = e.score(q, &candidates[i], grants, asOf)
			}(i)
		}
		wg.Wait()
	}

	matches := make([]QuestionMatch, 0, len(results))
	for _, m := range results {
		if m != nil {
			matches = append(matches, *m)
		}
	}
	Sort(matches)
	return matches
}

// Score scores a single candidate. ok is false when the candidate is not
// eligible.
func (e *Engine) Score(q *questions.Question, c Candidate, grants visibility.Grants, asOf time.Time) (QuestionMatch, bool) {
	m := e.score(q, &c, grants, asOf)
	if m == nil {
		return QuestionMatch{}, false
	}
	return *m, true
}

// Eligible reports whether c may be matched to q.
func Eligible(q *questions.Question, c *Candidate, grants visibility.Grants) bool {
	if c.UserID == q.AskerID {
		return false
	}
	if !c.IsAvailable || !c.HasCapacity() {
		return false
	}
	return visibility.CanView(q.Target(), c.UserID, c.Degree, grants)
}

func (e *Engine) score(q *questions.Question, c *Candidate, grants visibility.Grants, asOf time.Time) *QuestionMatch {
	if !Eligible(q, c, grants) {
		return nil
	}

	comp := Components{
		TagRelevance:        tagRelevance(q.PrimaryTags, q.SecondaryTags, c.ExpertiseTags),
		ExpertiseConfidence: expertiseConfidence(q.PrimaryTags, q.SecondaryTags, c.ExpertiseTags),
		ResponseHistory:     clamp01(c.ResponseRate),
		Activity:            activity(c.LastActiveAt, asOf, e.opts.ActivityHalfLife),
		NetworkDistance:     e.distance(c.Degree),
	}
	w := e.opts.Weights
	total := w.TagRelevance*comp.TagRelevance +
		w.ExpertiseConfidence*comp.ExpertiseConfidence +
		w.ResponseHistory*comp.ResponseHistory +
		w.Activity*comp.Activity +
		w.NetworkDistance*comp.NetworkDistance
	if total < e.opts.MinScore {
		return nil
	}

	return &QuestionMatch{
		QuestionID:    q.ID,
		ExpertID:      c.UserID,
		MatchScore:    total,
		Components:    comp,
		NetworkDegree: c.Degree,
		CreatedAt:     asOf,
		UpdatedAt:     asOf,
		responseRate:  c.ResponseRate,
	}
}

// tagRelevance is the weighted Jaccard similarity between the question's
// tags and the expert's tags.
func tagRelevance(primary, secondary []string, expertise map[string]float64) float64 {
	weights := questionTagWeights(primary, secondary)
	if len(weights) == 0 || len(expertise) == 0 {
		return 0
	}
	var inter, union float64
	for tag, w := range weights {
		union += w
		if _, ok := expertise[tag]; ok {
			inter += w
		}
	}
	for tag := range expertise {
		if _, ok := weights[tag]; !ok {
			union += expertTagWeight
		}
	}
	return inter / union
}

// expertiseConfidence is the expert's highest confidence among the tags
// the question carries.
func expertiseConfidence(primary, secondary []string, expertise map[string]float64) float64 {
	best := 0.0
	for tag := range questionTagWeights(primary, secondary) {
		if c, ok := expertise[tag]; ok && c > best {
			best = c
		}
	}
	return clamp01(best)
}

func questionTagWeights(primary, secondary []string) map[string]float64 {
	weights := make(map[string]float64, len(primary)+len(secondary))
	for _, t := range secondary {
		weights[t] = secondaryTagWeight
	}
	for _, t := range primary {
		weights[t] = primaryTagWeight
	}
	return weights
}

// activity decays from 1 at asOf with the given half-life. A candidate never
// seen active scores 0.
func activity(lastActive, asOf time.Time, halfLife time.Duration) float64 {
	if lastActive.IsZero() {
		return 0
	}
	idle := asOf.Sub(lastActive)
	if idle <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * idle.Hours() / halfLife.Hours())
}

func (e *Engine) distance(d visibility.Degree) float64 {
	if d >= 1 && d <= 3 {
		return 1 / float64(d)
	}
	return e.opts.ForwardedDistanceScore
}

// Sort orders matches best first with deterministic tie-breaking.
func Sort(ms []QuestionMatch) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.NetworkDegree != b.NetworkDegree {
			return a.NetworkDegree.Less(b.NetworkDegree)
		}
		if a.responseRate != b.responseRate {
			return a.responseRate > b.responseRate
		}
		return a.ExpertID < b.ExpertID
	})
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}
