package app

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/llm"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/routing"
)

const analysisJSON = `{"primaryTags":["hiring"],"secondaryTags":["engineering"],
"expectedAnswerType":"tactical","urgencyLevel":"low","summary":"First engineering hire","confidence":0.9}`

func newApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	return newAppWith(t, mutate, Options{})
}

func newAppWith(t *testing.T, mutate func(*config.Config), opts Options) *App {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	opts.DB = database
	opts.Classifier = llm.NewMockProviderWithContent(analysisJSON)
	opts.Synthesizer = llm.NewMockProviderWithContent("Hire for ownership first.")
	a, err := New(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Lifecycle.AnswerPolicy = "whenever"
	_, err := New(cfg, Options{})
	require.Error(t, err)
}

func TestWiredHTTPFlow(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, nil)

	require.NoError(t, a.Network.Connect(ctx, "founder", "cto"))
	require.NoError(t, a.Experts.Upsert(ctx, &experts.Profile{
		UserID:              "cto",
		IsAvailable:         true,
		ResponseRate:        0.9,
		LastActiveAt:        time.Now(),
		MaxQuestionsPerWeek: 4,
		ExpertiseTags:       map[string]float64{"hiring": 0.8},
	}))

	h := a.HTTPServer().Router()
	body, _ := json.Marshal(map[string]any{
		"title": "Who should our first engineer be?",
		"body":  "We are two founders and need to make the first technical hire.",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/questions", bytes.NewReader(body))
	req.Header.Set(routing.UserHeader, "founder")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var sub routing.Submission
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sub))
	require.Len(t, sub.Matches, 1)
	assert.Equal(t, "cto", sub.Matches[0].ExpertID)
	assert.Equal(t, []string{"hiring"}, sub.Question.PrimaryTags)

	req = httptest.NewRequest(http.MethodGet, "/api/notifications/pending/cto", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), sub.Question.ID)

	req = httptest.NewRequest(http.MethodPost, "/api/questions/"+sub.Question.ID+"/responses/synthetic",
		bytes.NewReader([]byte(`{"quality_level":"high"}`)))
	req.Header.Set(routing.UserHeader, "founder")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "expertroute_questions_submitted_total 1")

	res, err := a.Sweeper.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Questions)
	assert.Equal(t, 1, res.Matched)
}

func TestRedisCacheWiring(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newApp(t, func(c *config.Config) {
		c.Cache.Enabled = true
		c.Cache.RedisAddress = mr.Addr()
	})
	ctx := context.Background()

	require.NoError(t, a.Experts.Upsert(ctx, &experts.Profile{
		UserID:              "ops",
		IsAvailable:         true,
		MaxQuestionsPerWeek: 2,
		ExpertiseTags:       map[string]float64{"hiring": 0.5},
	}))
	ps, err := a.Experts.ListCandidates(ctx, []string{"hiring"}, 0)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.NotEmpty(t, mr.Keys(), "candidate pool is cached in redis")
}

func TestBotWebhooksMountedWhenEnabled(t *testing.T) {
	payload := `{"type":"event_callback","event":{"type":"message","user":"founder","text":"feed","channel":"C1","ts":"1.1"}}`

	a := newApp(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", bytes.NewReader([]byte(payload)))
	w := httptest.NewRecorder()
	a.HTTPServer().Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "bots are off by default")

	a = newApp(t, func(c *config.Config) { c.Bots.Enabled = true })
	req = httptest.NewRequest(http.MethodPost, "/api/bots/slack/events", bytes.NewReader([]byte(payload)))
	w = httptest.NewRecorder()
	a.HTTPServer().Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "No open questions are visible to you right now.")
}

// wordEmbedder hashes lower-cased words into a fixed number of buckets, so
// texts sharing words point the same way.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 32)
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := 0
			for _, c := range w {
				h = (h*31 + int(c)) % 32
			}
			vec[h]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		for j := range vec {
			vec[j] = float32(float64(vec[j]) / math.Sqrt(norm))
		}
		out[i] = vec
	}
	return out, nil
}

func (wordEmbedder) Dimensions() int { return 32 }
func (wordEmbedder) Name() string    { return "words" }

func TestSimilarQuestionsPersistAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	indexPath := filepath.Join(t.TempDir(), "index", "similar.gob.gz")
	configure := func(c *config.Config) {
		c.Similar.IndexPath = indexPath
		c.Similar.MinSimilarity = 0.1
	}

	a := newAppWith(t, configure, Options{Embedder: wordEmbedder{}})
	require.NotNil(t, a.Index)
	require.NoError(t, a.Network.Connect(ctx, "founder", "cto"))

	ask := func(title, body string) string {
		sub, err := a.Routing.Submit(ctx, questions.NewQuestion{AskerID: "founder", Title: title, Body: body})
		require.NoError(t, err)
		return sub.Question.ID
	}
	first := ask("Who should our first engineer be?", "We need to make the first engineering hire soon.")
	second := ask("Should our first engineer be senior?", "Senior or junior for the first engineering hire?")
	assert.Equal(t, 2, a.Index.Count())

	req := httptest.NewRequest(http.MethodGet, "/api/questions/"+second+"/similar", nil)
	req.Header.Set(routing.UserHeader, "cto")
	w := httptest.NewRecorder()
	a.HTTPServer().Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var similar []routing.SimilarQuestion
	require.NoError(t, json.NewDecoder(w.Body).Decode(&similar))
	require.Len(t, similar, 1)
	assert.Equal(t, first, similar[0].Question.ID)

	require.NoError(t, a.Close())

	restarted := newAppWith(t, configure, Options{Embedder: wordEmbedder{}})
	assert.Equal(t, 2, restarted.Index.Count(), "index reloaded from disk")
}

func TestSimilarDisabledByDefault(t *testing.T) {
	a := newApp(t, nil)
	assert.Nil(t, a.Index)
	assert.Nil(t, a.Routing.Index, "no typed nil behind the interface")
}

func TestCandidateLimitWired(t *testing.T) {
	a := newApp(t, func(c *config.Config) { c.Matching.CandidateLimit = 25 })
	assert.Equal(t, 25, a.Routing.CandidateLimit)
}
