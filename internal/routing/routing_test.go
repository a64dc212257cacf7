package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/audit"
	"github.com/ziadkadry99/expertroute/internal/classifier"
	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/experts"
	"github.com/ziadkadry99/expertroute/internal/forwarding"
	"github.com/ziadkadry99/expertroute/internal/lifecycle"
	"github.com/ziadkadry99/expertroute/internal/llm"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/network"
	"github.com/ziadkadry99/expertroute/internal/notifications"
	"github.com/ziadkadry99/expertroute/internal/questions"
	"github.com/ziadkadry99/expertroute/internal/telemetry"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

const analysisJSON = `{"primaryTags":["fundraising"],"secondaryTags":["valuation"],
"expectedAnswerType":"strategic","urgencyLevel":"medium","summary":"Seed pricing","confidence":0.7}`

type fixture struct {
	svc       *Service
	questions *questions.Store
	experts   *experts.Store
	notes     *notifications.Store
	audit     *audit.Store
}

// newFixture builds this graph around asker a:
//
//	a - b - e
//	a - x1 - x2 - c
//	a - y1 - y2 - y3 - y4 - d
//
// b, c and d are fundraising experts.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	graph := network.NewStore(database, 6)
	for _, path := range [][]string{
		{"a", "b", "e"},
		{"a", "x1", "x2", "c"},
		{"a", "y1", "y2", "y3", "y4", "d"},
	} {
		for i := 0; i+1 < len(path); i++ {
			require.NoError(t, graph.Connect(ctx, path[i], path[i+1]))
		}
	}

	directory := experts.NewStore(database)
	for _, id := range []string{"b", "c", "d"} {
		require.NoError(t, directory.Upsert(ctx, &experts.Profile{
			UserID:              id,
			IsAvailable:         true,
			ResponseRate:        0.8,
			LastActiveAt:        time.Now().Add(-time.Hour),
			MaxQuestionsPerWeek: 5,
			ExpertiseTags:       map[string]float64{"fundraising": 0.9},
		}))
	}

	cfg := config.DefaultConfig()
	engine, err := matching.NewEngine(matching.OptionsFromConfig(cfg.Matching))
	require.NoError(t, err)

	qs := questions.NewStore(database)
	fwd := forwarding.NewStore(database)
	matches := matching.NewStore(database)
	notes := notifications.NewStore(database)
	auditStore := audit.NewStore(database)
	recorder := audit.NewRecorder(auditStore, nil)
	dispatcher := notifications.NewDispatcher(notes, nil)
	tel := telemetry.NewProvider()

	mgr := lifecycle.NewManager(lifecycle.Deps{
		DB:         database,
		Questions:  qs,
		Forwards:   fwd,
		Network:    graph,
		Matches:    matches,
		Experts:    directory,
		Classifier: classifier.New(llm.NewMockProviderWithContent(analysisJSON), "mock-model", time.Second),
		Dispatcher: dispatcher,
		Audit:      recorder,
		Telemetry:  tel,
	}, lifecycle.OptionsFromConfig(cfg.Lifecycle))

	svc := NewService(Deps{
		Lifecycle: mgr,
		Ledger:    forwarding.NewLedger(database, fwd, qs, graph),
		Engine:    engine,
		Questions: qs,
		Forwards:  fwd,
		Matches:   matches,
		Experts:   directory,
		Network:   graph,
		Notifier:  notifications.NewMatchNotifier(matches, directory, dispatcher, cfg.Matching.NotifyTopN, nil),
		Audit:     recorder,
		Telemetry: tel,
	})

	return &fixture{svc: svc, questions: qs, experts: directory, notes: notes, audit: auditStore}
}

func (f *fixture) submit(t *testing.T, level visibility.Level) *Submission {
	t.Helper()
	sub, err := f.svc.Submit(context.Background(), questions.NewQuestion{
		AskerID:         "a",
		Title:           "How should we price our seed round?",
		Body:            "Two term sheets, very different valuations. What matters most?",
		VisibilityLevel: level,
	})
	require.NoError(t, err)
	return sub
}

func matchFor(ms []matching.QuestionMatch, expertID string) (matching.QuestionMatch, bool) {
	for _, m := range ms {
		if m.ExpertID == expertID {
			return m, true
		}
	}
	return matching.QuestionMatch{}, false
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sub := f.submit(t, visibility.FirstDegree)
	q := sub.Question
	assert.Equal(t, []string{"fundraising"}, q.PrimaryTags)

	// b at degree 1 matches, c at degree 3 and d at degree 5 are excluded.
	require.Len(t, sub.Matches, 1)
	mb := sub.Matches[0]
	assert.Equal(t, "b", mb.ExpertID)
	assert.Greater(t, mb.MatchScore, 0.0)
	assert.Equal(t, visibility.Degree(1), mb.NetworkDegree)
	assert.True(t, mb.IsNotified, "submission reflects the notification just sent")

	sent, err := f.notes.List(ctx, notifications.ListFilter{QuestionID: q.ID, Type: notifications.TypeQuestionMatched})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "b", sent[0].RecipientID)
	pb, err := f.experts.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, pb.CurrentWeekCount)

	// d cannot see the question until b forwards it.
	_, err = f.svc.Lifecycle.View(ctx, q.ID, "d")
	require.ErrorIs(t, err, apperr.ErrNotAuthorized)
	_, err = f.svc.Forward(ctx, q.ID, "c", "d", "")
	require.ErrorIs(t, err, apperr.ErrNotAuthorized)

	rec, err := f.svc.Forward(ctx, q.ID, "b", "d", "led three seed rounds")
	require.NoError(t, err)
	assert.Equal(t, visibility.Degree(5), rec.NetworkDegreeAtForward)

	all, err := f.svc.ListMatches(ctx, q.ID, "a")
	require.NoError(t, err)
	md, ok := matchFor(all, "d")
	require.True(t, ok, "forward recipient is matched")
	assert.InDelta(t, 0.1, md.Components.NetworkDistance, 1e-9)
	assert.True(t, md.IsNotified)
	assert.Less(t, md.MatchScore, mb.MatchScore)
	_, ok = matchFor(all, "c")
	assert.False(t, ok)

	fwdNotes, err := f.notes.List(ctx, notifications.ListFilter{RecipientID: "d", Type: notifications.TypeQuestionForwarded})
	require.NoError(t, err)
	require.Len(t, fwdNotes, 1)
	assert.Equal(t, "b forwarded you a question: led three seed rounds", fwdNotes[0].Message)

	seen, err := f.svc.Lifecycle.View(ctx, q.ID, "d")
	require.NoError(t, err)
	assert.Equal(t, questions.DisplayForwarded, seen.DisplayStatus())

	feed, err := f.svc.Feed(ctx, "d", 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	feed, err = f.svc.Feed(ctx, "c", 0)
	require.NoError(t, err)
	assert.Empty(t, feed)

	_, err = f.svc.Lifecycle.Respond(ctx, lifecycle.RespondInput{
		QuestionID: q.ID, ResponderID: "d", Content: "Optimize for the lead, not the headline number.",
	})
	require.NoError(t, err)

	stored, err := f.questions.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ResponseCount)
	assert.Equal(t, questions.StatusAnswered, stored.Status)
	assert.Equal(t, 1, stored.ForwardCount)

	_, err = f.svc.Lifecycle.Respond(ctx, lifecycle.RespondInput{
		QuestionID: q.ID, ResponderID: "e", Content: "Me too.",
	})
	assert.ErrorIs(t, err, apperr.ErrQuestionClosed)

	_, err = f.svc.MatchQuestion(ctx, q.ID)
	assert.ErrorIs(t, err, apperr.ErrQuestionClosed)

	all, err = f.svc.ListMatches(ctx, q.ID, "a")
	require.NoError(t, err)
	md, _ = matchFor(all, "d")
	assert.NotNil(t, md.RespondedAt)
	assert.NotNil(t, md.ViewedAt)
}

func TestRematchIsStable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.submit(t, visibility.ThirdDegree)
	require.Len(t, sub.Matches, 2)
	assert.Equal(t, "b", sub.Matches[0].ExpertID, "closer expert ranks first")
	assert.Equal(t, "c", sub.Matches[1].ExpertID)

	again, err := f.svc.MatchQuestion(ctx, sub.Question.ID)
	require.NoError(t, err)
	require.Len(t, again, 2)
	for i := range again {
		assert.Equal(t, sub.Matches[i].ExpertID, again[i].ExpertID)
		assert.InDelta(t, sub.Matches[i].MatchScore, again[i].MatchScore, 1e-6)
	}

	sent, err := f.notes.List(ctx, notifications.ListFilter{QuestionID: sub.Question.ID, Type: notifications.TypeQuestionMatched})
	require.NoError(t, err)
	assert.Len(t, sent, 2, "re-matching does not re-notify")
}

func TestRematchPrunesIneligible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.Notifier = nil

	sub := f.submit(t, visibility.ThirdDegree)
	require.Len(t, sub.Matches, 2)

	p, err := f.experts.Get(ctx, "c")
	require.NoError(t, err)
	p.IsAvailable = false
	require.NoError(t, f.experts.Upsert(ctx, p))

	ms, err := f.svc.MatchQuestion(ctx, sub.Question.ID)
	require.NoError(t, err)
	require.Len(t, ms, 1)

	stored, err := f.svc.ListMatches(ctx, sub.Question.ID, "a")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "b", stored[0].ExpertID)

	_, err = f.svc.ListMatches(ctx, sub.Question.ID, "b")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)
}

func TestForwardHistoryVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.submit(t, visibility.FirstDegree).Question

	_, err := f.svc.Forward(ctx, q.ID, "b", "e", "")
	require.NoError(t, err)

	hist, err := f.svc.ForwardHistory(ctx, q.ID, "e")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "b", hist[0].ForwardedBy)
	assert.Equal(t, visibility.Degree(2), hist[0].NetworkDegreeAtForward)

	_, err = f.svc.ForwardHistory(ctx, q.ID, "c")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)

	entries, err := f.audit.Query(ctx, audit.QueryFilter{Action: audit.ActionQuestionForwarded})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ActorID)
}

func newRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, f.svc)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHTTPFlow(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	w := do(t, h, http.MethodPost, "/api/questions", "", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodPost, "/api/questions", "a", map[string]any{
		"title":            "How should we price our seed round?",
		"body":             "Two term sheets, very different valuations.",
		"visibility_level": "firstDegree",
		"is_anonymous":     true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub struct {
		Question struct {
			ID            string `json:"id"`
			DisplayStatus string `json:"display_status"`
		} `json:"question"`
		Matches []matching.QuestionMatch `json:"matches"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sub))
	id := sub.Question.ID
	assert.Equal(t, "active", sub.Question.DisplayStatus)
	require.Len(t, sub.Matches, 1)

	w = do(t, h, http.MethodGet, "/api/questions/"+id, "b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var viewed map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&viewed))
	_, hasAsker := viewed["asker_id"]
	assert.False(t, hasAsker, "anonymous asker is hidden")

	w = do(t, h, http.MethodGet, "/api/questions/"+id, "c", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodPost, "/api/questions/"+id+"/forward", "b", map[string]string{"to": "c"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/questions/"+id+"/responses", "c", map[string]any{
		"content": "Pick the partner you trust.",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp questions.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.IsAccepted)

	w = do(t, h, http.MethodPost, "/api/responses/"+resp.ID+"/vote", "b", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, h, http.MethodPost, "/api/responses/"+resp.ID+"/vote", "b", map[string]any{"helpful": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/questions/"+id+"/responses", "b", map[string]any{
		"content": "Late answer.",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/api/questions/"+id+"/responses", "a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []questions.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].HelpfulVotes)

	w = do(t, h, http.MethodGet, "/api/matches/c", "b", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, h, http.MethodGet, "/api/matches/c", "c", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []matching.QuestionMatch
	require.NoError(t, json.NewDecoder(w.Body).Decode(&mine))
	require.Len(t, mine, 1)
	assert.Equal(t, id, mine[0].QuestionID)

	w = do(t, h, http.MethodDelete, "/api/responses/"+resp.ID, "c", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodPost, "/api/questions/"+id+"/close", "a", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
