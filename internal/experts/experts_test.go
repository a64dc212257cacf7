package experts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/config"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/logger"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func profile(id string, tags map[string]float64) *Profile {
	return &Profile{
		UserID:              id,
		IsAvailable:         true,
		ResponseRate:        0.5,
		AvgResponseLatency:  90 * time.Minute,
		LastActiveAt:        time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		MaxQuestionsPerWeek: 2,
		ExpertiseTags:       tags,
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, profile("bob", map[string]float64{" Go ": 0.9, "sql": 0.4})))

	got, err := s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
	assert.Equal(t, 90*time.Minute, got.AvgResponseLatency)
	assert.Equal(t, map[string]float64{"go": 0.9, "sql": 0.4}, got.ExpertiseTags)
	assert.True(t, got.LastActiveAt.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))

	// Update replaces tags but keeps the weekly counter.
	ok, err := s.IncrementWeekCount(ctx, "bob")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Upsert(ctx, profile("bob", map[string]float64{"rust": 0.7})))

	got, err = s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"rust": 0.7}, got.ExpertiseTags)
	assert.Equal(t, 1, got.CurrentWeekCount)

	_, err = s.Get(ctx, "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpsertValidation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	bad := profile("bob", map[string]float64{"go": 1.5})
	assert.ErrorIs(t, s.Upsert(ctx, bad), apperr.ErrValidation)

	bad = profile("bob", nil)
	bad.ResponseRate = 2
	assert.ErrorIs(t, s.Upsert(ctx, bad), apperr.ErrValidation)

	assert.ErrorIs(t, s.Upsert(ctx, profile("", nil)), apperr.ErrValidation)
}

func TestListCandidates(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, profile("bob", map[string]float64{"go": 0.9})))
	require.NoError(t, s.Upsert(ctx, profile("carol", map[string]float64{"sql": 0.6})))
	away := profile("dave", map[string]float64{"go": 0.8})
	away.IsAvailable = false
	require.NoError(t, s.Upsert(ctx, away))
	full := profile("erin", map[string]float64{"go": 0.8})
	full.MaxQuestionsPerWeek = 0
	require.NoError(t, s.Upsert(ctx, full))

	got, err := s.ListCandidates(ctx, []string{"GO"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].UserID)
	assert.Equal(t, 0.9, got[0].ExpertiseTags["go"])

	all, err := s.ListCandidates(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2, "no tags returns every available expert under quota")

	limited, err := s.ListCandidates(ctx, nil, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListCandidatesLimitKeepsMostConfident(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, profile("alice", map[string]float64{"go": 0.2, "rust": 0.99})))
	require.NoError(t, s.Upsert(ctx, profile("bob", map[string]float64{"go": 0.5})))
	require.NoError(t, s.Upsert(ctx, profile("zoe", map[string]float64{"go": 0.9})))

	got, err := s.ListCandidates(ctx, []string{"go"}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "zoe", got[0].UserID)
	assert.Equal(t, "bob", got[1].UserID)
}

func TestWeeklyQuota(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, profile("bob", map[string]float64{"go": 0.9})))

	for i := 0; i < 2; i++ {
		ok, err := s.IncrementWeekCount(ctx, "bob")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := s.IncrementWeekCount(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "quota is never exceeded")

	got, err := s.ListCandidates(ctx, []string{"go"}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Not stale yet.
	n, err := s.ResetStaleWeeks(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.ResetStaleWeeks(ctx, time.Now().Add(Week+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	p, err := s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, p.CurrentWeekCount)
}

func TestSetTagAndTouch(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, profile("bob", nil)))

	require.NoError(t, s.SetTag(ctx, "bob", "Design", 0.3))
	require.NoError(t, s.SetTag(ctx, "bob", "design", 0.6))
	assert.ErrorIs(t, s.SetTag(ctx, "bob", "x", 3), apperr.ErrValidation)
	assert.ErrorIs(t, s.SetTag(ctx, "ghost", "x", 0.1), apperr.ErrNotFound)

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Touch(ctx, "bob", at))

	p, err := s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"design": 0.6}, p.ExpertiseTags)
	assert.True(t, p.LastActiveAt.Equal(at))

	require.NoError(t, s.RemoveTag(ctx, "bob", "DESIGN"))
	p, err = s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, p.ExpertiseTags)
}

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCacheGenerations(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)

	_, hit, err := c.GetCandidates(ctx, gen, "go|0")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetCandidates(ctx, gen, "go|0", []Profile{{UserID: "bob"}}))
	got, hit, err := c.GetCandidates(ctx, gen, "go|0")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "bob", got[0].UserID)

	require.NoError(t, c.Invalidate(ctx))
	next, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
	_, hit, err = c.GetCandidates(ctx, next, "go|0")
	require.NoError(t, err)
	assert.False(t, hit)

	// Entries age out with their TTL.
	require.NoError(t, c.SetCandidates(ctx, next, "go|0", []Profile{{UserID: "bob"}}))
	mr.FastForward(2 * time.Minute)
	_, hit, err = c.GetCandidates(ctx, next, "go|0")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestListCandidatesThroughCache(t *testing.T) {
	cache, _ := newRedisCache(t)
	s := setupStore(t).WithCache(cache, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, profile("bob", map[string]float64{"go": 0.9})))
	first, err := s.ListCandidates(ctx, []string{"go"}, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Writing through the store invalidates, so the new expert shows up.
	require.NoError(t, s.Upsert(ctx, profile("carol", map[string]float64{"go": 0.5})))
	second, err := s.ListCandidates(ctx, []string{"go"}, 0)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	// Quota changes invalidate too.
	for i := 0; i < 2; i++ {
		_, err := s.IncrementWeekCount(ctx, "carol")
		require.NoError(t, err)
	}
	third, err := s.ListCandidates(ctx, []string{"go"}, 0)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "bob", third[0].UserID)
}

func TestCacheFailureFallsBackToDatabase(t *testing.T) {
	cache, mr := newRedisCache(t)
	s := setupStore(t).WithCache(cache, logger.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, profile("bob", map[string]float64{"go": 0.9})))

	mr.Close()
	got, err := s.ListCandidates(ctx, []string{"go"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(config.CacheConfig{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(config.CacheConfig{RedisAddress: mr.Addr()})
	require.NoError(t, err)
	client.Close()
}

func TestRoutes(t *testing.T) {
	s := setupStore(t)
	r := chi.NewRouter()
	RegisterRoutes(r, s)

	body := `{"is_available":true,"response_rate":0.8,"max_questions_per_week":3,"expertise_tags":{"go":0.9}}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/experts/bob", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var p Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "bob", p.UserID)
	assert.Equal(t, 0.9, p.ExpertiseTags["go"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/experts/bob/tags/sql", strings.NewReader(`{"confidence":0.5}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/experts/candidates?tags=sql", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ps []Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ps))
	require.Len(t, ps, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/experts/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/experts/bob", strings.NewReader(`{"response_rate":5}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
