package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newQuestion(asker string, level visibility.Level) *Question {
	return &Question{
		AskerID:         asker,
		Title:           "How do I price a seed round?",
		Body:            "We are raising our first round and need advice on valuation.",
		VisibilityLevel: level,
		Status:          StatusActive,
		CreatedAt:       t0,
		UpdatedAt:       t0,
		ExpiresAt:       t0.Add(30 * 24 * time.Hour),
	}
}

func TestCreateAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	q := newQuestion("alice", visibility.SecondDegree)
	q.IsAnonymous = true
	require.NoError(t, s.Create(ctx, q))
	require.NotEmpty(t, q.ID)

	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AskerID)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, AnswerTactical, got.ExpectedAnswerType)
	assert.Equal(t, UrgencyMedium, got.Urgency)
	assert.Equal(t, visibility.SecondDegree, got.VisibilityLevel)
	assert.True(t, got.IsAnonymous)
	assert.Empty(t, got.PrimaryTags)
	assert.Nil(t, got.ClassifiedAt)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.ExpiresAt.Equal(q.ExpiresAt))
}

func TestGetNotFound(t *testing.T) {
	s := setupStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApplyClassification(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	q := newQuestion("alice", visibility.Public)
	require.NoError(t, s.Create(ctx, q))

	err := s.ApplyClassification(ctx, q.ID, Classification{
		PrimaryTags:        []string{"fundraising"},
		SecondaryTags:      []string{"valuation", "legal"},
		ExpectedAnswerType: AnswerStrategic,
		Urgency:            UrgencyHigh,
		Summary:            "Seed pricing",
		Confidence:         0.8,
	}, t0.Add(time.Second))
	require.NoError(t, err)

	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"fundraising"}, got.PrimaryTags)
	assert.Equal(t, []string{"valuation", "legal"}, got.SecondaryTags)
	assert.Equal(t, AnswerStrategic, got.ExpectedAnswerType)
	assert.Equal(t, UrgencyHigh, got.Urgency)
	assert.InDelta(t, 0.8, got.ClassificationConfidence, 1e-9)
	require.NotNil(t, got.ClassifiedAt)

	assert.ErrorIs(t, s.ApplyClassification(ctx, "missing", Classification{
		ExpectedAnswerType: AnswerTactical, Urgency: UrgencyMedium,
	}, t0), apperr.ErrNotFound)
}

func TestCounters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	q := newQuestion("alice", visibility.Public)
	require.NoError(t, s.Create(ctx, q))

	require.NoError(t, s.IncrementViews(ctx, q.ID))
	require.NoError(t, s.IncrementViews(ctx, q.ID))
	require.NoError(t, s.IncrementResponses(ctx, q.ID, 1))
	require.NoError(t, s.IncrementForwards(ctx, q.ID))
	require.NoError(t, s.IncrementHelpfulVotes(ctx, q.ID, 3))

	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ViewCount)
	assert.Equal(t, 1, got.ResponseCount)
	assert.Equal(t, 1, got.ForwardCount)
	assert.Equal(t, 3, got.HelpfulVotes)
	assert.Equal(t, DisplayForwarded, got.DisplayStatus())

	assert.ErrorIs(t, s.IncrementViews(ctx, "missing"), apperr.ErrNotFound)
	assert.Error(t, s.increment(ctx, "test", q.ID, "title", 1))
}

func TestTransition(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	q := newQuestion("alice", visibility.Public)
	require.NoError(t, s.Create(ctx, q))

	ok, err := s.Transition(ctx, q.ID, StatusAnswered, StatusActive)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Transition(ctx, q.ID, StatusAnswered, StatusActive)
	require.NoError(t, err)
	assert.False(t, ok, "second transition from active must not apply")

	ok, err = s.Transition(ctx, q.ID, StatusClosed, StatusActive, StatusAnswered)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status)
}

func TestListActive(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	first := newQuestion("alice", visibility.FirstDegree)
	third := newQuestion("alice", visibility.ThirdDegree)
	third.CreatedAt = t0.Add(time.Minute)
	public := newQuestion("bob", visibility.Public)
	public.CreatedAt = t0.Add(2 * time.Minute)
	expired := newQuestion("bob", visibility.Public)
	expired.ExpiresAt = t0.Add(time.Hour)
	answered := newQuestion("bob", visibility.Public)
	answered.Status = StatusAnswered

	for _, q := range []*Question{first, third, public, expired, answered} {
		require.NoError(t, s.Create(ctx, q))
	}

	now := t0.Add(2 * time.Hour)
	all, err := s.ListActive(ctx, ActiveFilter{Now: now})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, third.ID, public.ID}, ids(all))

	d3 := visibility.Degree(3)
	atThree, err := s.ListActive(ctx, ActiveFilter{Now: now, VisibleAt: &d3})
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID, public.ID}, ids(atThree))

	mine, err := s.ListActive(ctx, ActiveFilter{Now: now, AskerID: "alice", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids(mine))

	rest, err := s.ListActive(ctx, ActiveFilter{Now: now, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID, public.ID}, ids(rest))

	page, err := s.ListActive(ctx, ActiveFilter{Now: now, Limit: 1, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{public.ID}, ids(page))
}

func ids(qs []Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func TestResponsesLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	q := newQuestion("alice", visibility.Public)
	require.NoError(t, s.Create(ctx, q))

	r := &Response{
		QuestionID:   q.ID,
		ResponderID:  "bob",
		Content:      "Use a SAFE with a cap.",
		ResponseType: AnswerTactical,
		VisibleTo:    []string{"alice"},
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, s.CreateResponse(ctx, r))

	got, err := s.GetResponse(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceHuman, got.SourceType)
	assert.Nil(t, got.QualityScore)
	assert.Equal(t, []string{"alice"}, got.VisibleTo)

	// helpful, helpful, unhelpful: last vote wins the flag, tallies add up.
	require.NoError(t, s.RecordVote(ctx, r.ID, true, t0))
	require.NoError(t, s.RecordVote(ctx, r.ID, true, t0))
	require.NoError(t, s.RecordVote(ctx, r.ID, false, t0))

	got, err = s.GetResponse(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.HelpfulVotes)
	assert.Equal(t, 1, got.UnhelpfulVotes)
	assert.False(t, got.IsMarkedHelpful)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, HumanQualityScore(2, 1), *got.QualityScore, 1e-9)

	ok, err := s.MarkAccepted(ctx, r.ID, t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkAccepted(ctx, r.ID, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.CountLiveResponses(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err = s.SoftDeleteResponse(ctx, r.ID, t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SoftDeleteResponse(ctx, r.ID, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	live, err := s.ListResponses(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, live)
	assert.ErrorIs(t, s.RecordVote(ctx, r.ID, true, t0), apperr.ErrNotFound, "deleted responses take no votes")

	deleted, err := s.GetResponse(ctx, r.ID)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)
}

func TestSyntheticVoteKeepsQuality(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	q := newQuestion("alice", visibility.Public)
	require.NoError(t, s.Create(ctx, q))

	score := QualityHigh.Score()
	r := &Response{
		QuestionID:   q.ID,
		ResponderID:  "alice",
		Content:      "generated",
		ResponseType: AnswerResource,
		SourceType:   SourceSyntheticAssisted,
		QualityLevel: QualityHigh,
		QualityScore: &score,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, s.CreateResponse(ctx, r))
	require.NoError(t, s.RecordVote(ctx, r.ID, false, t0))

	got, err := s.GetResponse(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 0.9, *got.QualityScore, 1e-9)
	assert.Equal(t, QualityHigh, got.QualityLevel)

	ok, err := s.MarkAccepted(ctx, r.ID, t0)
	require.NoError(t, err)
	assert.False(t, ok, "synthetic responses are never accepted")
}

func TestWithTxRollsBackCounter(t *testing.T) {
	database, err := db.OpenMemory()
	require.NoError(t, err)
	defer database.Close()
	s := NewStore(database)
	ctx := context.Background()

	q := newQuestion("alice", visibility.Public)
	require.NoError(t, s.Create(ctx, q))

	err = database.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.WithTx(tx).IncrementResponses(ctx, q.ID, 1); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := s.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ResponseCount)
}

func TestStoreUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec("UPDATE questions SET view_count").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectQuery("SELECT .* FROM questions WHERE id").WillReturnError(errors.New("database is locked"))

	s := NewStore(db.Wrap(sqlDB))
	err = s.IncrementViews(context.Background(), "q1")
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)

	_, err = s.Get(context.Background(), "q1")
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.True(t, apperr.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewQuestionValidate(t *testing.T) {
	limits := Limits{TitleMin: 5, TitleMax: 20, BodyMin: 10, BodyMax: 100}

	ok := NewQuestion{AskerID: "a", Title: "  Pricing help  ", Body: "How should we price?"}
	require.NoError(t, ok.Validate(limits))
	assert.Equal(t, "Pricing help", ok.Title)
	assert.Equal(t, visibility.SecondDegree, ok.VisibilityLevel, "defaults to second degree")

	bad := []NewQuestion{
		{Title: "Pricing help", Body: "How should we price?"},
		{AskerID: "a", Title: "Hi", Body: "How should we price?"},
		{AskerID: "a", Title: "Pricing help but far too long here", Body: "How should we price?"},
		{AskerID: "a", Title: "Pricing help", Body: "short"},
		{AskerID: "a", Title: "Pricing help", Body: "How should we price?", VisibilityLevel: "friends"},
	}
	for i, n := range bad {
		assert.ErrorIs(t, n.Validate(limits), apperr.ErrValidation, "case %d", i)
	}
}

func TestQuestionHelpers(t *testing.T) {
	q := newQuestion("alice", visibility.FirstDegree)
	q.ID = "q1"
	q.IsAnonymous = true
	q.PrimaryTags = []string{"a"}
	q.SecondaryTags = []string{"b"}

	assert.Equal(t, []string{"a", "b"}, q.Tags())
	assert.Equal(t, "", q.Redacted("bob").AskerID)
	assert.Equal(t, "alice", q.Redacted("alice").AskerID)
	assert.Equal(t, "alice", q.AskerID, "redaction copies")

	assert.True(t, q.AcceptsWrites(t0))
	assert.False(t, q.AcceptsWrites(q.ExpiresAt))
	q.Status = StatusAnswered
	assert.False(t, q.AcceptsWrites(t0))
	assert.Equal(t, "answered", q.DisplayStatus())

	q.Status = StatusActive
	q.ForwardCount = 2
	raw, err := json.Marshal(q)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "forwarded", m["display_status"])
	assert.Equal(t, "active", m["status"])
}

func TestQualityScores(t *testing.T) {
	assert.Equal(t, 0.3, QualityLow.Score())
	assert.Equal(t, 0.6, QualityMedium.Score())
	assert.Equal(t, 0.9, QualityHigh.Score())
	assert.Equal(t, 0.5, HumanQualityScore(0, 0))
	assert.InDelta(t, 0.75, HumanQualityScore(2, 0), 1e-9)
}

func TestResponseVisibleToUser(t *testing.T) {
	r := Response{ResponderID: "bob", VisibleTo: []string{"carol"}}
	assert.True(t, r.VisibleToUser("carol", "alice"))
	assert.True(t, r.VisibleToUser("bob", "alice"))
	assert.True(t, r.VisibleToUser("alice", "alice"))
	assert.False(t, r.VisibleToUser("dave", "alice"))

	open := Response{ResponderID: "bob"}
	assert.True(t, open.VisibleToUser("dave", "alice"))
}
