package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/db"
	"github.com/ziadkadry99/expertroute/internal/visibility"
)

func setupStore(t *testing.T, maxDepth int) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database, maxDepth)
}

// chain connects the given users in a line.
func chain(t *testing.T, s *Store, users ...string) {
	t.Helper()
	for i := 0; i+1 < len(users); i++ {
		require.NoError(t, s.Connect(context.Background(), users[i], users[i+1]))
	}
}

func TestConnectIsUndirectedAndIdempotent(t *testing.T) {
	s := setupStore(t, 6)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx, "a", "b"))
	require.NoError(t, s.Connect(ctx, "b", "a"))

	peersA, err := s.Peers(ctx, "a")
	require.NoError(t, err)
	require.Len(t, peersA, 1)
	assert.Equal(t, "b", peersA[0].PeerID)

	peersB, err := s.Peers(ctx, "b")
	require.NoError(t, err)
	require.Len(t, peersB, 1)
	assert.Equal(t, "a", peersB[0].PeerID)
}

func TestConnectValidation(t *testing.T) {
	s := setupStore(t, 6)
	assert.ErrorIs(t, s.Connect(context.Background(), "a", "a"), apperr.ErrValidation)
	assert.ErrorIs(t, s.Connect(context.Background(), "", "b"), apperr.ErrValidation)
}

func TestDegree(t *testing.T) {
	s := setupStore(t, 6)
	ctx := context.Background()
	chain(t, s, "a", "b", "c", "d", "e", "f")
	// Shortcut edge so c is first degree despite the chain.
	require.NoError(t, s.Connect(ctx, "a", "c"))

	tests := []struct {
		to   string
		want visibility.Degree
	}{
		{"a", 0},
		{"b", 1},
		{"c", 1},
		{"d", 2},
		{"f", 4},
		{"stranger", visibility.Unreachable},
	}
	for _, tt := range tests {
		got, err := s.Degree(ctx, "a", tt.to)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "degree a->%s", tt.to)
	}
}

func TestDegreeBoundedByMaxDepth(t *testing.T) {
	s := setupStore(t, 3)
	chain(t, s, "a", "b", "c", "d", "e")

	d, err := s.Degree(context.Background(), "a", "d")
	require.NoError(t, err)
	assert.Equal(t, visibility.Degree(3), d)

	d, err = s.Degree(context.Background(), "a", "e")
	require.NoError(t, err)
	assert.Equal(t, visibility.Unreachable, d)
}

func TestNeighborhoodAndDegreesTo(t *testing.T) {
	s := setupStore(t, 6)
	chain(t, s, "a", "b", "c")
	ctx := context.Background()

	hood, err := s.Neighborhood(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]visibility.Degree{"b": 1, "c": 2}, hood)

	got, err := s.DegreesTo(ctx, "a", []string{"a", "c", "z"})
	require.NoError(t, err)
	assert.Equal(t, map[string]visibility.Degree{"a": 0, "c": 2, "z": visibility.Unreachable}, got)
}

func TestDisconnect(t *testing.T) {
	s := setupStore(t, 6)
	ctx := context.Background()
	chain(t, s, "a", "b")
	require.NoError(t, s.Disconnect(ctx, "b", "a"))

	d, err := s.Degree(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, visibility.Unreachable, d)
}

func TestDegreeStoreUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT DISTINCT peer_id FROM connections").WillReturnError(errors.New("database is locked"))

	s := NewStore(db.Wrap(sqlDB), 6)
	_, err = s.Degree(context.Background(), "a", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.True(t, apperr.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutes(t *testing.T) {
	s := setupStore(t, 6)
	r := chi.NewRouter()
	RegisterRoutes(r, s)

	req := httptest.NewRequest(http.MethodPost, "/api/network/connections", strings.NewReader(`{"user_id":"a","peer_id":"b"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/network/connections", strings.NewReader(`{"user_id":"a","peer_id":"a"}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/network/a/degree/b", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["degree"])
	assert.Equal(t, true, body["reachable"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/network/b/peers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var peers []Connection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "a", peers[0].PeerID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/network/connections?user_id=a&peer_id=b", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
