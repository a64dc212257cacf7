package audit

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/expertroute/internal/apperr"
)

// RegisterRoutes mounts the audit trail under /api/audit.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/audit", func(r chi.Router) {
		r.Get("/", handleQuery(store))
		r.Get("/questions/{questionID}", handleQuestionTrail(store))
		r.Get("/{id}", handleGetByID(store))
	})
}

func handleQuery(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r.URL.Query())
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		entries, err := store.Query(r.Context(), filter)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// handleQuestionTrail returns a question's history oldest first: submission,
// classification, forwards, then closing.
func handleQuestionTrail(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := store.Query(r.Context(), QueryFilter{
			Scope:   ScopeQuestion,
			ScopeID: chi.URLParam(r, "questionID"),
		})
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		slices.Reverse(entries)
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// parseFilter reads the query string. Malformed times or numbers are
// rejected rather than ignored.
func parseFilter(q url.Values) (QueryFilter, error) {
	const op = "audit.parseFilter"
	f := QueryFilter{
		ActorID:      q.Get("actor"),
		Scope:        Scope(q.Get("scope")),
		ScopeID:      q.Get("scope_id"),
		Action:       Action(q.Get("action")),
		AffectedUser: q.Get("user"),
	}
	for name, dst := range map[string]**time.Time{"since": &f.Since, "until": &f.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation(op, "%s must be an RFC 3339 time", name)
		}
		*dst = &t
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperr.Validation(op, "%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
