package experts

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/expertroute/internal/apperr"
)

// RegisterRoutes mounts expert directory endpoints under /api/experts.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/experts", func(r chi.Router) {
		r.Get("/candidates", handleCandidates(store))
		r.Get("/{userID}", handleGet(store))
		r.Put("/{userID}", handleUpsert(store))
		r.Put("/{userID}/tags/{tag}", handleSetTag(store))
		r.Delete("/{userID}/tags/{tag}", handleRemoveTag(store))
	})
}

func handleGet(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := store.Get(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpsert(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			apperr.WriteHTTP(w, apperr.Validation("experts.upsert", "invalid JSON body: %v", err))
			return
		}
		p.UserID = chi.URLParam(r, "userID")
		if err := store.Upsert(r.Context(), &p); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		saved, err := store.Get(r.Context(), p.UserID)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func handleSetTag(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Confidence float64 `json:"confidence"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apperr.WriteHTTP(w, apperr.Validation("experts.setTag", "invalid JSON body: %v", err))
			return
		}
		userID, tag := chi.URLParam(r, "userID"), chi.URLParam(r, "tag")
		if err := store.SetTag(r.Context(), userID, tag, body.Confidence); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRemoveTag(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.RemoveTag(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "tag")); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCandidates(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var tags []string
		if v := q.Get("tags"); v != "" {
			tags = strings.Split(v, ",")
		}
		limit := 0
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		ps, err := store.ListCandidates(r.Context(), tags, limit)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if ps == nil {
			ps = []Profile{}
		}
		writeJSON(w, http.StatusOK, ps)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
