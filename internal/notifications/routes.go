package notifications

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/expertroute/internal/apperr"
)

// digestWindow is the default look-back of a digest.
const digestWindow = 24 * time.Hour

// RegisterRoutes mounts the notification inbox, preferences and digests
// under /api/notifications.
func RegisterRoutes(r chi.Router, store *Store, dispatcher *Dispatcher) {
	r.Route("/api/notifications", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Get("/pending/{userID}", handlePending(store))
		r.Post("/pending/{userID}/deliver", handleAcknowledgeAll(store))
		r.Get("/digest/{userID}", handleDigest(dispatcher))
		r.Get("/preferences/{userID}", handleGetPreferences(store))
		r.Put("/preferences", handleSetPreference(store))
		r.Get("/{id}", handleGetByID(store))
		r.Post("/{id}/deliver", handleMarkDelivered(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseListFilter(r.URL.Query())
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		notifications, err := store.List(r.Context(), filter)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, notifications)
	}
}

func handleGetByID(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func handleMarkDelivered(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.MarkDelivered(r.Context(), chi.URLParam(r, "id")); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
	}
}

func handlePending(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := store.GetPending(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pending)
	}
}

// handleAcknowledgeAll clears an expert's inbox in one call.
func handleAcknowledgeAll(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := store.AcknowledgeAll(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"acknowledged": n})
	}
}

func handleGetPreferences(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := store.GetPreferences(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	}
}

func handleSetPreference(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pref Preference
		if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
			apperr.WriteHTTP(w, apperr.Validation("notifications.SetPreference", "invalid request body"))
			return
		}
		if err := pref.Validate(); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if err := store.SetPreference(r.Context(), pref); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pref)
	}
}

func handleDigest(dispatcher *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := time.Now().UTC().Add(-digestWindow)
		if v := r.URL.Query().Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				apperr.WriteHTTP(w, apperr.Validation("notifications.Digest", "since must be an RFC 3339 time"))
				return
			}
			since = t
		}
		digest, err := dispatcher.GenerateDigest(r.Context(), chi.URLParam(r, "userID"), since)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, digest)
	}
}

func parseListFilter(q url.Values) (ListFilter, error) {
	const op = "notifications.parseListFilter"
	f := ListFilter{
		RecipientID: q.Get("recipient"),
		QuestionID:  q.Get("question"),
		Type:        NotificationType(q.Get("type")),
	}
	if v := q.Get("delivered"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperr.Validation(op, "delivered must be true or false")
		}
		f.Delivered = &b
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, apperr.Validation(op, "since must be an RFC 3339 time")
		}
		f.Since = t
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, apperr.Validation(op, "%s must be a non-negative integer", name)
			}
			*dst = n
		}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
