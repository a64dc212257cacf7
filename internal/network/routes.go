package network

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/expertroute/internal/apperr"
)

// RegisterRoutes mounts social graph endpoints under /api/network.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/network", func(r chi.Router) {
		r.Post("/connections", handleConnect(store))
		r.Delete("/connections", handleDisconnect(store))
		r.Get("/{userID}/peers", handlePeers(store))
		r.Get("/{userID}/degree/{otherID}", handleDegree(store))
	})
}

type connectionRequest struct {
	UserID string `json:"user_id"`
	PeerID string `json:"peer_id"`
}

func handleConnect(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req connectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.WriteHTTP(w, apperr.Validation("network.connect", "invalid JSON body: %v", err))
			return
		}
		if err := store.Connect(r.Context(), req.UserID, req.PeerID); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func handleDisconnect(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		userID, peerID := q.Get("user_id"), q.Get("peer_id")
		if userID == "" || peerID == "" {
			apperr.WriteHTTP(w, apperr.Validation("network.disconnect", "user_id and peer_id are required"))
			return
		}
		if err := store.Disconnect(r.Context(), userID, peerID); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handlePeers(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peers, err := store.Peers(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if peers == nil {
			peers = []Connection{}
		}
		writeJSON(w, http.StatusOK, peers)
	}
}

func handleDegree(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to := chi.URLParam(r, "userID"), chi.URLParam(r, "otherID")
		d, err := store.Degree(r.Context(), from, to)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"from":      from,
			"to":        to,
			"degree":    int(d),
			"reachable": d.Reachable(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
