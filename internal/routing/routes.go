package routing

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/forwarding"
	"github.com/ziadkadry99/expertroute/internal/lifecycle"
	"github.com/ziadkadry99/expertroute/internal/matching"
	"github.com/ziadkadry99/expertroute/internal/questions"
)

// UserHeader carries the caller's identity. Authentication happens in
// front of this service.
const UserHeader = "X-User-ID"

// RegisterRoutes mounts the question, response and match endpoints.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/questions", func(r chi.Router) {
		r.Post("/", handleSubmit(svc))
		r.Get("/feed", handleFeed(svc))
		r.Get("/{id}", handleView(svc))
		r.Post("/{id}/close", handleClose(svc))
		r.Post("/{id}/match", handleMatch(svc))
		r.Get("/{id}/matches", handleListMatches(svc))
		r.Post("/{id}/forward", handleForward(svc))
		r.Get("/{id}/forwards", handleForwardHistory(svc))
		r.Get("/{id}/similar", handleSimilar(svc))
		r.Get("/{id}/responses", handleListResponses(svc))
		r.Post("/{id}/responses", handleRespond(svc))
		r.Post("/{id}/responses/synthetic", handleSynthetic(svc))
	})
	r.Route("/api/responses", func(r chi.Router) {
		r.Post("/{id}/vote", handleVote(svc))
		r.Post("/{id}/accept", handleAccept(svc))
		r.Delete("/{id}", handleDeleteResponse(svc))
	})
	r.Get("/api/matches/{expertID}", handleExpertMatches(svc))
}

// callerID returns the identity from UserHeader.
func callerID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(UserHeader))
	if id == "" {
		return "", apperr.NotAuthorized("routing.caller", "missing %s header", UserHeader)
	}
	return id, nil
}

func decode(r *http.Request, op string, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation(op, "invalid JSON body: %v", err)
	}
	return nil
}

func limitParam(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func handleSubmit(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		var in questions.NewQuestion
		if err := decode(r, "routing.submit", &in); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		in.AskerID = user
		sub, err := svc.Submit(r.Context(), in)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if sub.Matches == nil {
			sub.Matches = []matching.QuestionMatch{}
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

func handleFeed(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		qs, err := svc.Feed(r.Context(), user, limitParam(r, 50))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

func handleView(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		q, err := svc.Lifecycle.View(r.Context(), chi.URLParam(r, "id"), user)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func handleClose(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		q, err := svc.Lifecycle.Close(r.Context(), chi.URLParam(r, "id"), user)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

func handleMatch(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ms, err := svc.MatchQuestion(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if ms == nil {
			ms = []matching.QuestionMatch{}
		}
		writeJSON(w, http.StatusOK, ms)
	}
}

func handleListMatches(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		ms, err := svc.ListMatches(r.Context(), chi.URLParam(r, "id"), user)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if ms == nil {
			ms = []matching.QuestionMatch{}
		}
		writeJSON(w, http.StatusOK, ms)
	}
}

func handleSimilar(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		similar, err := svc.Similar(r.Context(), chi.URLParam(r, "id"), user, limitParam(r, 5))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, similar)
	}
}

type forwardRequest struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func handleForward(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		var req forwardRequest
		if err := decode(r, "routing.forward", &req); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		rec, err := svc.Forward(r.Context(), chi.URLParam(r, "id"), user, req.To, req.Reason)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func handleForwardHistory(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		recs, err := svc.ForwardHistory(r.Context(), chi.URLParam(r, "id"), user)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if recs == nil {
			recs = []forwarding.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleListResponses(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		rs, err := svc.Lifecycle.ListResponses(r.Context(), chi.URLParam(r, "id"), user)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rs)
	}
}

func handleRespond(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		var in lifecycle.RespondInput
		if err := decode(r, "routing.respond", &in); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		in.QuestionID = chi.URLParam(r, "id")
		in.ResponderID = user
		resp, err := svc.Lifecycle.Respond(r.Context(), in)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func handleSynthetic(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		var req struct {
			QualityLevel questions.QualityLevel `json:"quality_level"`
		}
		if err := decode(r, "routing.synthetic", &req); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		resp, err := svc.Lifecycle.GenerateSyntheticResponse(r.Context(), chi.URLParam(r, "id"), user, req.QualityLevel)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func handleVote(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		var req struct {
			Helpful *bool `json:"helpful"`
		}
		if err := decode(r, "routing.vote", &req); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if req.Helpful == nil {
			apperr.WriteHTTP(w, apperr.Validation("routing.vote", "helpful is required"))
			return
		}
		resp, err := svc.Lifecycle.Vote(r.Context(), chi.URLParam(r, "id"), user, *req.Helpful)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAccept(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		resp, err := svc.Lifecycle.Accept(r.Context(), chi.URLParam(r, "id"), user)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDeleteResponse(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if err := svc.Lifecycle.DeleteResponse(r.Context(), chi.URLParam(r, "id"), user); err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleExpertMatches(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := callerID(r)
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		expertID := chi.URLParam(r, "expertID")
		if user != expertID {
			apperr.WriteHTTP(w, apperr.NotAuthorized("routing.expertMatches", "experts can only list their own matches"))
			return
		}
		ms, err := svc.ExpertMatches(r.Context(), expertID, limitParam(r, 50))
		if err != nil {
			apperr.WriteHTTP(w, err)
			return
		}
		if ms == nil {
			ms = []matching.QuestionMatch{}
		}
		writeJSON(w, http.StatusOK, ms)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
