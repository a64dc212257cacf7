package apperr

import (
	"encoding/json"
	"net/http"
)

// HTTPStatus maps an error to the status code handlers respond with.
// Degraded classification is never surfaced to clients, so it falls through
// to 500 along with unclassified errors.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindQuestionClosed:
		return http.StatusConflict
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes err as a JSON body with the mapped status code.
// Retryable errors carry a Retry-After hint.
func WriteHTTP(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	if IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":     err.Error(),
		"kind":      KindOf(err),
		"retryable": IsRetryable(err),
	})
}
