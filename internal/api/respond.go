package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hkoeze/chekhov-examiner-2/internal/exam"
	"github.com/hkoeze/chekhov-examiner-2/internal/models"
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Success: false, Error: msg})
}

// statusFor maps an exam error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, exam.ErrInvalidSecret):
		return http.StatusUnauthorized
	case errors.Is(err, exam.ErrMissingCode),
		errors.Is(err, exam.ErrValidationFailed),
		errors.Is(err, exam.ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.Is(err, exam.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, exam.ErrSessionAlreadyUsed),
		errors.Is(err, exam.ErrStatusConflict),
		errors.Is(err, exam.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, exam.ErrGenerationExhausted),
		errors.Is(err, exam.ErrGradingUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the client-facing text for err. Unclassified failures get a
// generic message so storage details do not leak.
func errorMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
