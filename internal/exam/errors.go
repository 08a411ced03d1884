package exam

import (
	"errors"

	"github.com/hkoeze/chekhov-examiner-2/internal/codes"
	"github.com/hkoeze/chekhov-examiner-2/internal/sessions"
)

// Error kinds surfaced to callers. The API layer turns each into a status code
// and a flat {"success": false, "error": ...} body.
var (
	ErrInvalidSecret       = errors.New("invalid secret")
	ErrMissingCode         = errors.New("session code is required")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionAlreadyUsed  = errors.New("session has already been used")
	ErrGenerationExhausted = codes.ErrGenerationExhausted
	ErrValidationFailed    = errors.New("validation failed")
	ErrMalformedPayload    = errors.New("malformed payload")

	// ErrNotReady is returned by grading and review when the session has not
	// reached the step they act on.
	ErrNotReady = errors.New("session is not ready for this step")
	// ErrGradingUnavailable is returned when no grading collaborator is usable.
	ErrGradingUnavailable = errors.New("grading is unavailable")
	// ErrStatusConflict is returned when concurrent writers kept changing the
	// session while an operation was retrying its conditional update.
	ErrStatusConflict = sessions.ErrStatusConflict
)

// NeedsOperator reports whether err signals an implementation-level failure
// rather than an expected user-facing outcome.
func NeedsOperator(err error) bool {
	if err == nil {
		return false
	}
	for _, expected := range []error{
		ErrInvalidSecret,
		ErrMissingCode,
		ErrSessionNotFound,
		ErrSessionAlreadyUsed,
		ErrValidationFailed,
		ErrNotReady,
		ErrStatusConflict,
	} {
		if errors.Is(err, expected) {
			return false
		}
	}
	return true
}
