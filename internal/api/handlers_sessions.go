package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hkoeze/chekhov-examiner-2/internal/exam"
	"github.com/hkoeze/chekhov-examiner-2/internal/models"
)

// SessionHandler handles the instructor's session endpoints.
type SessionHandler struct {
	svc    *exam.Service
	logger *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *exam.Service, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{svc: svc, logger: logger}
}

// List handles GET /api/sessions?status=&limit=
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	list, err := h.svc.List(r.Context(), models.Status(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.fail(w, r, "list sessions", err)
		return
	}
	if list == nil {
		list = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, models.SessionListResponse{Success: true, Sessions: list})
}

// Get handles GET /api/sessions/{code}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Grade handles POST /api/sessions/{code}/grade
func (h *SessionHandler) Grade(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Grade(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, "grade session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Review handles POST /api/sessions/{code}/review
func (h *SessionHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess, err := h.svc.Review(r.Context(), chi.URLParam(r, "code"), req.FinalGrade, req.InstructorNotes)
	if err != nil {
		h.fail(w, r, "review session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if exam.NeedsOperator(err) {
		h.logger.Error(msg, zap.Error(err), zap.String("request_id", GetRequestID(r)))
	}
	writeError(w, statusFor(err), errorMessage(err))
}
