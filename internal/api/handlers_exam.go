package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hkoeze/chekhov-examiner-2/internal/exam"
	"github.com/hkoeze/chekhov-examiner-2/internal/models"
)

// ExamHandler serves the student portal, the examiner agent's tools and the
// voice platform's webhook.
type ExamHandler struct {
	svc             *exam.Service
	maxWebhookBytes int64
	logger          *zap.Logger
}

func NewExamHandler(svc *exam.Service, maxWebhookBytes int64, logger *zap.Logger) *ExamHandler {
	return &ExamHandler{svc: svc, maxWebhookBytes: maxWebhookBytes, logger: logger}
}

// Submit handles POST /api/submissions. Both JSON bodies and portal form posts
// are accepted.
func (h *ExamHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, submitError("invalid form body: "+err.Error()))
			return
		}
		req.Name = r.PostForm.Get("name")
		req.Essay = r.PostForm.Get("essay")
	} else if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, submitError("invalid request body: "+err.Error()))
		return
	}

	code, err := h.svc.Submit(r.Context(), req.Name, req.Essay)
	if err != nil {
		h.logFailure(r, "submission failed", err)
		writeJSON(w, statusFor(err), submitError(errorMessage(err)))
		return
	}

	writeJSON(w, http.StatusOK, models.SubmitResponse{
		Success: true,
		Status:  "success",
		Code:    code,
		Message: fmt.Sprintf("Your paper was received. Your session code is %s.", code),
	})
}

// Essay handles GET /api/essay?code=.
func (h *ExamHandler) Essay(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.FetchEssay(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logFailure(r, "essay fetch failed", err)
		writeError(w, statusFor(err), errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, models.EssayResponse{
		Success:     true,
		StudentName: sess.StudentName,
		Essay:       sess.PaperText,
		WordCount:   exam.WordCount(sess.PaperText),
	})
}

// Questions handles GET /api/questions?content=&process=.
func (h *ExamHandler) Questions(w http.ResponseWriter, r *http.Request) {
	content, err := queryCount(r, "content")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	process, err := queryCount(r, "process")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sel, err := h.svc.FetchQuestions(content, process)
	if err != nil {
		h.logFailure(r, "question fetch failed", err)
		writeError(w, statusFor(err), errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, models.QuestionsResponse{
		Success:          true,
		ContentQuestions: sel.Content,
		ProcessQuestions: sel.Process,
		TotalQuestions:   sel.Total(),
	})
}

// Transcript handles POST /webhooks/transcript.
func (h *ExamHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxWebhookBytes)

	var payload models.TranscriptWebhook
	if err := decodeJSON(r, &payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Error("webhook body too large", zap.Int64("limit", tooLarge.Limit))
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.logFailure(r, "webhook rejected", fmt.Errorf("%w: %v", exam.ErrMalformedPayload, err))
		writeError(w, http.StatusBadRequest, exam.ErrMalformedPayload.Error()+": "+err.Error())
		return
	}

	var conversationID string
	if payload.Data != nil {
		conversationID = payload.Data.ConversationID
	}

	res, err := h.svc.IngestTranscript(r.Context(), &payload)
	if err != nil {
		h.logFailure(r, "transcript ingestion failed", err, zap.String("conversation_id", conversationID))
		writeJSON(w, statusFor(err), models.ErrorResponse{
			Success:        false,
			Error:          errorMessage(err),
			ConversationID: conversationID,
		})
		return
	}

	msg := fmt.Sprintf("Transcript stored for session %s", res.Code)
	if res.Replaced {
		msg += " (replaced previous transcript)"
	}
	writeJSON(w, http.StatusOK, models.IngestResponse{Success: true, Message: msg})
}

func (h *ExamHandler) logFailure(r *http.Request, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.String("request_id", GetRequestID(r)))
	if exam.NeedsOperator(err) {
		h.logger.Error(msg, fields...)
		return
	}
	h.logger.Info(msg, fields...)
}

func submitError(msg string) models.SubmitResponse {
	return models.SubmitResponse{Success: false, Status: "error", Message: msg}
}

// queryCount parses an optional non-negative count parameter. A missing
// parameter yields nil so the configured default applies.
func queryCount(r *http.Request, key string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &n, nil
}
