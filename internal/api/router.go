package api

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hkoeze/chekhov-examiner-2/internal/exam"
	"github.com/hkoeze/chekhov-examiner-2/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *store.DB,
	svc *exam.Service,
	secret string,
	maxWebhookBytes int64,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(db)
	examH := NewExamHandler(svc, maxWebhookBytes, logger)
	sessionH := NewSessionHandler(svc, logger)

	// Open routes
	r.Get("/health", healthH.Health)
	r.Post("/api/submissions", examH.Submit)

	// Examiner, webhook and instructor routes
	r.Group(func(r chi.Router) {
		r.Use(SharedSecret(secret, logger))

		r.Get("/api/essay", examH.Essay)
		r.Get("/api/questions", examH.Questions)
		r.Post("/webhooks/transcript", examH.Transcript)

		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", sessionH.List)
			r.Get("/{code}", sessionH.Get)
			r.Post("/{code}/grade", sessionH.Grade)
			r.Post("/{code}/review", sessionH.Review)
		})
	})

	return r
}
