// Package exam runs the oral-examination workflow: paper intake, essay
// retrieval by the examiner, question selection, transcript ingestion, and
// the grading and review steps that follow.
package exam

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hkoeze/chekhov-examiner-2/internal/codes"
	"github.com/hkoeze/chekhov-examiner-2/internal/grading"
	"github.com/hkoeze/chekhov-examiner-2/internal/models"
	"github.com/hkoeze/chekhov-examiner-2/internal/questions"
	"github.com/hkoeze/chekhov-examiner-2/internal/sessions"
	"github.com/hkoeze/chekhov-examiner-2/internal/transcript"
)

const (
	// maxCASRounds bounds how often an operation re-reads a session after
	// losing a conditional update to a concurrent writer.
	maxCASRounds = 3
	// maxIssueAttempts bounds code issuance when the insert itself collides.
	maxIssueAttempts = 3
)

// SessionStore persists sessions. *sessions.Store implements it.
type SessionStore interface {
	Create(ctx context.Context, sess *models.Session) error
	FindByCode(ctx context.Context, code string) (*models.Session, error)
	UpdateByCode(ctx context.Context, code string, expected *models.Status, upd sessions.Update) error
	Codes(ctx context.Context) (map[string]struct{}, error)
	List(ctx context.Context, status models.Status, limit int) ([]*models.Session, error)
}

// Grader is the collaborator that grades a completed defense.
type Grader interface {
	Grade(ctx context.Context, paper, transcript string) (grading.Result, error)
}

// Rand is the randomness shared by code issuance and question sampling.
type Rand interface {
	IntN(n int) int
}

// Limits are the request-independent knobs of the workflow.
type Limits struct {
	MaxEssayChars           int
	DefaultContentQuestions int
	DefaultProcessQuestions int
	AllowTranscriptReingest bool
}

// Service is the facade for every externally triggered operation.
type Service struct {
	store   SessionStore
	bank    questions.Bank
	limits  Limits
	machine sessions.Machine
	grader  Grader
	rand    Rand
	clock   func() time.Time
	logger  *zap.Logger
}

// Option customizes service construction.
type Option func(*Service)

// WithRand replaces the process RNG, typically with a seeded one in tests.
func WithRand(r Rand) Option {
	return func(s *Service) {
		if r != nil {
			s.rand = &lockedRand{r: r}
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithGrader wires the grading collaborator.
func WithGrader(g Grader) Option {
	return func(s *Service) {
		if g != nil {
			s.grader = g
		}
	}
}

// NewService creates the exam service.
func NewService(store SessionStore, bank questions.Bank, limits Limits, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		bank:    bank,
		limits:  limits,
		machine: sessions.Machine{AllowReingest: limits.AllowTranscriptReingest},
		rand:    &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))},
		clock:   func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit validates a paper, issues a fresh code and stores the session in
// Submitted. Nothing is written when validation fails.
func (s *Service) Submit(ctx context.Context, name, essay string) (string, error) {
	name = strings.TrimSpace(name)
	essay = strings.TrimSpace(essay)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if essay == "" {
		return "", fmt.Errorf("%w: essay is required", ErrValidationFailed)
	}
	if n := utf8.RuneCountInString(essay); n > s.limits.MaxEssayChars {
		return "", fmt.Errorf("%w: essay is %d characters long; the maximum is %d",
			ErrValidationFailed, n, s.limits.MaxEssayChars)
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		existing, err := s.store.Codes(ctx)
		if err != nil {
			return "", fmt.Errorf("load issued codes: %w", err)
		}
		code, err := codes.Generate(s.rand, existing)
		if err != nil {
			s.logger.Error("code generation exhausted", zap.Int("issued", len(existing)))
			return "", err
		}

		err = s.store.Create(ctx, &models.Session{
			Code:        code,
			StudentName: name,
			PaperText:   essay,
			Status:      models.StatusSubmitted,
			SubmittedAt: s.clock().Unix(),
		})
		if errors.Is(err, sessions.ErrCodeTaken) {
			s.logger.Warn("issued code collided on insert, retrying", zap.String("code", code))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}

		s.logger.Info("paper submitted", zap.String("code", code), zap.Int("words", WordCount(essay)))
		return code, nil
	}

	s.logger.Error("code issuance kept colliding", zap.Int("attempts", maxIssueAttempts))
	return "", fmt.Errorf("%w: code collided on every insert", ErrGenerationExhausted)
}

// FetchEssay returns the session for the examiner. The first successful fetch
// starts the defense; fetches during the defense are idempotent reconnects.
func (s *Service) FetchEssay(ctx context.Context, code string) (*models.Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMissingCode
	}

	for round := 0; round < maxCASRounds; round++ {
		sess, err := s.find(ctx, code)
		if err != nil {
			return nil, err
		}

		upd, changed, err := s.machine.StartDefense(sess, s.clock().Unix())
		if err != nil {
			return nil, fmt.Errorf("%w: session %s is %s", ErrSessionAlreadyUsed, code, sess.Status)
		}
		if !changed {
			s.logger.Info("examiner reconnected", zap.String("code", code))
			return sess, nil
		}

		err = s.store.UpdateByCode(ctx, code, &sess.Status, upd)
		if errors.Is(err, sessions.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return nil, s.storeError(err)
		}

		applyUpdate(sess, upd)
		s.logger.Info("defense started", zap.String("code", code))
		return sess, nil
	}
	return nil, fmt.Errorf("fetch essay %s: %w", code, ErrStatusConflict)
}

// FetchQuestions draws the question set for one defense. Nil counts fall back
// to the configured defaults.
func (s *Service) FetchQuestions(contentCount, processCount *int) (questions.Selection, error) {
	content := s.limits.DefaultContentQuestions
	if contentCount != nil {
		content = *contentCount
	}
	process := s.limits.DefaultProcessQuestions
	if processCount != nil {
		process = *processCount
	}
	if content < 0 || process < 0 {
		return questions.Selection{}, fmt.Errorf("%w: question counts must not be negative", ErrValidationFailed)
	}
	return questions.Sample(s.rand, s.bank, content, process), nil
}

// IngestResult describes a stored transcript.
type IngestResult struct {
	Code     string
	Tier     transcript.Tier
	Replaced bool
}

// IngestTranscript normalizes the webhook transcript, finds the session code
// in it, and completes the defense with the transcript attached.
func (s *Service) IngestTranscript(ctx context.Context, payload *models.TranscriptWebhook) (*IngestResult, error) {
	if payload == nil || payload.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	conversationID := payload.Data.ConversationID

	text, err := transcript.FromJSON(payload.Data.Transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	code, tier := transcript.ExtractCodeTier(text)
	if tier == transcript.TierNone {
		return nil, fmt.Errorf("%w: no session code found in transcript", ErrMissingCode)
	}
	s.logger.Info("session code extracted",
		zap.String("code", code),
		zap.String("tier", string(tier)),
		zap.String("conversation_id", conversationID),
	)

	for round := 0; round < maxCASRounds; round++ {
		sess, err := s.find(ctx, code)
		if err != nil {
			return nil, err
		}

		upd, err := s.machine.CompleteDefense(sess, text, conversationID, s.clock().Unix())
		if err != nil {
			return nil, fmt.Errorf("%w: session %s is %s", ErrSessionAlreadyUsed, code, sess.Status)
		}

		err = s.store.UpdateByCode(ctx, code, &sess.Status, upd)
		if errors.Is(err, sessions.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return nil, s.storeError(err)
		}

		replaced := sess.Status == models.StatusDefenseComplete
		if replaced {
			s.logger.Warn("transcript replaced for completed session",
				zap.String("code", code),
				zap.String("conversation_id", conversationID),
			)
		}
		return &IngestResult{Code: code, Tier: tier, Replaced: replaced}, nil
	}
	return nil, fmt.Errorf("ingest transcript %s: %w", code, ErrStatusConflict)
}

// Grade asks the grading collaborator for a verdict on a completed defense.
func (s *Service) Grade(ctx context.Context, code string) (*models.Session, error) {
	if s.grader == nil {
		return nil, ErrGradingUnavailable
	}
	sess, err := s.find(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusDefenseComplete {
		return nil, fmt.Errorf("%w: session %s is %s", ErrNotReady, sess.Code, sess.Status)
	}

	result, err := s.grader.Grade(ctx, sess.PaperText, sess.TranscriptText)
	if errors.Is(err, grading.ErrDisabled) {
		return nil, ErrGradingUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("grade session %s: %w", sess.Code, err)
	}

	upd, err := s.machine.Grade(sess, result.Grade, result.Comments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if err := s.store.UpdateByCode(ctx, sess.Code, &sess.Status, upd); err != nil {
		return nil, s.storeError(err)
	}
	applyUpdate(sess, upd)

	s.logger.Info("session graded", zap.String("code", sess.Code), zap.String("grade", sess.Grade))
	return sess, nil
}

// GradePending grades every session waiting in DefenseComplete. Failures are
// logged and counted; the remaining sessions are still attempted.
func (s *Service) GradePending(ctx context.Context, limit int) (graded []*models.Session, failed int, err error) {
	pending, err := s.store.List(ctx, models.StatusDefenseComplete, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list pending sessions: %w", err)
	}
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return graded, failed, err
		}
		sess, err := s.Grade(ctx, p.Code)
		if errors.Is(err, ErrGradingUnavailable) {
			return graded, failed, err
		}
		if err != nil {
			failed++
			s.logger.Warn("grading failed", zap.String("code", p.Code), zap.Error(err))
			continue
		}
		graded = append(graded, sess)
	}
	return graded, failed, nil
}

// Review records the instructor's final grade on a graded session.
func (s *Service) Review(ctx context.Context, code, finalGrade, notes string) (*models.Session, error) {
	finalGrade = strings.TrimSpace(finalGrade)
	if finalGrade == "" {
		return nil, fmt.Errorf("%w: final grade is required", ErrValidationFailed)
	}
	sess, err := s.find(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}

	upd, err := s.machine.Review(sess, finalGrade, strings.TrimSpace(notes))
	if err != nil {
		return nil, fmt.Errorf("%w: session %s is %s", ErrNotReady, sess.Code, sess.Status)
	}
	if err := s.store.UpdateByCode(ctx, sess.Code, &sess.Status, upd); err != nil {
		return nil, s.storeError(err)
	}
	applyUpdate(sess, upd)

	s.logger.Info("session reviewed", zap.String("code", sess.Code))
	return sess, nil
}

// Get returns one session.
func (s *Service) Get(ctx context.Context, code string) (*models.Session, error) {
	return s.find(ctx, strings.TrimSpace(code))
}

// List returns sessions newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status models.Status, limit int) ([]*models.Session, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidationFailed, status)
	}
	return s.store.List(ctx, status, limit)
}

func (s *Service) find(ctx context.Context, code string) (*models.Session, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if !codes.IsValid(code) {
		return nil, fmt.Errorf("%w: %q is not a session code", ErrSessionNotFound, code)
	}
	sess, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, code)
	}
	return sess, nil
}

func (s *Service) storeError(err error) error {
	if errors.Is(err, sessions.ErrNotFound) {
		return ErrSessionNotFound
	}
	if errors.Is(err, sessions.ErrStatusConflict) {
		return err
	}
	return fmt.Errorf("update session: %w", err)
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func applyUpdate(sess *models.Session, upd sessions.Update) {
	if upd.Status != nil {
		sess.Status = *upd.Status
	}
	if upd.DefenseStartedAt != nil {
		sess.DefenseStartedAt = upd.DefenseStartedAt
	}
	if upd.DefenseEndedAt != nil {
		sess.DefenseEndedAt = upd.DefenseEndedAt
	}
	if upd.TranscriptText != nil {
		sess.TranscriptText = *upd.TranscriptText
	}
	if upd.ConversationID != nil {
		sess.ConversationID = *upd.ConversationID
	}
	if upd.Grade != nil {
		sess.Grade = *upd.Grade
	}
	if upd.Comments != nil {
		sess.Comments = *upd.Comments
	}
	if upd.InstructorNotes != nil {
		sess.InstructorNotes = *upd.InstructorNotes
	}
	if upd.FinalGrade != nil {
		sess.FinalGrade = *upd.FinalGrade
	}
}

// lockedRand serializes access to an RNG shared across request goroutines.
type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
