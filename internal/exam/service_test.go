package exam

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkoeze/chekhov-examiner-2/internal/codes"
	"github.com/hkoeze/chekhov-examiner-2/internal/grading"
	"github.com/hkoeze/chekhov-examiner-2/internal/models"
	"github.com/hkoeze/chekhov-examiner-2/internal/questions"
	"github.com/hkoeze/chekhov-examiner-2/internal/sessions"
	"github.com/hkoeze/chekhov-examiner-2/internal/store"
	"github.com/hkoeze/chekhov-examiner-2/internal/transcript"
)

var testNow = time.Unix(1700000000, 0).UTC()

type fakeGrader struct {
	result grading.Result
	err    error
	calls  int
}

func (f *fakeGrader) Grade(_ context.Context, _, _ string) (grading.Result, error) {
	f.calls++
	return f.result, f.err
}

func testLimits() Limits {
	return Limits{
		MaxEssayChars:           200,
		DefaultContentQuestions: 3,
		DefaultProcessQuestions: 2,
		AllowTranscriptReingest: true,
	}
}

func setupService(t *testing.T, limits Limits, opts ...Option) (*Service, *sessions.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "exam.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bank, err := questions.DefaultBank()
	require.NoError(t, err)

	st := sessions.NewStore(db)
	base := []Option{
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithClock(func() time.Time { return testNow }),
	}
	svc := NewService(st, bank, limits, zap.NewNop(), append(base, opts...)...)
	return svc, st
}

func webhook(conversationID, transcriptJSON string) *models.TranscriptWebhook {
	return &models.TranscriptWebhook{
		Type: "post_call_transcription",
		Data: &models.WebhookData{
			ConversationID: conversationID,
			Transcript:     json.RawMessage(transcriptJSON),
		},
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits())

	code, err := svc.Submit(ctx, "  Ada Lovelace ", " On the analytical engine. ")
	require.NoError(t, err)
	assert.True(t, codes.IsValid(code), "code %q", code)

	sess, err := st.FindByCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "Ada Lovelace", sess.StudentName)
	assert.Equal(t, "On the analytical engine.", sess.PaperText)
	assert.Equal(t, models.StatusSubmitted, sess.Status)
	assert.Equal(t, testNow.Unix(), sess.SubmittedAt)
	assert.Nil(t, sess.DefenseStartedAt)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits())

	tests := []struct {
		name, student, essay string
	}{
		{"blank name", "   ", "essay"},
		{"blank essay", "Ada", " \n\t "},
		{"essay too long", "Ada", strings.Repeat("a", 201)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.student, tt.essay)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}

	issued, err := st.Codes(ctx)
	require.NoError(t, err)
	assert.Empty(t, issued, "failed validation must not create sessions")
}

func TestSubmitLimitCountsCharacters(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, testLimits())

	// 200 multi-byte runes are within a 200 character limit.
	_, err := svc.Submit(ctx, "Ada", strings.Repeat("é", 200))
	assert.NoError(t, err)
}

func TestSubmitIssuesDistinctCodes(t *testing.T) {
	ctx := context.Background()
	limits := testLimits()
	svc, _ := setupService(t, limits)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := svc.Submit(ctx, "Student", "Essay body")
		require.NoError(t, err)
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true
	}
}

func TestSubmitConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, "Student", "Essay body")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	issued, err := st.Codes(ctx)
	require.NoError(t, err)
	assert.Len(t, issued, 20)
}

// tickingClock advances one second per reading so every write carries a
// distinct timestamp.
func tickingClock() func() time.Time {
	var ticks atomic.Int64
	return func() time.Time {
		return testNow.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
}

func TestFetchEssay(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits(), WithClock(tickingClock()))

	code, err := svc.Submit(ctx, "Ada", "one two three")
	require.NoError(t, err)

	var startedAt int64
	t.Run("first fetch starts the defense", func(t *testing.T) {
		sess, err := svc.FetchEssay(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "Ada", sess.StudentName)
		assert.Equal(t, models.StatusDefenseStarted, sess.Status)
		require.NotNil(t, sess.DefenseStartedAt)
		startedAt = *sess.DefenseStartedAt

		stored, err := st.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDefenseStarted, stored.Status)
		require.NotNil(t, stored.DefenseStartedAt)
		assert.Equal(t, startedAt, *stored.DefenseStartedAt)
	})

	t.Run("reconnect keeps the start time", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			sess, err := svc.FetchEssay(ctx, code)
			require.NoError(t, err)
			assert.Equal(t, models.StatusDefenseStarted, sess.Status)
			assert.Equal(t, startedAt, *sess.DefenseStartedAt)
		}

		stored, err := st.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, startedAt, *stored.DefenseStartedAt)
	})

	t.Run("missing code", func(t *testing.T) {
		_, err := svc.FetchEssay(ctx, "  ")
		assert.ErrorIs(t, err, ErrMissingCode)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.FetchEssay(ctx, "0000")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("closed after transcript leaves session unchanged", func(t *testing.T) {
		_, err := svc.IngestTranscript(ctx, webhook("conv-1", `"STUDENT: my code is `+code+`"`))
		require.NoError(t, err)

		before, err := st.FindByCode(ctx, code)
		require.NoError(t, err)

		_, err = svc.FetchEssay(ctx, code)
		assert.ErrorIs(t, err, ErrSessionAlreadyUsed)

		after, err := st.FindByCode(ctx, code)
		require.NoError(t, err)
		if diff := cmp.Diff(before, after); diff != "" {
			t.Errorf("rejected fetch changed the session (-before +after):\n%s", diff)
		}
		assert.Equal(t, startedAt, *after.DefenseStartedAt)
	})
}

func TestFetchEssayConcurrentFirstFetch(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits(), WithClock(tickingClock()))

	code, err := svc.Submit(ctx, "Ada", "essay")
	require.NoError(t, err)

	var wg sync.WaitGroup
	starts := make(chan int64, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := svc.FetchEssay(ctx, code)
			if assert.NoError(t, err) {
				starts <- *sess.DefenseStartedAt
			}
		}()
	}
	wg.Wait()
	close(starts)

	stored, err := st.FindByCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, stored.DefenseStartedAt)

	n := 0
	for ts := range starts {
		n++
		assert.Equal(t, *stored.DefenseStartedAt, ts, "every fetch must see the single stored start time")
	}
	assert.Equal(t, 8, n)
}

func TestFetchEssayRacingTranscript(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits(), WithClock(tickingClock()))

	for i := 0; i < 20; i++ {
		code, err := svc.Submit(ctx, "Student", "essay")
		require.NoError(t, err)

		var wg sync.WaitGroup
		var fetchErr, ingestErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, fetchErr = svc.FetchEssay(ctx, code)
		}()
		go func() {
			defer wg.Done()
			_, ingestErr = svc.IngestTranscript(ctx, webhook("conv", `"code `+code+`"`))
		}()
		wg.Wait()

		require.NoError(t, ingestErr, "round %d", i)
		if fetchErr != nil {
			assert.ErrorIs(t, fetchErr, ErrSessionAlreadyUsed, "round %d", i)
		}

		sess, err := st.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDefenseComplete, sess.Status, "round %d", i)
		assert.Equal(t, "code "+code, sess.TranscriptText, "round %d", i)
		require.NotNil(t, sess.DefenseEndedAt)
	}
}

// countingStore records how often the service reaches storage.
type countingStore struct {
	SessionStore
	finds atomic.Int64
}

func (c *countingStore) FindByCode(ctx context.Context, code string) (*models.Session, error) {
	c.finds.Add(1)
	return c.SessionStore.FindByCode(ctx, code)
}

func TestMalformedCodeSkipsStore(t *testing.T) {
	ctx := context.Background()
	_, st := setupService(t, testLimits())
	counting := &countingStore{SessionStore: st}
	svc := NewService(counting, nil, testLimits(), zap.NewNop())

	for _, code := range []string{"12a4", "123", "12345", "0123"} {
		_, err := svc.FetchEssay(ctx, code)
		assert.ErrorIs(t, err, ErrSessionNotFound, "code %q", code)
		_, err = svc.Get(ctx, code)
		assert.ErrorIs(t, err, ErrSessionNotFound, "code %q", code)
	}
	assert.Zero(t, counting.finds.Load())
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount(" \n\t"))
	assert.Equal(t, 4, WordCount("  one two\nthree\tfour "))
}

func TestFetchQuestions(t *testing.T) {
	svc, _ := setupService(t, testLimits())

	t.Run("defaults", func(t *testing.T) {
		sel, err := svc.FetchQuestions(nil, nil)
		require.NoError(t, err)
		assert.Len(t, sel.Content, 3)
		assert.Len(t, sel.Process, 2)
		assert.Equal(t, 5, sel.Total())
	})

	t.Run("explicit counts", func(t *testing.T) {
		one, zero := 1, 0
		sel, err := svc.FetchQuestions(&one, &zero)
		require.NoError(t, err)
		assert.Len(t, sel.Content, 1)
		assert.Empty(t, sel.Process)
	})

	t.Run("clamped to bank", func(t *testing.T) {
		many := 1000
		sel, err := svc.FetchQuestions(&many, &many)
		require.NoError(t, err)
		bank, err := questions.DefaultBank()
		require.NoError(t, err)
		content, process := bank.Partition()
		assert.Len(t, sel.Content, len(content))
		assert.Len(t, sel.Process, len(process))
	})

	t.Run("negative rejected", func(t *testing.T) {
		neg := -1
		_, err := svc.FetchQuestions(&neg, nil)
		assert.ErrorIs(t, err, ErrValidationFailed)
	})
}

func TestIngestTranscript(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits())

	code, err := svc.Submit(ctx, "Ada", "essay")
	require.NoError(t, err)
	_, err = svc.FetchEssay(ctx, code)
	require.NoError(t, err)

	entries := `[
		{"role": "agent", "message": "Hello. What is your session code?"},
		{"role": "user", "message": "It is ` + code + `."}
	]`
	res, err := svc.IngestTranscript(ctx, webhook("conv-42", entries))
	require.NoError(t, err)
	assert.Equal(t, code, res.Code)
	assert.Equal(t, transcript.TierContext, res.Tier)
	assert.False(t, res.Replaced)

	sess, err := st.FindByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDefenseComplete, sess.Status)
	assert.Equal(t, "conv-42", sess.ConversationID)
	require.NotNil(t, sess.DefenseEndedAt)
	assert.Equal(t, testNow.Unix(), *sess.DefenseEndedAt)

	want := "EXAMINER: Hello. What is your session code?\n\nSTUDENT: It is " + code + "."
	if diff := cmp.Diff(want, sess.TranscriptText); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestTranscriptSkipsDefenseStarted(t *testing.T) {
	ctx := context.Background()
	svc, st := setupService(t, testLimits())

	code, err := svc.Submit(ctx, "Ada", "essay")
	require.NoError(t, err)

	_, err = svc.IngestTranscript(ctx, webhook("conv-1", `"code `+code+`"`))
	require.NoError(t, err)

	sess, err := st.FindByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDefenseComplete, sess.Status)
	assert.Nil(t, sess.DefenseStartedAt)
}

func TestIngestTranscriptReingest(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed replaces transcript", func(t *testing.T) {
		svc, st := setupService(t, testLimits())
		code, err := svc.Submit(ctx, "Ada", "essay")
		require.NoError(t, err)

		_, err = svc.IngestTranscript(ctx, webhook("conv-1", `"first code `+code+`"`))
		require.NoError(t, err)
		res, err := svc.IngestTranscript(ctx, webhook("conv-2", `"second code `+code+`"`))
		require.NoError(t, err)
		assert.True(t, res.Replaced)

		sess, err := st.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "second code "+code, sess.TranscriptText)
		assert.Equal(t, "conv-2", sess.ConversationID)
	})

	t.Run("disallowed rejects", func(t *testing.T) {
		limits := testLimits()
		limits.AllowTranscriptReingest = false
		svc, st := setupService(t, limits)
		code, err := svc.Submit(ctx, "Ada", "essay")
		require.NoError(t, err)

		_, err = svc.IngestTranscript(ctx, webhook("conv-1", `"first code `+code+`"`))
		require.NoError(t, err)
		_, err = svc.IngestTranscript(ctx, webhook("conv-2", `"second code `+code+`"`))
		assert.ErrorIs(t, err, ErrSessionAlreadyUsed)

		sess, err := st.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, "first code "+code, sess.TranscriptText)
	})
}

func TestIngestTranscriptErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, testLimits())

	tests := []struct {
		name    string
		payload *models.TranscriptWebhook
		wantErr error
	}{
		{"nil payload", nil, ErrMalformedPayload},
		{"missing data", &models.TranscriptWebhook{Type: "x"}, ErrMalformedPayload},
		{"empty transcript", webhook("c", ``), ErrMalformedPayload},
		{"null transcript", webhook("c", `null`), ErrMalformedPayload},
		{"no digits", webhook("c", `"no numbers here"`), ErrMissingCode},
		{"unknown code", webhook("c", `"code 9999"`), ErrSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.IngestTranscript(ctx, tt.payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGradeAndReview(t *testing.T) {
	ctx := context.Background()
	grader := &fakeGrader{result: grading.Result{Grade: "B+", Comments: "Solid defense."}}
	svc, st := setupService(t, testLimits(), WithGrader(grader))

	code, err := svc.Submit(ctx, "Ada", "essay")
	require.NoError(t, err)

	_, err = svc.Grade(ctx, code)
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = svc.Review(ctx, code, "A", "")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = svc.IngestTranscript(ctx, webhook("c", `"code `+code+`"`))
	require.NoError(t, err)

	sess, err := svc.Grade(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGraded, sess.Status)
	assert.Equal(t, "B+", sess.Grade)
	assert.Equal(t, 1, grader.calls)

	_, err = svc.Review(ctx, code, "  ", "notes")
	assert.ErrorIs(t, err, ErrValidationFailed)

	sess, err = svc.Review(ctx, code, "A-", " Strong answers. ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReviewed, sess.Status)

	stored, err := st.FindByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "A-", stored.FinalGrade)
	assert.Equal(t, "Strong answers.", stored.InstructorNotes)
	assert.Equal(t, "Solid defense.", stored.Comments)

	_, err = svc.IngestTranscript(ctx, webhook("c", `"code `+code+`"`))
	assert.ErrorIs(t, err, ErrSessionAlreadyUsed, "reviewed sessions never move backwards")
}

func TestGradeUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("no grader", func(t *testing.T) {
		svc, _ := setupService(t, testLimits())
		_, err := svc.Grade(ctx, "1234")
		assert.ErrorIs(t, err, ErrGradingUnavailable)
	})

	t.Run("disabled grader", func(t *testing.T) {
		svc, _ := setupService(t, testLimits(), WithGrader(&fakeGrader{err: grading.ErrDisabled}))
		code, err := svc.Submit(ctx, "Ada", "essay")
		require.NoError(t, err)
		_, err = svc.IngestTranscript(ctx, webhook("c", `"code `+code+`"`))
		require.NoError(t, err)

		_, err = svc.Grade(ctx, code)
		assert.ErrorIs(t, err, ErrGradingUnavailable)
	})
}

func TestGradePending(t *testing.T) {
	ctx := context.Background()
	grader := &fakeGrader{result: grading.Result{Grade: "A"}}
	svc, _ := setupService(t, testLimits(), WithGrader(grader))

	var done []string
	for i := 0; i < 3; i++ {
		code, err := svc.Submit(ctx, "Student", "essay")
		require.NoError(t, err)
		if i < 2 {
			_, err = svc.IngestTranscript(ctx, webhook("c", `"code `+code+`"`))
			require.NoError(t, err)
			done = append(done, code)
		}
	}

	graded, failed, err := svc.GradePending(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, failed)
	require.Len(t, graded, 2)
	var got []string
	for _, s := range graded {
		got = append(got, s.Code)
	}
	assert.ElementsMatch(t, done, got)

	t.Run("upstream failures are counted", func(t *testing.T) {
		grader.err = errors.New("model offline")
		code, err := svc.Submit(ctx, "Student", "essay")
		require.NoError(t, err)
		_, err = svc.IngestTranscript(ctx, webhook("c", `"code `+code+`"`))
		require.NoError(t, err)

		graded, failed, err := svc.GradePending(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, graded)
		assert.Equal(t, 1, failed)
	})
}

func TestListAndGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, testLimits())

	code, err := svc.Submit(ctx, "Ada", "essay")
	require.NoError(t, err)

	sess, err := svc.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, code, sess.Code)

	_, err = svc.Get(ctx, "0000")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	list, err := svc.List(ctx, models.StatusSubmitted, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.List(ctx, models.Status("Bogus"), 0)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCheckSecret(t *testing.T) {
	assert.True(t, CheckSecret("s3cret", "s3cret"))
	assert.False(t, CheckSecret("S3CRET", "s3cret"))
	assert.False(t, CheckSecret("s3cret ", "s3cret"))
	assert.False(t, CheckSecret("", "s3cret"))
	assert.False(t, CheckSecret("", ""))
}

func TestNeedsOperator(t *testing.T) {
	assert.False(t, NeedsOperator(nil))
	assert.False(t, NeedsOperator(ErrSessionNotFound))
	assert.False(t, NeedsOperator(ErrValidationFailed))
	assert.True(t, NeedsOperator(ErrGenerationExhausted))
	assert.True(t, NeedsOperator(errors.New("disk on fire")))
}
