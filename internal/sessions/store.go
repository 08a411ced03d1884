package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/hkoeze/chekhov-examiner-2/internal/models"
	"github.com/hkoeze/chekhov-examiner-2/internal/store"
)

var (
	// ErrNotFound is returned by UpdateByCode when no session has the code.
	ErrNotFound = errors.New("session not found")
	// ErrCodeTaken is returned by Create when the code is already issued.
	ErrCodeTaken = errors.New("session code already issued")
	// ErrStatusConflict is returned by UpdateByCode when the stored status no
	// longer matches the expected one.
	ErrStatusConflict = errors.New("session status changed concurrently")
)

// Update lists the mutable fields of a session. Nil fields are left as stored.
// Code, student name and paper text are immutable and deliberately absent.
type Update struct {
	Status           *models.Status
	DefenseStartedAt *int64
	DefenseEndedAt   *int64
	TranscriptText   *string
	ConversationID   *string
	Grade            *string
	Comments         *string
	InstructorNotes  *string
	FinalGrade       *string
}

func (u Update) assignments() ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.DefenseStartedAt != nil {
		add("defense_started_at", *u.DefenseStartedAt)
	}
	if u.DefenseEndedAt != nil {
		add("defense_ended_at", *u.DefenseEndedAt)
	}
	if u.TranscriptText != nil {
		add("transcript_text", *u.TranscriptText)
	}
	if u.ConversationID != nil {
		add("conversation_id", *u.ConversationID)
	}
	if u.Grade != nil {
		add("grade", *u.Grade)
	}
	if u.Comments != nil {
		add("comments", *u.Comments)
	}
	if u.InstructorNotes != nil {
		add("instructor_notes", *u.InstructorNotes)
	}
	if u.FinalGrade != nil {
		add("final_grade", *u.FinalGrade)
	}
	return cols, args
}

// Store handles Session persistence on SQLite.
type Store struct {
	db *store.DB
}

// NewStore creates a new session store.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

const sessionColumns = `code, student_name, paper_text, status, submitted_at,
	defense_started_at, defense_ended_at, transcript_text, conversation_id,
	grade, comments, instructor_notes, final_grade`

// Create inserts a new session. It returns ErrCodeTaken if the code exists.
func (s *Store) Create(ctx context.Context, sess *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (code, student_name, paper_text, status, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.Code, sess.StudentName, sess.PaperText, string(sess.Status), sess.SubmittedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return ErrCodeTaken
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindByCode fetches a session by code. It returns nil, nil when absent.
func (s *Store) FindByCode(ctx context.Context, code string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code = ?`, code)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// UpdateByCode writes the non-nil fields of upd. When expected is set the
// write only happens if the stored status still equals *expected, otherwise
// ErrStatusConflict is returned and nothing changes.
func (s *Store) UpdateByCode(ctx context.Context, code string, expected *models.Status, upd Update) error {
	cols, args := upd.assignments()
	if len(cols) == 0 {
		return s.checkCurrent(ctx, code, expected)
	}

	query := `UPDATE sessions SET ` + strings.Join(cols, ", ") + ` WHERE code = ?`
	args = append(args, code)
	if expected != nil {
		query += ` AND status = ?`
		args = append(args, string(*expected))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.checkCurrent(ctx, code, expected)
}

// checkCurrent explains why an update touched no rows.
func (s *Store) checkCurrent(ctx context.Context, code string, expected *models.Status) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE code = ?`, code).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check session status: %w", err)
	}
	if expected != nil && models.Status(status) != *expected {
		return ErrStatusConflict
	}
	return nil
}

// Codes returns every issued code.
func (s *Store) Codes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	defer rows.Close()

	codes := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan code: %w", err)
		}
		codes[code] = struct{}{}
	}
	return codes, rows.Err()
}

// List returns sessions newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status models.Status, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY submitted_at DESC, code ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var sess models.Session
	var status string
	var startedAt, endedAt sql.NullInt64

	err := row.Scan(
		&sess.Code, &sess.StudentName, &sess.PaperText, &status, &sess.SubmittedAt,
		&startedAt, &endedAt, &sess.TranscriptText, &sess.ConversationID,
		&sess.Grade, &sess.Comments, &sess.InstructorNotes, &sess.FinalGrade,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = models.Status(status)
	if startedAt.Valid {
		sess.DefenseStartedAt = &startedAt.Int64
	}
	if endedAt.Valid {
		sess.DefenseEndedAt = &endedAt.Int64
	}
	return &sess, nil
}
