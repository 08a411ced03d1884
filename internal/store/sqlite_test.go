package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "examiner.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sessions (code, student_name, paper_text, status, submitted_at, conversation_id)
		VALUES ('4821', 'Ada', 'essay', 'Submitted', 1700000000, 'conv-1')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening reruns schema init and migrations over existing data.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	count, err := db.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ok, err := columnExists(db.DB, "sessions", "conversation_id")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCodeLengthConstraint(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "examiner.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO sessions (code, student_name, paper_text, status, submitted_at)
		VALUES ('123', 'Ada', 'essay', 'Submitted', 1700000000)`)
	assert.Error(t, err)
}
