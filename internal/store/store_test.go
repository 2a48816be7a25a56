package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_CreateAndGet(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	sess, err := s.Create("  Linear Algebra  ", "MATH 201")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "Linear Algebra", sess.Title)
	assert.Equal(t, StatusDraft, sess.Status)
	assert.DirExists(t, s.SessionDir(sess.ID))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, *sess, *got)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_CreateRequiresTitle(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.Create("   ", "course")
	assert.Error(t, err)
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	sess, err := s.Create("Compilers", "CS 420")
	require.NoError(t, err)
	require.NoError(t, s.Update(sess.ID, func(x *Session) {
		x.AudioPath = filepath.Join(s.SessionDir(x.ID), "audio.wav")
		x.DurationMs = 1500
	}))
	require.NoError(t, s.UpdateStatus(sess.ID, StatusComplete))

	reopened, err := Open(dir)
	require.NoError(t, err)
	got, err := reopened.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, int64(1500), got.DurationMs)
	assert.Equal(t, filepath.Join(dir, "sessions", sess.ID, "audio.wav"), got.AudioPath)
	assert.True(t, sess.CreatedAt.Equal(got.CreatedAt))
}

func TestFileStore_ListNewestFirst(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	first, err := s.Create("first", "")
	require.NoError(t, err)
	require.NoError(t, s.Update(first.ID, func(x *Session) {
		x.CreatedAt = x.CreatedAt.Add(-time.Hour)
	}))
	second, err := s.Create("second", "")
	require.NoError(t, err)

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestFileStore_UpdateStatusValidates(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	sess, err := s.Create("x", "")
	require.NoError(t, err)

	assert.Error(t, s.UpdateStatus(sess.ID, Status("bogus")))
	assert.ErrorIs(t, s.UpdateStatus("missing", StatusArchived), ErrNotFound)
}

func TestFileStore_Delete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	sess, err := s.Create("x", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.SessionDir(sess.ID), "audio.wav"), []byte("x"), 0644))
	require.NoError(t, s.Delete(sess.ID))

	assert.NoDirExists(t, s.SessionDir(sess.ID))
	_, err = s.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(sess.ID), ErrNotFound)
}

func TestOpen_RejectsUnknownStatus(t *testing.T) {
	dir := t.TempDir()
	content := `sessions:
  - id: abc
    title: broken
    status: lost
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.yaml"), []byte(content), 0644))

	_, err := Open(dir)
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"draft", "recording", "complete", "archived"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), st)
	}

	_, err := ParseStatus("Draft")
	assert.Error(t, err)
}
