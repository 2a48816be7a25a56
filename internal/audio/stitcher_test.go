package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSegment(t *testing.T, path string, format Format, samples []float32) {
	t.Helper()
	w, err := OpenSegmentWriter(path, format)
	require.NoError(t, err)
	require.NoError(t, w.Write(samples))
	require.NoError(t, w.Finalize())
}

func TestStitcher_FirstSegmentBecomesMain(t *testing.T) {
	dir := t.TempDir()
	st := NewStitcher("", false)
	sess := newRecordingSession("s1", dir, DefaultFormat(), 1)

	seg := st.SegmentPath(dir, 0)
	samples := tone(220, 0.3, 16000, 400)
	writeSegment(t, seg, DefaultFormat(), samples)
	sess.addSegment(seg)

	require.NoError(t, st.AppendSegment(sess))

	assert.NoFileExists(t, seg)
	_, data, err := readSamples(filepath.Join(dir, "audio.wav"))
	require.NoError(t, err)
	assert.Equal(t, toInt16(samples), data)
	assert.Empty(t, sess.PendingSegments())
}

func TestStitcher_AppendConcatenates(t *testing.T) {
	dir := t.TempDir()
	st := NewStitcher("", false)
	sess := newRecordingSession("s1", dir, DefaultFormat(), 1)

	first := tone(220, 0.3, 16000, 300)
	second := tone(880, 0.6, 16000, 500)

	seg0 := st.SegmentPath(dir, 0)
	writeSegment(t, seg0, DefaultFormat(), first)
	sess.addSegment(seg0)
	require.NoError(t, st.AppendSegment(sess))

	seg1 := st.SegmentPath(dir, 1)
	writeSegment(t, seg1, DefaultFormat(), second)
	sess.addSegment(seg1)
	require.NoError(t, st.AppendSegment(sess))

	format, data, err := readSamples(st.MainPath(dir))
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat(), format)
	assert.Equal(t, append(toInt16(first), toInt16(second)...), data)
	assert.NoFileExists(t, seg1)
	assert.NoFileExists(t, filepath.Join(dir, "audio.temp.wav"))
}

func TestStitcher_FormatMismatch(t *testing.T) {
	newDir := func(t *testing.T, st *Stitcher) (string, string) {
		dir := t.TempDir()
		writeSegment(t, st.MainPath(dir), MonoFormat(16000), tone(220, 0.3, 16000, 100))
		seg := st.SegmentPath(dir, 1)
		writeSegment(t, seg, MonoFormat(44100), tone(220, 0.3, 44100, 50))
		return dir, seg
	}

	t.Run("tolerated", func(t *testing.T) {
		st := NewStitcher("", false)
		dir, seg := newDir(t, st)

		require.NoError(t, st.Append(dir, seg))

		format, data, err := readSamples(st.MainPath(dir))
		require.NoError(t, err)
		assert.Equal(t, MonoFormat(16000), format)
		assert.Len(t, data, 150)
	})

	t.Run("strict", func(t *testing.T) {
		st := NewStitcher("", true)
		dir, seg := newDir(t, st)

		err := st.Append(dir, seg)
		assert.ErrorIs(t, err, ErrFormatMismatch)
		assert.FileExists(t, seg)

		_, data, err := readSamples(st.MainPath(dir))
		require.NoError(t, err)
		assert.Len(t, data, 100)
	})
}

func TestStitcher_AppendSegmentWithoutPending(t *testing.T) {
	sess := newRecordingSession("s1", t.TempDir(), DefaultFormat(), 1)
	err := NewStitcher("", false).AppendSegment(sess)
	assert.ErrorIs(t, err, ErrNoSegments)
}

func TestStitcher_AppendMissingSegment(t *testing.T) {
	dir := t.TempDir()
	err := NewStitcher("", false).Append(dir, filepath.Join(dir, "audio_segment_9.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStitcher_FinalizeRemainingMergesInOrderAndSweeps(t *testing.T) {
	dir := t.TempDir()
	st := NewStitcher("", false)
	sess := newRecordingSession("s1", dir, DefaultFormat(), 1)

	parts := [][]float32{
		tone(220, 0.2, 16000, 100),
		tone(330, 0.4, 16000, 120),
		tone(440, 0.6, 16000, 140),
	}
	var want []int
	for i, p := range parts {
		seg := st.SegmentPath(dir, i)
		writeSegment(t, seg, DefaultFormat(), p)
		sess.addSegment(seg)
		want = append(want, toInt16(p)...)
	}

	stray := st.SegmentPath(dir, 42)
	require.NoError(t, os.WriteFile(stray, []byte("junk"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio.temp.wav"), []byte("junk"), 0644))

	require.NoError(t, st.FinalizeRemaining(sess))

	_, data, err := readSamples(st.MainPath(dir))
	require.NoError(t, err)
	assert.Equal(t, want, data)

	leftovers, err := filepath.Glob(filepath.Join(dir, "audio_segment_*.wav"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.NoFileExists(t, filepath.Join(dir, "audio.temp.wav"))
	assert.Empty(t, sess.PendingSegments())
}

func TestStitcher_FinalizeRemainingCleansUpAfterFailure(t *testing.T) {
	dir := t.TempDir()
	st := NewStitcher("", false)
	sess := newRecordingSession("s1", dir, DefaultFormat(), 1)

	writeSegment(t, st.MainPath(dir), DefaultFormat(), tone(220, 0.2, 16000, 100))

	broken := st.SegmentPath(dir, 1)
	require.NoError(t, os.WriteFile(broken, []byte("not a wav file"), 0644))
	sess.addSegment(broken)

	err := st.FinalizeRemaining(sess)
	assert.Error(t, err)
	assert.NoFileExists(t, broken)

	_, data, err := readSamples(st.MainPath(dir))
	require.NoError(t, err)
	assert.Len(t, data, 100)
}

func TestStitcher_CustomMainFileName(t *testing.T) {
	st := NewStitcher("lecture.wav", false)
	assert.Equal(t, filepath.Join("d", "lecture.wav"), st.MainPath("d"))
	assert.Equal(t, filepath.Join("d", "audio_segment_3.wav"), st.SegmentPath("d", 3))
	assert.Equal(t, filepath.Join("d", "lecture.temp.wav"), st.tempPath("d"))
}

func TestStitcher_Leftovers(t *testing.T) {
	dir := t.TempDir()
	st := NewStitcher("", false)
	writeSegment(t, st.SegmentPath(dir, 0), MonoFormat(16000), []float32{0.1, 0.2, 0.3})
	writeSegment(t, st.SegmentPath(dir, 3), MonoFormat(16000), []float32{0.4})
	writeSegment(t, st.MainPath(dir), MonoFormat(16000), []float32{0.5})

	leftovers, err := st.Leftovers(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{st.SegmentPath(dir, 0), st.SegmentPath(dir, 3)}, leftovers)
}
