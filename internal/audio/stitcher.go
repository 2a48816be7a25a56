package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	DefaultMainFileName = "audio.wav"
	segmentFilePrefix   = "audio_segment_"
	failedSegmentSuffix = ".failed"
)

// Stitcher merges finalized segments into a session's main output file.
type Stitcher struct {
	// MainFileName is the main artifact name inside the session directory.
	MainFileName string
	// StrictFormat turns a main/segment format mismatch into ErrFormatMismatch
	// instead of a logged warning.
	StrictFormat bool
}

// NewStitcher returns a stitcher writing to mainFileName (default audio.wav).
func NewStitcher(mainFileName string, strictFormat bool) *Stitcher {
	if mainFileName == "" {
		mainFileName = DefaultMainFileName
	}
	return &Stitcher{MainFileName: mainFileName, StrictFormat: strictFormat}
}

// MainPath returns the main output file path for a session directory.
func (st *Stitcher) MainPath(sessionDir string) string {
	return filepath.Join(sessionDir, st.MainFileName)
}

// SegmentPath returns the path of segment index n.
func (st *Stitcher) SegmentPath(sessionDir string, n int) string {
	ext := filepath.Ext(st.MainFileName)
	return filepath.Join(sessionDir, fmt.Sprintf("%s%d%s", segmentFilePrefix, n, ext))
}

func (st *Stitcher) tempPath(sessionDir string) string {
	ext := filepath.Ext(st.MainFileName)
	return filepath.Join(sessionDir, strings.TrimSuffix(st.MainFileName, ext)+".temp"+ext)
}

// AppendSegment pops the most recently created pending segment of sess and
// merges it into the main file.
func (st *Stitcher) AppendSegment(sess *RecordingSession) error {
	segment, ok := sess.popSegment()
	if !ok {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNoSegments)
	}
	return st.Append(sess.dir, segment)
}

// Append merges one finalized segment file into the main file of sessionDir
// and removes the segment.
func (st *Stitcher) Append(sessionDir, segmentPath string) error {
	info, err := os.Stat(segmentPath)
	if err != nil {
		return fmt.Errorf("segment file not found: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("segment file is empty: %s", segmentPath)
	}

	mainPath := st.MainPath(sessionDir)
	if _, err := os.Stat(mainPath); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(segmentPath, mainPath); err != nil {
			return fmt.Errorf("failed to promote segment to main file: %w", err)
		}
		slog.Debug("First segment became the main audio file", "segment", segmentPath, "main", mainPath)
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to stat main file: %w", err)
	}

	if err := st.concat(sessionDir, mainPath, segmentPath); err != nil {
		return err
	}

	if err := os.Remove(segmentPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove stitched segment", "segment", segmentPath, "error", err)
	}
	return nil
}

// concat writes main ++ segment into a temp file and renames it over main.
func (st *Stitcher) concat(sessionDir, mainPath, segmentPath string) error {
	mainFormat, mainSamples, err := decodeFile(mainPath)
	if err != nil {
		return err
	}
	segFormat, segSamples, err := decodeFile(segmentPath)
	if err != nil {
		return err
	}

	if segFormat != mainFormat {
		if st.StrictFormat {
			return fmt.Errorf("%w: main %s, segment %s", ErrFormatMismatch, mainFormat, segFormat)
		}
		slog.Warn("Segment format mismatch with main file, continuing",
			"main_format", mainFormat.String(), "segment_format", segFormat.String(), "segment", segmentPath)
	}

	slog.Debug("Stitching segment", "main_samples", len(mainSamples), "segment_samples", len(segSamples))

	tempPath := st.tempPath(sessionDir)
	if err := writeFile(tempPath, mainFormat, mainSamples, segSamples); err != nil {
		os.Remove(tempPath)
		return err
	}

	if err := os.Rename(tempPath, mainPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace main file: %w", err)
	}
	return nil
}

// FinalizeRemaining merges every still-tracked segment in creation order and
// then removes leftover segment and temp files, even when a merge fails.
func (st *Stitcher) FinalizeRemaining(sess *RecordingSession) error {
	remaining := sess.drainSegments()

	var errs []error
	for _, segment := range remaining {
		if _, err := os.Stat(segment); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := st.Append(sess.dir, segment); err != nil {
			errs = append(errs, fmt.Errorf("segment %s: %w", filepath.Base(segment), err))
		}
	}

	for _, segment := range remaining {
		removeIfExists(segment)
	}
	st.sweep(sess.dir)

	return errors.Join(errs...)
}

// Leftovers lists segment files present in sessionDir, such as those left
// behind by an interrupted recording.
func (st *Stitcher) Leftovers(sessionDir string) ([]string, error) {
	pattern := filepath.Join(sessionDir, segmentFilePrefix+"*"+filepath.Ext(st.MainFileName))
	return filepath.Glob(pattern)
}

// sweep deletes untracked segment files and a leftover temp file.
func (st *Stitcher) sweep(sessionDir string) {
	strays, err := st.Leftovers(sessionDir)
	if err != nil {
		slog.Warn("Failed to list stray segments", "dir", sessionDir, "error", err)
	}
	for _, stray := range strays {
		slog.Debug("Removing stray segment", "path", stray)
		removeIfExists(stray)
	}
	removeIfExists(st.tempPath(sessionDir))
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove file", "path", path, "error", err)
	}
}

// ReadFormat reads the PCM format from a WAV file header.
func ReadFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return Format{}, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if !d.IsValidFile() {
		return Format{}, fmt.Errorf("invalid PCM file: %s", path)
	}
	return decoderFormat(d), nil
}

// readSamples decodes a WAV file into its format and raw integer samples.
func readSamples(path string) (Format, []int, error) {
	return decodeFile(path)
}

func decodeFile(path string) (Format, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Format{}, nil, fmt.Errorf("invalid PCM file: %s", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Format{}, nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return decoderFormat(d), buf.Data, nil
}

func decoderFormat(d *wav.Decoder) Format {
	return Format{
		Channels:      int(d.NumChans),
		SampleRate:    int(d.SampleRate),
		BitsPerSample: int(d.BitDepth),
	}
}

func writeFile(path string, format Format, parts ...[]int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, format.SampleRate, format.BitsPerSample, format.Channels, wavPCMFormat)
	for _, data := range parts {
		buf := &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.SampleRate,
			},
			Data:           data,
			SourceBitDepth: format.BitsPerSample,
		}
		if err := enc.Write(buf); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return f.Close()
}
