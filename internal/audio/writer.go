package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SegmentWriter owns one open PCM encoder bound to one segment file.
// It is not safe for concurrent use; callers serialize access through the
// session's writer slot.
type SegmentWriter struct {
	path   string
	format Format
	file   *os.File
	enc    *wav.Encoder
	buf    *goaudio.IntBuffer
	frames int
	closed bool
}

// OpenSegmentWriter creates path and writes a WAV header for format.
func OpenSegmentWriter(path string, format Format) (*SegmentWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	w := &SegmentWriter{
		path:   path,
		format: format,
		file:   file,
		enc:    wav.NewEncoder(file, format.SampleRate, format.BitsPerSample, format.Channels, wavPCMFormat),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.SampleRate,
			},
			SourceBitDepth: format.BitsPerSample,
		},
	}

	// An empty write emits the RIFF and data chunk headers, so a segment
	// finalized before any audio arrives is still a valid file.
	if err := w.enc.Write(w.buf); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write header for %s: %w", path, err)
	}

	return w, nil
}

// Path returns the segment file path.
func (w *SegmentWriter) Path() string { return w.path }

// Format returns the format the segment was opened with.
func (w *SegmentWriter) Format() Format { return w.format }

// Frames returns the number of frames written so far.
func (w *SegmentWriter) Frames() int { return w.frames }

// Write appends mono samples in [-1, 1].
func (w *SegmentWriter) Write(samples []float32) error {
	if w.closed {
		return fmt.Errorf("segment %s already finalized", w.path)
	}
	if len(samples) == 0 {
		return nil
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = sampleToInt16(s)
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write samples to %s: %w", w.path, err)
	}
	w.frames += len(samples) / max(w.format.Channels, 1)
	return nil
}

// WriteInterleaved downmixes an interleaved block to mono and writes it.
func (w *SegmentWriter) WriteInterleaved(samples []float32, channels int) error {
	return w.Write(Downmix(samples, channels))
}

// Finalize flushes header sizes and closes the file. Calling it again is a no-op.
func (w *SegmentWriter) Finalize() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to finalize %s: %w", w.path, err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close %s: %w", w.path, err))
	}
	return errors.Join(errs...)
}

// Downmix averages each interleaved frame into one mono sample. A trailing
// partial frame is averaged over the samples it has.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	out := make([]float32, 0, (len(samples)+channels-1)/channels)
	for start := 0; start < len(samples); start += channels {
		end := min(start+channels, len(samples))
		var sum float32
		for _, s := range samples[start:end] {
			sum += s
		}
		out = append(out, sum/float32(end-start))
	}
	return out
}

// sampleToInt16 converts a normalized sample, saturating at the int16 range.
func sampleToInt16(s float32) int {
	v := math.Round(float64(s) * math.MaxInt16)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int(v)
}
