package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// RecordingSession is the live capture state of one session. The capture
// callback only touches the atomic flags, the level broadcaster inbox and the
// writer slot; everything else belongs to the control path.
type RecordingSession struct {
	ID string

	dir           string
	format        Format
	inputChannels int
	startedAt     time.Time

	capturing atomic.Bool
	paused    atomic.Bool

	// writer slot shared with the callback
	writerMu sync.Mutex
	writer   *SegmentWriter

	// serializes pause/resume/stop for this session
	ctrl sync.Mutex

	segMu     sync.Mutex
	segments  []string
	nextIndex int

	stream Stream
	levels *LevelBroadcaster

	writeErrors atomic.Int64
	pauses      int
}

func newRecordingSession(id, dir string, format Format, inputChannels int) *RecordingSession {
	return &RecordingSession{
		ID:            id,
		dir:           dir,
		format:        format,
		inputChannels: inputChannels,
		startedAt:     time.Now(),
	}
}

// Dir returns the session directory.
func (s *RecordingSession) Dir() string { return s.dir }

// Capturing reports whether the stream is delivering samples to this session.
func (s *RecordingSession) Capturing() bool { return s.capturing.Load() }

// Paused reports whether incoming samples are being discarded.
func (s *RecordingSession) Paused() bool { return s.paused.Load() }

// handleInput is the hardware callback. It never blocks on anything but the
// writer slot mutex.
func (s *RecordingSession) handleInput(in []float32) {
	if !s.capturing.Load() {
		return
	}
	if s.levels != nil {
		s.levels.Push(EstimateLevel(in))
	}
	if s.paused.Load() {
		return
	}

	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if s.writer == nil {
		return
	}

	var err error
	if s.inputChannels > 1 {
		err = s.writer.WriteInterleaved(in, s.inputChannels)
	} else {
		err = s.writer.Write(in)
	}
	if err != nil {
		s.writeErrors.Add(1)
	}
}

func (s *RecordingSession) installWriter(w *SegmentWriter) {
	s.writerMu.Lock()
	s.writer = w
	s.writerMu.Unlock()
}

// takeWriter empties the slot. Once it returns, no callback holds the writer.
func (s *RecordingSession) takeWriter() *SegmentWriter {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	w := s.writer
	s.writer = nil
	return w
}

func (s *RecordingSession) allocateSegmentIndex() int {
	s.segMu.Lock()
	defer s.segMu.Unlock()

	n := s.nextIndex
	s.nextIndex++
	return n
}

func (s *RecordingSession) addSegment(path string) {
	s.segMu.Lock()
	s.segments = append(s.segments, path)
	s.segMu.Unlock()
}

func (s *RecordingSession) popSegment() (string, bool) {
	s.segMu.Lock()
	defer s.segMu.Unlock()

	if len(s.segments) == 0 {
		return "", false
	}
	last := s.segments[len(s.segments)-1]
	s.segments = s.segments[:len(s.segments)-1]
	return last, true
}

// dropSegment stops tracking path, wherever it sits in the list.
func (s *RecordingSession) dropSegment(path string) bool {
	s.segMu.Lock()
	defer s.segMu.Unlock()

	for i, seg := range s.segments {
		if seg == path {
			s.segments = append(s.segments[:i], s.segments[i+1:]...)
			return true
		}
	}
	return false
}

func (s *RecordingSession) drainSegments() []string {
	s.segMu.Lock()
	defer s.segMu.Unlock()

	out := s.segments
	s.segments = nil
	return out
}

// PendingSegments returns a copy of the segment paths not yet stitched.
func (s *RecordingSession) PendingSegments() []string {
	s.segMu.Lock()
	defer s.segMu.Unlock()

	return append([]string(nil), s.segments...)
}
