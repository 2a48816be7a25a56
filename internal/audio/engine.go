package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// EngineOptions tunes the capture engine.
type EngineOptions struct {
	// DeviceName selects an input device by name; empty means the default device.
	DeviceName      string
	Rates           RatePreference
	FramesPerBuffer int
	// SettleDelay is waited after setting the paused flag and before taking
	// the writer, so in-flight callbacks observe the flag first.
	SettleDelay   time.Duration
	LevelInterval time.Duration
	MainFileName  string
	StrictFormat  bool
}

// Engine records any number of concurrent sessions from a Backend.
type Engine struct {
	backend  Backend
	opts     EngineOptions
	stitcher *Stitcher

	mutex    sync.Mutex
	sessions map[string]*RecordingSession
}

// NewEngine creates an engine bound to backend.
func NewEngine(backend Backend, opts EngineOptions) *Engine {
	return &Engine{
		backend:  backend,
		opts:     opts,
		stitcher: NewStitcher(opts.MainFileName, opts.StrictFormat),
		sessions: make(map[string]*RecordingSession),
	}
}

// MainPath returns the main output file for a session directory.
func (e *Engine) MainPath(sessionDir string) string {
	return e.stitcher.MainPath(sessionDir)
}

// Start negotiates a device configuration, opens segment 0 and starts the
// input stream for sessionID.
func (e *Engine) Start(sessionID, sessionDir string, sink LevelSink) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if _, ok := e.sessions[sessionID]; ok {
		return fmt.Errorf("session %s: %w", sessionID, ErrAlreadyRecording)
	}

	device, err := SelectDevice(e.backend, e.opts.DeviceName)
	if err != nil {
		return err
	}
	ranges, err := device.SupportedInputConfigs()
	if err != nil {
		return fmt.Errorf("failed to query input configs of %s: %w", device.Name(), err)
	}
	cfg, err := NegotiateConfig(ranges, e.opts.Rates)
	if err != nil {
		return err
	}
	cfg.FramesPerBuffer = e.opts.FramesPerBuffer

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	sess := newRecordingSession(sessionID, sessionDir, MonoFormat(cfg.SampleRate), cfg.Channels)

	segPath := e.stitcher.SegmentPath(sessionDir, sess.allocateSegmentIndex())
	writer, err := OpenSegmentWriter(segPath, sess.format)
	if err != nil {
		return err
	}
	sess.addSegment(segPath)
	sess.installWriter(writer)

	abort := func() {
		sess.capturing.Store(false)
		if w := sess.takeWriter(); w != nil {
			w.Finalize()
		}
		removeIfExists(segPath)
	}

	sess.levels = NewLevelBroadcaster(sessionID, e.opts.LevelInterval, sink)

	stream, err := device.OpenInputStream(cfg, sess.handleInput)
	if err != nil {
		abort()
		return fmt.Errorf("failed to open input stream on %s: %w", device.Name(), err)
	}

	sess.capturing.Store(true)
	if err := stream.Start(); err != nil {
		abort()
		if cerr := stream.Close(); cerr != nil {
			slog.Debug("Failed to close stream after start error", "error", cerr)
		}
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	sess.stream = stream
	sess.levels.Run()

	e.sessions[sessionID] = sess

	slog.Info("Recording started",
		"session_id", sessionID,
		"device", device.Name(),
		"sample_rate", cfg.SampleRate,
		"input_channels", cfg.Channels,
		"segment", segPath)
	return nil
}

// Pause finalizes the current segment and stitches it into the main file.
// The stream keeps running so level events continue.
func (e *Engine) Pause(sessionID string) error {
	sess, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.ctrl.Lock()
	defer sess.ctrl.Unlock()

	if !sess.capturing.Load() {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotRecording)
	}
	if sess.paused.Load() {
		return fmt.Errorf("session %s: %w", sessionID, ErrAlreadyPaused)
	}

	sess.paused.Store(true)
	if e.opts.SettleDelay > 0 {
		time.Sleep(e.opts.SettleDelay)
	}

	sess.pauses++
	writer := sess.takeWriter()
	if writer != nil {
		if err := writer.Finalize(); err != nil {
			e.quarantine(sess, writer.Path())
			return fmt.Errorf("failed to finalize segment on pause: %w", err)
		}
		slog.Debug("Segment finalized", "session_id", sessionID, "segment", writer.Path(), "frames", writer.Frames())
	}

	if err := e.stitcher.AppendSegment(sess); err != nil {
		slog.Error("Failed to stitch segment on pause", "session_id", sessionID, "error", err)
	}

	slog.Info("Recording paused", "session_id", sessionID)
	return nil
}

// quarantine stops tracking a segment whose writer failed to finalize so it
// can never be stitched out of order. The file is kept under a name the
// segment sweep does not match.
func (e *Engine) quarantine(sess *RecordingSession, segPath string) {
	sess.dropSegment(segPath)

	failedPath := segPath + failedSegmentSuffix
	if err := os.Rename(segPath, failedPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to set aside broken segment", "session_id", sess.ID, "segment", segPath, "error", err)
		return
	}
	slog.Error("Segment set aside after finalize failure", "session_id", sess.ID, "path", failedPath)
}

// Resume opens a new segment in the main file's format and clears the
// paused flag. An empty sessionDir keeps the directory given to Start.
func (e *Engine) Resume(sessionID, sessionDir string) error {
	sess, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.ctrl.Lock()
	defer sess.ctrl.Unlock()

	if !sess.capturing.Load() {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotRecording)
	}
	if !sess.paused.Load() {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotPaused)
	}

	if sessionDir != "" && sessionDir != sess.dir {
		slog.Warn("Resume directory differs from start directory", "session_id", sessionID, "start_dir", sess.dir, "resume_dir", sessionDir)
		sess.dir = sessionDir
	}

	format := e.resumeFormat(sess)
	segPath := e.stitcher.SegmentPath(sess.dir, sess.allocateSegmentIndex())
	writer, err := OpenSegmentWriter(segPath, format)
	if err != nil {
		return err
	}

	sess.addSegment(segPath)
	sess.installWriter(writer)
	sess.paused.Store(false)

	slog.Info("Recording resumed", "session_id", sessionID, "segment", segPath, "format", format.String())
	return nil
}

func (e *Engine) resumeFormat(sess *RecordingSession) Format {
	mainPath := e.stitcher.MainPath(sess.dir)
	if _, err := os.Stat(mainPath); err == nil {
		format, err := ReadFormat(mainPath)
		if err == nil {
			return format
		}
		slog.Warn("Failed to read main file format, using session format", "path", mainPath, "error", err)
	}
	if sess.format.SampleRate > 0 {
		return sess.format
	}
	return DefaultFormat()
}

// Stop ends capture, stitches the last segment and cleans up the session
// directory. The session is forgotten afterwards.
func (e *Engine) Stop(sessionID string) error {
	sess, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.ctrl.Lock()
	defer sess.ctrl.Unlock()

	if !sess.capturing.Load() {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotRecording)
	}

	sess.capturing.Store(false)
	sess.paused.Store(false)

	if sess.stream != nil {
		if err := sess.stream.Stop(); err != nil {
			slog.Warn("Failed to stop input stream", "session_id", sessionID, "error", err)
		}
		if err := sess.stream.Close(); err != nil {
			slog.Warn("Failed to close input stream", "session_id", sessionID, "error", err)
		}
		sess.stream = nil
	}
	if sess.levels != nil {
		sess.levels.Stop()
	}

	var finalizeErr error
	if writer := sess.takeWriter(); writer != nil {
		finalizeErr = writer.Finalize()
		if finalizeErr == nil {
			if err := e.stitcher.AppendSegment(sess); err != nil {
				slog.Error("Failed to stitch final segment", "session_id", sessionID, "error", err)
			}
		}
	}

	if err := e.stitcher.FinalizeRemaining(sess); err != nil {
		slog.Error("Failed to merge remaining segments", "session_id", sessionID, "error", err)
	}

	e.mutex.Lock()
	delete(e.sessions, sessionID)
	e.mutex.Unlock()

	if n := sess.writeErrors.Load(); n > 0 {
		slog.Warn("Dropped audio blocks due to write errors", "session_id", sessionID, "count", n)
	}
	slog.Info("Recording stopped", "session_id", sessionID, "output", e.stitcher.MainPath(sess.dir))

	if finalizeErr != nil {
		return fmt.Errorf("failed to finalize last segment: %w", finalizeErr)
	}
	return nil
}

// State reports the flags of sessionID; unknown sessions are idle.
func (e *Engine) State(sessionID string) State {
	sess, err := e.lookup(sessionID)
	if err != nil {
		return State{}
	}
	return State{Capturing: sess.Capturing(), Paused: sess.Paused()}
}

// Sessions returns the ids of live sessions in sorted order.
func (e *Engine) Sessions() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Session returns details of a live session.
func (e *Engine) Session(sessionID string) (SessionInfo, error) {
	e.mutex.Lock()
	sess, ok := e.sessions[sessionID]
	e.mutex.Unlock()
	if !ok {
		return SessionInfo{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}

	sess.ctrl.Lock()
	defer sess.ctrl.Unlock()

	return SessionInfo{
		ID:              sess.ID,
		Directory:       sess.Dir(),
		StartTime:       sess.startedAt,
		Format:          sess.format,
		InputChannels:   sess.inputChannels,
		Paused:          sess.Paused(),
		Pauses:          sess.pauses,
		PendingSegments: len(sess.PendingSegments()),
		WriteErrors:     sess.writeErrors.Load(),
	}, nil
}

// Cleanup stops every live session.
func (e *Engine) Cleanup() error {
	var errs []error
	for _, id := range e.Sessions() {
		if err := e.Stop(id); err != nil && !errors.Is(err, ErrNotRecording) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) lookup(sessionID string) (*RecordingSession, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	sess, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotRecording)
	}
	return sess, nil
}

var _ Recorder = (*Engine)(nil)
