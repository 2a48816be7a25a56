package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/notecapture/internal/audio"
	"github.com/audiolibrelab/notecapture/internal/config"
	"github.com/audiolibrelab/notecapture/internal/events"
	"github.com/audiolibrelab/notecapture/internal/store"
	"github.com/audiolibrelab/notecapture/internal/transcript"
)

const transcriptFileName = "transcript.yaml"

// Service represents the core NoteCapture service interface
type Service interface {
	// Session operations
	CreateSession(title, course string) (*store.Session, error)
	ListSessions() ([]store.Session, error)
	GetSession(sessionID string) (*store.Session, error)
	UpdateSessionStatus(sessionID, status string) error
	DeleteSession(sessionID string) error

	// Recording operations
	StartRecording(sessionID string) error
	PauseRecording(sessionID string) error
	ResumeRecording(sessionID string) error
	StopRecording(sessionID string) (*store.Session, error)
	GetRecordingStatus(sessionID string) RecordingStatus

	// Information operations
	GetAudioInfo(sessionID string) (*audio.FileInfo, error)
	GetConfig() *config.Config
	GetLastError() string

	// Live events
	Subscribe() (<-chan events.Event, func())

	StopAll() error
	Close() error
}

// RecordingStatus is the live state of one session
type RecordingStatus struct {
	SessionID    string             `json:"session_id"`
	Status       audio.Status       `json:"status"`
	Capturing    bool               `json:"capturing"`
	Paused       bool               `json:"paused"`
	Transcribing bool               `json:"transcribing"`
	Session      *audio.SessionInfo `json:"session,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
}

// NoteCaptureService is the main service implementation
type NoteCaptureService struct {
	cfg      *config.Config
	store    store.Store
	recorder audio.Recorder
	feed     transcript.Feed
	hub      *events.Hub

	ctx    context.Context
	cancel context.CancelFunc

	// completed transcript phrases gathered per live session
	transcriptsMutex sync.Mutex
	transcripts      map[string]*transcriptLog

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New wires a service from its collaborators. A nil feed disables transcripts.
func New(cfg *config.Config, st store.Store, recorder audio.Recorder, feed transcript.Feed) *NoteCaptureService {
	if feed == nil {
		feed = transcript.NopFeed{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &NoteCaptureService{
		cfg:         cfg,
		store:       st,
		recorder:    recorder,
		feed:        feed,
		hub:         events.NewHub(),
		ctx:         ctx,
		cancel:      cancel,
		transcripts: make(map[string]*transcriptLog),
	}
}

// TranscriptEntry is one completed phrase as stored in transcript.yaml.
// TMs is the offset from the start of the recording.
type TranscriptEntry struct {
	TMs     int64  `yaml:"t_ms" json:"t_ms"`
	Speaker string `yaml:"speaker,omitempty" json:"speaker,omitempty"`
	Text    string `yaml:"text" json:"text"`
}

// TranscriptDocument is the content of transcript.yaml.
type TranscriptDocument struct {
	SessionID string            `yaml:"session_id"`
	StartedAt time.Time         `yaml:"started_at"`
	Lines     []TranscriptEntry `yaml:"lines"`
}

type transcriptLog struct {
	startedAt time.Time
	entries   []TranscriptEntry
}

// EngineOptions maps configuration onto capture engine options.
func EngineOptions(cfg *config.Config) audio.EngineOptions {
	return audio.EngineOptions{
		DeviceName: cfg.Audio.Device,
		Rates: audio.RatePreference{
			Preferred: cfg.Audio.PreferredSampleRate,
			Max:       cfg.Audio.MaxSampleRate,
		},
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		SettleDelay:     cfg.Recorder.SettleDelay(),
		LevelInterval:   cfg.Recorder.LevelInterval(),
		MainFileName:    cfg.Output.MainFile,
		StrictFormat:    cfg.Recorder.StrictFormat,
	}
}

// NewFeed returns the transcript feed configured by cfg.
func NewFeed(cfg *config.Config) transcript.Feed {
	if !cfg.Transcript.Enabled {
		return transcript.NopFeed{}
	}
	return transcript.NewMockFeed(cfg.Transcript.Interval(), nil)
}

func (s *NoteCaptureService) CreateSession(title, course string) (*store.Session, error) {
	sess, err := s.store.Create(title, course)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to create session: %v", err))
		return nil, err
	}
	slog.Info("Session created", "session_id", sess.ID, "title", sess.Title, "course", sess.Course)
	return sess, nil
}

func (s *NoteCaptureService) ListSessions() ([]store.Session, error) {
	return s.store.List()
}

func (s *NoteCaptureService) GetSession(sessionID string) (*store.Session, error) {
	return s.store.Get(sessionID)
}

// UpdateSessionStatus sets a status by name; a live session cannot be changed.
func (s *NoteCaptureService) UpdateSessionStatus(sessionID, status string) error {
	st, err := store.ParseStatus(status)
	if err != nil {
		return err
	}
	if s.recorder.State(sessionID).Capturing {
		return fmt.Errorf("session %s is recording: %w", sessionID, audio.ErrAlreadyRecording)
	}
	return s.store.UpdateStatus(sessionID, st)
}

// DeleteSession removes a session and its folder; a live session is stopped first.
func (s *NoteCaptureService) DeleteSession(sessionID string) error {
	if s.recorder.State(sessionID).Capturing {
		if _, err := s.StopRecording(sessionID); err != nil {
			slog.Warn("Failed to stop session before delete", "session_id", sessionID, "error", err)
		}
	}
	return s.store.Delete(sessionID)
}

// StartRecording begins capture into the session folder
func (s *NoteCaptureService) StartRecording(sessionID string) error {
	slog.Debug("Service.StartRecording called", "session_id", sessionID)
	s.clearLastError()

	if _, err := s.store.Get(sessionID); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}

	dir := s.store.SessionDir(sessionID)
	if err := s.recorder.Start(sessionID, dir, s.publishLevel); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}

	if err := s.store.UpdateStatus(sessionID, store.StatusRecording); err != nil {
		slog.Warn("Failed to mark session as recording", "session_id", sessionID, "error", err)
	}

	s.transcriptsMutex.Lock()
	s.transcripts[sessionID] = &transcriptLog{startedAt: time.Now()}
	s.transcriptsMutex.Unlock()

	s.startTranscript(sessionID)
	s.publishStatus(sessionID)
	return nil
}

// PauseRecording finalizes the current segment; levels keep flowing
func (s *NoteCaptureService) PauseRecording(sessionID string) error {
	if err := s.recorder.Pause(sessionID); err != nil {
		s.setLastError(fmt.Sprintf("Failed to pause recording: %v", err))
		return err
	}
	s.feed.Stop(sessionID)
	s.publishStatus(sessionID)
	return nil
}

// ResumeRecording opens a new segment after a pause
func (s *NoteCaptureService) ResumeRecording(sessionID string) error {
	if err := s.recorder.Resume(sessionID, s.store.SessionDir(sessionID)); err != nil {
		s.setLastError(fmt.Sprintf("Failed to resume recording: %v", err))
		return err
	}
	s.startTranscript(sessionID)
	s.publishStatus(sessionID)
	return nil
}

// StopRecording stops capture, writes the transcript and completes the session
func (s *NoteCaptureService) StopRecording(sessionID string) (*store.Session, error) {
	stopErr := s.recorder.Stop(sessionID)
	s.feed.Stop(sessionID)
	if stopErr != nil && errors.Is(stopErr, audio.ErrNotRecording) {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", stopErr))
		return nil, stopErr
	}

	dir := s.store.SessionDir(sessionID)
	mainPath := s.recorder.MainPath(dir)

	var durationMs int64
	if info, err := audio.Inspect(mainPath); err == nil {
		durationMs = info.Duration.Milliseconds()
	} else {
		slog.Warn("Failed to inspect recorded audio", "session_id", sessionID, "path", mainPath, "error", err)
		mainPath = ""
	}

	transcriptPath, err := s.writeTranscript(sessionID, dir)
	if err != nil {
		slog.Warn("Failed to write transcript", "session_id", sessionID, "error", err)
	}

	if err := s.store.Update(sessionID, func(sess *store.Session) {
		sess.Status = store.StatusComplete
		sess.AudioPath = mainPath
		sess.DurationMs = durationMs
		if transcriptPath != "" {
			sess.TranscriptPath = transcriptPath
		}
	}); err != nil {
		slog.Warn("Failed to update session after stop", "session_id", sessionID, "error", err)
	}

	s.publishStatus(sessionID)

	if stopErr != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", stopErr))
		return nil, stopErr
	}
	s.clearLastError()
	return s.store.Get(sessionID)
}

// GetRecordingStatus returns the live state of a session
func (s *NoteCaptureService) GetRecordingStatus(sessionID string) RecordingStatus {
	state := s.recorder.State(sessionID)
	status := RecordingStatus{
		SessionID:    sessionID,
		Status:       state.Status(),
		Capturing:    state.Capturing,
		Paused:       state.Paused,
		Transcribing: s.feed.Active(sessionID),
		LastError:    s.GetLastError(),
	}
	if info, err := s.recorder.Session(sessionID); err == nil {
		status.Session = &info
	}
	return status
}

// GetAudioInfo describes the main audio file of a session
func (s *NoteCaptureService) GetAudioInfo(sessionID string) (*audio.FileInfo, error) {
	if _, err := s.store.Get(sessionID); err != nil {
		return nil, err
	}
	info, err := audio.Inspect(s.recorder.MainPath(s.store.SessionDir(sessionID)))
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetConfig returns the current configuration
func (s *NoteCaptureService) GetConfig() *config.Config {
	return s.cfg
}

func (s *NoteCaptureService) Subscribe() (<-chan events.Event, func()) {
	return s.hub.Subscribe()
}

// StopAll stops every live session through StopRecording so each one is
// completed in the store.
func (s *NoteCaptureService) StopAll() error {
	var errs []error
	for _, id := range s.recorder.Sessions() {
		if _, err := s.StopRecording(id); err != nil && !errors.Is(err, audio.ErrNotRecording) {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops every live session and releases subscribers
func (s *NoteCaptureService) Close() error {
	err := errors.Join(s.StopAll(), s.recorder.Cleanup())
	s.cancel()
	s.hub.Close()
	return err
}

func (s *NoteCaptureService) publishLevel(ev audio.LevelEvent) {
	s.hub.Publish(events.Event{
		Type:      events.TypeLevel,
		SessionID: ev.SessionID,
		Level:     ev.Level,
	})
}

func (s *NoteCaptureService) publishStatus(sessionID string) {
	s.hub.Publish(events.Event{
		Type:      events.TypeStatus,
		SessionID: sessionID,
		Status:    string(s.recorder.State(sessionID).Status()),
	})
}

func (s *NoteCaptureService) startTranscript(sessionID string) {
	err := s.feed.Start(s.ctx, sessionID, func(line transcript.Line) {
		// partial phrases go live only; the completed phrase is kept
		if line.Final {
			s.recordPhrase(sessionID, line)
		}

		s.hub.Publish(events.Event{
			Type:      events.TypeTranscript,
			SessionID: line.SessionID,
			Text:      line.Text,
			Timestamp: line.Timestamp.UnixMilli(),
		})
	})
	if err != nil {
		slog.Warn("Failed to start transcript feed", "session_id", sessionID, "error", err)
	}
}

func (s *NoteCaptureService) recordPhrase(sessionID string, line transcript.Line) {
	s.transcriptsMutex.Lock()
	defer s.transcriptsMutex.Unlock()

	tl, ok := s.transcripts[sessionID]
	if !ok {
		return
	}
	offset := line.Timestamp.Sub(tl.startedAt).Milliseconds()
	if offset < 0 {
		offset = 0
	}
	tl.entries = append(tl.entries, TranscriptEntry{
		TMs:     offset,
		Speaker: line.Speaker,
		Text:    line.Text,
	})
}

// writeTranscript persists the completed phrases, returning "" when there are none.
func (s *NoteCaptureService) writeTranscript(sessionID, dir string) (string, error) {
	s.transcriptsMutex.Lock()
	tl := s.transcripts[sessionID]
	delete(s.transcripts, sessionID)
	s.transcriptsMutex.Unlock()

	if tl == nil || len(tl.entries) == 0 {
		return "", nil
	}

	doc := TranscriptDocument{
		SessionID: sessionID,
		StartedAt: tl.startedAt.UTC(),
		Lines:     tl.entries,
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("error marshaling transcript: %w", err)
	}
	path := filepath.Join(dir, transcriptFileName)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// GetLastError returns the last error message (thread-safe)
func (s *NoteCaptureService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *NoteCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *NoteCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

var _ Service = (*NoteCaptureService)(nil)
