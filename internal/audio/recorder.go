package audio

import (
	"time"
)

// Status is the coarse recorder state reported to clients
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRecording Status = "RECORDING"
	StatusPaused    Status = "PAUSED"
)

// State is the capture state of one session
type State struct {
	Capturing bool `json:"capturing"`
	Paused    bool `json:"paused"`
}

// Status maps the flags to a Status value.
func (s State) Status() Status {
	switch {
	case s.Capturing && s.Paused:
		return StatusPaused
	case s.Capturing:
		return StatusRecording
	default:
		return StatusIdle
	}
}

// SessionInfo describes a live recording session
type SessionInfo struct {
	ID              string    `json:"id"`
	Directory       string    `json:"directory"`
	StartTime       time.Time `json:"start_time"`
	Format          Format    `json:"format"`
	InputChannels   int       `json:"input_channels"`
	Paused          bool      `json:"paused"`
	Pauses          int       `json:"pauses"`
	PendingSegments int       `json:"pending_segments"`
	WriteErrors     int64     `json:"write_errors"`
}

// Recorder defines the control surface of the capture engine
type Recorder interface {
	Start(sessionID, sessionDir string, sink LevelSink) error
	Pause(sessionID string) error
	Resume(sessionID, sessionDir string) error
	Stop(sessionID string) error

	// Status and information
	State(sessionID string) State
	Sessions() []string
	Session(sessionID string) (SessionInfo, error)
	MainPath(sessionDir string) string

	// Cleanup
	Cleanup() error
}
