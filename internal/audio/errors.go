package audio

import "errors"

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not currently recording")
	ErrNotPaused        = errors.New("recording is not paused")
	ErrAlreadyPaused    = errors.New("recording is already paused")
	ErrNoInputDevice    = errors.New("no default input device available")
	ErrNoSuitableConfig = errors.New("no suitable audio configuration found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoSegments       = errors.New("no pending segments")
	ErrFormatMismatch   = errors.New("segment format does not match main file")
)
