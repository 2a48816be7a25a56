package cmd

import (
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/notecapture/internal/audio"
	"github.com/audiolibrelab/notecapture/internal/audio/pabackend"
	"github.com/audiolibrelab/notecapture/internal/service"
	"github.com/audiolibrelab/notecapture/internal/store"
)

// newService opens the audio host and session store and wires them into a
// service. The returned func releases everything in reverse order.
func newService() (*service.NoteCaptureService, func(), error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	backend, err := pabackend.Open()
	if err != nil {
		return nil, nil, err
	}

	engine := audio.NewEngine(backend, service.EngineOptions(cfg))
	svc := service.New(cfg, st, engine, service.NewFeed(cfg))

	closeFn := func() {
		if err := svc.Close(); err != nil {
			slog.Warn("Failed to stop live sessions", "error", err)
		}
		if err := backend.Close(); err != nil {
			slog.Warn("Failed to terminate audio host", "error", err)
		}
	}
	return svc, closeFn, nil
}

// openStore opens the session store alone for commands that never capture.
func openStore() (*store.FileStore, error) {
	st, err := store.Open(cfg.Output.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	return st, nil
}
