// Package transcript produces live transcript lines for a recording session.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Line is one transcript update. Text grows word by word within a phrase;
// Final marks the update that completes it.
type Line struct {
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker,omitempty"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

type Sink func(Line)

// Feed is started and stopped alongside capture for a session.
type Feed interface {
	Start(ctx context.Context, sessionID string, sink Sink) error
	Stop(sessionID string)
	Active(sessionID string) bool
}

var DefaultPhrases = []string{
	"Today we're going to discuss the fundamentals of machine learning.",
	"The key concept here is that data drives the model's understanding.",
	"Let me explain this algorithm step by step.",
	"This approach has several advantages over traditional methods.",
	"We can see from the results that the performance has improved significantly.",
	"The next topic we need to cover is neural network architecture.",
	"This implementation allows for better scalability and maintainability.",
	"There are some important considerations when choosing this framework.",
	"The data shows a clear pattern that we should investigate further.",
	"In conclusion, this methodology provides robust and reliable results.",
}

// phrasePauseTicks is the silence between two phrases, in ticks.
const phrasePauseTicks = 3

// MockFeed replays canned phrases one word per tick.
type MockFeed struct {
	interval time.Duration
	phrases  []string

	mutex   sync.Mutex
	running map[string]*run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMockFeed(interval time.Duration, phrases []string) *MockFeed {
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	return &MockFeed{
		interval: interval,
		phrases:  phrases,
		running:  make(map[string]*run),
	}
}

func (f *MockFeed) Start(ctx context.Context, sessionID string, sink Sink) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if _, ok := f.running[sessionID]; ok {
		return fmt.Errorf("transcript already running for session %s", sessionID)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	f.running[sessionID] = r

	go func() {
		defer close(r.done)
		f.loop(ctx, sessionID, sink)
	}()

	slog.Debug("Transcript feed started", "session_id", sessionID)
	return nil
}

func (f *MockFeed) loop(ctx context.Context, sessionID string, sink Sink) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	phraseIndex := 0
	var words []string
	progress := 0
	pause := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if pause > 0 {
			pause--
			continue
		}

		if len(words) == 0 {
			words = strings.Fields(f.phrases[phraseIndex%len(f.phrases)])
			phraseIndex++
			progress = 0
		}

		spoken := words[:progress+1]
		last := progress == len(words)-1
		if len(spoken) >= 2 || last {
			sink(Line{
				SessionID: sessionID,
				Text:      strings.Join(spoken, " "),
				Final:     last,
				Timestamp: time.Now(),
			})
		}

		progress++
		if progress >= len(words) {
			words = nil
			pause = phrasePauseTicks
		}
	}
}

// Stop cancels the feed for sessionID and waits for it to exit.
func (f *MockFeed) Stop(sessionID string) {
	f.mutex.Lock()
	r, ok := f.running[sessionID]
	delete(f.running, sessionID)
	f.mutex.Unlock()

	if !ok {
		return
	}
	r.cancel()
	<-r.done
	slog.Debug("Transcript feed stopped", "session_id", sessionID)
}

func (f *MockFeed) Active(sessionID string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, ok := f.running[sessionID]
	return ok
}

// NopFeed is used when transcription is disabled.
type NopFeed struct{}

func (NopFeed) Start(context.Context, string, Sink) error { return nil }
func (NopFeed) Stop(string)                               {}
func (NopFeed) Active(string) bool                        { return false }
