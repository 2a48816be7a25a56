package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultLevelInterval = 50 * time.Millisecond

	levelWindowSize  = 4
	levelDecayFactor = 0.85
	levelSnapToZero  = 0.01
	levelInboxSize   = 256
)

// LevelEvent is one outbound meter update for a session.
type LevelEvent struct {
	SessionID string  `json:"session_id"`
	Level     float64 `json:"level"`
}

// LevelSink receives level updates. It is called from the broadcaster goroutine.
type LevelSink func(LevelEvent)

// levelSmoother keeps the trailing window of per-tick maxima.
type levelSmoother struct {
	window []float64
	last   float64
}

// Tick folds the readings gathered since the previous tick into the
// smoothed output. With no readings the previous value decays.
func (s *levelSmoother) Tick(readings []float64) float64 {
	if len(readings) == 0 {
		if s.last > 0 {
			s.last *= levelDecayFactor
			if s.last < levelSnapToZero {
				s.last = 0
			}
		}
		return s.last
	}

	peak := readings[0]
	for _, r := range readings[1:] {
		if r > peak {
			peak = r
		}
	}

	s.window = append(s.window, peak)
	if len(s.window) > levelWindowSize {
		s.window = s.window[1:]
	}

	var weighted, weights float64
	for i, v := range s.window {
		w := float64(i + 1)
		weighted += v * w
		weights += w
	}
	s.last = weighted / weights
	return s.last
}

// LevelBroadcaster drains readings pushed by the capture callback and emits
// one smoothed update per interval, independent of the callback rate.
type LevelBroadcaster struct {
	sessionID string
	interval  time.Duration
	sink      LevelSink
	inbox     chan float64

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewLevelBroadcaster creates a broadcaster; call Run to start it.
func NewLevelBroadcaster(sessionID string, interval time.Duration, sink LevelSink) *LevelBroadcaster {
	if interval <= 0 {
		interval = DefaultLevelInterval
	}
	return &LevelBroadcaster{
		sessionID: sessionID,
		interval:  interval,
		sink:      sink,
		inbox:     make(chan float64, levelInboxSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Push offers a reading without blocking; it is dropped when the inbox is full.
func (b *LevelBroadcaster) Push(level float64) {
	select {
	case b.inbox <- level:
	default:
	}
}

// Run starts the tick loop in its own goroutine.
func (b *LevelBroadcaster) Run() {
	if b.running.Swap(true) {
		return
	}
	go b.loop()
}

func (b *LevelBroadcaster) loop() {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	var smoother levelSmoother
	readings := make([]float64, 0, 16)

	slog.Debug("Level broadcaster started", "session_id", b.sessionID, "interval", b.interval)
	for {
		select {
		case <-b.stop:
			slog.Debug("Level broadcaster stopped", "session_id", b.sessionID)
			return
		case <-ticker.C:
			readings = readings[:0]
		drain:
			for {
				select {
				case level := <-b.inbox:
					readings = append(readings, level)
				default:
					break drain
				}
			}

			level := smoother.Tick(readings)
			if b.sink != nil {
				b.sink(LevelEvent{SessionID: b.sessionID, Level: level})
			}
		}
	}
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (b *LevelBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	if b.running.Load() {
		<-b.done
	}
}
