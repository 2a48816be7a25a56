package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelSmoother_WeightedWindow(t *testing.T) {
	var s levelSmoother

	// single value: weight 1
	assert.InDelta(t, 0.4, s.Tick([]float64{0.1, 0.4, 0.2}), 1e-9)

	// 0.4*1 + 0.8*2 over 3
	assert.InDelta(t, 2.0/3.0, s.Tick([]float64{0.8}), 1e-9)

	s.Tick([]float64{0.0})
	s.Tick([]float64{0.0})
	// window is now 0.8, 0, 0, 1.0 with weights 1..4
	assert.InDelta(t, (0.8+4.0)/10.0, s.Tick([]float64{1.0}), 1e-9)
	assert.Len(t, s.window, levelWindowSize)
}

func TestLevelSmoother_DecaysWithoutReadings(t *testing.T) {
	s := levelSmoother{last: 0.5}

	assert.InDelta(t, 0.425, s.Tick(nil), 1e-9)
	assert.InDelta(t, 0.36125, s.Tick(nil), 1e-9)

	for i := 0; i < 100; i++ {
		s.Tick(nil)
	}
	assert.Equal(t, 0.0, s.last)
}

func TestLevelSmoother_SnapsToZero(t *testing.T) {
	s := levelSmoother{last: 0.011}
	assert.Equal(t, 0.0, s.Tick(nil))
}

func TestLevelBroadcaster_EmitsPerTick(t *testing.T) {
	var mu sync.Mutex
	var events []LevelEvent
	b := NewLevelBroadcaster("s1", 5*time.Millisecond, func(ev LevelEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	b.Push(0.6)
	b.Run()
	defer b.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "s1", events[0].SessionID)
	assert.InDelta(t, 0.6, events[0].Level, 1e-9)
	// no further readings, so the meter decays
	assert.Less(t, events[2].Level, events[0].Level)
}

func TestLevelBroadcaster_PushNeverBlocks(t *testing.T) {
	b := NewLevelBroadcaster("s1", time.Hour, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < levelInboxSize*4; i++ {
			b.Push(0.5)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a full inbox")
	}
}

func TestLevelBroadcaster_StopIsIdempotent(t *testing.T) {
	idle := NewLevelBroadcaster("idle", 0, nil)
	idle.Stop()
	idle.Stop()

	b := NewLevelBroadcaster("s1", time.Millisecond, nil)
	b.Run()
	b.Stop()
	b.Stop()
}
