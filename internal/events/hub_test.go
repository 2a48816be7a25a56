package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe()
	defer cancelA()
	b, cancelB := h.Subscribe()
	defer cancelB()

	h.Publish(Event{Type: TypeLevel, SessionID: "s1", Level: 0.5})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, TypeLevel, ev.Type)
		assert.Equal(t, "s1", ev.SessionID)
		assert.NotZero(t, ev.Timestamp)
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	require.Equal(t, 1, h.subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.subscribers())
}

func TestHub_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		h.Publish(Event{Type: TypeTranscript, Text: "word"})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	h.Close()

	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	h.Publish(Event{Type: TypeLevel})
}

func TestEvent_MarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		event     Event
		wantLevel bool
	}{
		{"silent level", Event{Type: TypeLevel, SessionID: "s1", Level: 0, Timestamp: 1}, true},
		{"loud level", Event{Type: TypeLevel, SessionID: "s1", Level: 0.75, Timestamp: 1}, true},
		{"status", Event{Type: TypeStatus, SessionID: "s1", Status: "PAUSED", Timestamp: 1}, false},
		{"transcript", Event{Type: TypeTranscript, SessionID: "s1", Text: "hello", Timestamp: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)

			var fields map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &fields))
			level, ok := fields["level"]
			assert.Equal(t, tt.wantLevel, ok, string(data))
			if tt.wantLevel {
				assert.Equal(t, tt.event.Level, level)
			}

			var back Event
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.event, back)
		})
	}

	data, err := json.Marshal(Event{Type: TypeLevel, SessionID: "s1", Timestamp: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"level","session_id":"s1","level":0,"timestamp":1}`, string(data))
}
