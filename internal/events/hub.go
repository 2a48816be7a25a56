// Package events fans session events out to any number of subscribers.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type Type string

const (
	TypeLevel      Type = "level"
	TypeTranscript Type = "transcript"
	TypeStatus     Type = "status"
)

// Event is the envelope delivered to subscribers and written to websocket clients.
type Event struct {
	Type      Type    `json:"type"`
	SessionID string  `json:"session_id"`
	Level     float64 `json:"level,omitempty"`
	Text      string  `json:"text,omitempty"`
	Status    string  `json:"status,omitempty"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// MarshalJSON always writes level for level events, including 0, and omits
// it for the other types.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type      Type     `json:"type"`
		SessionID string   `json:"session_id"`
		Level     *float64 `json:"level,omitempty"`
		Text      string   `json:"text,omitempty"`
		Status    string   `json:"status,omitempty"`
		Timestamp int64    `json:"timestamp"`
	}
	w := wire{
		Type:      e.Type,
		SessionID: e.SessionID,
		Text:      e.Text,
		Status:    e.Status,
		Timestamp: e.Timestamp,
	}
	if e.Type == TypeLevel {
		level := e.Level
		w.Level = &level
	}
	return json.Marshal(w)
}

const subscriberBuffer = 64

// Hub delivers every published event to every subscriber. Slow subscribers
// lose events instead of blocking publishers.
type Hub struct {
	mutex  sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe returns an event channel and a function that unsubscribes and
// closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mutex.Lock()
			defer h.mutex.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish never blocks.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("Dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}

// subscribers returns the number of live subscriptions.
func (h *Hub) subscribers() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel; later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
