// Package events is an in-process feed of coordination events, buffered for
// late subscribers and streamed over SSE by the API.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the coordination components.
const (
	LockAcquired      = "lock.acquired"
	LockUnavailable   = "lock.unavailable"
	LockLost          = "lock.lost"
	LockReleased      = "lock.released"
	JobsAssigned      = "scheduler.assigned"
	RunDispatched     = "dispatch.started"
	RunSkipped        = "dispatch.skipped"
	TickFailed        = "dispatch.failed"
	RunReaped         = "reaper.stopped"
	ExecutionAborted  = "execution.aborted"
	ExecutionFinished = "execution.finished"
	ConfigDrift       = "config.drift"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	Job  string          `json:"job,omitempty"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Publisher is the write side of a Hub.
type Publisher interface {
	Publish(eventType, job string, data any)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, string, any) {}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
// A nil *Hub drops everything.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

func (h *Hub) Publish(eventType, job string, data any) {
	if h == nil {
		return
	}

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		Job:  job,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Slow clients lose events rather than stall a dispatch tick.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// An empty job matches every event.
func (h *Hub) SnapshotSince(lastID int64, job string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID && (job == "" || ev.Job == job) {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
