package tracking

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is a snapshot of the map pushed to subscribers.
type Frame struct {
	MapType MapType          `json:"map_type"`
	Markers []RenderedMarker `json:"markers"`
	At      time.Time        `json:"at"`
}

// hub fans frames out to subscribers. slow subscribers only get the latest frame.
type hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan Frame
}

func newHub() *hub {
	return &hub{subs: make(map[uuid.UUID]chan Frame)}
}

func (h *hub) subscribe() (uuid.UUID, <-chan Frame) {
	id := uuid.New()
	ch := make(chan Frame, 1)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) publish(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		// drop the stale frame, if any
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
