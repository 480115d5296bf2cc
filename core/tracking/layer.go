package tracking

import (
	"sort"
	"time"
)

// Layer composites the markers of all tracked entities on the map.
// Like the Interpolators it owns, a Layer must only be used from its Scheduler's goroutine.
type Layer struct {
	sched    Scheduler
	clock    Clock
	duration time.Duration
	style    Style

	markers map[string]*Marker
	dirty   bool
}

func NewLayer(sched Scheduler, clock Clock, duration time.Duration, style Style) *Layer {
	return &Layer{
		sched:    sched,
		clock:    clock,
		duration: duration,
		style:    style,
		markers:  make(map[string]*Marker),
	}
}

// Render creates or updates the marker of e.
// an entity without position is not rendered: its marker, if any, is removed.
func (l *Layer) Render(e Entity, icons Icons, onClick ClickFunc) {
	target, ok := e.Position()
	if !ok {
		l.Remove(e.ID)
		return
	}

	m, exists := l.markers[e.ID]
	if !exists {
		ip := NewInterpolator(l.sched, l.clock, l.duration, func(LatLng) { l.dirty = true })
		m = newMarker(e, l.style, ip)
		l.markers[e.ID] = m
		l.dirty = true
	}
	if m.render(e, target, icons, onClick) {
		l.dirty = true
	}
}

// Remove unmounts the marker of entity id. Its animation stops immediately.
func (l *Layer) Remove(id string) bool {
	m, ok := l.markers[id]
	if !ok {
		return false
	}
	m.close()
	delete(l.markers, id)
	l.dirty = true
	return true
}

// Retain removes every marker whose entity is not in ids.
func (l *Layer) Retain(ids map[string]struct{}) (removed []string) {
	for id := range l.markers {
		if _, keep := ids[id]; !keep {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		l.Remove(id)
	}
	return removed
}

// Clear removes all markers.
func (l *Layer) Clear() {
	l.Retain(nil)
}

func (l *Layer) Marker(id string) (*Marker, bool) {
	m, ok := l.markers[id]
	return m, ok
}

func (l *Layer) Len() int {
	return len(l.markers)
}

// Markers returns the rendered markers in paint order: bottom-most first.
func (l *Layer) Markers() []RenderedMarker {
	states := make([]RenderedMarker, 0, len(l.markers))
	for _, m := range l.markers {
		states = append(states, m.State())
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].ZIndex != states[j].ZIndex {
			return states[i].ZIndex < states[j].ZIndex
		}
		return states[i].ID < states[j].ID
	})
	return states
}

// Click notifies the click callback of marker id. it returns false if there is no such marker.
func (l *Layer) Click(id string) bool {
	m, ok := l.markers[id]
	if !ok {
		return false
	}
	m.click()
	return true
}

// TakeDirty reports whether the layer changed since the last call.
func (l *Layer) TakeDirty() bool {
	dirty := l.dirty
	l.dirty = false
	return dirty
}
