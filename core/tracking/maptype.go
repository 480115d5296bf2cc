package tracking

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolbus/core"
)

// MapType is a base map render mode.
type MapType string

const (
	MapTypeRoadmap   MapType = "roadmap"
	MapTypeSatellite MapType = "satellite"
	MapTypeTraffic   MapType = "traffic"
)

var AllMapTypes = []MapType{MapTypeRoadmap, MapTypeSatellite, MapTypeTraffic}

func (t MapType) Valid() bool {
	for _, mt := range AllMapTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// ParseMapType parses s (case-insensitive) into a MapType.
func ParseMapType(s string) (MapType, error) {
	t := MapType(core.CleanString(s, true))
	if !t.Valid() {
		return "", errors.Wrapf(ErrInvalidMapType, "%q", s)
	}
	return t, nil
}

// MapTypeSwitcher holds the selected MapType and notifies listeners on change.
type MapTypeSwitcher struct {
	mu        sync.RWMutex
	current   MapType
	listeners []func(prev, next MapType)
}

func NewMapTypeSwitcher(initial MapType) *MapTypeSwitcher {
	if !initial.Valid() {
		initial = MapTypeRoadmap
	}
	return &MapTypeSwitcher{current: initial}
}

func (s *MapTypeSwitcher) Get() MapType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set selects t. listeners are only notified if the selection changed.
func (s *MapTypeSwitcher) Set(t MapType) error {
	if !t.Valid() {
		return errors.Wrapf(ErrInvalidMapType, "%q", t)
	}

	s.mu.Lock()
	old := s.current
	if old == t {
		s.mu.Unlock()
		return nil
	}
	s.current = t
	listeners := make([]func(prev, next MapType), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(old, t)
	}
	return nil
}

// OnChange registers fn to be called after every change.
func (s *MapTypeSwitcher) OnChange(fn func(prev, next MapType)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
