package tracking

import (
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound       = errors.New("tracked entity not found")
	ErrInvalidMapType = errors.New("invalid map type")
	ErrStopped        = errors.New("tracking loop stopped")
)

// Kind of tracked entity.
type Kind string

const (
	KindBus     Kind = "bus"
	KindStudent Kind = "student"
)

var AllKinds = []Kind{KindBus, KindStudent}

func (k Kind) Valid() bool {
	for _, kind := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// LatLng is a position in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Lerp interpolates linearly between s and e, on each coordinate independently.
// progress is expected in [0, 1].
func Lerp(s, e LatLng, progress float64) LatLng {
	return LatLng{
		Lat: s.Lat + (e.Lat-s.Lat)*progress,
		Lng: s.Lng + (e.Lng-s.Lng)*progress,
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Entity is the render input of a tracked entity.
// Lat & Lng are nil when the feed has no position for the entity.
type Entity struct {
	ID      string
	Kind    Kind
	Lat     *float64
	Lng     *float64
	Active  bool // selected/focused
	OnRoute bool // part of the displayed route
}

// Position returns the entity's position; ok is false if any coordinate is missing.
func (e Entity) Position() (pos LatLng, ok bool) {
	if e.Lat == nil || e.Lng == nil {
		return LatLng{}, false
	}
	return LatLng{Lat: *e.Lat, Lng: *e.Lng}, true
}

// Report is a location report from a feed.
type Report struct {
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Kind       Kind      `json:"kind" db:"kind"`
	RouteID    string    `json:"route_id" db:"route_id"`
	Lat        *float64  `json:"lat" db:"lat"`
	Lng        *float64  `json:"lng" db:"lng"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// SamePlace reports whether r and other put the same entity at the same position on the same route.
func (r Report) SamePlace(other Report) bool {
	return r.EntityID == other.EntityID &&
		r.Kind == other.Kind &&
		r.RouteID == other.RouteID &&
		floatPtrEqual(r.Lat, other.Lat) &&
		floatPtrEqual(r.Lng, other.Lng)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
