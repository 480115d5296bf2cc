package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolbus/core"
)

type (
	// Options configures a tracking Service.
	Options struct {
		AnimationDuration time.Duration
		FrameInterval     time.Duration
		Style             Style
		MapType           MapType
		Icons             map[Kind]Icons
		Clock             Clock
		// OnClick is called, on the loop goroutine, after a marker click selected an entity.
		OnClick func(ClickEvent)
	}

	// ClickEvent records a user selecting a marker on the map.
	ClickEvent struct {
		ID       uuid.UUID `json:"id"`
		EntityID string    `json:"entity_id"`
		Kind     Kind      `json:"kind"`
		At       time.Time `json:"at"`
	}

	// Stats summarizes the tracked set.
	Stats struct {
		Tracked     int     `json:"tracked"`
		Rendered    int     `json:"rendered"`
		Animating   int     `json:"animating"`
		Subscribers int     `json:"subscribers"`
		MapType     MapType `json:"map_type"`
		Selected    string  `json:"selected,omitempty"`
		Route       string  `json:"route,omitempty"`
	}
)

// OptionsFromConfig reads the tracking Options from the app Config.
func OptionsFromConfig(conf *core.Config) Options {
	tc := conf.Tracking
	return Options{
		AnimationDuration: tc.AnimationDuration,
		FrameInterval:     tc.FrameInterval,
		Style: Style{
			ZIndexActive:   tc.ZIndexActive,
			ZIndexOnRoute:  tc.ZIndexOnRoute,
			ZIndexOffRoute: tc.ZIndexOffRoute,
			DimOpacity:     tc.DimOpacity,
		},
		MapType: MapType(core.CleanString(tc.DefaultMapType, true)),
		Icons: map[Kind]Icons{
			KindBus:     {Default: tc.BusIcons.Default, Active: tc.BusIcons.Active},
			KindStudent: {Default: tc.StudentIcons.Default, Active: tc.StudentIcons.Active},
		},
		Clock: SystemClock{},
	}
}

// Service tracks the live entities shown on the map.
// all tracking state lives on a single FrameLoop goroutine; the exported methods
// submit work to it and are safe for concurrent use.
type Service struct {
	opts    Options
	logger  core.Logger
	loop    *FrameLoop
	layer   *Layer
	maps    *MapTypeSwitcher
	hub     *hub
	running int32

	// owned by the loop goroutine
	reports  map[string]Report
	selected string
	route    string
	dirty    bool
}

// NewService is the dependency injection constructor of Service.
func NewService(conf *core.Config, logger core.Logger) *Service {
	return NewServiceWithOptions(OptionsFromConfig(conf), logger)
}

func NewServiceWithOptions(opts Options, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.Not(vala.Equals(logger, nil, "logger")),
	).CheckAndPanic()

	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.AnimationDuration <= 0 {
		opts.AnimationDuration = DefaultAnimationDuration
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 16 * time.Millisecond
	}
	if opts.Style == (Style{}) {
		opts.Style = DefaultStyle()
	}

	s := &Service{
		opts:    opts,
		logger:  logger,
		maps:    NewMapTypeSwitcher(opts.MapType),
		hub:     newHub(),
		reports: make(map[string]Report),
	}
	s.loop = NewFrameLoop(opts.FrameInterval, opts.Clock, s.afterStep)
	s.layer = NewLayer(s.loop, opts.Clock, opts.AnimationDuration, opts.Style)

	// Set is only ever called on the loop goroutine, see SetMapType
	s.maps.OnChange(func(prev, next MapType) {
		s.dirty = true
		s.logger.Debug(fmt.Sprintf("map type changed: %s -> %s", prev, next))
	})
	return s
}

// Run drives the frame loop until ctx is done; then every marker is unmounted.
func (s *Service) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return errors.New("tracking service already running")
	}
	s.loop.Run(ctx)

	// the loop has exited: safe to touch its state from here
	s.layer.Clear()
	s.hub.closeAll()
	return nil
}

func (s *Service) do(ctx context.Context, fn func()) error {
	if err := s.loop.Do(ctx, fn); err != nil {
		return errors.Wrap(err, "running tracking task")
	}
	return nil
}

func (s *Service) afterStep(now time.Time) {
	layerDirty := s.layer.TakeDirty()
	if !layerDirty && !s.dirty {
		return
	}
	s.dirty = false
	s.hub.publish(s.frame(now))
}

func (s *Service) frame(now time.Time) Frame {
	return Frame{
		MapType: s.maps.Get(),
		Markers: s.layer.Markers(),
		At:      now,
	}
}

func (s *Service) icons(kind Kind) Icons {
	if icons, ok := s.opts.Icons[kind]; ok {
		return icons
	}
	return s.opts.Icons[KindBus]
}

func (s *Service) entity(r Report) Entity {
	return Entity{
		ID:      r.EntityID,
		Kind:    r.Kind,
		Lat:     r.Lat,
		Lng:     r.Lng,
		Active:  r.EntityID == s.selected,
		OnRoute: s.route == "" || r.RouteID == s.route,
	}
}

func (s *Service) render(r Report) {
	s.layer.Render(s.entity(r), s.icons(r.Kind), s.handleClick)
}

func (s *Service) renderAll() {
	for _, r := range s.reports {
		s.render(r)
	}
}

func (s *Service) apply(r Report) {
	if r.Kind == "" {
		r.Kind = KindBus
	}
	// reports without a timestamp are applied in receipt order
	if prev, ok := s.reports[r.EntityID]; ok && !r.RecordedAt.IsZero() && r.RecordedAt.Before(prev.RecordedAt) {
		s.logger.Debug(fmt.Sprintf("stale report for %s %q dropped", r.Kind, r.EntityID))
		return
	}
	if _, pos := s.entity(r).Position(); !pos {
		s.logger.Debug(fmt.Sprintf("no position for %s %q: not rendered", r.Kind, r.EntityID))
	}
	s.reports[r.EntityID] = r
	s.render(r)
}

func (s *Service) remove(id string) {
	delete(s.reports, id)
	s.layer.Remove(id)
	if s.selected == id {
		s.selected = ""
		s.renderAll()
	}
}

func (s *Service) handleClick(id string) {
	r, ok := s.reports[id]
	if !ok {
		return
	}
	s.selected = id
	s.renderAll()

	if s.opts.OnClick != nil {
		s.opts.OnClick(ClickEvent{
			ID:       uuid.New(),
			EntityID: id,
			Kind:     r.Kind,
			At:       s.opts.Clock.Now(),
		})
	}
}

// Report applies a single location report.
func (s *Service) Report(ctx context.Context, r Report) error {
	return s.do(ctx, func() { s.apply(r) })
}

// Sync applies a full feed snapshot: entities missing from reports leave the tracked set.
// reports older than the tracked one are ignored, their entity stays tracked.
func (s *Service) Sync(ctx context.Context, reports []Report) error {
	return s.do(ctx, func() {
		keep := make(map[string]struct{}, len(reports))
		for _, r := range reports {
			keep[r.EntityID] = struct{}{}
			s.apply(r)
		}
		for id := range s.reports {
			if _, ok := keep[id]; !ok {
				s.remove(id)
			}
		}
	})
}

// Remove drops entity id from the tracked set.
func (s *Service) Remove(ctx context.Context, id string) error {
	var found bool
	if err := s.do(ctx, func() {
		if _, found = s.reports[id]; found {
			s.remove(id)
		}
	}); err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Select focuses entity id. An empty id clears the selection.
func (s *Service) Select(ctx context.Context, id string) error {
	var found bool
	if err := s.do(ctx, func() {
		if _, found = s.reports[id]; found || id == "" {
			found = true
			s.selected = id
			s.renderAll()
		}
	}); err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// ShowRoute highlights the entities of routeID and dims the others.
// An empty routeID highlights every entity.
func (s *Service) ShowRoute(ctx context.Context, routeID string) error {
	return s.do(ctx, func() {
		s.route = routeID
		s.renderAll()
	})
}

// Click forwards a click on the marker of entity id to its click callback.
func (s *Service) Click(ctx context.Context, id string) error {
	var found bool
	if err := s.do(ctx, func() { found = s.layer.Click(id) }); err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Markers returns the rendered markers in paint order.
func (s *Service) Markers(ctx context.Context) ([]RenderedMarker, error) {
	var markers []RenderedMarker
	if err := s.do(ctx, func() { markers = s.layer.Markers() }); err != nil {
		return nil, err
	}
	return markers, nil
}

// Marker returns the rendered marker of entity id.
func (s *Service) Marker(ctx context.Context, id string) (RenderedMarker, error) {
	var (
		marker RenderedMarker
		found  bool
	)
	if err := s.do(ctx, func() {
		var m *Marker
		if m, found = s.layer.Marker(id); found {
			marker = m.State()
		}
	}); err != nil {
		return RenderedMarker{}, err
	}
	if !found {
		return RenderedMarker{}, ErrNotFound
	}
	return marker, nil
}

// Snapshot returns the current Frame.
func (s *Service) Snapshot(ctx context.Context) (Frame, error) {
	var f Frame
	if err := s.do(ctx, func() { f = s.frame(s.opts.Clock.Now()) }); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.do(ctx, func() {
		st.Tracked = len(s.reports)
		for _, m := range s.layer.markers {
			st.Rendered++
			if m.ip.Animating() {
				st.Animating++
			}
		}
		st.Selected = s.selected
		st.Route = s.route
	}); err != nil {
		return Stats{}, err
	}
	st.Subscribers = s.hub.len()
	st.MapType = s.maps.Get()
	return st, nil
}

// TrackedIDs returns the IDs of the tracked entities, sorted.
func (s *Service) TrackedIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.do(ctx, func() {
		ids = make([]string, 0, len(s.reports))
		for id := range s.reports {
			ids = append(ids, id)
		}
	}); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Service) MapType() MapType {
	return s.maps.Get()
}

func (s *Service) SetMapType(ctx context.Context, t MapType) error {
	var err error
	if doErr := s.do(ctx, func() { err = s.maps.Set(t) }); doErr != nil {
		return doErr
	}
	return err
}

// Subscribe returns a channel receiving a Frame every time the map changes,
// and the func to call to unsubscribe. The channel is closed on unsubscribe or when Run returns.
func (s *Service) Subscribe() (<-chan Frame, func()) {
	id, ch := s.hub.subscribe()
	return ch, func() { s.hub.unsubscribe(id) }
}
