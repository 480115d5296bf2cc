package tracking

// ClickFunc is called with the entity ID when a marker is clicked.
type ClickFunc func(id string)

// RenderedMarker is the view state of a marker, derived on every read.
type RenderedMarker struct {
	ID        string  `json:"id"`
	Kind      Kind    `json:"kind"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Icon      string  `json:"icon"`
	ZIndex    int     `json:"z_index"`
	Opacity   float64 `json:"opacity"`
	Active    bool    `json:"active"`
	OnRoute   bool    `json:"on_route"`
	Animating bool    `json:"animating"`
}

// Marker is the on-map representation of one tracked entity.
type Marker struct {
	id      string
	kind    Kind
	active  bool
	onRoute bool
	icons   Icons
	style   Style
	target  LatLng
	onClick ClickFunc
	ip      *Interpolator
}

func newMarker(e Entity, style Style, ip *Interpolator) *Marker {
	return &Marker{
		id:    e.ID,
		kind:  e.Kind,
		style: style,
		ip:    ip,
	}
}

// render applies the latest entity state. the interpolator only hears about target changes:
// flag or icon changes never restart an animation.
func (m *Marker) render(e Entity, target LatLng, icons Icons, onClick ClickFunc) (changed bool) {
	changed = m.active != e.Active || m.onRoute != e.OnRoute || m.icons != icons || m.kind != e.Kind
	m.kind = e.Kind
	m.active = e.Active
	m.onRoute = e.OnRoute
	m.icons = icons
	m.onClick = onClick

	if _, placed := m.ip.Position(); !placed || m.target != target {
		m.target = target
		m.ip.MoveTo(target)
		changed = true
	}
	return changed
}

func (m *Marker) ID() string {
	return m.id
}

// Target returns the last reported position of the entity.
func (m *Marker) Target() LatLng {
	return m.target
}

func (m *Marker) Interpolator() *Interpolator {
	return m.ip
}

func (m *Marker) Presentation() Presentation {
	return Present(m.active, m.onRoute, m.icons, m.style)
}

func (m *Marker) State() RenderedMarker {
	pos, _ := m.ip.Position()
	look := m.Presentation()
	return RenderedMarker{
		ID:        m.id,
		Kind:      m.kind,
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Icon:      look.Icon,
		ZIndex:    look.ZIndex,
		Opacity:   look.Opacity,
		Active:    m.active,
		OnRoute:   m.onRoute,
		Animating: m.ip.Animating(),
	}
}

func (m *Marker) click() bool {
	if m.onClick == nil {
		return false
	}
	m.onClick(m.id)
	return true
}

func (m *Marker) close() {
	m.ip.Close()
}
