package tracking

// Icons are the two icon assets of a marker.
type Icons struct {
	Default string `json:"default"`
	Active  string `json:"active"`
}

// Presentation is how a marker looks, independently of where it is.
type Presentation struct {
	Icon    string  `json:"icon"`
	ZIndex  int     `json:"z_index"`
	Opacity float64 `json:"opacity"`
}

// Style holds the stacking tiers and the opacity of de-emphasized markers.
type Style struct {
	ZIndexActive   int
	ZIndexOnRoute  int
	ZIndexOffRoute int
	DimOpacity     float64
}

func DefaultStyle() Style {
	return Style{
		ZIndexActive:   100,
		ZIndexOnRoute:  50,
		ZIndexOffRoute: 10,
		DimOpacity:     0.6,
	}
}

type tier int

const (
	tierOffRoute tier = iota
	tierOnRoute
	tierActive
)

func tierOf(active, onRoute bool) tier {
	switch {
	case active:
		return tierActive
	case onRoute:
		return tierOnRoute
	default:
		return tierOffRoute
	}
}

type tierLook struct {
	activeIcon bool
	zIndex     func(Style) int
	opacity    func(Style) float64
}

var (
	opaque = func(Style) float64 { return 1 }
	dimmed = func(s Style) float64 { return s.DimOpacity }

	tierLooks = map[tier]tierLook{
		tierActive: {
			activeIcon: true,
			zIndex:     func(s Style) int { return s.ZIndexActive },
			opacity:    opaque,
		},
		tierOnRoute: {
			zIndex:  func(s Style) int { return s.ZIndexOnRoute },
			opacity: opaque,
		},
		tierOffRoute: {
			zIndex:  func(s Style) int { return s.ZIndexOffRoute },
			opacity: dimmed,
		},
	}
)

// Present maps a marker's state to its Presentation.
// active markers stack on top with the active icon; off-route markers are dimmed.
func Present(active, onRoute bool, icons Icons, style Style) Presentation {
	look := tierLooks[tierOf(active, onRoute)]
	icon := icons.Default
	if look.activeIcon {
		icon = icons.Active
	}
	return Presentation{
		Icon:    icon,
		ZIndex:  look.zIndex(style),
		Opacity: look.opacity(style),
	}
}
