package choro

import (
	"image/color"
	"math"
)

// ValueToPosition maps a metric value into [0,1] under the given scale.
// Values clamp to [0,max] first: linear is v/max, sqrt is sqrt(v/max), log
// is ln(1+v)/ln(1+max) with non-positive values pinned to 0.
func ValueToPosition(value, max float64, scale ScaleKind) float64 {
	if max <= 0 {
		return 0
	}
	v := clamp(value, 0, max)
	switch scale {
	case ScaleSqrt:
		return math.Sqrt(v / max)
	case ScaleLog:
		if v <= 0 {
			return 0
		}
		return math.Log1p(v) / math.Log1p(max)
	default:
		return v / max
	}
}

// PositionToValue is the exact inverse of ValueToPosition; it lets a user
// drop a gradient stop by pointer position and recover the metric value.
func PositionToValue(pos, max float64, scale ScaleKind) float64 {
	if max <= 0 {
		return 0
	}
	p := clamp(pos, 0, 1)
	switch scale {
	case ScaleSqrt:
		return p * p * max
	case ScaleLog:
		return math.Expm1(p * math.Log1p(max))
	default:
		return p * max
	}
}

// InterpolateColor maps a value onto a stop gradient. Stops must be sorted
// ascending by value. Values at or below the first stop take its color,
// at or above the last stop the last color. In between, both bracketing
// stop values and the query value pass through ValueToPosition and the RGB
// channels interpolate by the resulting position fraction, so color bands
// track the chosen scale visually rather than raw value spacing. An empty
// stop list yields mid gray.
func InterpolateColor(value float64, stops []ColorStop, max float64, scale ScaleKind, alpha uint8) color.NRGBA {
	if len(stops) == 0 {
		return color.NRGBA{R: 128, G: 128, B: 128, A: alpha}
	}
	if value <= stops[0].Value || len(stops) == 1 {
		return withAlpha(stops[0].Color, alpha)
	}
	last := stops[len(stops)-1]
	if value >= last.Value {
		return withAlpha(last.Color, alpha)
	}

	for i := 0; i < len(stops)-1; i++ {
		lo, hi := stops[i], stops[i+1]
		if value > hi.Value {
			continue
		}
		p0 := ValueToPosition(lo.Value, max, scale)
		p1 := ValueToPosition(hi.Value, max, scale)
		pv := ValueToPosition(value, max, scale)
		t := 0.0
		if p1 > p0 {
			t = (pv - p0) / (p1 - p0)
		}
		return color.NRGBA{
			R: lerpChannel(lo.Color.R, hi.Color.R, t),
			G: lerpChannel(lo.Color.G, hi.Color.G, t),
			B: lerpChannel(lo.Color.B, hi.Color.B, t),
			A: alpha,
		}
	}
	return withAlpha(last.Color, alpha)
}

func lerpChannel(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

func withAlpha(c color.NRGBA, alpha uint8) color.NRGBA {
	c.A = alpha
	return c
}

// Elevation converts a metric value to extrusion height in meters. Values
// past the domain max clamp to the ceiling, never extrapolate, so a single
// outlier parcel cannot dwarf the rest of the city.
func Elevation(value, max, heightCeilingMeters float64) float64 {
	if max <= 0 {
		return 0
	}
	return math.Min(value, max) * (heightCeilingMeters / max)
}

// StyleOverride is a user's customization of one display mode's styling.
type StyleOverride struct {
	DomainMax     float64
	HeightCeiling float64
	Scale         ScaleKind
	Theme         string
	Stops         []ColorStop // nil means "resolve Theme over the domain"
}

func overrideEqual(a, b StyleOverride) bool {
	if a.DomainMax != b.DomainMax || a.HeightCeiling != b.HeightCeiling ||
		a.Scale != b.Scale || a.Theme != b.Theme || len(a.Stops) != len(b.Stops) {
		return false
	}
	for i := range a.Stops {
		if a.Stops[i] != b.Stops[i] {
			return false
		}
	}
	return true
}

// StyleSession holds one viewing session's active styling: the current
// display mode, the working override, and a per-mode cache of overrides the
// user actually edited. Switching modes resets styling to the new mode's
// defaults unless that exact mode has a cached override. The outgoing
// mode's override is cached only when it differs from the mode's default,
// so untouched modes never pollute the cache.
type StyleSession struct {
	table   *ModeTable
	current ModeKey
	active  StyleOverride
	cache   map[ModeKey]StyleOverride
	alpha   uint8
}

// NewStyleSession starts a session in the given mode with default styling.
func NewStyleSession(table *ModeTable, mode ModeKey) *StyleSession {
	if table == nil {
		table = BuiltinModes()
	}
	s := &StyleSession{
		table: table,
		cache: make(map[ModeKey]StyleOverride),
		alpha: 255,
	}
	s.current = mode
	s.active = table.DefaultOverride(mode)
	return s
}

// Mode returns the active display mode.
func (s *StyleSession) Mode() ModeKey {
	return s.current
}

// Override returns the working style values.
func (s *StyleSession) Override() StyleOverride {
	return s.active
}

// Customized reports whether the working style differs from the active
// mode's default.
func (s *StyleSession) Customized() bool {
	return !overrideEqual(s.active, s.table.DefaultOverride(s.current))
}

// SwitchMode changes display mode. The outgoing override is cached when
// customized (and evicted when the user wound back to the default); the
// incoming mode restores its cached override if one exists, else its
// defaults.
func (s *StyleSession) SwitchMode(k ModeKey) {
	if k == s.current {
		return
	}
	if s.Customized() {
		s.cache[s.current] = s.active
	} else {
		delete(s.cache, s.current)
	}

	s.current = k
	if ov, ok := s.cache[k]; ok {
		s.active = ov
	} else {
		s.active = s.table.DefaultOverride(k)
	}
}

// SetDomainMax updates the working domain max.
func (s *StyleSession) SetDomainMax(max float64) {
	if max > 0 {
		s.active.DomainMax = max
	}
}

// SetHeightCeiling updates the working height ceiling in meters.
func (s *StyleSession) SetHeightCeiling(meters float64) {
	if meters > 0 {
		s.active.HeightCeiling = meters
	}
}

// SetScale updates the working scale transform.
func (s *StyleSession) SetScale(k ScaleKind) {
	s.active.Scale = k
}

// SetStops replaces the working stop list (sorted ascending) and records
// the theme the stops came from.
func (s *StyleSession) SetStops(theme string, stops []ColorStop) {
	sortStops(stops)
	s.active.Theme = theme
	s.active.Stops = stops
}

// SetAlpha sets the fill alpha used for color lookups.
func (s *StyleSession) SetAlpha(a uint8) {
	s.alpha = a
}

// Stops resolves the working stop list: explicit stops when the user placed
// them, otherwise the theme palette spread across the domain under the
// working scale.
func (s *StyleSession) Stops() []ColorStop {
	if len(s.active.Stops) > 0 {
		return s.active.Stops
	}
	return PaletteStops(s.active.Theme, s.active.DomainMax, s.active.Scale)
}

// FillColor maps a metric value to its fill color under the working style.
func (s *StyleSession) FillColor(value float64) color.NRGBA {
	return InterpolateColor(value, s.Stops(), s.active.DomainMax, s.active.Scale, s.alpha)
}

// ElevationFor maps a metric value to extrusion meters under the working
// style.
func (s *StyleSession) ElevationFor(value float64) float64 {
	return Elevation(value, s.active.DomainMax, s.active.HeightCeiling)
}

// FeatureStyles computes the per-region style feed for the active mode.
func (s *StyleSession) FeatureStyles(regions []Region) []FeatureStyle {
	metric := s.current.Metric
	out := make([]FeatureStyle, 0, len(regions))
	for i := range regions {
		v := regions[i].Value(metric)
		out = append(out, FeatureStyle{
			Key:       regions[i].Key,
			FillColor: HexColorCSS(s.FillColor(v)),
			Elevation: s.ElevationFor(v),
		})
	}
	return out
}
