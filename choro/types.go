package choro

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/paulmach/orb"
)

// ViewState is the full camera description for the 3D choropleth view.
// Pitch and Zoom are clamped to their bounds everywhere the state is
// mutated; Bearing is unbounded and accumulates past ±360.
type ViewState struct {
	Lat     float64 `json:"lat"`     // degrees, WGS84
	Lon     float64 `json:"lon"`     // degrees, WGS84
	Zoom    float64 `json:"zoom"`    // web-mercator zoom level, 0-24
	Pitch   float64 `json:"pitch"`   // degrees from vertical, 0-85
	Bearing float64 `json:"bearing"` // degrees clockwise from north
}

// Camera bounds shared by every mutation path.
const (
	MinZoom  = 0.0
	MaxZoom  = 24.0
	MinPitch = 0.0
	MaxPitch = 85.0
)

// ViewPartial is a partial camera update. Nil fields are left unchanged.
type ViewPartial struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Zoom    *float64 `json:"zoom,omitempty"`
	Pitch   *float64 `json:"pitch,omitempty"`
	Bearing *float64 `json:"bearing,omitempty"`
}

// Breakpoint pairs a viewport width with the camera framing used at that
// width. Defaults between breakpoints interpolate every field linearly.
type Breakpoint struct {
	Width float64   `yaml:"width" json:"width"` // CSS pixels
	View  ViewState `yaml:"view" json:"view"`
}

// Direction is one axis of continuous camera motion driven by a held key.
type Direction int

const (
	PanUp Direction = iota
	PanDown
	PanLeft
	PanRight
	ZoomIn
	ZoomOut
	RotateLeft
	RotateRight
	PitchUp
	PitchDown
)

var directionNames = map[string]Direction{
	"pan-up":       PanUp,
	"pan-down":     PanDown,
	"pan-left":     PanLeft,
	"pan-right":    PanRight,
	"zoom-in":      ZoomIn,
	"zoom-out":     ZoomOut,
	"rotate-left":  RotateLeft,
	"rotate-right": RotateRight,
	"pitch-up":     PitchUp,
	"pitch-down":   PitchDown,
}

// ParseDirection maps a wire name like "pan-up" to its Direction.
func ParseDirection(name string) (Direction, bool) {
	d, ok := directionNames[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

func (d Direction) String() string {
	for name, dir := range directionNames {
		if dir == d {
			return name
		}
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// ScaleKind selects the value↔[0,1] transform used for color positions.
type ScaleKind string

const (
	ScaleLinear ScaleKind = "linear"
	ScaleSqrt   ScaleKind = "sqrt"
	ScaleLog    ScaleKind = "log"
)

// ParseScale returns the ScaleKind for a persisted scale token.
func ParseScale(s string) (ScaleKind, bool) {
	switch ScaleKind(strings.ToLower(strings.TrimSpace(s))) {
	case ScaleLinear:
		return ScaleLinear, true
	case ScaleSqrt:
		return ScaleSqrt, true
	case ScaleLog:
		return ScaleLog, true
	}
	return ScaleLinear, false
}

// ColorStop anchors a color at a metric value. A gradient is an
// ascending-by-value list of stops.
type ColorStop struct {
	Value float64
	Color color.NRGBA
}

// Level is a geographic aggregation level for the choropleth.
type Level string

const (
	LevelUnit  Level = "unit"  // individual condo units
	LevelLot   Level = "lot"   // tax lots, condos dissolved to one footprint
	LevelBlock Level = "block" // census blocks
	LevelWard  Level = "ward"  // city wards
)

// Metric is a per-region scalar the choropleth can display.
type Metric string

const (
	MetricPaid          Metric = "paid"
	MetricBilled        Metric = "billed"
	MetricPaidPerSqft   Metric = "paid_per_sqft"
	MetricPaidPerCapita Metric = "paid_per_capita"
)

// ModeKey identifies a display mode: which aggregation level is shown and
// which metric drives color and extrusion.
type ModeKey struct {
	Level  Level
	Metric Metric
}

func (k ModeKey) String() string {
	return string(k.Level) + ":" + string(k.Metric)
}

// ParseModeKey parses "level:metric" (e.g. "lot:paid"). Both parts are
// case-insensitive; unknown levels and metrics are rejected.
func ParseModeKey(s string) (ModeKey, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ModeKey{}, fmt.Errorf("mode %q: want level:metric", s)
	}
	level := Level(strings.ToLower(strings.TrimSpace(parts[0])))
	metric := Metric(strings.ToLower(strings.TrimSpace(parts[1])))
	if !validLevel(level) {
		return ModeKey{}, fmt.Errorf("mode %q: unknown level %q", s, level)
	}
	if !validMetric(metric) {
		return ModeKey{}, fmt.Errorf("mode %q: unknown metric %q", s, metric)
	}
	return ModeKey{Level: level, Metric: metric}, nil
}

// Region is one choropleth feature: stable identity, polygon rings in
// lng/lat, per-metric values. Variants holds alternate geometry selectable
// by display mode (e.g. unit footprints for a dissolved lot). Regions are
// read-only after loading.
type Region struct {
	Key      string                `json:"key"`
	Name     string                `json:"name"`
	Rings    []orb.Ring            `json:"-"`
	Values   map[Metric]float64    `json:"values"`
	Variants map[string][]orb.Ring `json:"-"`
}

// Value returns the region's value for a metric, 0 when absent.
func (r *Region) Value(m Metric) float64 {
	return r.Values[m]
}

// RingsFor returns the geometry variant named by the mode, falling back to
// the primary rings when the variant is absent.
func (r *Region) RingsFor(variant string) []orb.Ring {
	if variant != "" {
		if alt, ok := r.Variants[variant]; ok && len(alt) > 0 {
			return alt
		}
	}
	return r.Rings
}

// TouchType is the lifecycle stage of a touch frame.
type TouchType string

const (
	TouchStart  TouchType = "start"
	TouchMove   TouchType = "move"
	TouchEnd    TouchType = "end"
	TouchCancel TouchType = "cancel"
)

// TouchPoint is one finger's position in viewport pixels.
type TouchPoint struct {
	ID int     `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// TouchEvent is one raw touch frame from an input surface.
type TouchEvent struct {
	Type   TouchType    `json:"type"`
	Points []TouchPoint `json:"points"`
}

// Label is a placed label: screen anchor plus display text. Text may hold
// newlines; the anchor is the rectangle center after collision resolution.
type Label struct {
	RegionKey string  `json:"key"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Text      string  `json:"text"`
}

// FeatureStyle is the per-region style feed consumed by a renderer:
// fill color and extrusion height for the active mode.
type FeatureStyle struct {
	Key       string  `json:"key"`
	FillColor string  `json:"fillColor"` // #rrggbb
	Elevation float64 `json:"elevation"` // meters
}
