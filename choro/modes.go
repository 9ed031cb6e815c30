package choro

import "image/color"

// ModeConfig is the default styling for one display mode: the domain max
// that saturates the gradient, the extrusion ceiling in meters, the
// palette, and optionally a fixed stop set that overrides the palette
// ramp. Variant names an alternate geometry set on loaded regions.
type ModeConfig struct {
	DomainMax     float64     `yaml:"domainMax"`
	HeightCeiling float64     `yaml:"heightCeiling"`
	Theme         string      `yaml:"theme"`
	Stops         []ColorStop `yaml:"-"`
	Variant       string      `yaml:"variant"`
}

// ModeTable maps display modes to their default styling.
type ModeTable struct {
	entries  map[ModeKey]ModeConfig
	fallback ModeConfig
}

// NewModeTable builds a table from explicit entries; lookups for unknown
// modes return the fallback.
func NewModeTable(entries map[ModeKey]ModeConfig, fallback ModeConfig) *ModeTable {
	if entries == nil {
		entries = make(map[ModeKey]ModeConfig)
	}
	return &ModeTable{entries: entries, fallback: fallback}
}

// Lookup returns the config for a mode and whether it was explicitly
// defined.
func (t *ModeTable) Lookup(k ModeKey) (ModeConfig, bool) {
	if c, ok := t.entries[k]; ok {
		return c, true
	}
	return t.fallback, false
}

// Set replaces one mode's config (used by config-file overrides).
func (t *ModeTable) Set(k ModeKey, c ModeConfig) {
	t.entries[k] = c
}

// Modes lists the explicitly defined mode keys.
func (t *ModeTable) Modes() []ModeKey {
	keys := make([]ModeKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

// DefaultOverride expands a mode's config into the override struct a
// session starts from.
func (t *ModeTable) DefaultOverride(k ModeKey) StyleOverride {
	c, _ := t.Lookup(k)
	return StyleOverride{
		DomainMax:     c.DomainMax,
		HeightCeiling: c.HeightCeiling,
		Scale:         ScaleLinear,
		Theme:         c.Theme,
		Stops:         c.Stops,
	}
}

// Variant returns the geometry variant name for a mode.
func (t *ModeTable) Variant(k ModeKey) string {
	c, _ := t.Lookup(k)
	return c.Variant
}

// BuiltinModes is the stock Jersey City tax table. Domain maxes come from
// the observed distribution of annual payments: a $40k lot bill saturates
// the lot gradient, census blocks aggregate to low millions, wards to tens
// of millions.
func BuiltinModes() *ModeTable {
	entries := map[ModeKey]ModeConfig{
		{LevelLot, MetricPaid}:            {DomainMax: 40000, HeightCeiling: 250, Theme: "plasma"},
		{LevelLot, MetricBilled}:          {DomainMax: 40000, HeightCeiling: 250, Theme: "plasma"},
		{LevelLot, MetricPaidPerSqft}:     {DomainMax: 10, HeightCeiling: 150, Theme: "viridis"},
		{LevelUnit, MetricPaid}:           {DomainMax: 25000, HeightCeiling: 120, Theme: "plasma"},
		{LevelUnit, MetricBilled}:         {DomainMax: 25000, HeightCeiling: 120, Theme: "plasma"},
		{LevelUnit, MetricPaidPerSqft}:    {DomainMax: 12, HeightCeiling: 150, Theme: "viridis"},
		{LevelBlock, MetricPaid}:          {DomainMax: 2000000, HeightCeiling: 400, Theme: "inferno"},
		{LevelBlock, MetricPaidPerCapita}: {DomainMax: 8000, HeightCeiling: 300, Theme: "viridis"},
		{LevelWard, MetricPaid}: {
			DomainMax:     60000000,
			HeightCeiling: 800,
			Theme:         "magma",
			Stops: []ColorStop{
				{Value: 0, Color: color.NRGBA{R: 0x1c, G: 0x10, B: 0x44, A: 255}},
				{Value: 15000000, Color: color.NRGBA{R: 0xb5, G: 0x36, B: 0x7a, A: 255}},
				{Value: 40000000, Color: color.NRGBA{R: 0xfb, G: 0x87, B: 0x61, A: 255}},
				{Value: 60000000, Color: color.NRGBA{R: 0xfc, G: 0xfd, B: 0xbf, A: 255}},
			},
		},
	}
	fallback := ModeConfig{DomainMax: 40000, HeightCeiling: 250, Theme: "plasma"}
	return NewModeTable(entries, fallback)
}

// Palette anchors, evenly spaced across [0,1] position space. The ramps
// follow the matplotlib perceptual colormaps.
var palettes = map[string][]color.NRGBA{
	"viridis": {
		{R: 68, G: 1, B: 84, A: 255},
		{R: 64, G: 67, B: 135, A: 255},
		{R: 41, G: 120, B: 142, A: 255},
		{R: 34, G: 167, B: 132, A: 255},
		{R: 121, G: 209, B: 81, A: 255},
		{R: 253, G: 231, B: 37, A: 255},
	},
	"plasma": {
		{R: 13, G: 8, B: 135, A: 255},
		{R: 125, G: 3, B: 168, A: 255},
		{R: 203, G: 70, B: 121, A: 255},
		{R: 248, G: 148, B: 65, A: 255},
		{R: 240, G: 249, B: 33, A: 255},
	},
	"inferno": {
		{R: 0, G: 0, B: 4, A: 255},
		{R: 101, G: 21, B: 110, A: 255},
		{R: 212, G: 72, B: 66, A: 255},
		{R: 250, G: 193, B: 39, A: 255},
		{R: 252, G: 255, B: 164, A: 255},
	},
	"magma": {
		{R: 0, G: 0, B: 4, A: 255},
		{R: 129, G: 37, B: 129, A: 255},
		{R: 229, G: 80, B: 100, A: 255},
		{R: 254, G: 194, B: 135, A: 255},
		{R: 252, G: 253, B: 191, A: 255},
	},
}

// PaletteStops spreads a named palette across [0,max] as value stops,
// placing each anchor at an even position-space interval and converting
// positions back to values under the given scale. With a nonlinear scale
// the value spacing is uneven but the rendered bands stay even, which is
// the point.
func PaletteStops(name string, max float64, scale ScaleKind) []ColorStop {
	anchors, ok := palettes[name]
	if !ok {
		anchors = palettes["plasma"]
	}
	if max <= 0 || len(anchors) == 0 {
		return nil
	}
	stops := make([]ColorStop, len(anchors))
	denom := float64(len(anchors) - 1)
	for i, c := range anchors {
		pos := 0.0
		if denom > 0 {
			pos = float64(i) / denom
		}
		stops[i] = ColorStop{Value: PositionToValue(pos, max, scale), Color: c}
	}
	return stops
}

// PaletteNames lists the built-in palette themes.
func PaletteNames() []string {
	names := make([]string, 0, len(palettes))
	for n := range palettes {
		names = append(names, n)
	}
	return names
}
