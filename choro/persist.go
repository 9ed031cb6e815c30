package choro

import (
	"fmt"
	"image/color"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// The persisted camera string is deliberately lossy and human-readable:
// "lat lon zoom pitch bearing" with lat/lon at 4 decimals, zoom at 1
// decimal, pitch/bearing as whole degrees. A negative number's own sign
// doubles as the separator, so "40.7178-74.0431 12.0 45 0" and
// "40.7178 -74.0431 12.0 45 0" are the same state.

// EncodeViewState renders v in the persisted camera format.
func EncodeViewState(v ViewState) string {
	tokens := []string{
		strconv.FormatFloat(v.Lat, 'f', 4, 64),
		strconv.FormatFloat(v.Lon, 'f', 4, 64),
		strconv.FormatFloat(v.Zoom, 'f', 1, 64),
		strconv.Itoa(int(math.Round(v.Pitch))),
		strconv.Itoa(int(math.Round(v.Bearing))),
	}

	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 && !strings.HasPrefix(tok, "-") {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}

var numberPattern = regexp.MustCompile(`-?[0-9]+(?:\.[0-9]+)?`)

// DecodeViewState parses a persisted camera string. It is tolerant: every
// numeric substring is extracted regardless of separators, and the first
// five become lat, lon, zoom, pitch, bearing. Fewer than five numbers, or
// any unparsable token, reports ok=false; callers fall back to their
// default view rather than surfacing an error.
func DecodeViewState(s string) (ViewState, bool) {
	matches := numberPattern.FindAllString(s, -1)
	if len(matches) < 5 {
		return ViewState{}, false
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		f, err := strconv.ParseFloat(matches[i], 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return ViewState{}, false
		}
		fields[i] = f
	}

	v := ViewState{
		Lat:     fields[0],
		Lon:     fields[1],
		Zoom:    fields[2],
		Pitch:   fields[3],
		Bearing: fields[4],
	}
	return clampView(v), true
}

// clampView enforces the camera bounds. Bearing is left untouched.
func clampView(v ViewState) ViewState {
	v.Zoom = clamp(v.Zoom, MinZoom, MaxZoom)
	v.Pitch = clamp(v.Pitch, MinPitch, MaxPitch)
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EncodeCeiling renders a height ceiling as whole meters.
func EncodeCeiling(meters float64) string {
	return strconv.Itoa(int(math.Round(meters)))
}

// DecodeCeiling parses a persisted height ceiling.
func DecodeCeiling(s string) (float64, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, false
	}
	return float64(n), true
}

// EncodeStops renders a stop list as a theme-prefixed, space-separated
// stream of "value hex6" pairs, e.g. "custom 0 2b083c 9000 f0f921".
func EncodeStops(theme string, stops []ColorStop) string {
	if theme == "" {
		theme = "custom"
	}
	parts := make([]string, 0, 1+2*len(stops))
	parts = append(parts, theme)
	for _, s := range stops {
		parts = append(parts, strconv.FormatFloat(s.Value, 'f', -1, 64), FormatHexColor(s.Color))
	}
	return strings.Join(parts, " ")
}

// DecodeStops parses a persisted stop list. Two formats are accepted: the
// current theme-prefixed "value hex value hex ..." stream, and the legacy
// colon form where each token is "value:hex6" and the theme is implied.
// The format is detected by probing the first token, mirroring how old and
// new encodings coexist in stored sessions. Stops come back sorted
// ascending by value. Any malformed token reports ok=false so the caller
// keeps the mode's default gradient.
func DecodeStops(s string) (string, []ColorStop, bool) {
	fieldsList := strings.Fields(s)
	if len(fieldsList) == 0 {
		return "", nil, false
	}

	// Legacy probe: "value:hex6" tokens have an embedded colon.
	if strings.Contains(fieldsList[0], ":") {
		stops := make([]ColorStop, 0, len(fieldsList))
		for _, tok := range fieldsList {
			parts := strings.SplitN(tok, ":", 2)
			if len(parts) != 2 {
				return "", nil, false
			}
			v, err := strconv.ParseFloat(parts[0], 64)
			if err != nil {
				return "", nil, false
			}
			c, ok := ParseHexColor(parts[1])
			if !ok {
				return "", nil, false
			}
			stops = append(stops, ColorStop{Value: v, Color: c})
		}
		sortStops(stops)
		return "custom", stops, true
	}

	theme := fieldsList[0]
	rest := fieldsList[1:]
	if _, err := strconv.ParseFloat(theme, 64); err == nil {
		// No theme token; the stream starts directly with a value.
		theme, rest = "custom", fieldsList
	}
	if len(rest)%2 != 0 {
		return "", nil, false
	}

	stops := make([]ColorStop, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		v, err := strconv.ParseFloat(rest[i], 64)
		if err != nil {
			return "", nil, false
		}
		c, ok := ParseHexColor(rest[i+1])
		if !ok {
			return "", nil, false
		}
		stops = append(stops, ColorStop{Value: v, Color: c})
	}
	sortStops(stops)
	return theme, stops, true
}

func sortStops(stops []ColorStop) {
	sort.Slice(stops, func(i, j int) bool { return stops[i].Value < stops[j].Value })
}

// ParseHexColor parses "rrggbb" with an optional leading '#'.
func ParseHexColor(hex string) (color.NRGBA, bool) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return color.NRGBA{}, false
	}

	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, true
}

// FormatHexColor renders a color as lowercase "rrggbb" without the '#'.
func FormatHexColor(c color.NRGBA) string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// HexColorCSS renders a color as "#rrggbb" for UI payloads.
func HexColorCSS(c color.NRGBA) string {
	return "#" + FormatHexColor(c)
}
