package choro

import (
	"log"
	"math"
	"time"
)

// DefaultBreakpoints frames Jersey City for common device widths. Between
// breakpoints every camera field interpolates linearly; below the first and
// above the last the nearest breakpoint applies as-is.
var DefaultBreakpoints = []Breakpoint{
	{Width: 480, View: ViewState{Lat: 40.7110, Lon: -74.0650, Zoom: 11.2, Pitch: 40, Bearing: 0}},
	{Width: 768, View: ViewState{Lat: 40.7140, Lon: -74.0550, Zoom: 11.7, Pitch: 45, Bearing: 0}},
	{Width: 1440, View: ViewState{Lat: 40.7178, Lon: -74.0431, Zoom: 12.2, Pitch: 45, Bearing: 0}},
}

// MotionSpeeds are the fixed velocities used by continuous key-driven
// motion. Pan is in degrees per second at ReferenceZoom; the effective pan
// speed scales by 2^(ReferenceZoom-zoom) so screen-space speed stays
// constant across zoom levels.
type MotionSpeeds struct {
	Pan           float64 `yaml:"pan"`
	Zoom          float64 `yaml:"zoom"`
	Rotate        float64 `yaml:"rotate"`
	Pitch         float64 `yaml:"pitch"`
	ReferenceZoom float64 `yaml:"referenceZoom"`
}

// DefaultMotionSpeeds returns the stock velocities.
func DefaultMotionSpeeds() MotionSpeeds {
	return MotionSpeeds{
		Pan:           0.112,
		Zoom:          0.9,
		Rotate:        60,
		Pitch:         45,
		ReferenceZoom: 11.5,
	}
}

const (
	// maxFrameElapsed caps the wall time consumed by one integration step
	// so a backgrounded process does not lurch when frames resume.
	maxFrameElapsed = 50 * time.Millisecond

	// persistDebounce is how long the camera must sit unchanged before the
	// persisted encoding is written.
	persistDebounce = 300 * time.Millisecond
)

// ViewportController owns camera state for one viewing session. It merges
// absolute moves, gesture pitch deltas, and key-driven continuous motion
// into a single ViewState, and debounces writes of the persisted encoding.
// It is not internally synchronized; the session frame loop is its only
// writer.
type ViewportController struct {
	view        ViewState
	defaultView ViewState
	breakpoints []Breakpoint

	speeds MotionSpeeds
	active map[Direction]bool

	lastFrame time.Time

	store        Store
	storeKey     string
	persistDelay time.Duration
	overlayOpen  bool
	dirty        bool
	lastChange   time.Time
}

// NewViewportController creates a controller over the given breakpoints
// (nil means DefaultBreakpoints).
func NewViewportController(breakpoints []Breakpoint) *ViewportController {
	if len(breakpoints) == 0 {
		breakpoints = DefaultBreakpoints
	}
	c := &ViewportController{
		breakpoints:  breakpoints,
		speeds:       DefaultMotionSpeeds(),
		active:       make(map[Direction]bool),
		persistDelay: persistDebounce,
	}
	c.defaultView = c.DefaultForWidth(1280)
	c.view = c.defaultView
	return c
}

// SetSpeeds replaces the continuous-motion velocities.
func (c *ViewportController) SetSpeeds(s MotionSpeeds) {
	if s.ReferenceZoom == 0 {
		s.ReferenceZoom = DefaultMotionSpeeds().ReferenceZoom
	}
	c.speeds = s
}

// AttachStore wires the key-value store that receives the debounced
// persisted encoding under the given key.
func (c *ViewportController) AttachStore(store Store, key string) {
	c.store = store
	c.storeKey = key
}

// Initialize picks the starting camera: the persisted encoding when present
// and well-formed, else the responsive default for the viewport width.
// Initialization is not a user change, so nothing is scheduled for
// persistence.
func (c *ViewportController) Initialize(encoded string, viewportWidth float64) ViewState {
	c.defaultView = c.DefaultForWidth(viewportWidth)
	c.view = c.defaultView
	if encoded != "" {
		if v, ok := DecodeViewState(encoded); ok {
			c.view = v
		}
	}
	c.dirty = false
	return c.view
}

// View returns the current camera state.
func (c *ViewportController) View() ViewState {
	return c.view
}

// Default returns the responsive default computed at initialization.
func (c *ViewportController) Default() ViewState {
	return c.defaultView
}

// DefaultForWidth interpolates the breakpoint table at a viewport width.
func (c *ViewportController) DefaultForWidth(width float64) ViewState {
	bps := c.breakpoints
	if len(bps) == 0 {
		return clampView(ViewState{Lat: 40.7178, Lon: -74.0431, Zoom: 12, Pitch: 45})
	}
	if width <= bps[0].Width {
		return clampView(bps[0].View)
	}
	last := bps[len(bps)-1]
	if width >= last.Width {
		return clampView(last.View)
	}
	for i := 1; i < len(bps); i++ {
		if width > bps[i].Width {
			continue
		}
		lo, hi := bps[i-1], bps[i]
		t := (width - lo.Width) / (hi.Width - lo.Width)
		return clampView(ViewState{
			Lat:     lerp(lo.View.Lat, hi.View.Lat, t),
			Lon:     lerp(lo.View.Lon, hi.View.Lon, t),
			Zoom:    lerp(lo.View.Zoom, hi.View.Zoom, t),
			Pitch:   lerp(lo.View.Pitch, hi.View.Pitch, t),
			Bearing: lerp(lo.View.Bearing, hi.View.Bearing, t),
		})
	}
	return clampView(last.View)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// SetAbsolute merges the set fields of a partial update, clamping pitch and
// zoom to their bounds.
func (c *ViewportController) SetAbsolute(p ViewPartial) {
	if p.Lat != nil {
		c.view.Lat = *p.Lat
	}
	if p.Lon != nil {
		c.view.Lon = *p.Lon
	}
	if p.Zoom != nil {
		c.view.Zoom = *p.Zoom
	}
	if p.Pitch != nil {
		c.view.Pitch = *p.Pitch
	}
	if p.Bearing != nil {
		c.view.Bearing = *p.Bearing
	}
	c.view = clampView(c.view)
	c.markChanged(time.Now())
}

// ApplyPitchDelta adjusts pitch by a gesture delta in degrees.
func (c *ViewportController) ApplyPitchDelta(delta float64) {
	c.view.Pitch = clamp(c.view.Pitch+delta, MinPitch, MaxPitch)
	c.markChanged(time.Now())
}

// BeginContinuous starts key-driven motion along one direction. Several
// directions may be active at once (e.g. pan-up plus rotate-left).
func (c *ViewportController) BeginContinuous(d Direction) {
	c.active[d] = true
}

// EndContinuous handles a key release. Releasing any tracked key stops ALL
// active motion, not only the released direction. That coarse cancellation
// matches long-observed behavior and is kept intentionally.
func (c *ViewportController) EndContinuous(d Direction) {
	if !c.active[d] {
		return
	}
	c.active = make(map[Direction]bool)
}

// Moving reports whether any continuous direction is active.
func (c *ViewportController) Moving() bool {
	return len(c.active) > 0
}

// Advance runs one integration step at the given wall time and reports
// whether the camera changed. Elapsed time is capped at maxFrameElapsed so
// resumed sessions step smoothly instead of jumping.
func (c *ViewportController) Advance(now time.Time) bool {
	var dt float64
	if !c.lastFrame.IsZero() {
		elapsed := now.Sub(c.lastFrame)
		if elapsed > maxFrameElapsed {
			elapsed = maxFrameElapsed
		}
		if elapsed > 0 {
			dt = elapsed.Seconds()
		}
	}
	c.lastFrame = now

	if dt == 0 || len(c.active) == 0 {
		return false
	}

	before := c.view

	panStep := c.speeds.Pan * math.Pow(2, c.speeds.ReferenceZoom-c.view.Zoom) * dt
	bearingRad := c.view.Bearing * math.Pi / 180
	sin, cos := math.Sin(bearingRad), math.Cos(bearingRad)

	for d := range c.active {
		switch d {
		case PanUp:
			c.view.Lat += panStep * cos
			c.view.Lon += panStep * sin
		case PanDown:
			c.view.Lat -= panStep * cos
			c.view.Lon -= panStep * sin
		case PanRight:
			c.view.Lat -= panStep * sin
			c.view.Lon += panStep * cos
		case PanLeft:
			c.view.Lat += panStep * sin
			c.view.Lon -= panStep * cos
		case ZoomIn:
			c.view.Zoom += c.speeds.Zoom * dt
		case ZoomOut:
			c.view.Zoom -= c.speeds.Zoom * dt
		case RotateRight:
			c.view.Bearing += c.speeds.Rotate * dt
		case RotateLeft:
			c.view.Bearing -= c.speeds.Rotate * dt
		case PitchUp:
			c.view.Pitch += c.speeds.Pitch * dt
		case PitchDown:
			c.view.Pitch -= c.speeds.Pitch * dt
		}
	}
	c.view = clampView(c.view)

	if c.view == before {
		return false
	}
	c.markChanged(now)
	return true
}

// SetOverlayOpen flags that a full-screen overlay owns the history right
// now; persisted writes are held until it closes so two subsystems never
// race over the same slot.
func (c *ViewportController) SetOverlayOpen(open bool) {
	c.overlayOpen = open
}

func (c *ViewportController) markChanged(now time.Time) {
	c.dirty = true
	c.lastChange = now
}

// FlushPersist writes the encoded camera to the attached store once the
// debounce window has passed with no further changes. Each change resets
// the window rather than queueing another write, so at most one write is
// ever pending. Returns true when a write happened.
func (c *ViewportController) FlushPersist(now time.Time) bool {
	if !c.dirty || c.store == nil || c.overlayOpen {
		return false
	}
	if now.Sub(c.lastChange) < c.persistDelay {
		return false
	}
	if err := c.store.Put(c.storeKey, EncodeViewState(c.view)); err != nil {
		log.Printf("[VIEW] Warning: persisting camera state: %v", err)
	}
	c.dirty = false
	return true
}
