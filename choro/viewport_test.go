package choro

import (
	"testing"
	"time"
)

func TestDefaultForWidth(t *testing.T) {
	c := NewViewportController(nil)

	tests := []struct {
		name  string
		width float64
		want  ViewState
	}{
		{
			name:  "below first breakpoint",
			width: 320,
			want:  DefaultBreakpoints[0].View,
		},
		{
			name:  "exactly at a breakpoint",
			width: 768,
			want:  DefaultBreakpoints[1].View,
		},
		{
			name:  "above last breakpoint",
			width: 2560,
			want:  DefaultBreakpoints[2].View,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.DefaultForWidth(tt.width); got != tt.want {
				t.Errorf("DefaultForWidth(%v) = %+v, want %+v", tt.width, got, tt.want)
			}
		})
	}
}

func TestDefaultForWidth_Interpolates(t *testing.T) {
	c := NewViewportController(nil)

	// Midway between the 768 and 1440 breakpoints.
	got := c.DefaultForWidth(1104)
	if !almostEqual(got.Zoom, (11.7+12.2)/2) {
		t.Errorf("zoom = %v, want %v", got.Zoom, (11.7+12.2)/2)
	}
	if !almostEqual(got.Lat, (40.7140+40.7178)/2) {
		t.Errorf("lat = %v, want %v", got.Lat, (40.7140+40.7178)/2)
	}
}

func TestInitialize(t *testing.T) {
	c := NewViewportController(nil)

	// No persisted state: responsive default for the width.
	got := c.Initialize("", 480)
	if got != DefaultBreakpoints[0].View {
		t.Errorf("Initialize(\"\") = %+v, want first breakpoint view", got)
	}

	// Persisted state wins over the default.
	got = c.Initialize("40.8000-74.1000 13.0 30 90", 480)
	want := ViewState{Lat: 40.8, Lon: -74.1, Zoom: 13, Pitch: 30, Bearing: 90}
	if got != want {
		t.Errorf("Initialize(persisted) = %+v, want %+v", got, want)
	}

	// Garbage falls back to the default.
	got = c.Initialize("banana", 480)
	if got != DefaultBreakpoints[0].View {
		t.Errorf("Initialize(garbage) = %+v, want default", got)
	}
}

func TestSetAbsolute(t *testing.T) {
	c := NewViewportController(nil)
	c.Initialize("", 1280)

	zoom, pitch := 14.0, 120.0
	c.SetAbsolute(ViewPartial{Zoom: &zoom, Pitch: &pitch})

	v := c.View()
	if v.Zoom != 14 {
		t.Errorf("zoom = %v, want 14", v.Zoom)
	}
	if v.Pitch != MaxPitch {
		t.Errorf("pitch = %v, want clamped to %v", v.Pitch, MaxPitch)
	}
	// Unset fields keep their values.
	if v.Lat != c.Default().Lat {
		t.Errorf("lat = %v, want unchanged %v", v.Lat, c.Default().Lat)
	}
}

func TestApplyPitchDelta(t *testing.T) {
	c := NewViewportController(nil)
	c.Initialize("40.7178 -74.0431 12.0 45 0", 1280)

	c.ApplyPitchDelta(-12)
	if got := c.View().Pitch; got != 33 {
		t.Errorf("pitch = %v, want 33", got)
	}

	c.ApplyPitchDelta(-90)
	if got := c.View().Pitch; got != MinPitch {
		t.Errorf("pitch = %v, want clamped to %v", got, MinPitch)
	}
}

func TestAdvance_ZoomMotion(t *testing.T) {
	c := NewViewportController(nil)
	c.Initialize("40.7178 -74.0431 12.0 45 0", 1280)

	start := time.Now()
	c.Advance(start) // arm the frame clock
	c.BeginContinuous(ZoomIn)

	if !c.Advance(start.Add(40 * time.Millisecond)) {
		t.Fatal("Advance reported no change while zooming")
	}
	want := 12 + DefaultMotionSpeeds().Zoom*0.040
	if got := c.View().Zoom; !almostEqual(got, want) {
		t.Errorf("zoom = %v, want %v", got, want)
	}
}

func TestAdvance_ElapsedCapped(t *testing.T) {
	c := NewViewportController(nil)
	c.Initialize("40.7178 -74.0431 12.0 45 0", 1280)

	start := time.Now()
	c.Advance(start)
	c.BeginContinuous(ZoomIn)

	// Ten seconds of wall time integrate as the 50ms cap.
	c.Advance(start.Add(10 * time.Second))
	want := 12 + DefaultMotionSpeeds().Zoom*0.050
	if got := c.View().Zoom; !almostEqual(got, want) {
		t.Errorf("zoom = %v, want capped %v", got, want)
	}
}

func TestAdvance_PanFollowsBearing(t *testing.T) {
	c := NewViewportController(nil)
	c.Initialize("40.7178 -74.0431 12.0 45 90", 1280)

	start := time.Now()
	c.Advance(start)
	c.BeginContinuous(PanUp)
	c.Advance(start.Add(40 * time.Millisecond))

	// At bearing 90 "up" is due east: lon grows, lat stays.
	v := c.View()
	if v.Lon <= -74.0431 {
		t.Errorf("lon = %v, want > -74.0431", v.Lon)
	}
	if !almostEqual(v.Lat, 40.7178) {
		t.Errorf("lat = %v, want unchanged", v.Lat)
	}
}

func TestAdvance_PanScalesWithZoom(t *testing.T) {
	speeds := DefaultMotionSpeeds()

	move := func(zoom float64) float64 {
		c := NewViewportController(nil)
		c.Initialize(EncodeViewState(ViewState{Lat: 40, Lon: -74, Zoom: zoom, Pitch: 0, Bearing: 0}), 1280)
		start := time.Now()
		c.Advance(start)
		c.BeginContinuous(PanUp)
		c.Advance(start.Add(40 * time.Millisecond))
		return c.View().Lat - 40
	}

	shallow := move(speeds.ReferenceZoom - 1)
	deep := move(speeds.ReferenceZoom + 1)
	if !almostEqual(shallow, 4*deep) {
		t.Errorf("pan at zoom-1 moved %v, want 4x the %v at zoom+1", shallow, deep)
	}
}

func TestEndContinuous_StopsAllMotion(t *testing.T) {
	c := NewViewportController(nil)
	c.Initialize("", 1280)

	c.BeginContinuous(ZoomIn)
	c.BeginContinuous(RotateLeft)
	if !c.Moving() {
		t.Fatal("Moving() = false with two active directions")
	}

	// Releasing one held key cancels everything.
	c.EndContinuous(RotateLeft)
	if c.Moving() {
		t.Error("Moving() = true after release, want all motion stopped")
	}
}

func TestEndContinuous_IgnoresInactive(t *testing.T) {
	c := NewViewportController(nil)
	c.Initialize("", 1280)

	c.BeginContinuous(ZoomIn)
	c.EndContinuous(PanLeft) // never pressed
	if !c.Moving() {
		t.Error("releasing an inactive direction cancelled active motion")
	}
}

func TestFlushPersist_Debounce(t *testing.T) {
	store := NewMemoryStore()
	c := NewViewportController(nil)
	c.AttachStore(store, "view")
	c.Initialize("", 1280)

	zoom := 13.0
	c.SetAbsolute(ViewPartial{Zoom: &zoom})

	now := time.Now()
	if c.FlushPersist(now) {
		t.Error("flush fired inside the debounce window")
	}
	if !c.FlushPersist(now.Add(400 * time.Millisecond)) {
		t.Fatal("flush did not fire after the debounce window")
	}

	encoded, ok := store.Get("view")
	if !ok {
		t.Fatal("store has no persisted view")
	}
	v, ok := DecodeViewState(encoded)
	if !ok || v.Zoom != 13 {
		t.Errorf("persisted view = %q", encoded)
	}

	// Clean after a flush: nothing more to write.
	if c.FlushPersist(now.Add(time.Second)) {
		t.Error("flush fired again with no new changes")
	}
}

func TestFlushPersist_OverlayHoldsWrites(t *testing.T) {
	store := NewMemoryStore()
	c := NewViewportController(nil)
	c.AttachStore(store, "view")
	c.Initialize("", 1280)

	c.SetOverlayOpen(true)
	zoom := 13.0
	c.SetAbsolute(ViewPartial{Zoom: &zoom})

	if c.FlushPersist(time.Now().Add(time.Second)) {
		t.Error("flush fired while the overlay was open")
	}

	c.SetOverlayOpen(false)
	if !c.FlushPersist(time.Now().Add(time.Second)) {
		t.Error("flush did not fire after the overlay closed")
	}
}

func TestInitialize_NotPersisted(t *testing.T) {
	store := NewMemoryStore()
	c := NewViewportController(nil)
	c.AttachStore(store, "view")
	c.Initialize("", 1280)

	if c.FlushPersist(time.Now().Add(time.Hour)) {
		t.Error("initialization alone scheduled a persist write")
	}
}
