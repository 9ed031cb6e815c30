package choro

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testTracker(store Store) *SessionTracker {
	return NewSessionTracker(store, nil, SessionDefaults{Width: 800, Height: 600})
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, created := testTracker(NewMemoryStore()).Ensure("test")
	if !created {
		t.Fatal("expected a fresh session")
	}
	return s
}

func TestSession_FirstStepPublishesInitialState(t *testing.T) {
	s := newTestSession(t)

	res := s.Step(time.Now())
	if !res.ViewChanged {
		t.Error("first Step: ViewChanged = false, want true")
	}
	if res.StyleChanged {
		t.Error("first Step: StyleChanged = true, want false")
	}

	res = s.Step(time.Now())
	if res.ViewChanged || res.StyleChanged {
		t.Errorf("idle Step: changed = (%v, %v), want (false, false)", res.ViewChanged, res.StyleChanged)
	}
}

func TestSession_QueueAbsolute(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	zoom := 14.0
	if !s.QueueAbsolute(ViewPartial{Zoom: &zoom}) {
		t.Fatal("enqueue failed")
	}
	res := s.Step(time.Now())
	if !res.ViewChanged {
		t.Error("ViewChanged = false, want true")
	}
	if res.View.Zoom != 14 {
		t.Errorf("zoom = %v, want 14", res.View.Zoom)
	}
}

func TestSession_QueueEncoded(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	s.QueueEncoded("40.8000-74.1000 13.0 30 90")
	res := s.Step(time.Now())
	if res.View.Lat != 40.8 || res.View.Lon != -74.1 || res.View.Zoom != 13 {
		t.Errorf("view = %+v, want restored 40.8/-74.1/13", res.View)
	}
	if res.View.Pitch != 30 || res.View.Bearing != 90 {
		t.Errorf("pitch/bearing = %v/%v, want 30/90", res.View.Pitch, res.View.Bearing)
	}
}

func TestSession_QueueEncodedFallback(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())
	s.QueueAbsolute(ViewPartial{Zoom: f64(14)})
	s.Step(time.Now())

	before := testutil.ToFloat64(StateDecodeFallbacksTotal)
	s.QueueEncoded("not a view state")
	res := s.Step(time.Now())

	if got := testutil.ToFloat64(StateDecodeFallbacksTotal); got != before+1 {
		t.Errorf("fallback counter = %v, want %v", got, before+1)
	}
	want := NewViewportController(nil).DefaultForWidth(800)
	if !almostEqual(res.View.Zoom, want.Zoom) || !almostEqual(res.View.Lat, want.Lat) {
		t.Errorf("view = %+v, want responsive default %+v", res.View, want)
	}
}

func f64(v float64) *float64 { return &v }

func TestSession_QueueMode(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	s.QueueMode(ModeKey{Level: LevelWard, Metric: MetricPaid})
	res := s.Step(time.Now())
	if !res.StyleChanged {
		t.Error("StyleChanged = false, want true")
	}
	if res.Mode != (ModeKey{Level: LevelWard, Metric: MetricPaid}) {
		t.Errorf("mode = %v, want ward:paid", res.Mode)
	}

	// Re-queuing the active mode is a no-op.
	s.QueueMode(ModeKey{Level: LevelWard, Metric: MetricPaid})
	res = s.Step(time.Now())
	if res.StyleChanged {
		t.Error("same mode: StyleChanged = true, want false")
	}
}

func TestSession_QueueStyle(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	max := 50000.0
	scale := "sqrt"
	s.QueueStyle(StyleUpdate{Max: &max, Scale: &scale})
	res := s.Step(time.Now())
	if !res.StyleChanged {
		t.Error("StyleChanged = false, want true")
	}

	info := s.StyleInfo()
	if info.DomainMax != 50000 || info.Scale != "sqrt" {
		t.Errorf("style = max %v scale %q, want 50000 sqrt", info.DomainMax, info.Scale)
	}
	if !info.Customized {
		t.Error("Customized = false, want true")
	}
}

func TestSession_QueueStyleIgnoresBadFields(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	bad := -5.0
	scale := "quadratic"
	stops := "plasma 100 nothex"
	s.QueueStyle(StyleUpdate{Max: &bad, Scale: &scale, Stops: &stops})
	res := s.Step(time.Now())
	if res.StyleChanged {
		t.Error("all-invalid update: StyleChanged = true, want false")
	}
	if info := s.StyleInfo(); info.Customized {
		t.Errorf("style drifted: %+v", info)
	}
}

func TestSession_QueueStyleStops(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	stops := "viridis 0 440154 40000 fde725"
	s.QueueStyle(StyleUpdate{Stops: &stops})
	s.Step(time.Now())

	info := s.StyleInfo()
	if info.Theme != "viridis" {
		t.Errorf("theme = %q, want viridis", info.Theme)
	}
	if info.Stops != stops {
		t.Errorf("stops = %q, want %q", info.Stops, stops)
	}
}

func TestSession_QueueTouchPitches(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	s.QueueTouch(twoFingers(TouchStart, 100, 200, 300, 200))
	s.QueueTouch(twoFingers(TouchMove, 100, 240, 300, 240))
	res := s.Step(time.Now())

	if !res.ViewChanged {
		t.Error("ViewChanged = false, want true")
	}
	// Default pitch 45, drag down 40 px at 0.3 deg/px.
	if !almostEqual(res.View.Pitch, 33) {
		t.Errorf("pitch = %v, want 33", res.View.Pitch)
	}
}

func TestSession_QueueKeyZooms(t *testing.T) {
	s := newTestSession(t)
	start := time.Now()
	s.Step(start) // arms the motion clock

	s.QueueKey(true, ZoomIn)
	s.Step(start.Add(10 * time.Millisecond))
	res := s.Step(start.Add(50 * time.Millisecond))

	// Both steps integrate: 10 ms then 40 ms of zoom-in.
	want := NewViewportController(nil).DefaultForWidth(800).Zoom
	want += DefaultMotionSpeeds().Zoom * (10 * time.Millisecond).Seconds()
	want += DefaultMotionSpeeds().Zoom * (40 * time.Millisecond).Seconds()
	if !almostEqual(res.View.Zoom, want) {
		t.Errorf("zoom = %v, want %v", res.View.Zoom, want)
	}

	s.QueueKey(false, ZoomIn)
	s.Step(start.Add(60 * time.Millisecond))
	res = s.Step(start.Add(100 * time.Millisecond))
	if res.ViewChanged {
		t.Error("after release: ViewChanged = true, want false")
	}
}

func TestSession_InboxFull(t *testing.T) {
	s := newTestSession(t)

	for i := 0; i < inboxSize; i++ {
		if !s.QueueOverlay(true) {
			t.Fatalf("enqueue %d dropped before the inbox filled", i)
		}
	}
	if s.QueueOverlay(true) {
		t.Error("enqueue past capacity succeeded, want drop")
	}

	s.Step(time.Now())
	if !s.QueueOverlay(false) {
		t.Error("enqueue after drain failed")
	}
}

func TestSession_LabelsAreCopies(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	if got := s.Labels(); got == nil || len(got) != 0 {
		t.Errorf("labels before placement = %v, want empty slice", got)
	}

	regions := []Region{paidRegion("11101-1", 12000, geoSquare(-74.055, 40.714, 0.02))}
	placed := s.PlaceLabels(NewLabelEngine(), regions)
	if len(placed) == 0 {
		t.Fatal("no labels placed")
	}

	got := s.Labels()
	got[0].Text = "scribbled"
	if again := s.Labels(); again[0].Text == "scribbled" {
		t.Error("Labels returned shared backing storage")
	}
}

func TestSession_RenderState(t *testing.T) {
	table := BuiltinModes()
	cfg, _ := table.Lookup(ModeKey{Level: LevelLot, Metric: MetricPaid})
	cfg.Variant = "units"
	table.Set(ModeKey{Level: LevelLot, Metric: MetricPaid}, cfg)

	tracker := NewSessionTracker(nil, table, SessionDefaults{Width: 800, Height: 600})
	s, _ := tracker.Ensure("render")
	s.Step(time.Now())

	regions := []Region{paidRegion("11101-1", 12000, geoSquare(-74.055, 40.714, 0.02))}
	in := s.RenderState(regions)

	if in.Width != 800 || in.Height != 600 {
		t.Errorf("size = %dx%d, want 800x600", in.Width, in.Height)
	}
	if len(in.Styles) != 1 {
		t.Errorf("got %d styles, want 1", len(in.Styles))
	}
	if in.Variant != "units" {
		t.Errorf("variant = %q, want units", in.Variant)
	}
	if len(in.Labels) != 0 {
		t.Errorf("labels = %v, want none before placement", in.Labels)
	}
}

func TestSession_ViewEncoding(t *testing.T) {
	s := newTestSession(t)
	s.Step(time.Now())

	v, encoded := s.View()
	if want := EncodeViewState(v); encoded != want {
		t.Errorf("encoded = %q, want %q", encoded, want)
	}
	if !strings.Contains(encoded, " ") {
		t.Errorf("encoded %q does not look like a view state", encoded)
	}
}

func TestSession_PersistWriteCounted(t *testing.T) {
	store := NewMemoryStore()
	s, _ := testTracker(store).Ensure("persist")
	s.Step(time.Now())

	before := testutil.ToFloat64(PersistWritesTotal)
	s.QueueAbsolute(ViewPartial{Zoom: f64(13)})
	s.Step(time.Now())

	// Inside the debounce window nothing is written yet.
	if _, ok := store.Get("view"); ok {
		t.Fatal("state persisted before the debounce elapsed")
	}

	s.Step(time.Now().Add(400 * time.Millisecond))
	if got := testutil.ToFloat64(PersistWritesTotal); got != before+1 {
		t.Errorf("persist counter = %v, want %v", got, before+1)
	}

	encoded, ok := store.Get("view")
	if !ok {
		t.Fatal("no persisted view state")
	}
	v, ok := DecodeViewState(encoded)
	if !ok || v.Zoom != 13 {
		t.Errorf("persisted view = %q -> %+v, want zoom 13", encoded, v)
	}
}

func TestSession_LastSeenAdvancesWithInput(t *testing.T) {
	s := newTestSession(t)
	created := s.LastSeen()

	time.Sleep(5 * time.Millisecond)
	s.QueueOverlay(true)
	s.Step(time.Now())

	if !s.LastSeen().After(created) {
		t.Error("LastSeen did not advance after input")
	}
}
