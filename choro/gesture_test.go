package choro

import (
	"math"
	"testing"
)

// twoFingers builds a touch frame with fingers 1 and 2 at the given
// positions.
func twoFingers(typ TouchType, ax, ay, bx, by float64) TouchEvent {
	return TouchEvent{
		Type: typ,
		Points: []TouchPoint{
			{ID: 1, X: ax, Y: ay},
			{ID: 2, X: bx, Y: by},
		},
	}
}

func TestGesture_VerticalDragPitches(t *testing.T) {
	g := NewGestureClassifier()

	delta, consumed := g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))
	if consumed || delta != 0 {
		t.Fatalf("start frame: delta=%v consumed=%v, want 0 false", delta, consumed)
	}
	if g.Phase() != GesturePending {
		t.Fatalf("phase = %v, want pending", g.Phase())
	}

	// Both fingers drag 40px down: classified as pitching, and the full
	// displacement since touch-start converts at 0.3 deg/px.
	delta, consumed = g.HandleTouch(twoFingers(TouchMove, 100, 340, 200, 340))
	if !consumed {
		t.Fatal("vertical drag not consumed")
	}
	if !almostEqual(delta, -12) {
		t.Errorf("delta = %v, want -12", delta)
	}
	if g.Phase() != GesturePitching {
		t.Errorf("phase = %v, want pitching", g.Phase())
	}
	if !g.Capturing() {
		t.Error("Capturing() = false during a pitch gesture")
	}

	// Later frames apply per-frame movement.
	delta, consumed = g.HandleTouch(twoFingers(TouchMove, 100, 350, 200, 350))
	if !consumed || !almostEqual(delta, -3) {
		t.Errorf("second frame: delta=%v consumed=%v, want -3 true", delta, consumed)
	}

	// Dragging back up pitches the other way.
	delta, _ = g.HandleTouch(twoFingers(TouchMove, 100, 330, 200, 330))
	if !almostEqual(delta, 6) {
		t.Errorf("upward frame: delta = %v, want 6", delta)
	}
}

func TestGesture_DeadZone(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	// 10px of travel stays inside the dead zone: no classification yet.
	delta, consumed := g.HandleTouch(twoFingers(TouchMove, 100, 310, 200, 310))
	if consumed || delta != 0 {
		t.Errorf("inside dead zone: delta=%v consumed=%v, want 0 false", delta, consumed)
	}
	if g.Phase() != GesturePending {
		t.Errorf("phase = %v, want still pending", g.Phase())
	}

	// Crossing the dead zone classifies and pays out the full travel.
	delta, consumed = g.HandleTouch(twoFingers(TouchMove, 100, 340, 200, 340))
	if !consumed || !almostEqual(delta, -12) {
		t.Errorf("after dead zone: delta=%v consumed=%v, want -12 true", delta, consumed)
	}
}

func TestGesture_PinchPassesThrough(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	// Fingers spreading apart is a zoom, not a tilt.
	delta, consumed := g.HandleTouch(twoFingers(TouchMove, 70, 300, 230, 300))
	if consumed || delta != 0 {
		t.Errorf("pinch: delta=%v consumed=%v, want 0 false", delta, consumed)
	}
	if g.Phase() != GesturePassthrough {
		t.Errorf("phase = %v, want passthrough", g.Phase())
	}

	// The classification is sticky: a later vertical drag in the same
	// sequence stays unconsumed.
	_, consumed = g.HandleTouch(twoFingers(TouchMove, 70, 360, 230, 360))
	if consumed {
		t.Error("passthrough sequence consumed a later vertical drag")
	}
}

func TestGesture_PinchWithTranslationPassesThrough(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	// Both fingers move down 40px but also spread 80px: the spread
	// disqualifies pitching.
	_, consumed := g.HandleTouch(twoFingers(TouchMove, 60, 340, 240, 340))
	if consumed {
		t.Error("spreading drag was consumed")
	}
	if g.Phase() != GesturePassthrough {
		t.Errorf("phase = %v, want passthrough", g.Phase())
	}
}

func TestGesture_HorizontalDominancePassesThrough(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	// Mostly-horizontal drag: vertical must dominate 1.5x to pitch.
	_, consumed := g.HandleTouch(twoFingers(TouchMove, 140, 320, 240, 320))
	if consumed {
		t.Error("horizontal drag was consumed")
	}
	if g.Phase() != GesturePassthrough {
		t.Errorf("phase = %v, want passthrough", g.Phase())
	}
}

func TestGesture_TwistPassesThrough(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	// Both fingers move down but unevenly enough to twist the finger
	// line past the angle limit.
	_, consumed := g.HandleTouch(twoFingers(TouchMove, 100, 360, 200, 310))
	if consumed {
		t.Error("twisting drag was consumed")
	}
	if g.Phase() != GesturePassthrough {
		t.Errorf("phase = %v, want passthrough", g.Phase())
	}
}

func TestGesture_OppositeVerticalsPassThrough(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	// One finger up, one down: a rotate, never a tilt.
	_, consumed := g.HandleTouch(twoFingers(TouchMove, 100, 270, 200, 330))
	if consumed {
		t.Error("opposite vertical drag was consumed")
	}
}

func TestGesture_EndResetsSequence(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))
	g.HandleTouch(twoFingers(TouchMove, 100, 340, 200, 340))
	if !g.Capturing() {
		t.Fatal("expected an active pitch gesture")
	}

	g.HandleTouch(twoFingers(TouchEnd, 100, 340, 200, 340))
	if g.Phase() != GestureIdle {
		t.Errorf("phase after end = %v, want idle", g.Phase())
	}
	if g.Capturing() {
		t.Error("Capturing() = true after touch end")
	}

	// No carry-over: the next sequence starts from scratch.
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))
	if g.Phase() != GesturePending {
		t.Errorf("phase = %v, want pending", g.Phase())
	}
}

func TestGesture_WrongFingerCountResets(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))
	g.HandleTouch(twoFingers(TouchMove, 100, 340, 200, 340))

	// A third finger (or a lifted one) ends the gesture immediately.
	ev := TouchEvent{Type: TouchMove, Points: []TouchPoint{{ID: 1, X: 100, Y: 350}}}
	delta, consumed := g.HandleTouch(ev)
	if consumed || delta != 0 {
		t.Errorf("one-finger frame: delta=%v consumed=%v, want 0 false", delta, consumed)
	}
	if g.Phase() != GestureIdle {
		t.Errorf("phase = %v, want idle", g.Phase())
	}
}

func TestGesture_UnknownFingerIDResets(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	ev := TouchEvent{Type: TouchMove, Points: []TouchPoint{
		{ID: 1, X: 100, Y: 340},
		{ID: 9, X: 200, Y: 340},
	}}
	_, consumed := g.HandleTouch(ev)
	if consumed {
		t.Error("frame with an unknown finger was consumed")
	}
	if g.Phase() != GestureIdle {
		t.Errorf("phase = %v, want idle", g.Phase())
	}
}

func TestGesture_PointOrderIndependent(t *testing.T) {
	g := NewGestureClassifier()
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	// The same fingers reported in swapped order still match up.
	ev := TouchEvent{Type: TouchMove, Points: []TouchPoint{
		{ID: 2, X: 200, Y: 340},
		{ID: 1, X: 100, Y: 340},
	}}
	delta, consumed := g.HandleTouch(ev)
	if !consumed || !almostEqual(delta, -12) {
		t.Errorf("swapped order: delta=%v consumed=%v, want -12 true", delta, consumed)
	}
}

func TestGesture_SetSensitivity(t *testing.T) {
	g := NewGestureClassifier()
	g.SetSensitivity(0.5)
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))

	delta, _ := g.HandleTouch(twoFingers(TouchMove, 100, 340, 200, 340))
	if !almostEqual(delta, -20) {
		t.Errorf("delta = %v, want -20 at 0.5 deg/px", delta)
	}

	// Non-positive values are ignored.
	g.SetSensitivity(0)
	g.HandleTouch(twoFingers(TouchEnd, 0, 0, 0, 0))
	g.HandleTouch(twoFingers(TouchStart, 100, 300, 200, 300))
	delta, _ = g.HandleTouch(twoFingers(TouchMove, 100, 340, 200, 340))
	if !almostEqual(delta, -20) {
		t.Errorf("delta = %v, want sensitivity unchanged at 0.5", delta)
	}
}

func TestNormalizeAngle(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
	}
	for _, tt := range tests {
		if got := normalizeAngle(tt.in); !almostEqual(got, tt.want) {
			t.Errorf("normalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
