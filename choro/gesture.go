package choro

import "math"

// GesturePhase is the classification state of one two-finger sequence.
type GesturePhase int

const (
	GestureIdle GesturePhase = iota
	GesturePending
	GesturePitching
	GesturePassthrough
)

func (p GesturePhase) String() string {
	switch p {
	case GestureIdle:
		return "idle"
	case GesturePending:
		return "pending"
	case GesturePitching:
		return "pitching"
	case GesturePassthrough:
		return "passthrough"
	}
	return "unknown"
}

// Classifier thresholds. A sequence stays pending until the dead zone is
// crossed; the single classification made at that moment is sticky for the
// rest of the sequence.
const (
	gestureDeadZonePx  = 15.0
	verticalDominance  = 1.5 // |avgV| must exceed 1.5x |avgH|
	spreadVsVertical   = 0.5 // spread change must stay under half |avgV|
	angleLimitRad      = 0.2 // ~11.5 degrees of rotation disqualifies
	defaultSensitivity = 0.3 // degrees of pitch per pixel of drag
)

// GestureClassifier turns raw two-finger touch streams into camera pitch
// deltas. Two fingers dragging the same vertical direction pitch the
// camera; anything that looks like a pinch or rotate is handed back to the
// default camera gestures untouched. Classification happens once per
// sequence, after a 15px dead zone, and never re-evaluates mid-gesture.
type GestureClassifier struct {
	phase GesturePhase

	startA, startB TouchPoint
	lastA, lastB   TouchPoint

	sensitivity float64
}

// NewGestureClassifier returns a classifier with the stock 0.3 deg/px
// sensitivity.
func NewGestureClassifier() *GestureClassifier {
	return &GestureClassifier{sensitivity: defaultSensitivity}
}

// SetSensitivity adjusts degrees of pitch per pixel of vertical drag.
func (g *GestureClassifier) SetSensitivity(degPerPx float64) {
	if degPerPx > 0 {
		g.sensitivity = degPerPx
	}
}

// Phase returns the current classification state.
func (g *GestureClassifier) Phase() GesturePhase {
	return g.phase
}

// Capturing reports whether an active pitching gesture owns the pitch and
// bearing fields. Consumers must drop generic-handler updates to those
// fields while this is set; the flag is the whole mutual-exclusion story,
// there is no lock.
func (g *GestureClassifier) Capturing() bool {
	return g.phase == GesturePitching
}

// Reset abandons any in-flight sequence.
func (g *GestureClassifier) Reset() {
	g.phase = GestureIdle
}

// HandleTouch consumes one touch frame. pitchDelta is the signed pitch
// change in degrees to apply this frame (drag up increases pitch);
// consumed reports whether default gesture handling must be suppressed for
// this frame. Anything other than exactly two tracked fingers ends the
// sequence: no inertia, no carry-over.
func (g *GestureClassifier) HandleTouch(ev TouchEvent) (pitchDelta float64, consumed bool) {
	switch ev.Type {
	case TouchStart:
		if len(ev.Points) != 2 || ev.Points[0].ID == ev.Points[1].ID {
			g.phase = GestureIdle
			return 0, false
		}
		g.phase = GesturePending
		g.startA, g.startB = ev.Points[0], ev.Points[1]
		g.lastA, g.lastB = ev.Points[0], ev.Points[1]
		return 0, false

	case TouchMove:
		if len(ev.Points) != 2 {
			g.phase = GestureIdle
			return 0, false
		}
		a, b, ok := g.matchPoints(ev.Points)
		if !ok {
			g.phase = GestureIdle
			return 0, false
		}
		switch g.phase {
		case GesturePending:
			return g.classify(a, b)
		case GesturePitching:
			delta := g.pitchStep(a, b, g.lastA, g.lastB)
			g.lastA, g.lastB = a, b
			return delta, true
		default:
			g.lastA, g.lastB = a, b
			return 0, false
		}

	case TouchEnd, TouchCancel:
		g.phase = GestureIdle
		return 0, false
	}
	return 0, false
}

// matchPoints pairs incoming points with the tracked fingers by ID.
func (g *GestureClassifier) matchPoints(pts []TouchPoint) (a, b TouchPoint, ok bool) {
	for _, p := range pts {
		switch p.ID {
		case g.startA.ID:
			a, ok = p, true
		case g.startB.ID:
			b = p
		default:
			return TouchPoint{}, TouchPoint{}, false
		}
	}
	if !ok || a.ID == b.ID {
		return TouchPoint{}, TouchPoint{}, false
	}
	return a, b, true
}

// classify decides pitching vs passthrough once the dead zone is crossed.
// The decision frame applies the full displacement since touch-start, so
// the dead-zone travel still counts toward the pitch.
func (g *GestureClassifier) classify(a, b TouchPoint) (float64, bool) {
	dyA := a.Y - g.startA.Y
	dyB := b.Y - g.startB.Y
	avgV := (dyA + dyB) / 2
	avgH := ((a.X - g.startA.X) + (b.X - g.startB.X)) / 2

	spreadDelta := math.Abs(fingerDist(a, b) - fingerDist(g.startA, g.startB))
	angleDelta := normalizeAngle(fingerAngle(a, b) - fingerAngle(g.startA, g.startB))

	if math.Max(math.Abs(avgV), math.Max(math.Abs(avgH), spreadDelta)) < gestureDeadZonePx {
		g.lastA, g.lastB = a, b
		return 0, false
	}

	sameVertical := dyA*dyB > 0
	if sameVertical &&
		math.Abs(avgV) > verticalDominance*math.Abs(avgH) &&
		spreadDelta < spreadVsVertical*math.Abs(avgV) &&
		math.Abs(angleDelta) < angleLimitRad {
		g.phase = GesturePitching
		delta := g.pitchStep(a, b, g.startA, g.startB)
		g.lastA, g.lastB = a, b
		return delta, true
	}

	g.phase = GesturePassthrough
	g.lastA, g.lastB = a, b
	return 0, false
}

// pitchStep converts the average per-frame vertical movement of both
// fingers into a pitch delta. Screen y grows downward, so dragging up
// (negative dy) pitches the camera up.
func (g *GestureClassifier) pitchStep(a, b, prevA, prevB TouchPoint) float64 {
	avgDY := ((a.Y - prevA.Y) + (b.Y - prevB.Y)) / 2
	return -avgDY * g.sensitivity
}

func fingerDist(a, b TouchPoint) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func fingerAngle(a, b TouchPoint) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// normalizeAngle wraps an angle difference into (-pi, pi].
func normalizeAngle(d float64) float64 {
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}
