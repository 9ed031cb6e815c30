package choro

import (
	"sync"
	"time"
)

// viewStateKey is the shared persistence slot for camera state. Every
// session restores from and saves to the same slot, so a fresh session
// picks up where the last one left off.
const viewStateKey = "view"

// inboxSize bounds queued input per session; frames beyond it are dropped
// rather than blocking the producer.
const inboxSize = 64

// Session bundles one client's engine state: camera, style, gesture, and
// the most recent label set. All mutation is queued through the inbox and
// applied by Step, so the frame loop is the single writer. Accessors take
// the session lock and return copies.
type Session struct {
	ID string

	mu       sync.Mutex
	viewport *ViewportController
	style    *StyleSession
	gesture  *GestureClassifier
	width    int
	height   int
	created  time.Time
	lastSeen time.Time
	labels   []Label

	inbox chan func(*Session)

	viewDirty  bool
	styleDirty bool
}

func newSession(id string, d SessionDefaults, store Store, table *ModeTable) *Session {
	now := time.Now()

	vp := NewViewportController(d.Breakpoints)
	vp.SetSpeeds(d.Speeds)
	vp.AttachStore(store, viewStateKey)

	encoded := ""
	if store != nil {
		encoded, _ = store.Get(viewStateKey)
	}
	vp.Initialize(encoded, float64(d.Width))

	return &Session{
		ID:        id,
		viewport:  vp,
		style:     NewStyleSession(table, d.Mode),
		gesture:   NewGestureClassifier(),
		width:     d.Width,
		height:    d.Height,
		created:   now,
		lastSeen:  now,
		inbox:     make(chan func(*Session), inboxSize),
		viewDirty: true, // first Step publishes the initial state
	}
}

// enqueue hands a command to the frame loop. Returns false when the inbox
// is full and the command was dropped.
func (s *Session) enqueue(fn func(*Session)) bool {
	at := time.Now()
	cmd := func(s *Session) {
		s.lastSeen = at
		fn(s)
	}
	select {
	case s.inbox <- cmd:
		return true
	default:
		return false
	}
}

// QueueTouch feeds one touch frame through the gesture classifier. A
// consumed frame applies its pitch delta to the camera; unconsumed frames
// belong to the host map's default handlers and change nothing here.
func (s *Session) QueueTouch(ev TouchEvent) bool {
	return s.enqueue(func(s *Session) {
		delta, consumed := s.gesture.HandleTouch(ev)
		if consumed {
			s.viewport.ApplyPitchDelta(delta)
			s.viewDirty = true
		}
	})
}

// QueueKey starts (press) or stops (release) continuous motion along d.
func (s *Session) QueueKey(press bool, d Direction) bool {
	return s.enqueue(func(s *Session) {
		if press {
			s.viewport.BeginContinuous(d)
		} else {
			s.viewport.EndContinuous(d)
		}
	})
}

// QueueOverlay toggles the full-screen-overlay flag, which suppresses
// camera persistence while open.
func (s *Session) QueueOverlay(open bool) bool {
	return s.enqueue(func(s *Session) {
		s.viewport.SetOverlayOpen(open)
	})
}

// QueueAbsolute merges an absolute camera move.
func (s *Session) QueueAbsolute(p ViewPartial) bool {
	return s.enqueue(func(s *Session) {
		s.viewport.SetAbsolute(p)
		s.viewDirty = true
	})
}

// QueueEncoded restores the camera from its persisted encoding, falling
// back to the responsive default when the string does not decode.
func (s *Session) QueueEncoded(encoded string) bool {
	return s.enqueue(func(s *Session) {
		v, ok := DecodeViewState(encoded)
		if !ok {
			StateDecodeFallbacksTotal.Inc()
			v = s.viewport.Default()
		}
		s.viewport.SetAbsolute(ViewPartial{
			Lat:     &v.Lat,
			Lon:     &v.Lon,
			Zoom:    &v.Zoom,
			Pitch:   &v.Pitch,
			Bearing: &v.Bearing,
		})
		s.viewDirty = true
	})
}

// QueueMode switches the display mode, running the override cache's
// save-and-restore semantics.
func (s *Session) QueueMode(key ModeKey) bool {
	return s.enqueue(func(s *Session) {
		if s.style.Mode() == key {
			return
		}
		s.style.SwitchMode(key)
		s.styleDirty = true
	})
}

// StyleUpdate carries a partial style override; nil fields are left
// unchanged. Stops arrive in their wire encoding.
type StyleUpdate struct {
	Max     *float64 `json:"max,omitempty"`
	Ceiling *float64 `json:"ceiling,omitempty"`
	Scale   *string  `json:"scale,omitempty"`
	Stops   *string  `json:"stops,omitempty"`
}

// QueueStyle applies a partial style override. Fields that fail to parse
// are ignored, matching the tolerant URL-state posture.
func (s *Session) QueueStyle(u StyleUpdate) bool {
	return s.enqueue(func(s *Session) {
		applied := false
		if u.Max != nil && *u.Max > 0 {
			s.style.SetDomainMax(*u.Max)
			applied = true
		}
		if u.Ceiling != nil && *u.Ceiling > 0 {
			s.style.SetHeightCeiling(*u.Ceiling)
			applied = true
		}
		if u.Scale != nil {
			if k, ok := ParseScale(*u.Scale); ok {
				s.style.SetScale(k)
				applied = true
			}
		}
		if u.Stops != nil {
			if theme, stops, ok := DecodeStops(*u.Stops); ok {
				s.style.SetStops(theme, stops)
				applied = true
			}
		}
		if applied {
			s.styleDirty = true
		}
	})
}

// StepResult reports what one frame step changed.
type StepResult struct {
	View         ViewState
	Mode         ModeKey
	ViewChanged  bool
	StyleChanged bool
}

// Step drains queued input, advances continuous motion, and flushes the
// persistence debounce. Called from the frame loop only.
func (s *Session) Step(now time.Time) StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

drain:
	for {
		select {
		case fn := <-s.inbox:
			fn(s)
		default:
			break drain
		}
	}

	if s.viewport.Advance(now) {
		s.viewDirty = true
	}
	if s.viewport.FlushPersist(now) {
		PersistWritesTotal.Inc()
	}

	res := StepResult{
		View:         s.viewport.View(),
		Mode:         s.style.Mode(),
		ViewChanged:  s.viewDirty,
		StyleChanged: s.styleDirty,
	}
	s.viewDirty = false
	s.styleDirty = false
	return res
}

// PlaceLabels recomputes the session's label set against regions and
// caches it for Labels readers.
func (s *Session) PlaceLabels(engine *LabelEngine, regions []Region) []Label {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := float64(s.width), float64(s.height)
	cam := NewCamera(s.viewport.View(), w, h)
	labels := engine.Place(regions, s.style.Mode().Metric, s.style, cam, w, h)
	s.labels = labels
	return labels
}

// View returns the current camera state and its persisted encoding.
func (s *Session) View() (ViewState, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.viewport.View()
	return v, EncodeViewState(v)
}

// Mode returns the active display mode.
func (s *Session) Mode() ModeKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style.Mode()
}

// Labels returns a copy of the most recently placed label set.
func (s *Session) Labels() []Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Label, len(s.labels))
	copy(out, s.labels)
	return out
}

// FeatureStyles evaluates the active style against regions.
func (s *Session) FeatureStyles(regions []Region) []FeatureStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style.FeatureStyles(regions)
}

// StyleInfo summarizes the active mode and override for API consumers.
type StyleInfo struct {
	Mode       string  `json:"mode"`
	DomainMax  float64 `json:"max"`
	Ceiling    float64 `json:"ceiling"`
	Scale      string  `json:"scale"`
	Theme      string  `json:"theme"`
	Stops      string  `json:"stops"`
	Customized bool    `json:"customized"`
}

func (s *Session) StyleInfo() StyleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov := s.style.Override()
	return StyleInfo{
		Mode:       s.style.Mode().String(),
		DomainMax:  ov.DomainMax,
		Ceiling:    ov.HeightCeiling,
		Scale:      string(ov.Scale),
		Theme:      ov.Theme,
		Stops:      EncodeStops(ov.Theme, s.style.Stops()),
		Customized: s.style.Customized(),
	}
}

// RenderInput snapshots everything a snapshot renderer needs from a
// session, so rendering runs without holding the session lock.
type RenderInput struct {
	View    ViewState
	Styles  []FeatureStyle
	Labels  []Label
	Variant string
	Width   int
	Height  int
}

func (s *Session) RenderState(regions []Region) RenderInput {
	s.mu.Lock()
	defer s.mu.Unlock()

	labels := make([]Label, len(s.labels))
	copy(labels, s.labels)
	return RenderInput{
		View:    s.viewport.View(),
		Styles:  s.style.FeatureStyles(regions),
		Labels:  labels,
		Variant: s.style.table.Variant(s.style.Mode()),
		Width:   s.width,
		Height:  s.height,
	}
}

// Size returns the session's viewport pixel size.
func (s *Session) Size() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// LastSeen reports when input last arrived for this session.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
