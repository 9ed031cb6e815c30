package choro

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultSessionTTL is how long an idle session survives between inputs.
const defaultSessionTTL = 30 * time.Minute

// SessionDefaults configures newly created sessions. Zero fields fall
// back to package defaults.
type SessionDefaults struct {
	Breakpoints []Breakpoint
	Speeds      MotionSpeeds
	Mode        ModeKey
	Width       int
	Height      int
	TTL         time.Duration
}

// SessionTracker owns the session map. Input handlers look sessions up
// (or create them) here; the frame loop iterates a snapshot each tick and
// sweeps sessions idle past their TTL.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    Store
	table    *ModeTable
	defaults SessionDefaults
}

// NewSessionTracker creates a tracker. store may be nil (no persistence);
// table may be nil (built-in mode table).
func NewSessionTracker(store Store, table *ModeTable, defaults SessionDefaults) *SessionTracker {
	if table == nil {
		table = BuiltinModes()
	}
	if defaults.Width <= 0 {
		defaults.Width = 1280
	}
	if defaults.Height <= 0 {
		defaults.Height = 800
	}
	if defaults.TTL <= 0 {
		defaults.TTL = defaultSessionTTL
	}
	if defaults.Mode == (ModeKey{}) {
		defaults.Mode = ModeKey{Level: LevelLot, Metric: MetricPaid}
	}
	if defaults.Speeds == (MotionSpeeds{}) {
		defaults.Speeds = DefaultMotionSpeeds()
	}
	return &SessionTracker{
		sessions: make(map[string]*Session),
		store:    store,
		table:    table,
		defaults: defaults,
	}
}

// Ensure returns the session for id, creating it when missing. An empty
// id gets a fresh uuid; an unknown non-empty id is kept as-is so clients
// that name their own sessions get stable topics. The second return
// reports whether a session was created.
func (t *SessionTracker) Ensure(id string) (*Session, bool) {
	if id != "" {
		t.mu.RLock()
		s, ok := t.sessions[id]
		t.mu.RUnlock()
		if ok {
			return s, false
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	} else if s, ok := t.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, t.defaults, t.store, t.table)
	t.sessions[id] = s
	log.Printf("[FRAME] session %s created", s.ID)
	return s, true
}

// Get looks up an existing session without creating one.
func (t *SessionTracker) Get(id string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Sessions returns a snapshot of all live sessions.
func (t *SessionTracker) Sessions() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// Count reports the number of live sessions.
func (t *SessionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Table returns the mode table sessions are created with.
func (t *SessionTracker) Table() *ModeTable {
	return t.table
}

// Sweep removes sessions idle longer than the TTL and returns their ids.
func (t *SessionTracker) Sweep(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for id, s := range t.sessions {
		if now.Sub(s.LastSeen()) > t.defaults.TTL {
			delete(t.sessions, id)
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		log.Printf("[FRAME] expired %d idle session(s)", len(expired))
	}
	return expired
}
