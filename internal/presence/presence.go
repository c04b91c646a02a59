package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Record is the presence entry for one identity within a room. Records are
// flipped offline rather than deleted, so last-seen history survives until
// the room itself is retired.
type Record struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name"`
	Online      bool      `json:"online"`
	LastChanged time.Time `json:"last_changed"`
}

// Tracker counts open connection handles per identity. An identity is online
// while at least one handle is open; the online→offline transition happens
// exactly once, when the last handle closes. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	records map[string]*Record
	handles map[uuid.UUID]string
	open    map[string]int
}

func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{
		clock:   clock,
		records: make(map[string]*Record),
		handles: make(map[uuid.UUID]string),
		open:    make(map[string]int),
	}
}

// Attach opens a new handle for identity. The returned bool reports whether
// this attach took the identity from offline to online (first open handle).
func (t *Tracker) Attach(identity, displayName string) (uuid.UUID, Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle := uuid.New()
	t.handles[handle] = identity
	t.open[identity]++

	rec, ok := t.records[identity]
	if !ok {
		rec = &Record{Identity: identity}
		t.records[identity] = rec
	}
	rec.DisplayName = displayName

	wentOnline := !rec.Online
	if wentOnline {
		rec.Online = true
		rec.LastChanged = t.clock.Now()
	}
	return handle, *rec, wentOnline
}

// Detach closes a handle. Idempotent: closing an unknown or already-closed
// handle is a no-op. The returned bool reports whether this close took the
// identity fully offline (last open handle).
func (t *Tracker) Detach(handle uuid.UUID) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	identity, ok := t.handles[handle]
	if !ok {
		return Record{}, false
	}
	delete(t.handles, handle)

	t.open[identity]--
	if t.open[identity] > 0 {
		return *t.records[identity], false
	}
	delete(t.open, identity)

	rec := t.records[identity]
	rec.Online = false
	rec.LastChanged = t.clock.Now()
	return *rec, true
}

// Snapshot returns the online records, excluding the given identity so a
// client never sees itself in the roster of other live bidders.
func (t *Tracker) Snapshot(exclude string) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		if !rec.Online || rec.Identity == exclude {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Online reports whether the identity currently has any open handle.
func (t *Tracker) Online(identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[identity]
	return ok && rec.Online
}
