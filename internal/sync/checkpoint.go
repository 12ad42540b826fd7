package sync

import (
	stdsync "sync"
	"time"
)

// Authority issues checkpoints. Now never goes backwards, even if the wall
// clock does.
//
// The store stamps records with the same Authority (it satisfies
// db.WriteClock). A stamp is taken before its row commits, so Checkpoint never
// returns a value past the stamp of a write still in flight; a client that
// pulls from that checkpoint will see the write once it lands.
type Authority struct {
	mu      stdsync.Mutex
	last    time.Time
	pending map[int64]int // in-flight write stamps (UnixNano) -> count
	wall    func() time.Time
}

// NewAuthority creates an Authority over the system clock.
func NewAuthority() *Authority {
	return NewAuthorityWithClock(time.Now)
}

// NewAuthorityWithClock creates an Authority over an arbitrary wall clock.
func NewAuthorityWithClock(wall func() time.Time) *Authority {
	if wall == nil {
		wall = time.Now
	}
	return &Authority{wall: wall, pending: make(map[int64]int)}
}

// Now returns the current time on the authority's timeline, in UTC.
func (a *Authority) Now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next()
}

func (a *Authority) next() time.Time {
	t := a.wall().UTC()
	if t.Before(a.last) {
		t = a.last
	}
	a.last = t
	return t
}

// BeginWrite returns the stamp for one record write. Call done once the write
// has committed or failed; until then Checkpoint stays at or below the stamp.
func (a *Authority) BeginWrite() (stamp time.Time, done func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stamp = a.next()
	key := stamp.UnixNano()
	a.pending[key]++

	var once stdsync.Once
	return stamp, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.pending[key]--; a.pending[key] <= 0 {
				delete(a.pending, key)
			}
		})
	}
}

// Checkpoint returns the watermark to hand to clients: the current time, held
// back to the oldest write still in flight.
func (a *Authority) Checkpoint() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.next()
	for key := range a.pending {
		if key < t.UnixNano() {
			t = time.Unix(0, key).UTC()
		}
	}
	return t
}

// Advance raises the floor to t. Used at startup with the latest timestamp
// found in the store so a wall clock that moved back across a restart cannot
// issue checkpoints older than existing records.
func (a *Authority) Advance(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t.After(a.last) {
		a.last = t.UTC()
	}
}
