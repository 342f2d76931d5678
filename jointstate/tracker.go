// Package jointstate caches the most recent joint feedback snapshot
// delivered by the middleware.
package jointstate

import (
	"sync"
	"time"
)

// Snapshot is one joint feedback message: parallel arrays of joint names and
// positions (optionally velocities and efforts) taken at Stamp. Names and
// Positions always have equal length.
type Snapshot struct {
	Stamp      time.Time
	Names      []string
	Positions  []float64
	Velocities []float64
	Efforts    []float64
}

// IndexOf returns the array index of the named joint.
func (s Snapshot) IndexOf(name string) (int, bool) {
	for i, n := range s.Names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// Tracker holds the latest Snapshot. Update is called from the transport's
// feedback goroutine; Latest from any goroutine. Snapshots are replaced
// wholesale, never mutated in place, so a snapshot handed out by Latest
// stays consistent while the next one arrives.
type Tracker struct {
	mutex  sync.RWMutex
	latest *Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Update replaces the cached snapshot. The previous snapshot is discarded;
// no history is retained.
func (t *Tracker) Update(snapshot Snapshot) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.latest = &snapshot
}

// Latest returns the most recent snapshot, or false if none has been
// received yet. It never blocks.
func (t *Tracker) Latest() (Snapshot, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.latest == nil {
		return Snapshot{}, false
	}
	return *t.latest, true
}
