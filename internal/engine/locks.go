package engine

import "sync"

// eventLocks serializes business operations per maintenance event, so the
// contiguity and capability invariants hold even when two callers hit the
// same event concurrently. Locks are never released from the map; the set of
// live events in one process stays small.
type eventLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newEventLocks() *eventLocks {
	return &eventLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *eventLocks) get(eventID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[eventID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[eventID] = m
	}
	return m
}

func (l *eventLocks) Lock(eventID int64)   { l.get(eventID).Lock() }
func (l *eventLocks) Unlock(eventID int64) { l.get(eventID).Unlock() }
