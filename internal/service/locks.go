package service

import "sync"

// matchLocks serializes work on the aggregates.
//
// Per-match procedures (scoring a result, reversing a deleted match,
// accepting a prediction) hold the global lock shared plus that match's own
// mutex, so different matches proceed in parallel while two updates to the
// same match never interleave. A full recompute holds the global lock
// exclusively and therefore waits for, and then blocks, all of them.
type matchLocks struct {
	global sync.RWMutex

	mu      sync.Mutex
	byMatch map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newMatchLocks() *matchLocks {
	return &matchLocks{byMatch: make(map[string]*refMutex)}
}

// lock acquires the shared global lock and the mutex for matchID. Mutexes are
// dropped from the map once nobody holds or waits for them.
func (l *matchLocks) lock(matchID string) (unlock func()) {
	l.global.RLock()

	l.mu.Lock()
	m, ok := l.byMatch[matchID]
	if !ok {
		m = &refMutex{}
		l.byMatch[matchID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.byMatch, matchID)
		}
		l.mu.Unlock()

		l.global.RUnlock()
	}
}

// shared holds only the global lock in shared mode.
func (l *matchLocks) shared() (unlock func()) {
	l.global.RLock()
	return l.global.RUnlock
}

// exclusive holds the global lock alone.
func (l *matchLocks) exclusive() (unlock func()) {
	l.global.Lock()
	return l.global.Unlock
}

// tracked reports how many match mutexes are currently allocated.
func (l *matchLocks) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byMatch)
}
