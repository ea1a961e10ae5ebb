package watcher

import (
	"sync"
	"time"
)

// takeTracker holds the takes currently being bounced
type takeTracker struct {
	mu      sync.Mutex
	started map[string]time.Time
}

func newTakeTracker() *takeTracker {
	return &takeTracker{started: make(map[string]time.Time)}
}

// TryLock claims path, false when it is already claimed
func (t *takeTracker) TryLock(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.started[path]; busy {
		return false
	}
	t.started[path] = time.Now()
	return true
}

func (t *takeTracker) Unlock(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.started, path)
}

func (t *takeTracker) IsLocked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.started[path]
	return busy
}

func (t *takeTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.started)
}

// Stale lists claims older than timeout
func (t *takeTracker) Stale(timeout time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []string
	for path, at := range t.started {
		if time.Since(at) > timeout {
			stale = append(stale, path)
		}
	}
	return stale
}
