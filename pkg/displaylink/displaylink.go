// Package displaylink provides a frame-synchronized timer for driving
// progress updates of players and recorders.
package displaylink

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// FramesPerSecond is the nominal refresh rate of a Link
	FramesPerSecond = 60
)

// Link calls its target once per frame until invalidated.
type Link struct {
	target func(*Link)

	// FrameInterval is the number of frames between callbacks. Values
	// below 1 are treated as 1. It is read on Start.
	FrameInterval int

	mu          sync.Mutex
	started     bool
	invalidated bool
	stopCh      chan struct{}

	timestamp atomic.Int64
	frames    atomic.Uint64
}

// New returns a Link that calls target on every frame once started.
func New(target func(*Link)) *Link {
	return &Link{
		target:        target,
		FrameInterval: 1,
		stopCh:        make(chan struct{}),
	}
}

// Period is the time between two callbacks
func (l *Link) Period() time.Duration {
	interval := l.FrameInterval
	if interval < 1 {
		interval = 1
	}
	return time.Duration(interval) * time.Second / FramesPerSecond
}

// Start begins firing frames. Starting a running or invalidated link
// does nothing.
func (l *Link) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started || l.invalidated {
		return
	}
	l.started = true

	go l.run(l.Period())
}

// Invalidate stops the link permanently. It does not wait for the
// callback: a frame already dispatched when Invalidate is called may
// still run once, and no frame after it is dispatched. It may be called
// from inside the callback.
func (l *Link) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.invalidated {
		return
	}
	l.invalidated = true
	close(l.stopCh)
}

// IsValid reports whether the link has not been invalidated
func (l *Link) IsValid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.invalidated
}

// Timestamp is the time of the last fired frame, zero before the first
func (l *Link) Timestamp() time.Time {
	ns := l.timestamp.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Frames counts fired callbacks
func (l *Link) Frames() uint64 {
	return l.frames.Load()
}

func (l *Link) run(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case now := <-ticker.C:
			// time.Ticker drops ticks for slow receivers
			if !l.fire(now) {
				return
			}
		}
	}
}

func (l *Link) fire(now time.Time) bool {
	l.mu.Lock()
	if l.invalidated {
		l.mu.Unlock()
		return false
	}
	l.mu.Unlock()

	l.timestamp.Store(now.UnixNano())
	l.frames.Add(1)
	if l.target != nil {
		l.target(l)
	}
	return true
}
