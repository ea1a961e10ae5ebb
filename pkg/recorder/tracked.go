package recorder

import (
	"sync"
	"time"

	"github.com/melophonic/audiotest/pkg/displaylink"
)

// Tracked drives RecorderUpdateTime from a display link while the
// wrapped Recorder is recording.
type Tracked struct {
	*Recorder

	mu   sync.Mutex
	link *displaylink.Link
}

// Track wraps r
func Track(r *Recorder) *Tracked {
	t := &Tracked{Recorder: r}
	r.addStopHook(t.invalidate)
	return t
}

// Record starts recording until Stop
func (t *Tracked) Record() error {
	return t.RecordForDuration(0)
}

// RecordForDuration starts recording and the display link when the
// delegate implements UpdateDelegate.
func (t *Tracked) RecordForDuration(d time.Duration) error {
	if err := t.Recorder.RecordForDuration(d); err != nil {
		return err
	}
	if _, ok := t.Recorder.Delegate().(UpdateDelegate); ok {
		t.startLink()
	}
	return nil
}

func (t *Tracked) startLink() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.link != nil {
		return
	}
	link := displaylink.New(func(*displaylink.Link) {
		if d, ok := t.Recorder.Delegate().(UpdateDelegate); ok {
			d.RecorderUpdateTime(t.Recorder)
		}
	})
	link.Start()

	if !t.Recorder.IsRecording() {
		link.Invalidate()
		return
	}
	t.link = link
}

// Stop finishes the recording and invalidates the link
func (t *Tracked) Stop() error {
	err := t.Recorder.Stop()
	t.invalidate()
	return err
}

// Close is Stop; the link never restarts after it.
func (t *Tracked) Close() error {
	return t.Stop()
}

// Link is the running display link, nil when idle
func (t *Tracked) Link() *displaylink.Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link
}

func (t *Tracked) invalidate() {
	t.mu.Lock()
	link := t.link
	t.link = nil
	t.mu.Unlock()

	if link != nil {
		link.Invalidate()
	}
}
