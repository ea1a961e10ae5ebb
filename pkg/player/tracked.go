package player

import (
	"sync"

	"github.com/melophonic/audiotest/pkg/displaylink"
)

// Tracked is a Player whose UpdateDelegate is called on every display
// frame while playing.
type Tracked struct {
	*Player

	mu   sync.Mutex
	link *displaylink.Link
}

// Track wraps p
func Track(p *Player) *Tracked {
	t := &Tracked{Player: p}
	p.addStopHook(t.invalidate)
	return t
}

// Play starts playback and, when the delegate wants time updates, the
// display link.
func (t *Tracked) Play() error {
	if err := t.Player.Play(); err != nil {
		return err
	}

	if _, ok := t.Player.Delegate().(UpdateDelegate); !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link != nil {
		return nil
	}
	t.link = displaylink.New(t.update)
	t.link.Start()

	if !t.Player.IsPlaying() {
		// finished before the link existed
		t.link.Invalidate()
		t.link = nil
	}
	return nil
}

// Stop halts playback and the display link
func (t *Tracked) Stop() error {
	err := t.Player.Stop()
	t.invalidate()
	return err
}

// Close stops everything. The Tracked value must not be reused.
func (t *Tracked) Close() error {
	return t.Stop()
}

// Link returns the running display link, or nil
func (t *Tracked) Link() *displaylink.Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link
}

func (t *Tracked) update(*displaylink.Link) {
	if d, ok := t.Player.Delegate().(UpdateDelegate); ok {
		d.PlayerUpdateTime(t.Player)
	}
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
