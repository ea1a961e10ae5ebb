package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTimeRange is returned when a time range falls outside its source
var ErrInvalidTimeRange = errors.New("invalid time range")

// Segment is a time range of a source placed on a track timeline
type Segment struct {
	Source   string
	Start    time.Duration
	Duration time.Duration
	At       time.Duration
}

// End is the timeline position where the segment stops
func (s Segment) End() time.Duration {
	return s.At + s.Duration
}

// CompositionTrack is one audio lane of a composition
type CompositionTrack struct {
	ID int

	mu       sync.Mutex
	segments []Segment
}

// InsertTimeRange places [start, start+duration) of asset's first audio
// track on the timeline at position at.
func (t *CompositionTrack) InsertTimeRange(asset *Asset, start, duration, at time.Duration) error {
	if asset == nil || len(asset.tracks) == 0 {
		return ErrNoAudioTracks
	}
	if start < 0 || duration <= 0 || at < 0 {
		return fmt.Errorf("%w: start=%v duration=%v at=%v", ErrInvalidTimeRange, start, duration, at)
	}
	if asset.Duration > 0 && start+duration > asset.Duration {
		return fmt.Errorf("%w: range ends at %v, source is %v", ErrInvalidTimeRange, start+duration, asset.Duration)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.segments = append(t.segments, Segment{
		Source:   asset.Path,
		Start:    start,
		Duration: duration,
		At:       at,
	})
	return nil
}

// Segments returns the track's segments in insertion order
func (t *CompositionTrack) Segments() []Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// IsEmpty reports whether nothing was inserted into the track
func (t *CompositionTrack) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.segments) == 0
}

// Duration is the end of the track's latest segment
func (t *CompositionTrack) Duration() time.Duration {
	var end time.Duration
	for _, s := range t.Segments() {
		if s.End() > end {
			end = s.End()
		}
	}
	return end
}

// Composition is an in-memory timeline of audio tracks
type Composition struct {
	mu     sync.Mutex
	tracks []*CompositionTrack
}

// NewComposition creates an empty composition
func NewComposition() *Composition {
	return &Composition{}
}

// AddTrack appends an empty track
func (c *Composition) AddTrack() *CompositionTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &CompositionTrack{ID: len(c.tracks) + 1}
	c.tracks = append(c.tracks, t)
	return t
}

// Tracks returns the tracks in creation order
func (c *Composition) Tracks() []*CompositionTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*CompositionTrack, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Duration is the end of the latest track
func (c *Composition) Duration() time.Duration {
	var end time.Duration
	for _, t := range c.Tracks() {
		if d := t.Duration(); d > end {
			end = d
		}
	}
	return end
}

// segments flattens every non-empty track
func (c *Composition) segments() []Segment {
	var out []Segment
	for _, t := range c.Tracks() {
		out = append(out, t.Segments()...)
	}
	return out
}
