package watcher

import (
	"context"
	"time"

	"github.com/melophonic/audiotest/pkg/library"
)

// Bouncer mixes a recorded take with the backing track and returns the
// path of the bounce. It owns the catalog bookkeeping: a successful
// bounce is linked to its take and a failed one is recorded exactly once.
type Bouncer interface {
	BounceTake(ctx context.Context, recordingPath string) (string, error)
}

// BouncerFunc adapts a function to Bouncer
type BouncerFunc func(ctx context.Context, recordingPath string) (string, error)

func (f BouncerFunc) BounceTake(ctx context.Context, recordingPath string) (string, error) {
	return f(ctx, recordingPath)
}

// History is the read side of the catalog the watcher consults.
// *library.Catalog implements it.
type History interface {
	IsBounced(recordingPath string) (bool, error)
	Failure(recordingPath string) (*library.Failure, error)
}

// EventType classifies a progress event
type EventType string

const (
	EventFound      EventType = "found"
	EventProcessing EventType = "processing"
	EventCompleted  EventType = "completed"
	EventFailed     EventType = "failed"
	EventSkipped    EventType = "skipped"
)

// ProgressCallback is called to report progress
type ProgressCallback func(event *ProgressEvent)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Type       EventType
	FilePath   string
	OutputPath string
	Message    string
	Error      error
	Timestamp  time.Time
}

// Stats contains statistics about the watcher
type Stats struct {
	StartTime    time.Time
	FoundCount   int
	BouncedCount int
	FailedCount  int
	SkippedCount int
	InProgress   int
}

// Config contains configuration for the watcher
type Config struct {
	// Directory holding the takes
	Dir string

	// Take file patterns
	Patterns []string

	// Rescan interval; zero disables rescans
	Interval time.Duration

	// Time a take must stay unchanged before it is bounced
	StabilityWait time.Duration

	// Maximum time allowed for a single bounce
	ProcessingTimeout time.Duration

	// Whether to bounce takes present on startup
	ProcessExisting bool

	// Whether to retry takes whose bounce failed
	RetryFailed bool

	// Retries stop after this many failures
	MaxRetries int

	// Maximum number of concurrent bounces
	MaxWorkers int
}

// DefaultConfig returns the default watcher configuration for dir
func DefaultConfig(dir string) Config {
	return Config{
		Dir:               dir,
		Patterns:          []string{library.RecordingAudioName + "_*." + library.DefaultExtension},
		Interval:          5 * time.Second,
		StabilityWait:     2 * time.Second,
		ProcessingTimeout: 10 * time.Minute,
		ProcessExisting:   true,
		MaxRetries:        3,
		MaxWorkers:        2,
	}
}
