package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/melophonic/audiotest/pkg/logger"
)

// takeProcessor bounces a single take
type takeProcessor struct {
	config   Config
	bouncer  Bouncer
	history  History
	tracker  *takeTracker
	progress ProgressCallback
}

func newTakeProcessor(config Config, bouncer Bouncer, history History, tracker *takeTracker) *takeProcessor {
	return &takeProcessor{
		config:  config,
		bouncer: bouncer,
		history: history,
		tracker: tracker,
	}
}

// ProcessFile bounces path unless it was bounced, failed too often or
// is already in flight.
func (tp *takeProcessor) ProcessFile(ctx context.Context, path string) error {
	log := logger.WithComponent("processor").WithField("file", path)

	if !tp.tracker.TryLock(path) {
		tp.report(EventSkipped, path, "Take is already being bounced", nil)
		return nil
	}
	defer tp.tracker.Unlock(path)

	tp.report(EventProcessing, path, "Waiting for take to settle", nil)

	if !tp.CanProcess(path) {
		tp.report(EventSkipped, path, "Take cannot be bounced", nil)
		return nil
	}
	if !tp.isStable(ctx, path) {
		// picked up again by the next write event or rescan
		log.Debug().Msg("Take is still being written")
		return nil
	}

	if skip, reason := tp.shouldSkip(path); skip {
		tp.report(EventSkipped, path, reason, nil)
		return nil
	}

	bounceCtx := ctx
	if tp.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		bounceCtx, cancel = context.WithTimeout(ctx, tp.config.ProcessingTimeout)
		defer cancel()
	}

	start := time.Now()
	log.Info().Msg("Bouncing take")

	output, err := tp.bouncer.BounceTake(bounceCtx, path)
	if err != nil {
		if failure, _ := tp.history.Failure(path); failure != nil {
			log = log.WithField("retry_count", failure.RetryCount)
		}
		log.Error().Err(err).Msg("Bounce failed")
		tp.report(EventFailed, path, "Bounce failed", err)
		return fmt.Errorf("bounce failed: %w", err)
	}

	tp.reportEvent(&ProgressEvent{
		Type:       EventCompleted,
		FilePath:   path,
		OutputPath: output,
		Message:    fmt.Sprintf("Bounced in %v", time.Since(start).Round(time.Millisecond)),
		Timestamp:  time.Now(),
	})
	log.Info().
		Dur("duration", time.Since(start)).
		Str("output", output).
		Msg("Take bounced")
	return nil
}

func (tp *takeProcessor) shouldSkip(path string) (bool, string) {
	log := logger.WithComponent("processor").WithField("file", path)

	bounced, err := tp.history.IsBounced(path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check catalog")
	} else if bounced {
		return true, "Take already bounced"
	}

	failure, err := tp.history.Failure(path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to check failure history")
		return false, ""
	}
	if failure == nil {
		return false, ""
	}
	if !tp.config.RetryFailed {
		return true, "Bounce failed before"
	}
	if failure.RetryCount >= tp.config.MaxRetries {
		return true, fmt.Sprintf("Gave up after %d retries", failure.RetryCount)
	}
	return false, ""
}

// Pending reports whether a rescan should queue path
func (tp *takeProcessor) Pending(path string) bool {
	if !tp.CanProcess(path) || tp.tracker.IsLocked(path) {
		return false
	}
	skip, _ := tp.shouldSkip(path)
	return !skip
}

// CanProcess reports whether path is an existing take matching the
// configured patterns.
func (tp *takeProcessor) CanProcess(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	name := filepath.Base(path)
	for _, pattern := range tp.config.Patterns {
		if match, _ := filepath.Match(pattern, name); match {
			return true
		}
	}
	return false
}

// isStable checks that size and modification time do not change over
// the stability wait.
func (tp *takeProcessor) isStable(ctx context.Context, path string) bool {
	before, err := os.Stat(path)
	if err != nil {
		return false
	}

	if tp.config.StabilityWait > 0 {
		timer := time.NewTimer(tp.config.StabilityWait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
		}
	}

	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	return before.Size() == after.Size() && before.ModTime().Equal(after.ModTime()) && after.Size() > 0
}

func (tp *takeProcessor) report(t EventType, path, msg string, err error) {
	tp.reportEvent(&ProgressEvent{
		Type:      t,
		FilePath:  path,
		Message:   msg,
		Error:     err,
		Timestamp: time.Now(),
	})
}

func (tp *takeProcessor) reportEvent(event *ProgressEvent) {
	if tp.progress != nil {
		tp.progress(event)
	}
}
