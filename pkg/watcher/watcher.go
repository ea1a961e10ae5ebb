// Package watcher bounces new takes as they appear in the documents
// directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/melophonic/audiotest/pkg/logger"
)

const (
	duplicateWindow = 5 * time.Second
	cleanupInterval = time.Minute
)

// Watcher watches a directory and bounces takes through a worker pool
type Watcher struct {
	config    Config
	tracker   *takeTracker
	processor *takeProcessor
	fsw       *fsnotify.Watcher
	progress  ProgressCallback

	statsMu sync.RWMutex
	stats   Stats

	recentMu sync.Mutex
	recent   map[string]time.Time

	initial    sync.WaitGroup
	initialMu  sync.Mutex
	initialSet map[string]bool

	queue    chan string
	stopCh   chan struct{}
	stopOnce sync.Once
	loops    sync.WaitGroup
	dispatch sync.WaitGroup
	group    *errgroup.Group
}

// New creates a watcher bouncing takes in config.Dir with bouncer.
func New(config Config, bouncer Bouncer, history History) (*Watcher, error) {
	if config.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if bouncer == nil || history == nil {
		return nil, errors.New("bouncer and history are required")
	}
	if len(config.Patterns) == 0 {
		config.Patterns = DefaultConfig(config.Dir).Patterns
	}
	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		config:     config,
		tracker:    newTakeTracker(),
		fsw:        fsw,
		recent:     make(map[string]time.Time),
		initialSet: make(map[string]bool),
		queue:      make(chan string, config.MaxWorkers*4),
		stopCh:     make(chan struct{}),
	}
	w.processor = newTakeProcessor(config, bouncer, history, w.tracker)
	w.processor.progress = w.handleProgressEvent
	return w, nil
}

// SetProgressCallback sets a callback for progress updates. Call it
// before Start.
func (w *Watcher) SetProgressCallback(callback ProgressCallback) {
	w.progress = callback
}

// Start begins watching. Takes already present are queued first when
// ProcessExisting is set.
func (w *Watcher) Start(ctx context.Context) error {
	log := logger.WithComponent("watcher")

	if err := w.fsw.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to add watch directory: %w", err)
	}

	w.statsMu.Lock()
	w.stats.StartTime = time.Now()
	w.statsMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxWorkers)
	w.group = g

	w.dispatch.Add(1)
	go w.dispatchLoop(gctx)

	w.loops.Add(1)
	go w.cleanupLoop()

	if w.config.ProcessExisting {
		log.Info().Msg("Queueing existing takes")
		if err := w.queueExisting(); err != nil {
			log.Warn().Err(err).Msg("Failed to queue some existing takes")
		}
	}

	w.loops.Add(1)
	go w.watchLoop(ctx)

	log.Info().
		Str("directory", w.config.Dir).
		Strs("patterns", w.config.Patterns).
		Int("workers", w.config.MaxWorkers).
		Msg("Watcher started")
	return nil
}

// Stop shuts down the watcher and waits for running bounces
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		log := logger.WithComponent("watcher")
		log.Info().Msg("Stopping watcher")

		close(w.stopCh)
		if cerr := w.fsw.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Error closing file watcher")
		}
		w.loops.Wait()

		close(w.queue)
		w.dispatch.Wait()
		if w.group != nil {
			err = w.group.Wait()
		}

		log.Info().Msg("Watcher stopped")
	})
	return err
}

// Stats returns a snapshot of the watcher statistics
func (w *Watcher) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	stats := w.stats
	stats.InProgress = w.tracker.Len()
	return stats
}

// WaitForInitialProcessing blocks until the takes queued on Start have
// been handled or ctx is done.
func (w *Watcher) WaitForInitialProcessing(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.initial.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) queueExisting() error {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.config.Dir, entry.Name())
		if !w.processor.CanProcess(path) {
			continue
		}

		w.initialMu.Lock()
		w.initialSet[path] = true
		w.initial.Add(1)
		w.initialMu.Unlock()

		select {
		case w.queue <- path:
			w.reportFound(path)
		case <-w.stopCh:
			w.initialDone(path)
			return errors.New("watcher stopped")
		}
	}
	return nil
}

func (w *Watcher) dispatchLoop(ctx context.Context) {
	defer w.dispatch.Done()

	for path := range w.queue {
		w.group.Go(func() error {
			defer w.initialDone(path)
			// errors are reported as events; returning them would cancel the pool
			_ = w.processor.ProcessFile(ctx, path)
			return nil
		})
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.loops.Done()
	log := logger.WithComponent("watcher")

	var tick <-chan time.Time
	if w.config.Interval > 0 {
		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFileEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		case <-tick:
			w.rescan()
		}
	}
}

func (w *Watcher) handleFileEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if w.isDuplicateEvent(event.Name) {
		return
	}
	if !w.tracker.IsLocked(event.Name) && w.processor.CanProcess(event.Name) {
		w.queueFile(event.Name)
	}
}

// rescan catches takes fsnotify missed or that were still being
// written when their last event arrived.
func (w *Watcher) rescan() {
	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		logger.WithComponent("watcher").Warn().Err(err).Msg("Rescan failed")
		return
	}
	for _, entry := range entries {
		path := filepath.Join(w.config.Dir, entry.Name())
		if !entry.IsDir() && w.processor.Pending(path) {
			w.queueFile(path)
		}
	}
}

func (w *Watcher) queueFile(path string) {
	select {
	case w.queue <- path:
		w.reportFound(path)
	default:
		logger.WithComponent("watcher").Warn().
			Str("file", path).
			Msg("Bounce queue is full, leaving take for the next rescan")
	}
}

func (w *Watcher) cleanupLoop() {
	defer w.loops.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.config.ProcessingTimeout > 0 {
				for _, path := range w.tracker.Stale(w.config.ProcessingTimeout) {
					logger.WithComponent("watcher").Warn().
						Str("file", path).
						Msg("Bounce is running past the processing timeout")
				}
			}
			w.cleanupRecentEvents()
		}
	}
}

func (w *Watcher) initialDone(path string) {
	w.initialMu.Lock()
	defer w.initialMu.Unlock()
	if w.initialSet[path] {
		delete(w.initialSet, path)
		w.initial.Done()
	}
}

func (w *Watcher) reportFound(path string) {
	w.handleProgressEvent(&ProgressEvent{
		Type:      EventFound,
		FilePath:  path,
		Message:   "Take queued for bouncing",
		Timestamp: time.Now(),
	})
}

func (w *Watcher) handleProgressEvent(event *ProgressEvent) {
	w.statsMu.Lock()
	switch event.Type {
	case EventFound:
		w.stats.FoundCount++
	case EventCompleted:
		w.stats.BouncedCount++
	case EventFailed:
		w.stats.FailedCount++
	case EventSkipped:
		w.stats.SkippedCount++
	}
	w.statsMu.Unlock()

	if w.progress != nil {
		w.progress(event)
	}
}

func (w *Watcher) isDuplicateEvent(path string) bool {
	w.recentMu.Lock()
	defer w.recentMu.Unlock()

	now := time.Now()
	if last, ok := w.recent[path]; ok && now.Sub(last) < duplicateWindow {
		return true
	}
	w.recent[path] = now
	return false
}

func (w *Watcher) cleanupRecentEvents() {
	w.recentMu.Lock()
	defer w.recentMu.Unlock()

	for path, at := range w.recent {
		if time.Since(at) > 6*duplicateWindow {
			delete(w.recent, path)
		}
	}
}
