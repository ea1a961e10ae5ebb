package studio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/melophonic/audiotest/pkg/library"
	"github.com/melophonic/audiotest/pkg/watcher"
)

// runWatchPass bounces the takes present in the documents folder once
func runWatchPass(t *testing.T, st *Studio, retry bool, maxRetries int) watcher.Stats {
	t.Helper()
	cfg := watcher.DefaultConfig(st.Library().Dir())
	cfg.Interval = 0
	cfg.StabilityWait = 10 * time.Millisecond
	cfg.RetryFailed = retry
	cfg.MaxRetries = maxRetries

	w, err := watcher.New(cfg, st, st.Catalog())
	if err != nil {
		t.Fatalf("watcher.New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.WaitForInitialProcessing(ctx); err != nil {
		t.Fatalf("WaitForInitialProcessing() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	return w.Stats()
}

func TestWatchCountsEachFailedBounceOnce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bounce.BackingPath = filepath.Join(cfg.Library.DocumentsDir, "missing-backing.m4a")
	st := newTestStudio(t, cfg)

	take := filepath.Join(st.Library().Dir(), library.UniqueFileName(library.RecordingAudioName, library.DefaultExtension))
	if err := os.WriteFile(take, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	stats := runWatchPass(t, st, false, 3)
	if stats.FailedCount != 1 {
		t.Fatalf("FailedCount = %d, want 1", stats.FailedCount)
	}
	failure, err := st.Catalog().Failure(take)
	if err != nil || failure == nil {
		t.Fatalf("Failure() = %v, %v", failure, err)
	}
	if failure.RetryCount != 0 {
		t.Errorf("RetryCount after first failure = %d, want 0", failure.RetryCount)
	}

	stats = runWatchPass(t, st, true, 3)
	if stats.FailedCount != 1 {
		t.Fatalf("FailedCount on retry = %d, want 1", stats.FailedCount)
	}
	failure, _ = st.Catalog().Failure(take)
	if failure == nil || failure.RetryCount != 1 {
		t.Errorf("RetryCount after one retry = %+v, want 1", failure)
	}
}
