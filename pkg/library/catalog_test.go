package library

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "db", "catalog.db"))
	if err != nil {
		t.Fatalf("OpenCatalog() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCatalogTakes(t *testing.T) {
	c := openTestCatalog(t)
	now := time.Now()

	older := &Take{Path: "/docs/RecordingAudio_A.m4a", Kind: KindRecording, CreatedAt: now.Add(-time.Hour), Duration: 4 * time.Second}
	newer := &Take{Path: "/docs/RecordingAudio_B.m4a", Kind: KindRecording, CreatedAt: now}

	for _, take := range []*Take{newer, older} {
		if err := c.RecordTake(take); err != nil {
			t.Fatalf("RecordTake() error = %v", err)
		}
	}

	got, err := c.Get(older.Path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Duration != 4*time.Second || got.Kind != KindRecording {
		t.Errorf("Get() = %+v", got)
	}

	missing, err := c.Get("/docs/none.m4a")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}

	list, err := c.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Path != older.Path || list[1].Path != newer.Path {
		t.Errorf("List() order = %v, %v", list[0].Path, list[1].Path)
	}
}

func TestCatalogBounceClearsFailure(t *testing.T) {
	c := openTestCatalog(t)
	rec := "/docs/RecordingAudio_A.m4a"

	f, err := c.RecordFailed(rec, errors.New("ffmpeg export failed"))
	if err != nil {
		t.Fatalf("RecordFailed() error = %v", err)
	}
	if f.RetryCount != 0 {
		t.Errorf("first RetryCount = %d, want 0", f.RetryCount)
	}
	f, _ = c.RecordFailed(rec, errors.New("again"))
	if f.RetryCount != 1 {
		t.Errorf("second RetryCount = %d, want 1", f.RetryCount)
	}

	stored, err := c.Failure(rec)
	if err != nil || stored == nil || stored.Error != "again" {
		t.Errorf("Failure() = %+v, %v", stored, err)
	}

	if bounced, _ := c.IsBounced(rec); bounced {
		t.Error("IsBounced() = true before bounce")
	}

	bounce := &Take{Path: "/docs/BouncedAudio_A.m4a", CreatedAt: time.Now(), BackingPath: "/docs/backing.wav"}
	if err := c.RecordBounce(rec, bounce); err != nil {
		t.Fatalf("RecordBounce() error = %v", err)
	}

	if bounced, _ := c.IsBounced(rec); !bounced {
		t.Error("IsBounced() = false after bounce")
	}
	if p, _ := c.BouncePath(rec); p != bounce.Path {
		t.Errorf("BouncePath() = %q, want %q", p, bounce.Path)
	}
	if f, _ := c.Failure(rec); f != nil {
		t.Errorf("Failure() = %+v after successful bounce", f)
	}

	got, _ := c.Get(bounce.Path)
	if got == nil || got.Kind != KindBounce || got.RecordingPath != rec {
		t.Errorf("bounce take = %+v", got)
	}
}

func TestCatalogSetPublishedURL(t *testing.T) {
	c := openTestCatalog(t)
	take := &Take{Path: "/docs/BouncedAudio_A.m4a", Kind: KindBounce, CreatedAt: time.Now()}
	if err := c.RecordTake(take); err != nil {
		t.Fatal(err)
	}

	if err := c.SetPublishedURL(take.Path, "https://bucket.s3.us-east-1.amazonaws.com/a.m4a"); err != nil {
		t.Fatalf("SetPublishedURL() error = %v", err)
	}
	got, _ := c.Get(take.Path)
	if got.PublishedURL == "" {
		t.Error("PublishedURL not stored")
	}

	if err := c.SetPublishedURL("/docs/none.m4a", "x"); err == nil {
		t.Error("SetPublishedURL() expected error for unknown take")
	}
}

func TestCatalogReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := OpenCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RecordTake(&Take{Path: "/docs/a.m4a", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = OpenCatalog(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer c.Close()

	if got, _ := c.Get("/docs/a.m4a"); got == nil {
		t.Error("take lost after reopen")
	}
}
