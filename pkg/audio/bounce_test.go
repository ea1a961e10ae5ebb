package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestBounceSkipsUnreachableBacking(t *testing.T) {
	dir := t.TempDir()
	take := filepath.Join(dir, "RecordingAudio_1.m4a")
	out := filepath.Join(dir, "BouncedAudio_1.m4a")
	if err := os.WriteFile(take, []byte("take"), 0o644); err != nil {
		t.Fatal(err)
	}

	restoreProbe := stubProbe(t, func(string) (string, error) { return m4aProbe, nil })
	defer restoreProbe()
	origCommand := newCommand
	newCommand = helperCommand("ok", out)
	defer func() { newCommand = origCommand }()

	done := make(chan result, 1)
	exporter := Bounce(context.Background(), filepath.Join(dir, "missing.wav"), take, out, func(s ExportStatus, err error) {
		done <- result{s, err}
	})

	r := awaitResult(t, done)
	if r.status != StatusCompleted {
		t.Fatalf("status = %v (%v), want completed", r.status, r.err)
	}

	segments := exporter.composition.segments()
	if len(segments) != 1 || segments[0].Source != take {
		t.Errorf("segments = %+v, want only the take", segments)
	}
	if n := len(exporter.composition.Tracks()); n != 2 {
		t.Errorf("tracks = %d, want 2", n)
	}
}

func TestBounceNothingToMix(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "BouncedAudio_1.m4a")

	done := make(chan result, 1)
	Bounce(context.Background(), filepath.Join(dir, "a.wav"), filepath.Join(dir, "b.m4a"), out, func(s ExportStatus, err error) {
		done <- result{s, err}
	})

	r := awaitResult(t, done)
	if r.status != StatusFailed {
		t.Errorf("status = %v, want failed", r.status)
	}
}

func TestBounceWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("Skipping integration test: ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("Skipping integration test: ffprobe not installed")
	}

	dir := t.TempDir()
	backing := filepath.Join(dir, "backing.wav")
	take := filepath.Join(dir, "take.m4a")
	out := filepath.Join(dir, "bounced.m4a")

	tone := func(path, freq, seconds string, extra ...string) {
		args := append([]string{"-y", "-f", "lavfi", "-i", "sine=frequency=" + freq + ":duration=" + seconds}, extra...)
		args = append(args, path)
		if b, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
			t.Fatalf("generate %s: %v\n%s", path, err, b)
		}
	}
	tone(backing, "220", "3")
	tone(take, "440", "2", "-c:a", "aac", "-ar", "16000", "-ac", "1")

	done := make(chan result, 1)
	Bounce(context.Background(), backing, take, out, func(s ExportStatus, err error) {
		done <- result{s, err}
	})

	r := awaitResult(t, done)
	if r.status != StatusCompleted {
		t.Fatalf("status = %v, err = %v", r.status, r.err)
	}

	asset, err := OpenAsset(out)
	if err != nil {
		t.Fatalf("OpenAsset(bounced) error = %v", err)
	}
	if len(asset.AudioTracks()) != 1 {
		t.Errorf("bounced audio tracks = %d, want 1", len(asset.AudioTracks()))
	}
	if d := asset.Duration; d < 2900*time.Millisecond || d > 3200*time.Millisecond {
		t.Errorf("bounced duration = %v, want about 3s", d)
	}
}
