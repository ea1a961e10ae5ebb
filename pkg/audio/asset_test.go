package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const m4aProbe = `{
  "streams": [
    {"index": 0, "codec_name": "aac", "codec_type": "audio", "sample_rate": "16000", "channels": 1, "duration": "4.992000"},
    {"index": 1, "codec_name": "mjpeg", "codec_type": "video"}
  ],
  "format": {"duration": "5.000000", "bit_rate": "32521", "size": "20326"}
}`

func TestParseProbe(t *testing.T) {
	asset, err := parseProbe("/docs/RecordingAudio_X.m4a", m4aProbe)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}

	if asset.Format != FormatM4A {
		t.Errorf("Format = %v, want %v", asset.Format, FormatM4A)
	}
	if asset.Duration != 5*time.Second {
		t.Errorf("Duration = %v, want 5s", asset.Duration)
	}
	if asset.BitRate != 32521 {
		t.Errorf("BitRate = %d, want 32521", asset.BitRate)
	}
	if asset.Size != 20326 {
		t.Errorf("Size = %d, want 20326", asset.Size)
	}

	tracks := asset.AudioTracks()
	if len(tracks) != 1 {
		t.Fatalf("AudioTracks() = %d tracks, want 1", len(tracks))
	}
	tr := tracks[0]
	if tr.Codec != "aac" || tr.SampleRate != 16000 || tr.Channels != 1 {
		t.Errorf("track = %+v", tr)
	}
	if tr.Duration != 4992*time.Millisecond {
		t.Errorf("track Duration = %v, want 4.992s", tr.Duration)
	}
}

func TestParseProbeNoAudio(t *testing.T) {
	asset, err := parseProbe("cover.m4a", `{"streams":[{"index":0,"codec_type":"video"}],"format":{"duration":"1.0"}}`)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if n := len(asset.AudioTracks()); n != 0 {
		t.Errorf("AudioTracks() = %d tracks, want 0", n)
	}
}

func TestParseProbeInvalidJSON(t *testing.T) {
	if _, err := parseProbe("x.m4a", "not json"); err == nil {
		t.Error("parseProbe() expected error for invalid JSON")
	}
}

func TestOpenAsset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "take.m4a")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	restore := stubProbe(t, func(string) (string, error) { return m4aProbe, nil })
	defer restore()

	asset, err := OpenAsset(path)
	if err != nil {
		t.Fatalf("OpenAsset() error = %v", err)
	}
	if asset.Path != path {
		t.Errorf("Path = %q, want %q", asset.Path, path)
	}

	if _, err := OpenAsset(filepath.Join(dir, "missing.m4a")); err == nil {
		t.Error("OpenAsset() expected error for missing file")
	}
}

func TestOpenAssetProbeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.m4a")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	probeErr := errors.New("moov atom not found")
	restore := stubProbe(t, func(string) (string, error) { return "", probeErr })
	defer restore()

	if _, err := OpenAsset(path); !errors.Is(err, probeErr) {
		t.Errorf("OpenAsset() error = %v, want wrapped %v", err, probeErr)
	}
}

func TestReachable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if !Reachable(file) {
		t.Error("Reachable(file) = false")
	}
	if Reachable(dir) {
		t.Error("Reachable(dir) = true")
	}
	if Reachable(filepath.Join(dir, "missing.wav")) {
		t.Error("Reachable(missing) = true")
	}
}

func stubProbe(t *testing.T, fn func(string) (string, error)) func() {
	t.Helper()
	orig := probe
	probe = fn
	return func() { probe = orig }
}
