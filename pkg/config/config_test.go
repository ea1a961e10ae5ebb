package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/session"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(DefaultConfig()) error = %v", err)
	}

	settings, err := cfg.RecordingSettings()
	if err != nil {
		t.Fatal(err)
	}
	if settings != audio.DefaultRecordingSettings() {
		t.Errorf("RecordingSettings() = %+v, want defaults", settings)
	}

	category, opts, err := cfg.SessionCategory()
	if err != nil {
		t.Fatal(err)
	}
	if category != session.CategoryPlayAndRecord || opts != session.OptionDuckOthers {
		t.Errorf("SessionCategory() = %v, %v", category, opts)
	}
	if cfg.PublishEnabled() {
		t.Error("PublishEnabled() = true without bucket")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "bad category", modify: func(c *Config) { c.Session.Category = "voip" }, wantErr: true},
		{name: "bad option", modify: func(c *Config) { c.Session.Options = []string{"loud"} }, wantErr: true},
		{name: "bad permission", modify: func(c *Config) { c.Session.Permission = "maybe" }, wantErr: true},
		{name: "bad sample rate", modify: func(c *Config) { c.Recording.SampleRate = 12345 }, wantErr: true},
		{name: "bad quality", modify: func(c *Config) { c.Recording.Quality = "ultra" }, wantErr: true},
		{name: "numeric quality", modify: func(c *Config) { c.Recording.Quality = "64" }},
		{name: "no workers", modify: func(c *Config) { c.Watch.MaxWorkers = 0 }, wantErr: true},
		{name: "no patterns", modify: func(c *Config) { c.Watch.Patterns = nil }, wantErr: true},
		{name: "bucket without region", modify: func(c *Config) { c.Publish.Bucket = "takes" }, wantErr: true},
		{name: "bucket with region", modify: func(c *Config) {
			c.Publish.Bucket = "takes"
			c.Publish.Region = "us-east-1"
		}},
		{name: "bad endpoint", modify: func(c *Config) { c.Publish.Endpoint = "not a url" }, wantErr: true},
		{name: "bad log format", modify: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoaderReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audiotest.yaml")
	content := `
session:
  category: record
  options: [mix_with_others]
recording:
  sample_rate: 44100
  quality: high
watch:
  max_workers: 4
  stability_wait: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUDIOTEST_BOUNCE_BACKING_PATH", "/docs/backing.wav")

	loader := NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.Category != "record" {
		t.Errorf("Session.Category = %q", cfg.Session.Category)
	}
	if cfg.Recording.SampleRate != 44100 || cfg.Recording.Quality != "high" {
		t.Errorf("Recording = %+v", cfg.Recording)
	}
	if cfg.Recording.Codec != "aac" || cfg.Recording.Channels != 1 {
		t.Errorf("defaults not kept: %+v", cfg.Recording)
	}
	if cfg.Watch.MaxWorkers != 4 || cfg.Watch.StabilityWait != 500*time.Millisecond {
		t.Errorf("Watch = %+v", cfg.Watch)
	}
	if cfg.Bounce.BackingPath != "/docs/backing.wav" {
		t.Errorf("Bounce.BackingPath = %q, want env value", cfg.Bounce.BackingPath)
	}
	if loader.ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q", loader.ConfigFileUsed())
	}
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audiotest.yaml")
	if err := os.WriteFile(path, []byte("recording:\n  channels: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewLoader(path).Load()
	if err == nil || !strings.Contains(err.Error(), "validation") {
		t.Errorf("Load() error = %v, want validation error", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "audiotest.yaml")
	cfg := DefaultConfig()
	cfg.Bounce.BackingPath = "/docs/backing.m4a"

	if err := NewLoader(path).Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Bounce.BackingPath != "/docs/backing.m4a" {
		t.Errorf("BackingPath = %q after round trip", loaded.Bounce.BackingPath)
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.LockPath = filepath.Join(t.TempDir(), "s.lock")
	cfg.Session.Permission = "granted"

	opts, err := cfg.SessionOptions()
	if err != nil {
		t.Fatal(err)
	}
	s := session.New(opts...)

	allowed := make(chan bool, 1)
	s.RequestRecordPermission(func(ok bool) { allowed <- ok })
	select {
	case ok := <-allowed:
		if !ok {
			t.Error("permission denied with permission=granted")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("permission completion not called")
	}

	cfg.Session.Permission = "sometimes"
	if _, err := cfg.SessionOptions(); err == nil {
		t.Error("SessionOptions() expected error for bad permission")
	}
}
