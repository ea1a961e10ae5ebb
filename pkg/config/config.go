package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/logger"
	"github.com/melophonic/audiotest/pkg/session"
)

// Config represents the application configuration
type Config struct {
	// Audio session
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Take encoding
	Recording RecordingConfig `yaml:"recording" mapstructure:"recording"`

	// Capture and playback devices
	Devices DeviceConfig `yaml:"devices" mapstructure:"devices"`

	// Where takes live
	Library LibraryConfig `yaml:"library" mapstructure:"library"`

	// Mixdown
	Bounce BounceConfig `yaml:"bounce" mapstructure:"bounce"`

	// Auto-bounce
	Watch WatchConfig `yaml:"watch" mapstructure:"watch"`

	// Upload of bounces
	Publish PublishConfig `yaml:"publish" mapstructure:"publish"`

	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// SessionConfig contains audio session settings
type SessionConfig struct {
	Category   string   `yaml:"category" mapstructure:"category" validate:"oneof=ambient playback record play_and_record"`
	Options    []string `yaml:"options" mapstructure:"options" validate:"dive,oneof=mix_with_others duck_others allow_bluetooth default_to_speaker"`
	Permission string   `yaml:"permission" mapstructure:"permission" validate:"omitempty,oneof=auto granted denied"`
	LockPath   string   `yaml:"lock_path" mapstructure:"lock_path"`
	DeviceDir  string   `yaml:"device_dir" mapstructure:"device_dir"`

	// Pulse server string; empty uses PULSE_SERVER or the user socket
	PulseServer string `yaml:"pulse_server" mapstructure:"pulse_server"`
}

// RecordingConfig mirrors audio.RecordingSettings with a named quality
type RecordingConfig struct {
	Codec      string `yaml:"codec" mapstructure:"codec"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels   int    `yaml:"channels" mapstructure:"channels"`
	Quality    string `yaml:"quality" mapstructure:"quality"`
}

// DeviceConfig selects ffmpeg devices
type DeviceConfig struct {
	InputFormat  string `yaml:"input_format" mapstructure:"input_format"`
	InputDevice  string `yaml:"input_device" mapstructure:"input_device"`
	OutputFormat string `yaml:"output_format" mapstructure:"output_format"`
	OutputDevice string `yaml:"output_device" mapstructure:"output_device"`
}

// LibraryConfig contains documents folder settings
type LibraryConfig struct {
	// Documents directory; empty means $XDG_DOCUMENTS_DIR or ~/Documents
	DocumentsDir string `yaml:"documents_dir" mapstructure:"documents_dir"`

	// Path to the BoltDB take catalog
	CatalogDB string `yaml:"catalog_db" mapstructure:"catalog_db" validate:"required"`
}

// BounceConfig contains mixdown settings
type BounceConfig struct {
	// Backing track mixed under every bounce
	BackingPath string `yaml:"backing_path" mapstructure:"backing_path"`

	// Publish bounces after export
	Publish bool `yaml:"publish" mapstructure:"publish"`
}

// WatchConfig contains auto-bounce settings
type WatchConfig struct {
	// Takes picked up by the watcher
	Patterns []string `yaml:"patterns" mapstructure:"patterns" validate:"min=1"`

	// Rescan interval
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"min=0"`

	// Time a take must stay unchanged before bouncing
	StabilityWait time.Duration `yaml:"stability_wait" mapstructure:"stability_wait" validate:"min=0"`

	// Maximum time allowed for a single bounce
	ProcessingTimeout time.Duration `yaml:"processing_timeout" mapstructure:"processing_timeout" validate:"min=0"`

	// Whether to bounce takes already present on startup
	ProcessExisting bool `yaml:"process_existing" mapstructure:"process_existing"`

	// Whether to retry takes whose bounce failed before
	RetryFailed bool `yaml:"retry_failed" mapstructure:"retry_failed"`

	// Failed bounces are not retried past this count
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"min=0"`

	// Maximum number of concurrent bounces
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers" validate:"min=1,max=32"`
}

// PublishConfig contains S3 upload settings. An empty bucket disables
// publishing.
type PublishConfig struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	Region          string `yaml:"region" mapstructure:"region" validate:"required_with=Bucket"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	rec := audio.DefaultRecordingSettings()
	return &Config{
		Session: SessionConfig{
			Category:   string(session.CategoryPlayAndRecord),
			Options:    []string{"duck_others"},
			Permission: string(session.PermissionAuto),
			DeviceDir:  "/dev/snd",
		},
		Recording: RecordingConfig{
			Codec:      string(rec.Codec),
			SampleRate: rec.SampleRate,
			Channels:   rec.Channels,
			Quality:    rec.Quality.String(),
		},
		Devices: DeviceConfig{
			InputFormat:  "pulse",
			InputDevice:  "default",
			OutputFormat: "pulse",
		},
		Library: LibraryConfig{
			CatalogDB: defaultCatalogPath(),
		},
		Watch: WatchConfig{
			Patterns:          []string{"RecordingAudio_*.m4a"},
			Interval:          5 * time.Second,
			StabilityWait:     2 * time.Second,
			ProcessingTimeout: 10 * time.Minute,
			ProcessExisting:   true,
			MaxRetries:        3,
			MaxWorkers:        2,
		},
		Logging: *logger.DefaultConfig(),
	}
}

func defaultCatalogPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "audiotest", "catalog.db")
	}
	return ".audiotest-catalog.db"
}

// RecordingSettings converts the recording section to encoder settings
func (c *Config) RecordingSettings() (audio.RecordingSettings, error) {
	quality, err := audio.ParseQuality(c.Recording.Quality)
	if err != nil {
		return audio.RecordingSettings{}, err
	}
	s := audio.RecordingSettings{
		Codec:      audio.Codec(c.Recording.Codec),
		SampleRate: c.Recording.SampleRate,
		Channels:   c.Recording.Channels,
		Quality:    quality,
	}
	if err := s.Validate(); err != nil {
		return audio.RecordingSettings{}, err
	}
	return s, nil
}

// SessionCategory parses the session category and options
func (c *Config) SessionCategory() (session.Category, session.CategoryOptions, error) {
	category, err := session.ParseCategory(c.Session.Category)
	if err != nil {
		return "", 0, err
	}
	opts, err := session.ParseOptions(c.Session.Options)
	if err != nil {
		return "", 0, err
	}
	return category, opts, nil
}

// SessionOptions builds the session.New options for this configuration
func (c *Config) SessionOptions() ([]session.Option, error) {
	mode, err := session.ParsePermissionMode(c.Session.Permission)
	if err != nil {
		return nil, err
	}
	opts := []session.Option{session.WithPermission(mode)}
	if c.Session.LockPath != "" {
		opts = append(opts, session.WithLockPath(c.Session.LockPath))
	}
	if c.Session.DeviceDir != "" {
		opts = append(opts, session.WithDeviceDir(c.Session.DeviceDir))
	}
	opts = append(opts, session.WithRouteSource(session.PulseSource{Server: c.Session.PulseServer}))
	return opts, nil
}

// PublishEnabled reports whether a bucket is configured
func (c *Config) PublishEnabled() bool {
	return c.Publish.Bucket != ""
}

// String is used in debug logs and never includes secrets
func (p PublishConfig) String() string {
	if p.Bucket == "" {
		return "disabled"
	}
	return fmt.Sprintf("s3://%s/%s", p.Bucket, p.Prefix)
}
