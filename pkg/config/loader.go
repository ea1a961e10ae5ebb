package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	configName = ".audiotest"
	envPrefix  = "AUDIOTEST"
)

// Loader handles configuration loading and management
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a loader with its own viper instance
func NewLoader(configPath string) *Loader {
	return NewLoaderWithViper(viper.New(), configPath)
}

// NewLoaderWithViper creates a loader on v, so flags bound to v by the
// CLI take part in loading.
func NewLoaderWithViper(v *viper.Viper, configPath string) *Loader {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(".")
		if home != "" {
			v.AddConfigPath(home)
		}
		v.AddConfigPath("/etc/audiotest")
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Load reads and validates the configuration
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg to the loader's file, or ~/.audiotest.yaml
func (l *Loader) Save(cfg *Config) error {
	configFile := l.configPath
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		configFile = filepath.Join(home, configName+".yaml")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := viper.New()
	out.Set("session", cfg.Session)
	out.Set("recording", cfg.Recording)
	out.Set("devices", cfg.Devices)
	out.Set("library", cfg.Library)
	out.Set("bounce", cfg.Bounce)
	out.Set("watch", cfg.Watch)
	out.Set("publish", cfg.Publish)
	out.Set("logging", cfg.Logging)

	if err := out.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigFileUsed returns the path of the file that was read, if any
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.viper.SetDefault("session.category", d.Session.Category)
	l.viper.SetDefault("session.options", d.Session.Options)
	l.viper.SetDefault("session.permission", d.Session.Permission)
	l.viper.SetDefault("session.lock_path", d.Session.LockPath)
	l.viper.SetDefault("session.device_dir", d.Session.DeviceDir)
	l.viper.SetDefault("session.pulse_server", d.Session.PulseServer)

	l.viper.SetDefault("recording.codec", d.Recording.Codec)
	l.viper.SetDefault("recording.sample_rate", d.Recording.SampleRate)
	l.viper.SetDefault("recording.channels", d.Recording.Channels)
	l.viper.SetDefault("recording.quality", d.Recording.Quality)

	l.viper.SetDefault("devices.input_format", d.Devices.InputFormat)
	l.viper.SetDefault("devices.input_device", d.Devices.InputDevice)
	l.viper.SetDefault("devices.output_format", d.Devices.OutputFormat)
	l.viper.SetDefault("devices.output_device", d.Devices.OutputDevice)

	l.viper.SetDefault("library.documents_dir", d.Library.DocumentsDir)
	l.viper.SetDefault("library.catalog_db", d.Library.CatalogDB)

	l.viper.SetDefault("bounce.backing_path", d.Bounce.BackingPath)
	l.viper.SetDefault("bounce.publish", d.Bounce.Publish)

	l.viper.SetDefault("watch.patterns", d.Watch.Patterns)
	l.viper.SetDefault("watch.interval", d.Watch.Interval)
	l.viper.SetDefault("watch.stability_wait", d.Watch.StabilityWait)
	l.viper.SetDefault("watch.processing_timeout", d.Watch.ProcessingTimeout)
	l.viper.SetDefault("watch.process_existing", d.Watch.ProcessExisting)
	l.viper.SetDefault("watch.retry_failed", d.Watch.RetryFailed)
	l.viper.SetDefault("watch.max_retries", d.Watch.MaxRetries)
	l.viper.SetDefault("watch.max_workers", d.Watch.MaxWorkers)

	l.viper.SetDefault("publish.bucket", d.Publish.Bucket)
	l.viper.SetDefault("publish.prefix", d.Publish.Prefix)
	l.viper.SetDefault("publish.region", d.Publish.Region)
	l.viper.SetDefault("publish.endpoint", d.Publish.Endpoint)
	l.viper.SetDefault("publish.access_key_id", d.Publish.AccessKeyID)
	l.viper.SetDefault("publish.secret_access_key", d.Publish.SecretAccessKey)
	l.viper.SetDefault("publish.use_path_style", d.Publish.UsePathStyle)

	l.viper.SetDefault("logging.level", d.Logging.Level)
	l.viper.SetDefault("logging.format", d.Logging.Format)
	l.viper.SetDefault("logging.output", d.Logging.Output)
	l.viper.SetDefault("logging.no_color", d.Logging.NoColor)
	l.viper.SetDefault("logging.caller", d.Logging.Caller)
}

var validate = validator.New()

// Validate checks struct tags and the settings that depend on other
// packages' parsers.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if _, err := cfg.RecordingSettings(); err != nil {
		return err
	}
	if _, _, err := cfg.SessionCategory(); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Logging.Format)
	}
	return nil
}
