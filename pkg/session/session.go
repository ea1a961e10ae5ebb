package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/melophonic/audiotest/pkg/logger"
)

var (
	// ErrSessionBusy is returned when another process holds the audio session
	ErrSessionBusy = errors.New("audio session is held by another process")
	// ErrNoCategory is returned when activating a session with no category
	ErrNoCategory = errors.New("audio session category not set")
)

// Category describes how the application uses audio
type Category string

const (
	CategoryAmbient       Category = "ambient"
	CategoryPlayback      Category = "playback"
	CategoryRecord        Category = "record"
	CategoryPlayAndRecord Category = "play_and_record"
)

// ParseCategory converts a configuration value to a Category
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.ReplaceAll(s, "-", "_")))
	switch c {
	case CategoryAmbient, CategoryPlayback, CategoryRecord, CategoryPlayAndRecord:
		return c, nil
	}
	return "", fmt.Errorf("unknown audio session category %q", s)
}

// AllowsRecording reports whether the category permits capture
func (c Category) AllowsRecording() bool {
	return c == CategoryRecord || c == CategoryPlayAndRecord
}

// CategoryOptions modify how a category interacts with other audio
type CategoryOptions uint

const (
	OptionMixWithOthers CategoryOptions = 1 << iota
	OptionDuckOthers
	OptionAllowBluetooth
	OptionDefaultToSpeaker
)

var optionNames = []struct {
	opt  CategoryOptions
	name string
}{
	{OptionMixWithOthers, "mix_with_others"},
	{OptionDuckOthers, "duck_others"},
	{OptionAllowBluetooth, "allow_bluetooth"},
	{OptionDefaultToSpeaker, "default_to_speaker"},
}

// ParseOptions converts option names to a CategoryOptions set
func ParseOptions(names []string) (CategoryOptions, error) {
	var opts CategoryOptions
next:
	for _, n := range names {
		n = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(n), "-", "_"))
		for _, o := range optionNames {
			if o.name == n {
				opts |= o.opt
				continue next
			}
		}
		return 0, fmt.Errorf("unknown audio session option %q", n)
	}
	return opts, nil
}

// Strings lists the names of the set options
func (o CategoryOptions) Strings() []string {
	var out []string
	for _, n := range optionNames {
		if o&n.opt != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// Session is the process-wide audio configuration. Activation takes an
// exclusive lock so only one process records at a time.
type Session struct {
	mu         sync.Mutex
	category   Category
	options    CategoryOptions
	active     bool
	lock       *flock.Flock
	permission PermissionMode
	deviceDir  string
	routes     RouteSource
}

// Option configures a Session
type Option func(*Session)

// WithLockPath sets the file used to hold the session
func WithLockPath(path string) Option {
	return func(s *Session) { s.lock = flock.New(path) }
}

// WithPermission overrides record permission detection
func WithPermission(mode PermissionMode) Option {
	return func(s *Session) { s.permission = mode }
}

// WithDeviceDir sets where capture device nodes are looked up
func WithDeviceDir(dir string) Option {
	return func(s *Session) { s.deviceDir = dir }
}

// WithRouteSource replaces the route lookup
func WithRouteSource(src RouteSource) Option {
	return func(s *Session) { s.routes = src }
}

// New creates a session. Most callers want Shared.
func New(opts ...Option) *Session {
	s := &Session{
		permission: PermissionAuto,
		deviceDir:  "/dev/snd",
		routes:     PulseSource{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lock == nil {
		s.lock = flock.New(DefaultLockPath())
	}
	return s
}

var (
	sharedOnce sync.Once
	shared     *Session
)

// Shared returns the process-wide session
func Shared() *Session {
	sharedOnce.Do(func() { shared = New() })
	return shared
}

// DefaultLockPath is the session lock file under the user runtime directory
func DefaultLockPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "audiotest-session.lock")
}

// SetCategory sets the category and options
func (s *Session) SetCategory(category Category, options CategoryOptions) error {
	if _, err := ParseCategory(string(category)); err != nil {
		return err
	}
	if options&OptionDefaultToSpeaker != 0 && category != CategoryPlayAndRecord {
		return fmt.Errorf("option default_to_speaker requires category %s", CategoryPlayAndRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = category
	s.options = options

	logger.WithComponent("session").Debug().
		Str("category", string(category)).
		Strs("options", options.Strings()).
		Msg("Audio session category set")
	return nil
}

// Category returns the current category
func (s *Session) Category() Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

// Options returns the current category options
func (s *Session) Options() CategoryOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// IsActive reports whether this process holds the session
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive activates or deactivates the session
func (s *Session) SetActive(active bool) error {
	log := logger.WithComponent("session")

	s.mu.Lock()
	defer s.mu.Unlock()

	if active == s.active {
		return nil
	}

	if !active {
		if err := s.lock.Unlock(); err != nil {
			return fmt.Errorf("failed to release audio session: %w", err)
		}
		s.active = false
		log.Debug().Msg("Audio session deactivated")
		return nil
	}

	if s.category == "" {
		return ErrNoCategory
	}
	// a mixable session does not need exclusive use of the device
	if s.options&OptionMixWithOthers == 0 {
		if err := os.MkdirAll(filepath.Dir(s.lock.Path()), 0o755); err != nil {
			return fmt.Errorf("failed to create session lock directory: %w", err)
		}
		locked, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to lock audio session: %w", err)
		}
		if !locked {
			return ErrSessionBusy
		}
	}

	s.active = true
	log.Info().
		Str("category", string(s.category)).
		Strs("options", s.options.Strings()).
		Msg("Audio session activated")
	return nil
}

// CurrentRoute returns the current input and output route
func (s *Session) CurrentRoute(ctx context.Context) (Route, error) {
	return s.routes.CurrentRoute(ctx)
}

// IsHeadsetConnected reports whether headphones are part of the output
// route. Lookup failures are logged and reported as false.
func (s *Session) IsHeadsetConnected(ctx context.Context) bool {
	route, err := s.CurrentRoute(ctx)
	if err != nil {
		logger.WithComponent("session").Warn().Err(err).Msg("Could not read audio route")
		return false
	}
	return route.HasOutput(PortHeadphones)
}
