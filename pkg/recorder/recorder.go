// Package recorder captures audio takes from an input device with ffmpeg.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/logger"
)

var (
	// ErrRecording is returned when an operation needs a stopped recorder
	ErrRecording = errors.New("recorder is recording")
)

const defaultStopTimeout = 5 * time.Second

// Delegate is told when a recording ends, either by Stop or because
// the duration limit was reached.
type Delegate interface {
	RecorderDidFinishRecording(r *Recorder, successfully bool)
}

// UpdateDelegate additionally receives a call on every display frame
// while a Tracked recorder is recording.
type UpdateDelegate interface {
	Delegate
	RecorderUpdateTime(r *Recorder)
}

type commandFunc func(ctx context.Context, args []string) *exec.Cmd

func ffmpegCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

var newCommand commandFunc = ffmpegCommand

// Option configures a Recorder
type Option func(*Recorder)

// WithInput selects the ffmpeg input format and device
func WithInput(format, device string) Option {
	return func(r *Recorder) {
		if format != "" {
			r.inputFormat = format
		}
		if device != "" {
			r.inputDevice = device
		}
	}
}

// WithDelegate sets the delegate at construction
func WithDelegate(d Delegate) Option {
	return func(r *Recorder) {
		r.delegate = d
	}
}

// WithStopTimeout bounds how long Stop waits for ffmpeg to finalize
// the file before killing it.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		r.stopTimeout = d
	}
}

// Recorder records one take into a file
type Recorder struct {
	path     string
	settings audio.RecordingSettings

	inputFormat string
	inputDevice string
	stopTimeout time.Duration
	command     commandFunc

	mu        sync.Mutex
	delegate  Delegate
	recording bool
	startedAt time.Time
	stdin     io.WriteCloser
	cancel    context.CancelFunc
	exited    chan struct{}
	onStop    []func()
}

// New prepares a recorder writing to path with settings
func New(path string, settings audio.RecordingSettings, opts ...Option) (*Recorder, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	r := &Recorder{
		path:        path,
		settings:    settings,
		inputFormat: "pulse",
		inputDevice: "default",
		stopTimeout: defaultStopTimeout,
		command:     newCommand,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Path is the file being recorded
func (r *Recorder) Path() string { return r.path }

// Settings returns the encoder settings
func (r *Recorder) Settings() audio.RecordingSettings { return r.settings }

// SetDelegate replaces the delegate
func (r *Recorder) SetDelegate(d Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegate = d
}

// Delegate returns the current delegate
func (r *Recorder) Delegate() Delegate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delegate
}

// IsRecording reports whether capture is running
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// CurrentTime is the length recorded so far, zero when not recording
func (r *Recorder) CurrentTime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return 0
	}
	return time.Since(r.startedAt)
}

// Record starts capturing until Stop is called
func (r *Recorder) Record() error {
	return r.RecordForDuration(0)
}

// RecordForDuration starts capturing and stops on its own after d.
// A zero d records until Stop. Recording an already recording
// recorder does nothing.
func (r *Recorder) RecordForDuration(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := r.command(ctx, r.args(d))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start recording: %w", err)
	}

	r.recording = true
	r.startedAt = time.Now()
	r.stdin = stdin
	r.cancel = cancel
	r.exited = make(chan struct{})

	logger.WithComponent("recorder").Info().
		Str("path", r.path).
		Str("codec", string(r.settings.Codec)).
		Int("sample_rate", r.settings.SampleRate).
		Int("channels", r.settings.Channels).
		Dur("limit", d).
		Msg("Recording started")

	go r.wait(cancel, cmd, &stderr, r.exited)
	return nil
}

func (r *Recorder) args(limit time.Duration) []string {
	out := r.settings.OutputArgs()
	if limit > 0 {
		out["t"] = fmt.Sprintf("%.3f", limit.Seconds())
	}
	return ffmpeg.Input(r.inputDevice, ffmpeg.KwArgs{"f": r.inputFormat}).
		Output(r.path, out).
		GlobalArgs("-nostats", "-loglevel", "error").
		OverWriteOutput().
		GetArgs()
}

func (r *Recorder) wait(cancel context.CancelFunc, cmd *exec.Cmd, stderr *bytes.Buffer, exited chan struct{}) {
	err := cmd.Wait()
	cancel()

	r.mu.Lock()
	elapsed := time.Since(r.startedAt)
	r.recording = false
	r.stdin = nil
	r.cancel = nil
	delegate := r.delegate
	hooks := r.onStop
	r.mu.Unlock()
	close(exited)

	for _, hook := range hooks {
		hook()
	}

	log := logger.WithComponent("recorder")
	successfully := err == nil && audio.Reachable(r.path)
	if successfully {
		log.Info().Str("path", r.path).Dur("duration", elapsed).Msg("Recording finished")
	} else {
		log.Warn().Err(err).Str("path", r.path).Str("ffmpeg", strings.TrimSpace(stderr.String())).Msg("Recording failed")
	}
	if delegate != nil {
		delegate.RecorderDidFinishRecording(r, successfully)
	}
}

// Stop asks ffmpeg to finish the file and waits for it. ffmpeg is
// killed if it does not exit within the stop timeout.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	stdin := r.stdin
	cancel := r.cancel
	exited := r.exited
	r.mu.Unlock()

	if _, err := io.WriteString(stdin, "q"); err != nil {
		logger.WithComponent("recorder").Debug().Err(err).Msg("Failed to send quit to ffmpeg")
	}
	_ = stdin.Close()

	select {
	case <-exited:
		return nil
	case <-time.After(r.stopTimeout):
	}

	cancel()
	<-exited
	return fmt.Errorf("ffmpeg did not stop within %s", r.stopTimeout)
}

// Wait blocks until the running recording ends
func (r *Recorder) Wait() {
	r.mu.Lock()
	exited := r.exited
	r.mu.Unlock()
	if exited != nil {
		<-exited
	}
}

// DeleteRecording removes the recorded file
func (r *Recorder) DeleteRecording() error {
	if r.IsRecording() {
		return ErrRecording
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	return nil
}

func (r *Recorder) addStopHook(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStop = append(r.onStop, fn)
}
