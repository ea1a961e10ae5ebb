// Package player plays audio files through ffmpeg's output devices.
package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/logger"
)

// ErrNotPlayable is returned for files ffmpeg cannot read as audio
var ErrNotPlayable = errors.New("file is not playable")

// Delegate is told when playback ends on its own
type Delegate interface {
	PlayerDidFinishPlaying(p *Player, successfully bool)
}

// UpdateDelegate additionally receives a call on every display frame
// while a Tracked player is playing.
type UpdateDelegate interface {
	Delegate
	PlayerUpdateTime(p *Player)
}

type commandFunc func(ctx context.Context, args []string) *exec.Cmd

func ffmpegCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

var newCommand commandFunc = ffmpegCommand

// Option configures a Player
type Option func(*Player)

// WithOutput selects the ffmpeg output format and device
func WithOutput(format, device string) Option {
	return func(p *Player) {
		if format != "" {
			p.outputFormat = format
		}
		p.outputDevice = device
	}
}

// WithDelegate sets the delegate at construction
func WithDelegate(d Delegate) Option {
	return func(p *Player) {
		p.delegate = d
	}
}

// Player plays a single audio file
type Player struct {
	path     string
	duration time.Duration

	outputFormat string
	outputDevice string
	command      commandFunc

	mu        sync.Mutex
	delegate  Delegate
	playing   bool
	startedAt time.Time
	offset    time.Duration
	cancel    context.CancelFunc
	exited    chan struct{}
	onStop    []func()
}

// New opens path for playback
func New(path string, opts ...Option) (*Player, error) {
	asset, err := audio.OpenAsset(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPlayable, err)
	}
	if len(asset.AudioTracks()) == 0 {
		return nil, fmt.Errorf("%w: %s has no audio tracks", ErrNotPlayable, path)
	}
	return NewWithAsset(asset, opts...), nil
}

// NewWithAsset creates a player for an already probed asset
func NewWithAsset(asset *audio.Asset, opts ...Option) *Player {
	p := &Player{
		path:         asset.Path,
		duration:     asset.Duration,
		outputFormat: "pulse",
		command:      newCommand,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path is the file being played
func (p *Player) Path() string {
	return p.path
}

// Duration of the file
func (p *Player) Duration() time.Duration {
	return p.duration
}

// SetDelegate replaces the delegate
func (p *Player) SetDelegate(d Delegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

// Delegate returns the current delegate
func (p *Player) Delegate() Delegate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delegate
}

// IsPlaying reports whether playback is running
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// CurrentTime is the playback position
func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTimeLocked()
}

func (p *Player) currentTimeLocked() time.Duration {
	if !p.playing {
		return p.offset
	}
	t := p.offset + time.Since(p.startedAt)
	if p.duration > 0 && t > p.duration {
		t = p.duration
	}
	return t
}

// SetCurrentTime moves the playback position. It takes effect on the
// next Play.
func (p *Player) SetCurrentTime(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t < 0 {
		t = 0
	}
	if p.duration > 0 && t > p.duration {
		t = p.duration
	}
	p.offset = t
}

// Play starts playback from the current position. Playing an already
// playing player does nothing.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := p.command(ctx, p.args())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start playback: %w", err)
	}

	p.playing = true
	p.startedAt = time.Now()
	p.cancel = cancel
	p.exited = make(chan struct{})

	logger.WithComponent("player").Debug().
		Str("path", p.path).
		Dur("offset", p.offset).
		Msg("Playback started")

	go p.wait(ctx, cancel, cmd, &stderr, p.exited)
	return nil
}

func (p *Player) args() []string {
	in := ffmpeg.KwArgs{}
	if p.offset > 0 {
		in["ss"] = fmt.Sprintf("%.3f", p.offset.Seconds())
	}
	out := ffmpeg.KwArgs{"f": p.outputFormat}
	if p.outputDevice != "" {
		out["device"] = p.outputDevice
	}
	return ffmpeg.Input(p.path, in).
		Audio().
		Output("audiotest", out).
		GlobalArgs("-nostats", "-loglevel", "error").
		GetArgs()
}

func (p *Player) wait(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, stderr *bytes.Buffer, exited chan struct{}) {
	err := cmd.Wait()
	stopped := ctx.Err() != nil
	cancel()

	p.mu.Lock()
	p.playing = false
	p.cancel = nil
	if !stopped {
		p.offset = 0
	} else {
		p.offset = p.offset + time.Since(p.startedAt)
		if p.duration > 0 && p.offset > p.duration {
			p.offset = p.duration
		}
	}
	delegate := p.delegate
	hooks := p.onStop
	p.mu.Unlock()
	close(exited)

	for _, hook := range hooks {
		hook()
	}

	if stopped {
		return
	}

	log := logger.WithComponent("player")
	successfully := err == nil
	if !successfully {
		log.Warn().Err(err).Str("path", p.path).Str("ffmpeg", strings.TrimSpace(stderr.String())).Msg("Playback failed")
	} else {
		log.Debug().Str("path", p.path).Msg("Playback finished")
	}
	if delegate != nil {
		delegate.PlayerDidFinishPlaying(p, successfully)
	}
}

// Stop halts playback and keeps the position. The delegate is not
// called.
func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	exited := p.exited
	p.mu.Unlock()

	cancel()
	<-exited
	return nil
}

// Wait blocks until the running playback ends
func (p *Player) Wait() {
	p.mu.Lock()
	exited := p.exited
	p.mu.Unlock()
	if exited != nil {
		<-exited
	}
}

func (p *Player) addStopHook(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStop = append(p.onStop, fn)
}
