package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/melophonic/audiotest/pkg/logger"
)

var (
	// ErrEmptyComposition is returned when a composition has nothing to render
	ErrEmptyComposition = errors.New("composition has no audio")
	// ErrNoOutput is returned when no output path was set before export
	ErrNoOutput = errors.New("export output path not set")
	// ErrExportStarted is returned when an export session is started twice
	ErrExportStarted = errors.New("export already started")
	// ErrCancelled is reported when an export is cancelled
	ErrCancelled = errors.New("export cancelled")
)

// ExportStatus is the lifecycle state of an export session
type ExportStatus int

const (
	StatusUnknown ExportStatus = iota
	StatusWaiting
	StatusExporting
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s ExportStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusExporting:
		return "exporting"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Done reports whether the status is terminal
func (s ExportStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Preset selects the rendered codec and container
type Preset string

const (
	// PresetAppleM4A renders AAC in an M4A container
	PresetAppleM4A Preset = "apple-m4a"
	// PresetWAV renders 16-bit PCM in a WAV container
	PresetWAV Preset = "wav"
)

func (p Preset) outputArgs() (ffmpeg.KwArgs, Format, error) {
	switch p {
	case PresetAppleM4A, "":
		return ffmpeg.KwArgs{"acodec": "aac", "b:a": "256k", "f": "ipod"}, FormatM4A, nil
	case PresetWAV:
		return ffmpeg.KwArgs{"acodec": "pcm_s16le", "f": "wav"}, FormatWAV, nil
	default:
		return nil, "", fmt.Errorf("unknown export preset: %s", p)
	}
}

// ExportCompletion receives the terminal status and error of an export
type ExportCompletion func(status ExportStatus, err error)

// commandFunc builds the process that renders the export
type commandFunc func(ctx context.Context, args []string) *exec.Cmd

func ffmpegCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// newCommand is swapped in tests
var newCommand commandFunc = ffmpegCommand

// ExportSession renders a composition to a file asynchronously
type ExportSession struct {
	OutputPath string

	fileType    Format
	composition *Composition
	preset      Preset
	command     commandFunc

	mu       sync.Mutex
	status   ExportStatus
	err      error
	progress float64
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewExportSession creates an export session for comp
func NewExportSession(comp *Composition, preset Preset) (*ExportSession, error) {
	_, format, err := preset.outputArgs()
	if err != nil {
		return nil, err
	}
	return newExportSession(comp, preset, format), nil
}

func newExportSession(comp *Composition, preset Preset, format Format) *ExportSession {
	return &ExportSession{
		fileType:    format,
		composition: comp,
		preset:      preset,
		command:     newCommand,
		done:        make(chan struct{}),
	}
}

// OutputFileType is the container the preset renders
func (e *ExportSession) OutputFileType() Format { return e.fileType }

// Status returns the current status
func (e *ExportSession) Status() ExportStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Err returns the failure cause once the export failed or was cancelled
func (e *ExportSession) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Progress returns the rendered fraction in [0, 1]
func (e *ExportSession) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// Wait blocks until the export reaches a terminal status
func (e *ExportSession) Wait() {
	<-e.done
}

// Cancel stops a running export. It has no effect once the export is done.
func (e *ExportSession) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Done() {
		return
	}
	if e.cancel != nil {
		e.cancel()
		return
	}
	e.status = StatusCancelled
	e.err = ErrCancelled
	e.finish()
}

func (e *ExportSession) finish() {
	e.doneOnce.Do(func() { close(e.done) })
}

// ExportAsync starts rendering on a new goroutine. completion is called
// exactly once with the terminal status.
func (e *ExportSession) ExportAsync(ctx context.Context, completion ExportCompletion) {
	e.mu.Lock()
	if e.status != StatusUnknown {
		status, err := e.status, ErrExportStarted
		if status == StatusCancelled {
			err = ErrCancelled
		}
		e.mu.Unlock()
		if completion != nil {
			completion(status, err)
		}
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.status = StatusWaiting
	e.mu.Unlock()

	go func() {
		defer cancel()
		status, err := e.run(ctx)

		e.mu.Lock()
		e.status = status
		e.err = err
		if status == StatusCompleted {
			e.progress = 1
		}
		e.mu.Unlock()
		e.finish()

		if completion != nil {
			completion(status, err)
		}
	}()
}

func (e *ExportSession) run(ctx context.Context) (ExportStatus, error) {
	log := logger.WithComponent("export").WithField("output", filepath.Base(e.OutputPath))

	if e.OutputPath == "" {
		return StatusFailed, ErrNoOutput
	}

	stream, err := e.buildStream()
	if err != nil {
		return StatusFailed, err
	}

	if err := os.MkdirAll(filepath.Dir(e.OutputPath), 0o755); err != nil {
		return StatusFailed, fmt.Errorf("failed to create output directory: %w", err)
	}

	var stderr bytes.Buffer
	cmd := e.command(ctx, stream.GetArgs())
	cmd.Stdout = &progressWriter{total: e.composition.Duration(), report: e.setProgress}
	cmd.Stderr = &stderr

	e.mu.Lock()
	e.status = StatusExporting
	e.mu.Unlock()

	log.Info().Dur("duration", e.composition.Duration()).Msg("Export started")
	start := time.Now()

	err = cmd.Run()
	if ctx.Err() != nil {
		_ = os.Remove(e.OutputPath)
		log.Info().Msg("Export cancelled")
		return StatusCancelled, ErrCancelled
	}
	if err != nil {
		log.Error().Err(err).Str("stderr", lastLine(stderr.String())).Msg("Export failed")
		return StatusFailed, fmt.Errorf("ffmpeg export failed: %w: %s", err, lastLine(stderr.String()))
	}
	if !Reachable(e.OutputPath) {
		return StatusFailed, fmt.Errorf("output file was not created: %s", e.OutputPath)
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("Export completed")
	return StatusCompleted, nil
}

// buildStream wires every segment into one output stream. Segments are
// delayed to their timeline position and mixed without normalisation so
// each track keeps its level.
func (e *ExportSession) buildStream() (*ffmpeg.Stream, error) {
	if e.composition == nil {
		return nil, ErrEmptyComposition
	}
	segments := e.composition.segments()
	if len(segments) == 0 {
		return nil, ErrEmptyComposition
	}

	inputs := make([]*ffmpeg.Stream, 0, len(segments))
	for _, seg := range segments {
		in := ffmpeg.Input(seg.Source, ffmpeg.KwArgs{
			"ss": formatSeconds(seg.Start),
			"t":  formatSeconds(seg.Duration),
		}).Audio()
		if seg.At > 0 {
			in = in.Filter("adelay", ffmpeg.Args{}, ffmpeg.KwArgs{
				"delays": strconv.FormatInt(seg.At.Milliseconds(), 10),
				"all":    "1",
			})
		}
		inputs = append(inputs, in)
	}

	mixed := inputs[0]
	if len(inputs) > 1 {
		mixed = ffmpeg.Filter(inputs, "amix", ffmpeg.Args{}, ffmpeg.KwArgs{
			"inputs":             strconv.Itoa(len(inputs)),
			"duration":           "longest",
			"dropout_transition": "0",
			"normalize":          "0",
		})
	}

	outArgs, _, err := e.preset.outputArgs()
	if err != nil {
		return nil, err
	}
	return mixed.Output(e.OutputPath, outArgs).
		GlobalArgs("-nostats", "-progress", "pipe:1").
		OverWriteOutput(), nil
}

func (e *ExportSession) setProgress(p float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p > e.progress {
		e.progress = p
	}
}

// progressWriter parses the key=value stream of ffmpeg -progress
type progressWriter struct {
	total  time.Duration
	report func(float64)
	buf    []byte
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.line(strings.TrimSpace(string(w.buf[:i])))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *progressWriter) line(line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// both keys carry microseconds
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || w.total <= 0 {
			return
		}
		p := float64(time.Duration(us)*time.Microsecond) / float64(w.total)
		if p > 1 {
			p = 1
		}
		if p >= 0 {
			w.report(p)
		}
	case "progress":
		if value == "end" {
			w.report(1)
		}
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
