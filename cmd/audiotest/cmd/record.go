package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/melophonic/audiotest/pkg/library"
	"github.com/melophonic/audiotest/pkg/recorder"
	"github.com/melophonic/audiotest/pkg/studio"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a take into the documents folder",
	Long: `Record a take from the configured input device. Recording runs until
the duration elapses or Ctrl+C is pressed. Takes are named
RecordingAudio_<id>.m4a and added to the catalog.

Examples:
  # Record until interrupted
  audiotest record

  # Record ten seconds and bounce over the backing track
  audiotest record -d 10s --bounce --backing ./BackingAudio.m4a`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().DurationP("duration", "d", 0, "stop after this long (0 records until interrupted)")
	recordCmd.Flags().Bool("bounce", false, "bounce the take over the backing track when done")
	recordCmd.Flags().String("backing", "", "backing track for --bounce (default from config)")
}

// takeProgress prints elapsed time on every display frame
type takeProgress struct {
	line     *statusLine
	finished chan bool
}

func (p *takeProgress) RecorderDidFinishRecording(r *recorder.Recorder, successfully bool) {
	p.finished <- successfully
}

func (p *takeProgress) RecorderUpdateTime(r *recorder.Recorder) {
	p.line.Update("Recording %s", formatClock(r.CurrentTime()))
}

func runRecord(cmd *cobra.Command, args []string) error {
	duration, _ := cmd.Flags().GetDuration("duration")
	bounce, _ := cmd.Flags().GetBool("bounce")
	if backing, _ := cmd.Flags().GetString("backing"); backing != "" {
		appConfig.Bounce.BackingPath = backing
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, allowed, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if !allowed {
		return errors.New("record permission denied")
	}

	out := cmd.OutOrStdout()
	progress := &takeProgress{line: newStatusLine(out), finished: make(chan bool, 1)}

	var delegate recorder.Delegate = progress
	if !progress.line.enabled {
		delegate = finishOnly{progress}
	}

	r, err := st.NewRecorder(delegate)
	if err != nil {
		return err
	}
	if err := r.RecordForDuration(duration); err != nil {
		return err
	}
	if !st.IsHeadsetConnected(ctx) {
		fmt.Fprintln(out, "No headphones on the current route; the backing track may bleed into the take")
	}

	var successfully bool
	select {
	case successfully = <-progress.finished:
	case <-ctx.Done():
		if err := r.Close(); err != nil {
			return err
		}
		successfully = <-progress.finished
	}
	progress.line.Done()

	if !successfully {
		return errors.New("recording failed")
	}
	fmt.Fprintf(out, "Recorded %s\n", library.FileURL(r.Path()))

	if bounce {
		return bounceAfterRecording(cmd, out, st, r.Path())
	}
	return nil
}

// finishOnly hides RecorderUpdateTime so no display link is started
type finishOnly struct {
	inner recorder.Delegate
}

func (f finishOnly) RecorderDidFinishRecording(r *recorder.Recorder, successfully bool) {
	f.inner.RecorderDidFinishRecording(r, successfully)
}

func bounceAfterRecording(cmd *cobra.Command, out io.Writer, st *studio.Studio, take string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	start := time.Now()
	output, err := st.BounceTake(ctx, take)
	if err != nil {
		return fmt.Errorf("bounce failed: %w", err)
	}
	fmt.Fprintf(out, "Bounced %s in %s\n", library.FileURL(output), time.Since(start).Round(time.Millisecond))
	return nil
}
