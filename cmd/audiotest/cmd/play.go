package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/melophonic/audiotest/pkg/player"
)

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play an audio file on the configured output",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().Duration("start", 0, "start position")
}

type playProgress struct {
	line     *statusLine
	finished chan bool
}

func (p *playProgress) PlayerDidFinishPlaying(pl *player.Player, successfully bool) {
	p.finished <- successfully
}

func (p *playProgress) PlayerUpdateTime(pl *player.Player) {
	p.line.Update("Playing %s / %s", formatClock(pl.CurrentTime()), formatClock(pl.Duration()))
}

type playFinishOnly struct {
	inner player.Delegate
}

func (f playFinishOnly) PlayerDidFinishPlaying(p *player.Player, successfully bool) {
	f.inner.PlayerDidFinishPlaying(p, successfully)
}

func runPlay(cmd *cobra.Command, args []string) error {
	start, _ := cmd.Flags().GetDuration("start")

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, _, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	progress := &playProgress{line: newStatusLine(out), finished: make(chan bool, 1)}
	var delegate player.Delegate = progress
	if !progress.line.enabled {
		delegate = playFinishOnly{progress}
	}

	p, err := st.NewPlayer(args[0], delegate)
	if err != nil {
		return err
	}
	p.SetCurrentTime(start)
	if err := p.Play(); err != nil {
		return err
	}

	select {
	case ok := <-progress.finished:
		progress.line.Done()
		if !ok {
			return errors.New("playback failed")
		}
	case <-ctx.Done():
		progress.line.Done()
		fmt.Fprintf(out, "Stopped at %s\n", formatClock(p.CurrentTime()))
		return p.Close()
	}
	return nil
}
