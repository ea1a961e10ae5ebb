package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/library"
)

var bounceCmd = &cobra.Command{
	Use:   "bounce <backing> <recording> [output]",
	Short: "Mix a backing track and a take into one M4A file",
	Long: `Mix the backing track and the recorded take, both starting at zero,
into an Apple M4A file. Without an output path a new
BouncedAudio_<id>.m4a is created in the documents folder.

A missing backing track or a take without audio is logged and left out
of the mix.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runBounce,
}

func init() {
	rootCmd.AddCommand(bounceCmd)
	bounceCmd.Flags().Bool("publish", false, "upload the bounce to the configured bucket")
}

func runBounce(cmd *cobra.Command, args []string) error {
	if publish, _ := cmd.Flags().GetBool("publish"); publish {
		appConfig.Bounce.Publish = true
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, _, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	output := st.DocumentPath(library.BouncedAudioName)
	if len(args) == 3 {
		output = args[2]
	}

	type result struct {
		status audio.ExportStatus
		err    error
	}
	done := make(chan result, 1)
	exporter := st.Bounce(ctx, args[0], args[1], output, func(status audio.ExportStatus, err error) {
		done <- result{status, err}
	})

	out := cmd.OutOrStdout()
	var bar *progressbar.ProgressBar
	if isTerminal(out) {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Bouncing"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionThrottle(65*time.Millisecond),
		)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var res result
wait:
	for {
		select {
		case res = <-done:
			break wait
		case <-ticker.C:
			if bar != nil {
				_ = bar.Set(int(exporter.Progress() * 100))
			}
		}
	}
	if bar != nil {
		if res.status == audio.StatusCompleted {
			_ = bar.Finish()
		}
		fmt.Fprintln(out)
	}

	switch res.status {
	case audio.StatusCompleted:
		fmt.Fprintf(out, "Bounced %s\n", library.FileURL(output))
		if take, _ := st.Catalog().Get(output); take != nil && take.PublishedURL != "" {
			fmt.Fprintf(out, "Published %s\n", take.PublishedURL)
		}
		return nil
	case audio.StatusCancelled:
		return errors.New("bounce cancelled")
	}
	return fmt.Errorf("bounce %s: %w", res.status, res.err)
}
