package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/logger"
	"github.com/melophonic/audiotest/pkg/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Bounce new takes over the backing track as they appear",
	Long: `Watch the documents folder for new takes and bounce each one over the
configured backing track into a new BouncedAudio_<id>.m4a.

Takes that were already bounced are skipped. Failed bounces are recorded
in the catalog and retried with --retry-failed until max_retries.

Examples:
  # Watch with the backing track from the config file
  audiotest watch

  # Bounce everything present once and exit
  audiotest watch --backing ./BackingAudio.m4a --once`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSlice("pattern", nil, "take patterns to watch (comma-separated)")
	watchCmd.Flags().Duration("interval", 5*time.Second, "rescan interval")
	watchCmd.Flags().Duration("stability-wait", 2*time.Second, "time a take must stay unchanged")
	watchCmd.Flags().Duration("processing-timeout", 10*time.Minute, "maximum time for a single bounce")
	watchCmd.Flags().Int("max-workers", 2, "maximum concurrent bounces")
	watchCmd.Flags().Bool("retry-failed", false, "retry takes whose bounce failed")
	watchCmd.Flags().Bool("once", false, "bounce existing takes and exit")
	watchCmd.Flags().Bool("no-existing", false, "skip takes present on startup")
	watchCmd.Flags().String("backing", "", "backing track (default from config)")
	watchCmd.Flags().Bool("publish", false, "upload bounces to the configured bucket")

	_ = viper.BindPFlag("watch.patterns", watchCmd.Flags().Lookup("pattern"))
	_ = viper.BindPFlag("watch.interval", watchCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("watch.stability_wait", watchCmd.Flags().Lookup("stability-wait"))
	_ = viper.BindPFlag("watch.processing_timeout", watchCmd.Flags().Lookup("processing-timeout"))
	_ = viper.BindPFlag("watch.max_workers", watchCmd.Flags().Lookup("max-workers"))
	_ = viper.BindPFlag("watch.retry_failed", watchCmd.Flags().Lookup("retry-failed"))
	_ = viper.BindPFlag("bounce.backing_path", watchCmd.Flags().Lookup("backing"))
	_ = viper.BindPFlag("bounce.publish", watchCmd.Flags().Lookup("publish"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	if appConfig.Bounce.BackingPath == "" {
		return errors.New("no backing track configured; use --backing or bounce.backing_path")
	}
	if !audio.Reachable(appConfig.Bounce.BackingPath) {
		log.Warn().Str("backing", appConfig.Bounce.BackingPath).Msg("Backing track not found, bounces will contain the take only")
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, _, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := watchConfig(cmd, st.Library().Dir())
	w, err := watcher.New(cfg, st, st.Catalog())
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	out := cmd.OutOrStdout()
	w.SetProgressCallback(func(event *watcher.ProgressEvent) {
		printWatchEvent(out, event)
	})

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	once, _ := cmd.Flags().GetBool("once")
	if once {
		log.Info().Msg("Bouncing existing takes, will exit when done")
		if err := w.WaitForInitialProcessing(ctx); err != nil {
			log.Warn().Err(err).Msg("Interrupted before existing takes were bounced")
		}
	} else {
		fmt.Fprintf(out, "Watching %s\n", cfg.Dir)
		fmt.Fprintf(out, "  Patterns: %s\n", strings.Join(cfg.Patterns, ", "))
		fmt.Fprintf(out, "  Backing:  %s\n", appConfig.Bounce.BackingPath)
		fmt.Fprintf(out, "  Workers:  %d\n", cfg.MaxWorkers)
		fmt.Fprintln(out, "Press Ctrl+C to stop")
		<-ctx.Done()
		fmt.Fprintln(out, "Shutting down...")
	}

	if err := w.Stop(); err != nil {
		return fmt.Errorf("error stopping watcher: %w", err)
	}

	stats := w.Stats()
	fmt.Fprintln(out, renderTable(
		[]string{"Found", "Bounced", "Failed", "Skipped", "Uptime"},
		[][]string{{
			fmt.Sprint(stats.FoundCount),
			fmt.Sprint(stats.BouncedCount),
			fmt.Sprint(stats.FailedCount),
			fmt.Sprint(stats.SkippedCount),
			time.Since(stats.StartTime).Round(time.Second).String(),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func watchConfig(cmd *cobra.Command, dir string) watcher.Config {
	cfg := watcher.DefaultConfig(dir)
	wc := appConfig.Watch

	if len(wc.Patterns) > 0 {
		cfg.Patterns = wc.Patterns
	}
	cfg.Interval = wc.Interval
	cfg.StabilityWait = wc.StabilityWait
	cfg.ProcessingTimeout = wc.ProcessingTimeout
	cfg.ProcessExisting = wc.ProcessExisting
	cfg.RetryFailed = wc.RetryFailed
	cfg.MaxRetries = wc.MaxRetries
	cfg.MaxWorkers = wc.MaxWorkers

	if noExisting, _ := cmd.Flags().GetBool("no-existing"); noExisting {
		cfg.ProcessExisting = false
	}
	return cfg
}

func printWatchEvent(out io.Writer, event *watcher.ProgressEvent) {
	name := filepath.Base(event.FilePath)
	switch event.Type {
	case watcher.EventFound:
		fmt.Fprintf(out, "found      %s\n", name)
	case watcher.EventProcessing:
		fmt.Fprintf(out, "bouncing   %s\n", name)
	case watcher.EventCompleted:
		fmt.Fprintf(out, "bounced    %s -> %s\n", name, filepath.Base(event.OutputPath))
	case watcher.EventFailed:
		fmt.Fprintf(out, "failed     %s: %v\n", name, event.Error)
	case watcher.EventSkipped:
		fmt.Fprintf(out, "skipped    %s: %s\n", name, event.Message)
	}
}
