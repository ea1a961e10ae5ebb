package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melophonic/audiotest/pkg/config"
	"github.com/melophonic/audiotest/pkg/logger"
	"github.com/melophonic/audiotest/pkg/studio"
)

var (
	cfgFile   string
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiotest",
	Short: "Record takes and bounce them over a backing track",
	Long: `audiotest records audio takes into the documents folder and mixes them
with a backing track into a single M4A file.

Features:
- Exclusive audio session with ducking of other audio
- AAC 16 kHz mono takes named <base>_<id>.m4a
- Headphone detection and route change monitoring
- Two track bounce to Apple M4A with progress
- Auto-bounce of new takes in watch mode
- Optional upload of bounces to S3`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.audiotest.yaml or $HOME/.audiotest.yaml)")
	rootCmd.PersistentFlags().String("documents-dir", "", "documents directory holding takes")
	rootCmd.PersistentFlags().String("catalog-db", "", "path to the take catalog database")
	rootCmd.PersistentFlags().String("permission", "", "record permission (auto, granted, denied)")

	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-output", "stderr", "log output (stdout, stderr, file path)")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().Bool("log-caller", false, "include caller information in logs")

	_ = viper.BindPFlag("library.documents_dir", rootCmd.PersistentFlags().Lookup("documents-dir"))
	_ = viper.BindPFlag("library.catalog_db", rootCmd.PersistentFlags().Lookup("catalog-db"))
	_ = viper.BindPFlag("session.permission", rootCmd.PersistentFlags().Lookup("permission"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.output", rootCmd.PersistentFlags().Lookup("log-output"))
	_ = viper.BindPFlag("logging.no_color", rootCmd.PersistentFlags().Lookup("log-no-color"))
	_ = viper.BindPFlag("logging.caller", rootCmd.PersistentFlags().Lookup("log-caller"))
}

// initConfig loads the configuration and sets up the logger
func initConfig() {
	loader := config.NewLoaderWithViper(viper.GetViper(), cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	appConfig = cfg

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("Loaded configuration file")
	}
}

// openStudio prepares the session and catalog for a command
func openStudio(ctx context.Context) (*studio.Studio, bool, error) {
	allowed := make(chan bool, 1)
	st, err := studio.New(ctx, appConfig, func(ok bool) { allowed <- ok })
	if err != nil {
		return nil, false, err
	}

	select {
	case ok := <-allowed:
		return st, ok, nil
	case <-ctx.Done():
		_ = st.Close()
		return nil, false, ctx.Err()
	}
}
