package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/melophonic/audiotest/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or write the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Long: `Write the default configuration as yaml. Without a path the file is
written to $HOME/.audiotest.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	rows := [][]string{
		{"session.category", cfg.Session.Category},
		{"session.options", fmt.Sprint(cfg.Session.Options)},
		{"session.permission", cfg.Session.Permission},
		{"recording", fmt.Sprintf("%s %d Hz %d ch %s", cfg.Recording.Codec, cfg.Recording.SampleRate, cfg.Recording.Channels, cfg.Recording.Quality)},
		{"devices.input", cfg.Devices.InputFormat + " " + cfg.Devices.InputDevice},
		{"devices.output", cfg.Devices.OutputFormat + " " + cfg.Devices.OutputDevice},
		{"library.documents_dir", cfg.Library.DocumentsDir},
		{"library.catalog_db", cfg.Library.CatalogDB},
		{"bounce.backing_path", cfg.Bounce.BackingPath},
		{"publish", cfg.Publish.String()},
		{"logging.level", cfg.Logging.Level},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Value"}, rows, nil))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	if force, _ := cmd.Flags().GetBool("force"); !force && path != "" {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}

	if err := config.NewLoader(path).Save(config.DefaultConfig()); err != nil {
		return err
	}
	if path == "" {
		path = "$HOME/.audiotest.yaml"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
