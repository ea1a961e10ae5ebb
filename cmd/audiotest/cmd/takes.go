package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/melophonic/audiotest/pkg/library"
)

var takesCmd = &cobra.Command{
	Use:   "takes",
	Short: "List catalogued recordings and bounces",
	Args:  cobra.NoArgs,
	RunE:  runTakes,
}

func init() {
	rootCmd.AddCommand(takesCmd)
	takesCmd.Flags().String("kind", "", "only show recording or bounce takes")
}

func runTakes(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")

	catalog, err := library.OpenCatalog(appConfig.Library.CatalogDB)
	if err != nil {
		return err
	}
	defer catalog.Close()

	takes, err := catalog.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rows := takeRows(takes, library.Kind(kind))
	if len(rows) == 0 {
		fmt.Fprintln(out, "No takes catalogued")
		return nil
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Kind", "Name", "Duration", "Size", "Created", "Source", "Published"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	))
	return nil
}

func takeRows(takes []*library.Take, kind library.Kind) [][]string {
	rows := make([][]string, 0, len(takes))
	for _, t := range takes {
		if kind != "" && t.Kind != kind {
			continue
		}
		source := ""
		if t.RecordingPath != "" {
			source = filepath.Base(t.RecordingPath)
		}
		rows = append(rows, []string{
			string(t.Kind),
			filepath.Base(t.Path),
			formatClock(t.Duration),
			formatSize(t.Size),
			t.CreatedAt.Local().Format(time.DateTime),
			source,
			t.PublishedURL,
		})
	}
	return rows
}
