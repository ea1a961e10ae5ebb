package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/melophonic/audiotest/pkg/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Activate the audio session and show permission and route",
	Long: `Configure the audio session the way recording does (category, options,
activation, record permission) and print the result with the current
audio route.`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

var sessionMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print audio route changes until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runSessionMonitor,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionMonitorCmd)

	sessionMonitorCmd.Flags().Duration("interval", 2*time.Second, "route polling interval (0 relies on udev only)")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	st, allowed, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	s := st.Session()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Category:   %s\n", s.Category())
	fmt.Fprintf(out, "Options:    %s\n", strings.Join(s.Options().Strings(), ", "))
	fmt.Fprintf(out, "Active:     %t\n", s.IsActive())
	fmt.Fprintf(out, "Permission: %t\n", allowed)
	fmt.Fprintf(out, "Headset:    %t\n", st.IsHeadsetConnected(ctx))
	fmt.Fprintf(out, "Documents:  %s\n", st.Library().Dir())

	route, err := s.CurrentRoute(ctx)
	if err != nil {
		fmt.Fprintf(out, "Route:      unavailable (%v)\n", err)
		return nil
	}
	fmt.Fprintln(out, renderRoute(route))
	return nil
}

func renderRoute(route session.Route) string {
	var rows [][]string
	for _, p := range route.Outputs {
		rows = append(rows, []string{"output", string(p.PortType), p.PortName, p.UID})
	}
	for _, p := range route.Inputs {
		rows = append(rows, []string{"input", string(p.PortType), p.PortName, p.UID})
	}
	return renderTable([]string{"Direction", "Type", "Name", "UID"}, rows, nil)
}

func runSessionMonitor(cmd *cobra.Command, args []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, _, err := openStudio(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	monitor := session.NewRouteMonitor(st.Session(), interval, func(change session.RouteChange) {
		fmt.Fprintf(out, "%s route changed (%s), headphones: %t\n",
			time.Now().Format(time.TimeOnly), change.Reason, change.Current.HasOutput(session.PortHeadphones))
		fmt.Fprintln(out, renderRoute(change.Current))
	})
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	if !monitor.Running() {
		return fmt.Errorf("route monitoring unavailable: no udev socket and polling disabled")
	}
	defer monitor.Stop()

	fmt.Fprintln(out, "Watching audio route, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}
