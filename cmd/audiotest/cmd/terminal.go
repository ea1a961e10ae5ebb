package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// formatClock renders d as mm:ss.t
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := (d % time.Minute).Seconds()
	return fmt.Sprintf("%02d:%04.1f", minutes, seconds)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// statusLine rewrites one terminal line at most every interval. Update
// is called from display link callbacks, so it is safe for concurrent
// use; updates after Done are dropped.
type statusLine struct {
	out      io.Writer
	enabled  bool
	interval time.Duration

	mu    sync.Mutex
	last  time.Time
	width int
	done  bool
}

func newStatusLine(out io.Writer) *statusLine {
	return &statusLine{out: out, enabled: isTerminal(out), interval: 100 * time.Millisecond}
}

func (s *statusLine) Update(format string, args ...interface{}) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || time.Since(s.last) < s.interval {
		return
	}
	s.last = time.Now()
	line := fmt.Sprintf(format, args...)
	pad := ""
	if n := s.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	s.width = len(line)
	fmt.Fprintf(s.out, "\r%s%s", line, pad)
}

func (s *statusLine) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if s.enabled && s.width > 0 {
		fmt.Fprintln(s.out)
		s.width = 0
	}
}
