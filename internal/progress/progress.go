// Package progress renders terminal feedback for long-running work such as
// archive downloads and tool resolution.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// IsTerminalFunc reports whether a file descriptor is a terminal.
// Overridable in tests.
var IsTerminalFunc = term.IsTerminal

// drawInterval caps redraw frequency so the bar does not flicker.
const drawInterval = 100 * time.Millisecond

// lineWidth is the padded width of a rendered line.
const lineWidth = 80

// Writer counts bytes flowing through it and renders a download bar.
type Writer struct {
	mu       sync.Mutex
	dst      io.Writer
	term     io.Writer
	total    int64
	count    int64
	start    time.Time
	lastDraw time.Time
}

// NewWriter wraps dst with progress rendering on term. Pass total <= 0
// when the final size is unknown.
func NewWriter(dst io.Writer, total int64, term io.Writer) *Writer {
	return &Writer{
		dst:   dst,
		term:  term,
		total: total,
		start: time.Now(),
	}
}

// Write forwards to the wrapped writer and refreshes the bar.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.mu.Lock()
		w.count += int64(n)
		w.draw()
		w.mu.Unlock()
	}
	return n, err
}

// Finish clears the progress line.
func (w *Writer) Finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.term, "\r%s\r", strings.Repeat(" ", lineWidth))
}

func (w *Writer) draw() {
	now := time.Now()
	if now.Sub(w.lastDraw) < drawInterval {
		return
	}
	w.lastDraw = now

	elapsed := now.Sub(w.start).Seconds()
	if elapsed < 0.1 {
		return
	}
	speed := float64(w.count) / elapsed

	var line string
	if w.total > 0 {
		percent := float64(w.count) / float64(w.total) * 100
		if percent > 100 {
			percent = 100
		}

		eta := "--:--"
		if speed > 0 {
			left := float64(w.total-w.count) / speed
			if left < 0 {
				left = 0
			}
			eta = formatDuration(left)
		}

		line = fmt.Sprintf("\r   [%s] %3.0f%% (%s/%s) %s/s ETA: %s",
			renderBar(percent), percent,
			formatBytes(w.count), formatBytes(w.total),
			formatBytes(int64(speed)), eta)
	} else {
		line = fmt.Sprintf("\r   Downloaded: %s (%s/s)",
			formatBytes(w.count), formatBytes(int64(speed)))
	}

	// Pad so leftovers from a longer previous line are overwritten.
	if len(line) < lineWidth {
		line += strings.Repeat(" ", lineWidth-len(line))
	}
	_, _ = fmt.Fprint(w.term, line)
}

// renderBar draws a fixed-width bar for the given completion percentage.
func renderBar(percent float64) string {
	const width = 30
	filled := int(percent / 100 * width)
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("=", filled)
	if filled < width {
		bar += ">" + strings.Repeat(" ", width-filled-1)
	}
	return bar
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.1fGB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.1fKB", float64(n)/kb)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// formatDuration renders seconds as M:SS, or H:MM:SS past an hour.
func formatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// ShouldShowProgress reports whether stdout is a terminal.
func ShouldShowProgress() bool {
	return IsTerminalFunc(int(os.Stdout.Fd()))
}
