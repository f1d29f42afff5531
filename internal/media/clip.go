package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/log"
)

// ErrInvalidRange marks clip requests whose bounds cannot describe a
// segment of the source video.
var ErrInvalidRange = errors.New("invalid clip range")

// Clipper cuts segments out of videos without re-encoding.
type Clipper struct {
	tools  Resolver
	prober *Prober
	log    log.Logger
	run    runnerFunc
}

// NewClipper builds a Clipper that resolves ffmpeg through tools.
func NewClipper(tools Resolver, opts ...Option) *Clipper {
	o := applyOptions(opts)
	return &Clipper{
		tools:  tools,
		prober: NewProber(tools, opts...),
		log:    o.log,
		run:    o.run,
	}
}

// Extract stream-copies duration seconds starting at start from in to
// out. The start must fall inside the probed video; a duration running
// past the end is clamped by ffmpeg itself.
func (c *Clipper) Extract(ctx context.Context, in, out string, start, duration float64) error {
	if start < 0 {
		return fmt.Errorf("%w: start %ss is negative", ErrInvalidRange, formatSeconds(start))
	}
	if duration <= 0 {
		return fmt.Errorf("%w: duration %ss must be positive", ErrInvalidRange, formatSeconds(duration))
	}

	total, err := c.prober.Duration(ctx, in)
	if err != nil {
		return err
	}
	if total > 0 && start >= total {
		return fmt.Errorf("%w: start %ss is beyond the end of the %ss video", ErrInvalidRange, formatSeconds(start), formatSeconds(total))
	}

	bin, err := c.tools.Path(ctx, bintool.ToolFFmpeg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(out); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	args := []string{
		"-v", "error", "-hide_banner", "-y",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(duration),
		"-c", "copy",
		out,
	}
	c.log.Info("extracting clip",
		"in", in, "out", out, "start", formatSeconds(start), "duration", formatSeconds(duration))

	output, err := c.run(ctx, bin, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("ffmpeg clip: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg clip: %w", err)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
