package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/media"
	"github.com/smartvideo/smartvideo/internal/progress"
)

var (
	clipStart    float64
	clipDuration float64
	clipOutput   string
)

var clipCmd = &cobra.Command{
	Use:   "clip <file>",
	Short: "Cut a segment out of a video without re-encoding",
	Long: `Cut a segment out of a video without re-encoding.

The segment is stream-copied, so cutting is fast and lossless but lands
on the nearest keyframe before the start time.

Examples:
  smartvideo clip talk.mp4 --start 60 --duration 30
  smartvideo clip talk.mp4 -s 90 -d 15 -o highlight.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, settings, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		reg, err := newRegistry(cfg, settings)
		if err != nil {
			return err
		}

		in := args[0]
		out := clipOutput
		if out == "" {
			out = defaultClipName(in, clipStart, clipDuration)
		}

		// Resolve the tools up front so any first-run download finishes
		// before the extraction spinner takes over the line.
		for _, tool := range []string{bintool.ToolFFmpeg, bintool.ToolFFprobe} {
			if _, err := reg.Resolve(cmd.Context(), tool); err != nil {
				return err
			}
		}

		clipper := media.NewClipper(reg, media.WithLogger(log.Default()))

		var spin *progress.Spinner
		if !quietFlag {
			spin = progress.NewSpinner(os.Stderr)
			spin.Start("Extracting " + filepath.Base(out))
		}
		err = clipper.Extract(cmd.Context(), in, out, clipStart, clipDuration)
		if spin != nil {
			spin.Stop()
		}
		if err != nil {
			return err
		}
		printInfof("Wrote %s\n", out)
		return nil
	},
}

// defaultClipName derives an output name beside the input, e.g.
// talk.mp4 clipped at 60 for 30 becomes talk.clip-60-30.mp4.
func defaultClipName(in string, start, duration float64) string {
	ext := filepath.Ext(in)
	base := strings.TrimSuffix(in, ext)
	return fmt.Sprintf("%s.clip-%s-%s%s", base, formatSecondsArg(start), formatSecondsArg(duration), ext)
}

func formatSecondsArg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func init() {
	clipCmd.Flags().Float64VarP(&clipStart, "start", "s", 0, "Start position in seconds")
	clipCmd.Flags().Float64VarP(&clipDuration, "duration", "d", 0, "Clip length in seconds")
	clipCmd.Flags().StringVarP(&clipOutput, "output", "o", "", "Output file (default: derived from the input name)")
	_ = clipCmd.MarkFlagRequired("duration")
	rootCmd.AddCommand(clipCmd)
}
