package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/media"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Show container and stream details for a video file",
	Long: `Show container and stream details for a video file.

Examples:
  smartvideo probe talk.mp4
  smartvideo probe --json talk.mp4`,
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

		prober := media.NewProber(reg, media.WithLogger(log.Default()))
		info, err := prober.Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if jsonFlag {
			printJSON(info)
			return nil
		}
		printProbeSummary(args[0], info)
		return nil
	},
}

func printProbeSummary(path string, info *media.Info) {
	fmt.Printf("%s\n", path)
	fmt.Printf("  Format:   %s\n", info.Format.FormatName)
	if d := info.DurationSeconds(); d > 0 {
		fmt.Printf("  Duration: %.3fs\n", d)
	}
	if info.Format.Size != "" {
		fmt.Printf("  Size:     %s bytes\n", info.Format.Size)
	}
	fmt.Printf("  Streams:  %d video, %d audio\n", info.VideoStreamCount(), info.AudioStreamCount())
	for _, st := range info.Streams {
		switch st.CodecType {
		case "video":
			fmt.Printf("    #%d %s %s %dx%d\n", st.Index, st.CodecType, st.CodecName, st.Width, st.Height)
		case "audio":
			fmt.Printf("    #%d %s %s %sHz %dch\n", st.Index, st.CodecType, st.CodecName, st.SampleRate, st.Channels)
		default:
			fmt.Printf("    #%d %s %s\n", st.Index, st.CodecType, st.CodecName)
		}
	}
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
