package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smartvideo/smartvideo/internal/buildinfo"
	"github.com/smartvideo/smartvideo/internal/platform"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and platform information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if jsonFlag {
			printJSON(map[string]string{
				"version":  buildinfo.Version(),
				"runtime":  buildinfo.Runtime(),
				"platform": platform.Detect().String(),
			})
			return
		}
		fmt.Printf("smartvideo %s\n", buildinfo.Version())
		fmt.Printf("  %s\n", buildinfo.Runtime())
		fmt.Printf("  platform %s\n", platform.Detect())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
