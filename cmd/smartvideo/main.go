package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartvideo/smartvideo/internal/buildinfo"
	"github.com/smartvideo/smartvideo/internal/config"
	"github.com/smartvideo/smartvideo/internal/log"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
	jsonFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "smartvideo",
	Short: "A video clip server with self-provisioning ffmpeg",
	Long: `smartvideo stores uploaded videos and cuts clips out of them using
ffmpeg and ffprobe.

The binaries are found automatically: an explicit override, the system
PATH, a packaged copy, the local cache, and finally a download from the
release mirrors, in that order. Nothing needs to be installed up front.`,
	Version:       buildinfo.Version(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := determineLogLevel(quietFlag, verboseFlag, debugFlag, "")
		format := os.Getenv(config.EnvLogFormat)
		log.SetDefault(log.New(log.NewHandler(os.Stderr, level, format)))
	},
}

// isTruthy reports whether an environment value means "enabled".
func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// determineLogLevel picks the diagnostic verbosity. Flags win over the
// environment, and more verbose beats less verbose when several are set.
// fileLevel is the config file's log_level, consulted last before the
// default.
func determineLogLevel(quiet, verbose, debug bool, fileLevel string) slog.Level {
	switch {
	case debug:
		return slog.LevelDebug
	case verbose:
		return slog.LevelInfo
	case quiet:
		return slog.LevelError
	}
	if isTruthy(os.Getenv(config.EnvDebug)) {
		return slog.LevelDebug
	}
	if v := os.Getenv(config.EnvLogLevel); v != "" {
		return log.ParseLevel(v)
	}
	if fileLevel != "" {
		return log.ParseLevel(fileLevel)
	}
	return slog.LevelWarn
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log operational detail")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Log internal state for troubleshooting")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print command output as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		exitWithCode(exitCodeFor(err))
	}
}
