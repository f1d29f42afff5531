package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/config"
	"github.com/smartvideo/smartvideo/internal/errmsg"
	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/progress"
)

// loadConfig resolves the directory layout and the tunables from
// config.toml and the environment.
func loadConfig() (*config.Config, *config.Settings, error) {
	cfg, err := config.DefaultConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	settings, err := config.LoadSettings(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, settings, nil
}

// newRegistry builds the tool registry the way every command uses it:
// logging through the global logger, a progress bar when stderr is a
// terminal, and signature checks when a key is configured.
func newRegistry(cfg *config.Config, settings *config.Settings) (*bintool.Registry, error) {
	opts := []bintool.Option{
		bintool.WithLogger(log.Default()),
		bintool.WithProgress(progress.ShouldShowProgress()),
	}
	if settings != nil && settings.SigningKeyFile != "" {
		opts = append(opts, bintool.WithVerifyKeyFile(settings.SigningKeyFile))
	}
	return bintool.NewRegistry(cfg, opts...)
}

// printInfo prints an informational message unless quiet mode is enabled
func printInfo(a ...any) {
	if !quietFlag {
		fmt.Println(a...)
	}
}

// printInfof prints a formatted informational message unless quiet mode is enabled
func printInfof(format string, a ...any) {
	if !quietFlag {
		fmt.Printf(format, a...)
	}
}

// printJSON marshals the given value to JSON and prints it to stdout
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		exitWithCode(ExitGeneral)
	}
}

// printError prints an error to stderr with suggestions if available.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", errmsg.Format(err, nil))
}
