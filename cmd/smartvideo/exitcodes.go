package main

import (
	"errors"
	"os"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/media"
	"github.com/smartvideo/smartvideo/internal/store"
)

// Exit codes for different error types.
// These enable scripts to distinguish between failure modes.
const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0

	// ExitGeneral indicates a general error
	ExitGeneral = 1

	// ExitUsage indicates invalid arguments or usage error
	ExitUsage = 2

	// ExitToolUnavailable indicates no working ffmpeg or ffprobe was found
	ExitToolUnavailable = 3

	// ExitDownloadFailed indicates every download mirror failed
	ExitDownloadFailed = 4
)

// exitCodeFor maps an error onto the exit code space above.
func exitCodeFor(err error) int {
	var unavailable *bintool.UnavailableError
	var exhausted *bintool.DownloadExhaustedError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exhausted):
		return ExitDownloadFailed
	case errors.As(err, &unavailable):
		return ExitToolUnavailable
	case errors.Is(err, media.ErrInvalidRange),
		errors.Is(err, store.ErrInvalidID),
		errors.Is(err, store.ErrUnsupportedType):
		return ExitUsage
	default:
		return ExitGeneral
	}
}

// exitWithCode exits with the specified exit code
func exitWithCode(code int) {
	os.Exit(code)
}
