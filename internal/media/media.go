// Package media runs the provisioned ffmpeg and ffprobe binaries against
// local video files: container probes and stream-copy clip extraction.
//
// Both services resolve their tool through the registry on each call, so
// the first probe or clip may trigger a download. Resolution failures
// pass through untouched; callers can unwrap bintool.UnavailableError.
package media

import (
	"context"
	"os/exec"

	"github.com/smartvideo/smartvideo/internal/log"
)

// Resolver supplies tool binary paths. *bintool.Registry satisfies it.
type Resolver interface {
	Path(ctx context.Context, tool string) (string, error)
}

// runnerFunc executes a binary and returns its combined output.
// Swappable in tests.
type runnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type options struct {
	log log.Logger
	run runnerFunc
}

// Option customizes a Prober or Clipper.
type Option func(*options)

// WithLogger routes diagnostics through l.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.log = l }
}

func withRunner(fn runnerFunc) Option {
	return func(o *options) { o.run = fn }
}

func applyOptions(opts []Option) options {
	o := options{log: log.Default(), run: runCommand}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
