package bintool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// proberFunc runs a candidate binary with one argument and returns its
// combined output. Swappable in tests.
type proberFunc func(ctx context.Context, path, arg string) ([]byte, error)

func runProbeCommand(ctx context.Context, path, arg string) ([]byte, error) {
	return exec.CommandContext(ctx, path, arg).CombinedOutput()
}

// probe checks that the binary at path actually runs: it must exit zero
// within the probe timeout when invoked with the requirement's probe
// argument. Returns the version string reported on the first output line.
func (r *Registry) probe(ctx context.Context, req Requirement, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	out, err := r.runProbe(ctx, path, req.ProbeArg)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("probe timed out after %s: %w", r.probeTimeout, ctx.Err())
		}
		if detail := firstLine(string(out)); detail != "" {
			return "", fmt.Errorf("probe failed: %w: %s", err, detail)
		}
		return "", fmt.Errorf("probe failed: %w", err)
	}

	version := parseProbeVersion(string(out))
	if err := checkMinVersion(version, req.MinVersion); err != nil {
		return "", err
	}
	return version, nil
}

// parseProbeVersion pulls the version token out of probe output shaped
// like "ffmpeg version 6.1.1-static Copyright ...". Returns "" when the
// first line has no version token.
func parseProbeVersion(output string) string {
	fields := strings.Fields(firstLine(output))
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return strings.TrimPrefix(fields[i+1], "n")
		}
	}
	return ""
}

// checkMinVersion enforces a version floor. Versions that do not parse as
// semver pass; master builds report N-prefixed strings that carry no
// ordering.
func checkMinVersion(version, min string) error {
	if min == "" || version == "" {
		return nil
	}
	floor, err := semver.NewVersion(min)
	if err != nil {
		return nil
	}
	// Build suffixes like "-static" or "-essentials_build" would parse
	// as prereleases and sort below the bare release, so cut them off.
	core, _, _ := strings.Cut(version, "-")
	v, err := semver.NewVersion(core)
	if err != nil {
		return nil
	}
	if v.LessThan(floor) {
		return fmt.Errorf("version %s is below minimum %s", version, min)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
