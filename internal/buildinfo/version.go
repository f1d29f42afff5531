// Package buildinfo derives the smartvideo version from Go build metadata,
// so release builds report their tag and dev builds report their commit.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// shortHashLen matches git's default abbreviated hash length.
const shortHashLen = 12

// Version reports the version string for the running binary.
//
// Tagged builds (go install from a tag) report the tag, e.g. "v0.2.0".
// Development builds report "dev-<hash>", with a "-dirty" suffix when the
// working tree had uncommitted changes, or plain "dev" when no VCS
// metadata was stamped into the binary. "unknown" means build info could
// not be read at all.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return devVersion(info)
}

// Runtime reports the toolchain and target the binary was built with,
// e.g. "go1.25.8 linux/amd64".
func Runtime() string {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func devVersion(info *debug.BuildInfo) string {
	revision := ""
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if len(revision) > shortHashLen {
		revision = revision[:shortHashLen]
	}
	if dirty {
		return "dev-" + revision + "-dirty"
	}
	return "dev-" + revision
}
