// Package platform identifies the host platform for binary selection.
//
// A Key combines operating system and normalized CPU architecture into
// the naming convention used by upstream ffmpeg build archives, e.g.
// "linux-x86_64", "darwin-arm64", "windows-x86_64". Keys partition the
// binary cache so that archives for one platform never collide with
// another.
package platform

import (
	"runtime"
	"strings"
)

// Key identifies an (os, arch) pair, e.g. "linux-x86_64".
type Key string

// Detect returns the Key for the running process.
//
// Detection is a pure function of runtime.GOOS and runtime.GOARCH and
// has no failure mode: values with no known mapping pass through
// verbatim, producing a best-effort generic key.
func Detect() Key {
	return NewKey(runtime.GOOS, runtime.GOARCH)
}

// NewKey builds a Key from a GOOS and GOARCH pair, normalizing the
// architecture to the upstream archive naming convention.
func NewKey(goos, goarch string) Key {
	return Key(goos + "-" + normalizeArch(goos, goarch))
}

// normalizeArch maps Go architecture names to the names upstream build
// archives use. Darwin keeps "arm64" because Apple Silicon builds are
// published under that name; Linux builds use "aarch64".
func normalizeArch(goos, goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		if goos == "darwin" {
			return "arm64"
		}
		return "aarch64"
	case "386":
		return "x86"
	default:
		return goarch
	}
}

// OS returns the operating system part of the key.
// For "linux-x86_64" it returns "linux".
func (k Key) OS() string {
	if k == "" {
		return ""
	}
	parts := strings.SplitN(string(k), "-", 2)
	return parts[0]
}

// Arch returns the architecture part of the key.
// For "linux-x86_64" it returns "x86_64".
// Returns empty string if the key is empty or malformed.
func (k Key) Arch() string {
	if k == "" {
		return ""
	}
	parts := strings.SplitN(string(k), "-", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ExeSuffix returns the executable filename suffix for the key's
// operating system: ".exe" on windows, empty elsewhere.
func (k Key) ExeSuffix() string {
	if k.OS() == "windows" {
		return ".exe"
	}
	return ""
}

func (k Key) String() string {
	return string(k)
}
