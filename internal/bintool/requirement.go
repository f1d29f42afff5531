package bintool

import (
	"github.com/smartvideo/smartvideo/internal/platform"
)

// Tool names understood by DefaultRequirements.
const (
	ToolFFmpeg  = "ffmpeg"
	ToolFFprobe = "ffprobe"
)

// Mirror is one download source for a tool archive and where the binary
// sits inside it.
type Mirror struct {
	// URL of the archive.
	URL string

	// SHA256 is the expected hex digest of the archive. Empty skips the
	// check, which is the norm for mirrors that repoint a "latest" URL
	// at every release.
	SHA256 string

	// SigURL points at a detached PGP signature for the archive. Only
	// checked when a verification key is configured.
	SigURL string

	// BinPath is the forward-slash path of the binary inside the
	// archive. Empty means the path is not fixed and ScanBasename must
	// be set.
	BinPath string

	// ScanBasename permits falling back to the first regular file whose
	// basename matches the tool, for archives whose top directory embeds
	// a version string.
	ScanBasename bool
}

// Requirement declares one external tool: how to probe it and where to
// download it for each supported platform.
type Requirement struct {
	// Name is the bare tool name, no extension.
	Name string

	// ProbeArg is the single argument passed to a candidate binary to
	// check that it runs.
	ProbeArg string

	// MinVersion is the lowest acceptable probed version. Probed
	// versions that do not parse as semver pass the check, which covers
	// the N-prefixed master builds.
	MinVersion string

	// MinArchiveBytes rejects implausibly small downloads before
	// extraction, catching mirrors that serve an error page with 200.
	MinArchiveBytes int64

	// Mirrors lists download sources per platform, tried in order.
	Mirrors map[platform.Key][]Mirror
}

// MirrorsFor returns the download sources for key, nil when the platform
// has none.
func (r Requirement) MirrorsFor(key platform.Key) []Mirror {
	return r.Mirrors[key]
}

// FFmpeg returns the built-in requirement for the ffmpeg binary.
func FFmpeg() Requirement {
	return Requirement{
		Name:            ToolFFmpeg,
		ProbeArg:        "-version",
		MinVersion:      "4.0",
		MinArchiveBytes: 1 << 20,
		Mirrors: map[platform.Key][]Mirror{
			"linux-x86_64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-linux64-gpl.tar.xz",
					BinPath: "ffmpeg-master-latest-linux64-gpl/bin/ffmpeg",
				},
				{
					URL:          "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-amd64-static.tar.xz",
					ScanBasename: true,
				},
			},
			"linux-aarch64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-linuxarm64-gpl.tar.xz",
					BinPath: "ffmpeg-master-latest-linuxarm64-gpl/bin/ffmpeg",
				},
				{
					URL:          "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-arm64-static.tar.xz",
					ScanBasename: true,
				},
			},
			"darwin-arm64": {
				{
					URL:     "https://ffmpeg.martin-riedl.de/redirect/latest/macos/arm64/release/ffmpeg.zip",
					BinPath: "ffmpeg",
				},
				// Intel build, runs under Rosetta.
				{
					URL:     "https://evermeet.cx/ffmpeg/getrelease/ffmpeg/zip",
					BinPath: "ffmpeg",
				},
			},
			"darwin-x86_64": {
				{
					URL:     "https://evermeet.cx/ffmpeg/getrelease/ffmpeg/zip",
					BinPath: "ffmpeg",
				},
				{
					URL:     "https://ffmpeg.martin-riedl.de/redirect/latest/macos/amd64/release/ffmpeg.zip",
					BinPath: "ffmpeg",
				},
			},
			"windows-x86_64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-win64-gpl.zip",
					BinPath: "ffmpeg-master-latest-win64-gpl/bin/ffmpeg.exe",
				},
				{
					URL:          "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.zip",
					ScanBasename: true,
				},
			},
			"windows-aarch64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-winarm64-gpl.zip",
					BinPath: "ffmpeg-master-latest-winarm64-gpl/bin/ffmpeg.exe",
				},
			},
		},
	}
}

// FFprobe returns the built-in requirement for the ffprobe binary. The
// static builds ship ffmpeg and ffprobe in the same archive, so most
// mirror URLs repeat the ffmpeg ones with a different binary path.
func FFprobe() Requirement {
	return Requirement{
		Name:            ToolFFprobe,
		ProbeArg:        "-version",
		MinVersion:      "4.0",
		MinArchiveBytes: 1 << 20,
		Mirrors: map[platform.Key][]Mirror{
			"linux-x86_64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-linux64-gpl.tar.xz",
					BinPath: "ffmpeg-master-latest-linux64-gpl/bin/ffprobe",
				},
				{
					URL:          "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-amd64-static.tar.xz",
					ScanBasename: true,
				},
			},
			"linux-aarch64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-linuxarm64-gpl.tar.xz",
					BinPath: "ffmpeg-master-latest-linuxarm64-gpl/bin/ffprobe",
				},
				{
					URL:          "https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-arm64-static.tar.xz",
					ScanBasename: true,
				},
			},
			"darwin-arm64": {
				{
					URL:     "https://ffmpeg.martin-riedl.de/redirect/latest/macos/arm64/release/ffprobe.zip",
					BinPath: "ffprobe",
				},
				{
					URL:     "https://evermeet.cx/ffmpeg/getrelease/ffprobe/zip",
					BinPath: "ffprobe",
				},
			},
			"darwin-x86_64": {
				{
					URL:     "https://evermeet.cx/ffmpeg/getrelease/ffprobe/zip",
					BinPath: "ffprobe",
				},
				{
					URL:     "https://ffmpeg.martin-riedl.de/redirect/latest/macos/amd64/release/ffprobe.zip",
					BinPath: "ffprobe",
				},
			},
			"windows-x86_64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-win64-gpl.zip",
					BinPath: "ffmpeg-master-latest-win64-gpl/bin/ffprobe.exe",
				},
				{
					URL:          "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.zip",
					ScanBasename: true,
				},
			},
			"windows-aarch64": {
				{
					URL:     "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-winarm64-gpl.zip",
					BinPath: "ffmpeg-master-latest-winarm64-gpl/bin/ffprobe.exe",
				},
			},
		},
	}
}

// DefaultRequirements returns the tools the rest of the system expects.
func DefaultRequirements() []Requirement {
	return []Requirement{FFmpeg(), FFprobe()}
}
