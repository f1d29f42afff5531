package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// EnvDataDir is the environment variable to override the default data directory
	EnvDataDir = "SMARTVIDEO_DATA_DIR"

	// EnvFFmpeg is the environment variable holding an explicit ffmpeg path
	EnvFFmpeg = "SMARTVIDEO_FFMPEG"

	// EnvFFprobe is the environment variable holding an explicit ffprobe path
	EnvFFprobe = "SMARTVIDEO_FFPROBE"

	// EnvListen is the environment variable to configure the API listen address
	EnvListen = "SMARTVIDEO_LISTEN"

	// EnvLogLevel is the environment variable to configure log verbosity
	EnvLogLevel = "SMARTVIDEO_LOG_LEVEL"

	// EnvLogFormat is the environment variable to select text or json logs
	EnvLogFormat = "SMARTVIDEO_LOG_FORMAT"

	// EnvDebug is the environment variable to force debug logging
	EnvDebug = "SMARTVIDEO_DEBUG"

	// EnvHTTPTimeout is the environment variable to configure HTTP request timeout
	EnvHTTPTimeout = "SMARTVIDEO_HTTP_TIMEOUT"

	// EnvDownloadTimeout is the environment variable to configure per-attempt archive download timeout
	EnvDownloadTimeout = "SMARTVIDEO_DOWNLOAD_TIMEOUT"

	// EnvProbeTimeout is the environment variable to configure the binary version probe timeout
	EnvProbeTimeout = "SMARTVIDEO_PROBE_TIMEOUT"

	// EnvMaxUpload is the environment variable to configure the maximum upload size
	EnvMaxUpload = "SMARTVIDEO_MAX_UPLOAD"

	// DefaultListen is the default API listen address
	DefaultListen = "127.0.0.1:8765"

	// DefaultHTTPTimeout is the default timeout for small HTTP requests (30 seconds)
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultDownloadTimeout is the default per-attempt timeout for archive downloads (10 minutes)
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultProbeTimeout is the default timeout for running a candidate binary's version probe (5 seconds)
	DefaultProbeTimeout = 5 * time.Second

	// DefaultMaxUpload is the default size limit for uploaded videos (2GB)
	DefaultMaxUpload = 2 * 1024 * 1024 * 1024
)

// GetHTTPTimeout returns the configured HTTP timeout from SMARTVIDEO_HTTP_TIMEOUT.
// If not set or invalid, returns DefaultHTTPTimeout (30 seconds).
// Accepts duration strings like "30s", "1m", "2m30s".
func GetHTTPTimeout() time.Duration {
	envValue := os.Getenv(EnvHTTPTimeout)
	if envValue == "" {
		return DefaultHTTPTimeout
	}

	duration, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvHTTPTimeout, envValue, DefaultHTTPTimeout)
		return DefaultHTTPTimeout
	}

	// Validate reasonable range (1 second to 10 minutes)
	if duration < 1*time.Second {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum 1s\n",
			EnvHTTPTimeout, duration)
		return 1 * time.Second
	}
	if duration > 10*time.Minute {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum 10m\n",
			EnvHTTPTimeout, duration)
		return 10 * time.Minute
	}

	return duration
}

// GetDownloadTimeout returns the configured per-attempt archive download
// timeout from SMARTVIDEO_DOWNLOAD_TIMEOUT.
// If not set or invalid, returns DefaultDownloadTimeout (10 minutes).
// Accepts duration strings like "2m", "10m", "30m".
func GetDownloadTimeout() time.Duration {
	envValue := os.Getenv(EnvDownloadTimeout)
	if envValue == "" {
		return DefaultDownloadTimeout
	}

	duration, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvDownloadTimeout, envValue, DefaultDownloadTimeout)
		return DefaultDownloadTimeout
	}

	// Validate reasonable range (30 seconds to 1 hour)
	if duration < 30*time.Second {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum 30s\n",
			EnvDownloadTimeout, duration)
		return 30 * time.Second
	}
	if duration > 1*time.Hour {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum 1h\n",
			EnvDownloadTimeout, duration)
		return 1 * time.Hour
	}

	return duration
}

// GetProbeTimeout returns the configured version probe timeout from
// SMARTVIDEO_PROBE_TIMEOUT.
// If not set or invalid, returns DefaultProbeTimeout (5 seconds).
// Accepts duration strings like "3s", "10s", "1m".
func GetProbeTimeout() time.Duration {
	envValue := os.Getenv(EnvProbeTimeout)
	if envValue == "" {
		return DefaultProbeTimeout
	}

	duration, err := time.ParseDuration(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvProbeTimeout, envValue, DefaultProbeTimeout)
		return DefaultProbeTimeout
	}

	// Validate reasonable range (1 second to 1 minute)
	if duration < 1*time.Second {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%v), using minimum 1s\n",
			EnvProbeTimeout, duration)
		return 1 * time.Second
	}
	if duration > 1*time.Minute {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%v), using maximum 1m\n",
			EnvProbeTimeout, duration)
		return 1 * time.Minute
	}

	return duration
}

// ParseByteSize parses a human-readable byte size string into bytes.
// Accepts formats: plain numbers (52428800), KB/K (50K, 50KB), MB/M (50M, 50MB), GB/G (1G, 1GB).
// Case-insensitive. Returns an error for invalid formats.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	s = strings.ToUpper(s)

	// Try to parse as plain number first
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	// Try to extract numeric prefix and suffix
	var numStr string
	var suffix string
	for i, c := range s {
		if c >= '0' && c <= '9' || c == '.' {
			numStr += string(c)
		} else {
			suffix = s[i:]
			break
		}
	}

	if numStr == "" {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}

	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number: %q", numStr)
	}

	var multiplier float64
	switch suffix {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	case "G", "GB":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("invalid size suffix: %q", suffix)
	}

	return int64(num * multiplier), nil
}

// GetMaxUpload returns the configured upload size limit from SMARTVIDEO_MAX_UPLOAD.
// If not set or invalid, returns DefaultMaxUpload (2GB).
// Accepts human-readable sizes like "500MB", "2G", "2147483648".
func GetMaxUpload() int64 {
	envValue := os.Getenv(EnvMaxUpload)
	if envValue == "" {
		return DefaultMaxUpload
	}

	size, err := ParseByteSize(envValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %dMB\n",
			EnvMaxUpload, envValue, int64(DefaultMaxUpload)/(1024*1024))
		return DefaultMaxUpload
	}

	// Validate reasonable range (1MB to 16GB)
	minSize := int64(1 * 1024 * 1024)
	maxSize := int64(16 * 1024 * 1024 * 1024)

	if size < minSize {
		fmt.Fprintf(os.Stderr, "Warning: %s too low (%d bytes), using minimum 1MB\n",
			EnvMaxUpload, size)
		return minSize
	}
	if size > maxSize {
		fmt.Fprintf(os.Stderr, "Warning: %s too high (%d bytes), using maximum 16GB\n",
			EnvMaxUpload, size)
		return maxSize
	}

	return size
}

// OverrideEnv returns the environment variable name carrying an explicit
// binary path for the named tool, e.g. SMARTVIDEO_FFMPEG for "ffmpeg".
func OverrideEnv(tool string) string {
	return "SMARTVIDEO_" + strings.ToUpper(tool)
}

// Override returns the explicit binary path configured for the named
// tool, or empty when no override is set.
func Override(tool string) string {
	return strings.TrimSpace(os.Getenv(OverrideEnv(tool)))
}

// DefaultDataDirOverride can be set by the binary's main package to change
// the default data directory. Used by dev builds (via ldflags) to default to
// .smartvideo-dev instead of ~/.smartvideo. SMARTVIDEO_DATA_DIR still takes
// precedence.
var DefaultDataDirOverride string

// Config holds smartvideo's directory layout
type Config struct {
	DataDir     string // $SMARTVIDEO_DATA_DIR
	BinCacheDir string // $SMARTVIDEO_DATA_DIR/bin-cache (downloaded tool binaries, one subdir per platform key)
	UploadsDir  string // $SMARTVIDEO_DATA_DIR/uploads
	OutputsDir  string // $SMARTVIDEO_DATA_DIR/outputs
	TmpDir      string // $SMARTVIDEO_DATA_DIR/tmp (download and extraction staging)
	ConfigFile  string // $SMARTVIDEO_DATA_DIR/config.toml
}

// DefaultConfig returns the default configuration
func DefaultConfig() (*Config, error) {
	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		if DefaultDataDirOverride != "" {
			dataDir = DefaultDataDirOverride
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			dataDir = filepath.Join(home, ".smartvideo")
		}
	}

	return &Config{
		DataDir:     dataDir,
		BinCacheDir: filepath.Join(dataDir, "bin-cache"),
		UploadsDir:  filepath.Join(dataDir, "uploads"),
		OutputsDir:  filepath.Join(dataDir, "outputs"),
		TmpDir:      filepath.Join(dataDir, "tmp"),
		ConfigFile:  filepath.Join(dataDir, "config.toml"),
	}, nil
}

// EnsureDirectories creates all necessary directories
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.BinCacheDir,
		c.UploadsDir,
		c.OutputsDir,
		c.TmpDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Settings holds tunable options read from config.toml with environment
// variables taking precedence over file values.
type Settings struct {
	// Listen is the API bind address, e.g. "127.0.0.1:8765".
	Listen string `toml:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format"`

	// MaxUploadSize is a human-readable upload limit like "2GB".
	MaxUploadSize string `toml:"max_upload"`

	// SigningKeyFile points at an armored PGP public key used to verify
	// detached signatures of downloaded archives, when mirrors provide them.
	SigningKeyFile string `toml:"signing_key_file"`

	// MaxUpload is the parsed upload limit in bytes.
	MaxUpload int64 `toml:"-"`
}

// LoadSettings reads config.toml (when present) and applies environment
// overrides. A missing config file is not an error.
func LoadSettings(c *Config) (*Settings, error) {
	s := &Settings{
		Listen:    DefaultListen,
		LogLevel:  "warn",
		LogFormat: "text",
	}

	if _, err := os.Stat(c.ConfigFile); err == nil {
		if _, err := toml.DecodeFile(c.ConfigFile, s); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", c.ConfigFile, err)
		}
	}

	if v := os.Getenv(EnvListen); v != "" {
		s.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		s.LogFormat = v
	}

	s.MaxUpload = DefaultMaxUpload
	if s.MaxUploadSize != "" {
		size, err := ParseByteSize(s.MaxUploadSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid max_upload %q in %s, using default\n",
				s.MaxUploadSize, c.ConfigFile)
		} else {
			s.MaxUpload = size
		}
	}
	if os.Getenv(EnvMaxUpload) != "" {
		s.MaxUpload = GetMaxUpload()
	}

	return s, nil
}
