package errmsg

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/smartvideo/smartvideo/internal/bintool"
)

func TestFormat_NilError(t *testing.T) {
	if got := Format(nil, nil); got != "" {
		t.Errorf("expected empty string for nil error, got %q", got)
	}
}

func TestFormat_GenericError(t *testing.T) {
	err := errors.New("something went wrong")
	if got := Format(err, nil); got != "something went wrong" {
		t.Errorf("expected original error message, got %q", got)
	}
}

func TestFormat_Unavailable(t *testing.T) {
	err := &bintool.UnavailableError{
		Tool: "ffmpeg",
		Key:  "linux-x86_64",
		Causes: []bintool.TierCause{
			{Tier: bintool.TierPath, Err: errors.New("not found on PATH")},
			{Tier: bintool.TierDownload, Err: errors.New("all mirrors failed")},
		},
	}

	got := Format(err, &ErrorContext{Tool: "ffmpeg"})

	checks := []string{
		"ffmpeg is unavailable on linux-x86_64",
		"path: not found on PATH",
		"download: all mirrors failed",
		"Possible causes:",
		"Suggestions:",
		"SMARTVIDEO_FFMPEG",
		"smartvideo tools ensure",
	}
	for _, check := range checks {
		if !strings.Contains(got, check) {
			t.Errorf("expected output to contain %q, got:\n%s", check, got)
		}
	}
}

func TestFormat_DownloadExhausted(t *testing.T) {
	err := &bintool.DownloadExhaustedError{
		Tool: "ffprobe",
		Failures: []bintool.MirrorFailure{
			{URL: "https://mirror-a.example.com/a.tar.xz", Attempts: 3, Err: errors.New("i/o timeout")},
			{URL: "https://mirror-b.example.com/b.tar.xz", Attempts: 1, Err: errors.New("mirror returned HTTP 404")},
		},
	}

	got := Format(err, nil)

	checks := []string{
		"all 2 download mirrors failed",
		"mirror-a.example.com",
		"mirror-b.example.com",
		"Check your internet connection",
		"SMARTVIDEO_FFPROBE",
	}
	for _, check := range checks {
		if !strings.Contains(got, check) {
			t.Errorf("expected output to contain %q, got:\n%s", check, got)
		}
	}
}

func TestFormat_ConfigError(t *testing.T) {
	err := &bintool.Error{
		Kind: bintool.KindConfig,
		Tool: "ffmpeg",
		Op:   "override",
		Err:  errors.New("SMARTVIDEO_FFMPEG: no such file or directory"),
	}

	got := Format(err, nil)

	checks := []string{
		"Check the value of SMARTVIDEO_FFMPEG",
		"Unset it to fall back",
	}
	for _, check := range checks {
		if !strings.Contains(got, check) {
			t.Errorf("expected output to contain %q, got:\n%s", check, got)
		}
	}
}

func TestFormat_CacheCorrupt(t *testing.T) {
	err := &bintool.Error{
		Kind: bintool.KindCacheCorrupt,
		Tool: "ffmpeg",
		Op:   "cache",
		Err:  errors.New("probe failed: exit status 1"),
	}

	got := Format(err, nil)

	if !strings.Contains(got, "smartvideo tools invalidate ffmpeg") {
		t.Errorf("expected invalidate suggestion, got:\n%s", got)
	}
}

func TestFormat_WrappedToolError(t *testing.T) {
	inner := &bintool.Error{Kind: bintool.KindCacheCorrupt, Tool: "ffprobe", Op: "cache", Err: errors.New("bad")}
	err := fmt.Errorf("resolving: %w", inner)

	got := Format(err, nil)

	if !strings.Contains(got, "smartvideo tools invalidate ffprobe") {
		t.Errorf("expected wrapped error to be recognized, got:\n%s", got)
	}
}

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "dial tcp 203.0.113.7:443: i/o timeout" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestFormat_NetworkTimeout(t *testing.T) {
	var err net.Error = &fakeNetError{timeout: true}

	got := Format(err, nil)

	checks := []string{
		"Request timed out",
		"SMARTVIDEO_DOWNLOAD_TIMEOUT",
	}
	for _, check := range checks {
		if !strings.Contains(got, check) {
			t.Errorf("expected output to contain %q, got:\n%s", check, got)
		}
	}
}

func TestFormat_NetworkMessage(t *testing.T) {
	err := errors.New("Get \"https://example.com\": connection refused")

	got := Format(err, nil)

	if !strings.Contains(got, "Network connectivity issue") {
		t.Errorf("expected network causes, got:\n%s", got)
	}
}

func TestFormat_PermissionMessage(t *testing.T) {
	err := errors.New("open /home/user/.smartvideo/bin-cache: permission denied")

	got := Format(err, nil)

	checks := []string{
		"Insufficient permissions",
		"SMARTVIDEO_DATA_DIR",
	}
	for _, check := range checks {
		if !strings.Contains(got, check) {
			t.Errorf("expected output to contain %q, got:\n%s", check, got)
		}
	}
}

func TestIsNetworkMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"connection refused", true},
		{"connection reset by peer", true},
		{"no such host", true},
		{"network is unreachable", true},
		{"dial tcp 1.2.3.4:443", true},
		{"read tcp: i/o timeout", true},
		{"file not found", false},
		{"permission denied", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := isNetworkMessage(tt.msg); got != tt.want {
				t.Errorf("isNetworkMessage(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestIsPermissionMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"permission denied", true},
		{"access denied", true},
		{"operation not permitted", true},
		{"file not found", false},
		{"connection refused", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := isPermissionMessage(tt.msg); got != tt.want {
				t.Errorf("isPermissionMessage(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}
