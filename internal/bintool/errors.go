package bintool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smartvideo/smartvideo/internal/platform"
)

// Kind classifies a resolution failure so callers can react without
// matching on message text.
type Kind int

const (
	KindUnknown Kind = iota

	// KindConfig marks a bad explicit setting, such as an override
	// variable pointing at a file that does not exist.
	KindConfig

	// KindNotFound means the tool is not on PATH.
	KindNotFound

	// KindPackagedMissing means no packaged copy was shipped next to
	// the application for this platform.
	KindPackagedMissing

	// KindPackagedIncompatible means a packaged copy exists but cannot
	// run here, typically a wrong-architecture binary.
	KindPackagedIncompatible

	// KindCacheCorrupt means a cached binary failed validation and was
	// discarded.
	KindCacheCorrupt

	// KindDownloadExhausted means every configured mirror failed.
	KindDownloadExhausted

	// KindExtraction means a downloaded archive could not be unpacked
	// or did not contain the tool.
	KindExtraction

	// KindPermission means execute permission could not be applied.
	KindPermission

	// KindProbeFailed means a candidate binary did not pass the version
	// probe.
	KindProbeFailed
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "invalid configuration"
	case KindNotFound:
		return "not found on PATH"
	case KindPackagedMissing:
		return "no packaged binary"
	case KindPackagedIncompatible:
		return "packaged binary incompatible"
	case KindCacheCorrupt:
		return "cached binary corrupt"
	case KindDownloadExhausted:
		return "all download mirrors failed"
	case KindExtraction:
		return "archive extraction failed"
	case KindPermission:
		return "could not set permissions"
	case KindProbeFailed:
		return "version probe failed"
	}
	return "unknown error"
}

// Error is a classified failure from one step of resolving a tool.
type Error struct {
	Kind Kind
	Tool string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Tool != "" {
		b.WriteString(e.Tool)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, tool, op string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, Op: op, Err: err}
}

// IsKind reports whether err or anything it wraps carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) && e.Kind == kind {
		return true
	}
	var d *DownloadExhaustedError
	if kind == KindDownloadExhausted && errors.As(err, &d) {
		return true
	}
	return false
}

// Tier identifies one source in the fixed resolution order.
type Tier int

const (
	TierOverride Tier = iota
	TierPath
	TierPackaged
	TierCache
	TierDownload
)

func (t Tier) String() string {
	switch t {
	case TierOverride:
		return "override"
	case TierPath:
		return "path"
	case TierPackaged:
		return "packaged"
	case TierCache:
		return "cache"
	case TierDownload:
		return "download"
	}
	return "unknown"
}

// TierCause records why a single tier declined to produce the tool.
type TierCause struct {
	Tier Tier
	Err  error
}

// UnavailableError is the terminal failure for a tool: every tier ran and
// none produced a working binary. Causes keeps the per-tier failures in
// the order the tiers were tried.
type UnavailableError struct {
	Tool   string
	Key    platform.Key
	Causes []TierCause
}

func (e *UnavailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is unavailable on %s", e.Tool, e.Key)
	for _, c := range e.Causes {
		fmt.Fprintf(&b, "\n  %s: %v", c.Tier, c.Err)
	}
	return b.String()
}

func (e *UnavailableError) Unwrap() []error {
	errs := make([]error, 0, len(e.Causes))
	for _, c := range e.Causes {
		errs = append(errs, c.Err)
	}
	return errs
}

// MirrorFailure records the final error from one mirror after its retry
// budget was spent.
type MirrorFailure struct {
	URL      string
	Attempts int
	Err      error
}

// DownloadExhaustedError reports that every mirror for a tool failed, with
// one entry per mirror in the order they were tried.
type DownloadExhaustedError struct {
	Tool     string
	Failures []MirrorFailure
}

func (e *DownloadExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: all %d download mirrors failed", e.Tool, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %s (%d attempts): %v", f.URL, f.Attempts, f.Err)
	}
	return b.String()
}

func (e *DownloadExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
