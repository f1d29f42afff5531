// Package errmsg formats tool resolution failures with likely causes and
// actionable suggestions.
package errmsg

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/config"
)

// ErrorContext carries extra detail for tailoring suggestions.
type ErrorContext struct {
	Tool string // tool being resolved, when known
}

// Format renders err with possible causes and suggestions appended.
// The context parameter is optional; pass nil for generic formatting.
func Format(err error, ctx *ErrorContext) string {
	if err == nil {
		return ""
	}

	var unavailable *bintool.UnavailableError
	if errors.As(err, &unavailable) {
		return formatUnavailable(unavailable)
	}

	var exhausted *bintool.DownloadExhaustedError
	if errors.As(err, &exhausted) {
		return formatExhausted(exhausted, ctx)
	}

	var toolErr *bintool.Error
	if errors.As(err, &toolErr) {
		if s := formatToolError(toolErr); s != "" {
			return s
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return formatNetworkError(netErr)
	}

	msg := err.Error()
	if isNetworkMessage(msg) {
		return formatGenericNetwork(msg)
	}
	if isPermissionMessage(msg) {
		return formatPermission(msg)
	}
	return msg
}

func formatUnavailable(err *bintool.UnavailableError) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString(fmt.Sprintf("  - %s is not installed on this machine\n", err.Tool))
	sb.WriteString("  - Download mirrors are unreachable from this network\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString(fmt.Sprintf("  - Install %s with your system package manager\n", err.Tool))
	sb.WriteString(fmt.Sprintf("  - Point %s at an existing binary\n", config.OverrideEnv(err.Tool)))
	sb.WriteString("  - Run 'smartvideo tools ensure' once the network is back\n")

	return sb.String()
}

func formatExhausted(err *bintool.DownloadExhaustedError, ctx *ErrorContext) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - No network connectivity\n")
	sb.WriteString("  - Mirrors are down or blocked by a firewall or proxy\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	tool := err.Tool
	if tool == "" && ctx != nil {
		tool = ctx.Tool
	}
	if tool != "" {
		sb.WriteString(fmt.Sprintf("  - Point %s at an existing binary\n", config.OverrideEnv(tool)))
	}

	return sb.String()
}

func formatToolError(err *bintool.Error) string {
	switch err.Kind {
	case bintool.KindConfig:
		var sb strings.Builder
		sb.WriteString(err.Error())
		sb.WriteString("\n")

		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - An override variable points at a missing or broken binary\n")

		sb.WriteString("\nSuggestions:\n")
		if err.Tool != "" {
			sb.WriteString(fmt.Sprintf("  - Check the value of %s\n", config.OverrideEnv(err.Tool)))
			sb.WriteString("  - Unset it to fall back to automatic discovery\n")
		} else {
			sb.WriteString("  - Check the SMARTVIDEO_* override variables\n")
		}
		return sb.String()

	case bintool.KindCacheCorrupt:
		var sb strings.Builder
		sb.WriteString(err.Error())
		sb.WriteString("\n")

		sb.WriteString("\nPossible causes:\n")
		sb.WriteString("  - An earlier download was interrupted\n")
		sb.WriteString("  - The cached binary was modified on disk\n")

		sb.WriteString("\nSuggestions:\n")
		if err.Tool != "" {
			sb.WriteString(fmt.Sprintf("  - Run 'smartvideo tools invalidate %s' and resolve again\n", err.Tool))
		} else {
			sb.WriteString("  - Run 'smartvideo tools invalidate' and resolve again\n")
		}
		return sb.String()

	case bintool.KindPermission:
		return formatPermission(err.Error())
	}
	return ""
}

func formatNetworkError(err net.Error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	if err.Timeout() {
		sb.WriteString("  - Request timed out\n")
		sb.WriteString("  - Slow or unstable network connection\n")
	} else {
		sb.WriteString("  - Network connectivity issue\n")
		sb.WriteString("  - DNS resolution failure\n")
	}
	sb.WriteString("  - Firewall or proxy blocking the connection\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")
	if err.Timeout() {
		sb.WriteString("  - Raise SMARTVIDEO_DOWNLOAD_TIMEOUT if the link is just slow\n")
	}

	return sb.String()
}

func formatGenericNetwork(msg string) string {
	var sb strings.Builder
	sb.WriteString(msg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Network connectivity issue\n")
	sb.WriteString("  - DNS resolution failure\n")
	sb.WriteString("  - Service temporarily unavailable\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check your internet connection\n")
	sb.WriteString("  - Try again in a few minutes\n")

	return sb.String()
}

func formatPermission(msg string) string {
	var sb strings.Builder
	sb.WriteString(msg)
	sb.WriteString("\n")

	sb.WriteString("\nPossible causes:\n")
	sb.WriteString("  - Insufficient permissions on the data directory\n")
	sb.WriteString("  - Files owned by a different user\n")

	sb.WriteString("\nSuggestions:\n")
	sb.WriteString("  - Check permissions on ~/.smartvideo (or $SMARTVIDEO_DATA_DIR)\n")
	sb.WriteString("  - Ensure you own the data directories: ls -la ~/.smartvideo\n")

	return sb.String()
}

// isNetworkMessage matches unstructured errors that smell like network
// failures.
func isNetworkMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "dial tcp") ||
		strings.Contains(lower, "i/o timeout")
}

func isPermissionMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "operation not permitted")
}
