package httputil

import (
	"fmt"
	"net"
)

// ValidateIP rejects addresses that must never be fetched from regardless
// of what a mirror redirect or DNS answer claims: private ranges, loopback,
// link-local (cloud metadata services live there), multicast, and the
// unspecified address. The host is echoed in the error for context.
func ValidateIP(ip net.IP, host string) error {
	switch {
	case ip.IsPrivate():
		return fmt.Errorf("blocked private IP %s (host %s)", ip, host)
	case ip.IsLoopback():
		return fmt.Errorf("blocked loopback IP %s (host %s)", ip, host)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("blocked link-local IP %s (host %s)", ip, host)
	case ip.IsLinkLocalMulticast():
		return fmt.Errorf("blocked link-local multicast IP %s (host %s)", ip, host)
	case ip.IsMulticast():
		return fmt.Errorf("blocked multicast IP %s (host %s)", ip, host)
	case ip.IsUnspecified():
		return fmt.Errorf("blocked unspecified IP %s (host %s)", ip, host)
	}
	return nil
}
