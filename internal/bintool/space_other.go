//go:build !unix

package bintool

import "errors"

// statfsFree has no cheap portable equivalent off unix, so the free
// space preflight is skipped there.
func statfsFree(string) (uint64, error) {
	return 0, errors.ErrUnsupported
}
