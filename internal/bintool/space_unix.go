//go:build unix

package bintool

import "golang.org/x/sys/unix"

// statfsFree reports the bytes available to unprivileged writes on the
// volume holding dir.
func statfsFree(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
