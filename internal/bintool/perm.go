package bintool

import (
	"fmt"
	"os"
	"runtime"
)

// EnsureExecutable makes the file at path runnable. On Windows execability
// comes from the file extension, so nothing is done there. Calling it on
// an already executable file changes nothing.
func EnsureExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	mode := info.Mode()
	if mode&0o111 == 0o111 {
		return nil
	}
	if err := os.Chmod(path, mode.Perm()|0o111); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// IsExecutable reports whether path is a regular file this process could
// plausibly run. On Windows any regular file qualifies.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
