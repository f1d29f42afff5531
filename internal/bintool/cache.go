package bintool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/platform"
)

// Cache stores validated binaries under {root}/{platform key}/{tool}.
// Files reach their final path only through rename, so a reader never
// observes a partially written binary. Entries have no expiry: a cached
// binary stays until it fails validation or is invalidated.
type Cache struct {
	root string
	log  log.Logger
}

// NewCache returns a cache rooted at dir. A nil logger disables logging.
func NewCache(dir string, logger log.Logger) *Cache {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Cache{root: dir, log: logger}
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Path returns where the binary for tool on key lives, whether or not it
// exists yet.
func (c *Cache) Path(key platform.Key, tool string) string {
	return filepath.Join(c.root, string(key), tool+key.ExeSuffix())
}

// Lookup reports whether a plausible cached binary exists for tool on key.
// A zero-size file is treated as a corrupt leftover: it is deleted and
// reported as a miss.
func (c *Cache) Lookup(key platform.Key, tool string) (string, bool) {
	path := c.Path(key, tool)
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if !info.Mode().IsRegular() {
		return "", false
	}
	if info.Size() == 0 {
		c.log.Warn("discarding zero-size cached binary", "tool", tool, "path", path)
		_ = os.Remove(path)
		return "", false
	}
	return path, true
}

// Store publishes the file at src as the cached binary for tool on key.
// The bytes are copied into a temporary file in the destination directory,
// made executable, then renamed into place so concurrent readers see
// either the old binary or the new one.
func (c *Cache) Store(key platform.Key, tool, src string) (string, error) {
	dst := c.Path(key, tool)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening staged binary: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(dir, "."+tool+"-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	n, err := tmp.ReadFrom(in)
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if n == 0 {
		return "", fmt.Errorf("staged binary %s is empty", src)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		return "", fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("publishing %s: %w", dst, err)
	}

	c.log.Info("cached binary", "tool", tool, "path", dst, "bytes", n)
	return dst, nil
}

// Invalidate removes the cached binary for tool on key. Removing a binary
// that is not cached is not an error.
func (c *Cache) Invalidate(key platform.Key, tool string) error {
	path := c.Path(key, tool)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	if err == nil {
		c.log.Info("invalidated cached binary", "tool", tool, "path", path)
	}
	return nil
}
