// Package store persists uploaded videos and extracted clips on disk.
//
// Uploads live under {dataDir}/uploads as {id}{ext}, outputs under
// {dataDir}/outputs. IDs are hex UUIDs, so every lookup can validate its
// input before touching the filesystem.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartvideo/smartvideo/internal/config"
	"github.com/smartvideo/smartvideo/internal/log"
)

// Sentinel errors callers can map to user-facing failures.
var (
	ErrNotFound        = errors.New("video not found")
	ErrInvalidID       = errors.New("invalid video id")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("upload too large")
)

// allowedExtensions is the closed set of upload container types.
var allowedExtensions = map[string]bool{
	".mp4": true,
	".mkv": true,
	".avi": true,
	".mov": true,
}

// AllowedExtensions lists the accepted upload extensions, sorted.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Video is one stored file, either an upload or an extracted clip.
type Video struct {
	ID      string
	Path    string
	Ext     string
	Size    int64
	ModTime time.Time
}

// Store reads and writes the upload and output directories.
type Store struct {
	uploads  string
	outputs  string
	log      log.Logger
	maxBytes int64
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger routes the store's diagnostics through l.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMaxUploadBytes caps a single upload. Zero means the configured
// default.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Store) { s.maxBytes = n }
}

// New builds a Store over the configured directories.
func New(cfg *config.Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store: nil config")
	}
	s := &Store{
		uploads: cfg.UploadsDir,
		outputs: cfg.OutputsDir,
		log:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBytes <= 0 {
		s.maxBytes = config.GetMaxUpload()
	}
	return s, nil
}

// MaxUploadBytes reports the per-upload size cap.
func (s *Store) MaxUploadBytes() int64 {
	return s.maxBytes
}

// NewID returns a fresh hex video id.
func NewID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}

// ValidID reports whether id is a well-formed hex video id. Anything
// else never reaches the filesystem.
func ValidID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// SaveUpload streams r into the upload directory under a fresh id,
// keeping the original file's extension. The write goes through a temp
// file and a rename, so a partial upload never looks like a video.
func (s *Store) SaveUpload(r io.Reader, filename string) (*Video, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w %q (allowed: %s)", ErrUnsupportedType, ext, strings.Join(AllowedExtensions(), ", "))
	}

	if err := os.MkdirAll(s.uploads, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.uploads, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if n > s.maxBytes {
		os.Remove(tmpName)
		return nil, fmt.Errorf("%w: exceeds the %d byte limit", ErrTooLarge, s.maxBytes)
	}
	if n == 0 {
		os.Remove(tmpName)
		return nil, fmt.Errorf("upload is empty")
	}

	id := NewID()
	dst := filepath.Join(s.uploads, id+ext)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("publishing upload: %w", err)
	}

	s.log.Info("stored upload", "id", id, "bytes", n, "ext", ext)
	return &Video{ID: id, Path: dst, Ext: ext, Size: n, ModTime: time.Now()}, nil
}

// Find locates an upload by id.
func (s *Store) Find(id string) (*Video, error) {
	return findIn(s.uploads, id)
}

// FindOutput locates an extracted clip by id.
func (s *Store) FindOutput(id string) (*Video, error) {
	return findIn(s.outputs, id)
}

func findIn(dir, id string) (*Video, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if strings.TrimSuffix(name, ext) != id {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		return &Video{
			ID:      id,
			Path:    filepath.Join(dir, name),
			Ext:     ext,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}, nil
	}
	return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// List returns every stored upload, newest first.
func (s *Store) List() ([]*Video, error) {
	entries, err := os.ReadDir(s.uploads)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.uploads, err)
	}

	var videos []*Video
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		id := strings.TrimSuffix(name, ext)
		if !ValidID(id) {
			// Temp files and strays are not videos.
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		videos = append(videos, &Video{
			ID:      id,
			Path:    filepath.Join(s.uploads, name),
			Ext:     ext,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].ModTime.After(videos[j].ModTime)
	})
	return videos, nil
}

// Remove deletes an upload.
func (s *Store) Remove(id string) error {
	video, err := s.Find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(video.Path); err != nil {
		return fmt.Errorf("removing %s: %w", video.Path, err)
	}
	s.log.Info("removed upload", "id", id)
	return nil
}

// OutputPath reserves a path for a new extracted clip and returns its id
// alongside.
func (s *Store) OutputPath(ext string) (string, string, error) {
	if err := os.MkdirAll(s.outputs, 0o755); err != nil {
		return "", "", fmt.Errorf("creating output directory: %w", err)
	}
	id := NewID()
	return id, filepath.Join(s.outputs, id+ext), nil
}
