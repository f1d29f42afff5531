package bintool

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// maxBinaryBytes caps how much a single archive entry may decompress to.
const maxBinaryBytes = 1 << 30

type archiveFormat int

const (
	formatUnknown archiveFormat = iota
	formatZip
	formatTarGz
	formatTarXz
	formatTarBz2
	formatTarZst
	formatTarLz
	formatTar
)

var (
	magicZip  = []byte{0x50, 0x4b, 0x03, 0x04}
	magicGzip = []byte{0x1f, 0x8b}
	magicXz   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	magicBz2  = []byte("BZh")
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLzip = []byte("LZIP")
)

// extractBinary pulls the tool's binary out of the archive at archivePath
// into a fresh staging file under stageDir and returns the staged path.
// Nothing else in the archive touches the filesystem.
func extractBinary(archivePath string, m Mirror, tool, stageDir string) (string, error) {
	format, err := detectFormat(archivePath)
	if err != nil {
		return "", err
	}
	if format == formatZip {
		return extractZipBinary(archivePath, m, tool, stageDir)
	}
	return extractTarBinary(archivePath, format, m, tool, stageDir)
}

// detectFormat sniffs the archive type from its leading bytes, falling
// back to the file extension, then to the tar magic at offset 257.
func detectFormat(archivePath string) (archiveFormat, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return formatUnknown, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	head := make([]byte, 6)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return formatUnknown, fmt.Errorf("reading archive header: %w", err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicZip):
		return formatZip, nil
	case bytes.HasPrefix(head, magicGzip):
		return formatTarGz, nil
	case bytes.HasPrefix(head, magicXz):
		return formatTarXz, nil
	case bytes.HasPrefix(head, magicBz2):
		return formatTarBz2, nil
	case bytes.HasPrefix(head, magicZstd):
		return formatTarZst, nil
	case bytes.HasPrefix(head, magicLzip):
		return formatTarLz, nil
	}

	name := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return formatZip, nil
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return formatTarGz, nil
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return formatTarXz, nil
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		return formatTarBz2, nil
	case strings.HasSuffix(name, ".tar.zst"):
		return formatTarZst, nil
	case strings.HasSuffix(name, ".tar.lz"):
		return formatTarLz, nil
	case strings.HasSuffix(name, ".tar"):
		return formatTar, nil
	}

	var ustar [5]byte
	if _, err := f.ReadAt(ustar[:], 257); err == nil && string(ustar[:]) == "ustar" {
		return formatTar, nil
	}

	return formatUnknown, fmt.Errorf("unrecognized archive format: %s", filepath.Base(archivePath))
}

// entrySafe rejects entry names that could not belong to a well-formed
// release archive: absolute paths, parent traversal, backslashes.
func entrySafe(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return false
	}
	clean := path.Clean(name)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// entryMatches decides whether an archive entry holds the tool binary.
func entryMatches(name string, m Mirror, tool string) bool {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if m.BinPath != "" && clean == m.BinPath {
		return true
	}
	if m.ScanBasename {
		base := path.Base(clean)
		return base == tool || base == tool+".exe"
	}
	return false
}

func extractTarBinary(archivePath string, format archiveFormat, m Mirror, tool, stageDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var reader io.Reader
	switch format {
	case formatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("reading gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	case formatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("reading xz stream: %w", err)
		}
		reader = xr
	case formatTarBz2:
		reader = bzip2.NewReader(f)
	case formatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("reading zstd stream: %w", err)
		}
		defer zr.Close()
		reader = zr
	case formatTarLz:
		lr, err := lzip.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("reading lzip stream: %w", err)
		}
		reader = lr
	case formatTar:
		reader = f
	default:
		return "", fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading tar entry: %w", err)
		}
		// Symlinks and directories are never the tool binary.
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !entrySafe(hdr.Name) || !entryMatches(hdr.Name, m, tool) {
			continue
		}
		return stageEntry(tr, tool, stageDir)
	}
	return "", binaryNotFoundError(m, tool)
}

func extractZipBinary(archivePath string, m Mirror, tool, stageDir string) (string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if !zf.Mode().IsRegular() {
			continue
		}
		if !entrySafe(zf.Name) || !entryMatches(zf.Name, m, tool) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return "", fmt.Errorf("opening zip entry %s: %w", zf.Name, err)
		}
		staged, err := stageEntry(rc, tool, stageDir)
		rc.Close()
		return staged, err
	}
	return "", binaryNotFoundError(m, tool)
}

// stageEntry streams one archive entry into a temp file under stageDir.
func stageEntry(r io.Reader, tool, stageDir string) (string, error) {
	out, err := os.CreateTemp(stageDir, tool+"-*")
	if err != nil {
		return "", fmt.Errorf("creating staging file: %w", err)
	}
	name := out.Name()

	n, err := io.Copy(out, io.LimitReader(r, maxBinaryBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return "", fmt.Errorf("staging binary: %w", err)
	}
	if n > maxBinaryBytes {
		os.Remove(name)
		return "", fmt.Errorf("archive entry for %s exceeds the size limit", tool)
	}
	if n == 0 {
		os.Remove(name)
		return "", fmt.Errorf("archive entry for %s is empty", tool)
	}
	return name, nil
}

func binaryNotFoundError(m Mirror, tool string) error {
	switch {
	case m.BinPath != "" && m.ScanBasename:
		return fmt.Errorf("archive contains neither %s nor any %s binary", m.BinPath, tool)
	case m.BinPath != "":
		return fmt.Errorf("archive does not contain %s", m.BinPath)
	default:
		return fmt.Errorf("no %s binary found in archive", tool)
	}
}
