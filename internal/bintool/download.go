package bintool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/progress"
)

// Retry policy for a single mirror. The wait doubles after every failed
// attempt: 1s, then 2s.
const (
	downloadAttempts = 3
	firstRetryDelay  = time.Second
)

// permanentError marks failures more attempts against the same mirror
// cannot fix, such as a 404 or a checksum-relevant truncation.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// downloader fetches mirror archives over the hardened HTTP client.
type downloader struct {
	client *http.Client
	log    log.Logger

	// timeout bounds each attempt, not the whole retry sequence.
	timeout time.Duration

	// requireHTTPS is on everywhere except tests, which serve mirrors
	// from httptest's plain HTTP listeners.
	requireHTTPS bool

	// retryDelay overrides the first retry wait when non-zero.
	retryDelay time.Duration

	showProgress bool
}

// fetch downloads url into dst, retrying transient failures. It reports
// how many attempts were spent alongside any final error.
func (d *downloader) fetch(ctx context.Context, url, dst string, minBytes int64) (int, error) {
	delay := d.retryDelay
	if delay <= 0 {
		delay = firstRetryDelay
	}
	var lastErr error

	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		err := d.fetchOnce(ctx, url, dst, minBytes)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if isPermanent(err) || ctx.Err() != nil {
			return attempt, err
		}
		if attempt == downloadAttempts {
			break
		}

		d.log.Warn("download attempt failed, retrying",
			"url", url, "attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
		delay *= 2
	}
	return downloadAttempts, lastErr
}

func (d *downloader) fetchOnce(ctx context.Context, url, dst string, minBytes int64) (err error) {
	if d.requireHTTPS && !strings.HasPrefix(url, "https://") {
		return permanent(fmt.Errorf("refusing non-HTTPS mirror URL: %s", url))
	}

	attemptCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return permanent(fmt.Errorf("building request: %w", err))
	}
	// The bytes on disk must match what the mirror published, so refuse
	// transparent transport compression.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting archive: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return permanent(fmt.Errorf("mirror returned HTTP %d", resp.StatusCode))
	default:
		return fmt.Errorf("mirror returned HTTP %d", resp.StatusCode)
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return fmt.Errorf("mirror ignored identity encoding, sent %q", enc)
	}

	out, err := os.Create(dst)
	if err != nil {
		return permanent(fmt.Errorf("creating %s: %w", dst, err))
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(dst)
		}
	}()

	var w io.Writer = out
	var bar *progress.Writer
	if d.showProgress {
		bar = progress.NewWriter(out, resp.ContentLength, os.Stderr)
		w = bar
	}

	n, copyErr := io.Copy(w, resp.Body)
	if bar != nil {
		bar.Finish()
	}
	if copyErr != nil {
		err = fmt.Errorf("downloading archive: %w", copyErr)
		return err
	}
	if cerr := out.Close(); cerr != nil {
		err = fmt.Errorf("closing %s: %w", dst, cerr)
		return err
	}
	if minBytes > 0 && n < minBytes {
		err = permanent(fmt.Errorf("download is %d bytes, below the %d byte minimum", n, minBytes))
		return err
	}
	return nil
}

// verifyChecksum compares the SHA-256 digest of the file at path against
// a hex digest.
func verifyChecksum(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}
