package bintool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// maxSignatureBytes caps a detached signature download. Real signatures
// are a few hundred bytes.
const maxSignatureBytes = 10 * 1024

// maxKeyBytes caps the size of a verification key file.
const maxKeyBytes = 100 * 1024

// loadVerifyKey reads an armored public key from disk and builds the
// keyring used to check mirror signatures.
func loadVerifyKey(path string) (*crypto.KeyRing, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	if info.Size() > maxKeyBytes {
		return nil, fmt.Errorf("key file %s is implausibly large (%d bytes)", path, info.Size())
	}

	armored, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := crypto.NewKeyFromArmored(string(armored))
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	ring, err := crypto.NewKeyRing(key)
	if err != nil {
		return nil, fmt.Errorf("building keyring: %w", err)
	}
	return ring, nil
}

// fetchSignature downloads a detached signature, refusing oversized
// responses.
func (d *downloader) fetchSignature(ctx context.Context, url string) ([]byte, error) {
	if d.requireHTTPS && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("refusing non-HTTPS signature URL: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting signature: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signature fetch returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSignatureBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	if len(data) > maxSignatureBytes {
		return nil, fmt.Errorf("signature exceeds %d bytes", maxSignatureBytes)
	}
	return data, nil
}

// verifySignature checks a detached signature over the archive at path.
// The signature may be armored or binary.
func verifySignature(ring *crypto.KeyRing, path string, sig []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	message := crypto.NewPlainMessage(data)

	var pgpSig *crypto.PGPSignature
	if looksArmored(sig) {
		pgpSig, err = crypto.NewPGPSignatureFromArmored(string(sig))
		if err != nil {
			return fmt.Errorf("parsing armored signature: %w", err)
		}
	} else {
		pgpSig = crypto.NewPGPSignature(sig)
	}

	if err := ring.VerifyDetached(message, pgpSig, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

func looksArmored(sig []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(sig), []byte("-----BEGIN PGP"))
}
