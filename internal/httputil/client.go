// Package httputil provides a hardened HTTP client used for fetching
// release archives and detached signatures from download mirrors.
package httputil

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

// ClientOptions configures the hardened HTTP client.
type ClientOptions struct {
	// Timeout bounds the whole request, body included. Default: 30s.
	Timeout time.Duration

	// DialTimeout bounds the TCP connect. Default: 30s.
	DialTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake. Default: 10s.
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers. Default: 10s.
	ResponseHeaderTimeout time.Duration

	// MaxRedirects caps the redirect chain. Default: 10.
	MaxRedirects int

	// EnableCompression turns transparent response compression back on.
	// It is off by default: archive bytes must arrive exactly as published
	// so size checks and digests see what the mirror actually serves.
	EnableCompression bool

	// MaxIdleConns caps pooled idle connections. Default: 10.
	MaxIdleConns int

	// IdleConnTimeout is how long an idle connection is kept. Default: 90s.
	IdleConnTimeout time.Duration
}

// DefaultOptions returns the options NewSecureClient falls back to for
// zero-valued fields.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		Timeout:               30 * time.Second,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxRedirects:          10,
		EnableCompression:     false,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

func (o ClientOptions) withDefaults() ClientOptions {
	def := DefaultOptions()
	if o.Timeout == 0 {
		o.Timeout = def.Timeout
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = def.DialTimeout
	}
	if o.TLSHandshakeTimeout == 0 {
		o.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}
	if o.ResponseHeaderTimeout == 0 {
		o.ResponseHeaderTimeout = def.ResponseHeaderTimeout
	}
	if o.MaxRedirects == 0 {
		o.MaxRedirects = def.MaxRedirects
	}
	if o.MaxIdleConns == 0 {
		o.MaxIdleConns = def.MaxIdleConns
	}
	if o.IdleConnTimeout == 0 {
		o.IdleConnTimeout = def.IdleConnTimeout
	}
	return o
}

// NewSecureClient returns an HTTP client hardened for talking to mirrors:
// response compression disabled, redirects restricted to HTTPS, and every
// redirect target screened against internal network addresses. Hostnames
// in redirects are resolved here so a rebinding DNS answer is caught too.
func NewSecureClient(opts ClientOptions) *http.Client {
	opts = opts.withDefaults()

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			DisableCompression: !opts.EnableCompression,
			DialContext: (&net.Dialer{
				Timeout:   opts.DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          opts.MaxIdleConns,
			IdleConnTimeout:       opts.IdleConnTimeout,
		},
		CheckRedirect: makeRedirectChecker(opts.MaxRedirects),
	}
}

// makeRedirectChecker builds the CheckRedirect hook enforcing the HTTPS-only
// and address-screening rules above.
func makeRedirectChecker(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		// A mirror must not be able to downgrade us to plaintext.
		if req.URL.Scheme != "https" {
			return fmt.Errorf("redirect to non-HTTPS URL refused: %s", req.URL)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects (limit %d)", maxRedirects)
		}

		host := req.URL.Hostname()
		if ip := net.ParseIP(host); ip != nil {
			if err := ValidateIP(ip, host); err != nil {
				return fmt.Errorf("refusing redirect: %w", err)
			}
			return nil
		}

		// The target is a name. Resolve it ourselves and screen every
		// address rather than trusting whatever the dialer gets later.
		ips, err := net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("resolving redirect host %s: %w", host, err)
		}
		for _, ip := range ips {
			if err := ValidateIP(ip, host); err != nil {
				return fmt.Errorf("refusing redirect: %w", err)
			}
		}
		return nil
	}
}
