package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", opts.Timeout)
	}
	if opts.DialTimeout != 30*time.Second {
		t.Errorf("DialTimeout = %v, want 30s", opts.DialTimeout)
	}
	if opts.TLSHandshakeTimeout != 10*time.Second {
		t.Errorf("TLSHandshakeTimeout = %v, want 10s", opts.TLSHandshakeTimeout)
	}
	if opts.MaxRedirects != 10 {
		t.Errorf("MaxRedirects = %d, want 10", opts.MaxRedirects)
	}
	if opts.EnableCompression {
		t.Error("EnableCompression should default to false")
	}
}

func TestNewSecureClient_Defaults(t *testing.T) {
	client := NewSecureClient(ClientOptions{})

	if client.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if !transport.DisableCompression {
		t.Error("compression should be disabled by default")
	}
}

func TestNewSecureClient_CustomTimeout(t *testing.T) {
	client := NewSecureClient(ClientOptions{Timeout: 5 * time.Minute})

	if client.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", client.Timeout)
	}
}

func TestNewSecureClient_Compression(t *testing.T) {
	off := NewSecureClient(ClientOptions{}).Transport.(*http.Transport)
	if !off.DisableCompression {
		t.Error("compression should stay off when EnableCompression is false")
	}

	on := NewSecureClient(ClientOptions{EnableCompression: true}).Transport.(*http.Transport)
	if on.DisableCompression {
		t.Error("compression should be on when EnableCompression is true")
	}
}

// redirectClient returns a client wired to trust the TLS test server's
// certificate while keeping our redirect checker in place.
func redirectClient(server *httptest.Server) *http.Client {
	client := NewSecureClient(ClientOptions{})
	client.Transport = server.Client().Transport
	client.CheckRedirect = makeRedirectChecker(10)
	return client
}

func TestNewSecureClient_RedirectToHTTP_Blocked(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://example.com/payload", http.StatusFound)
	}))
	defer server.Close()

	resp, err := redirectClient(server).Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected error for redirect to plain HTTP, got nil")
	}
	if !strings.Contains(err.Error(), "non-HTTPS") {
		t.Errorf("expected 'non-HTTPS' in error, got: %v", err)
	}
}

func TestNewSecureClient_RedirectToPrivateIP_Blocked(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://192.168.1.1/admin", http.StatusFound)
	}))
	defer server.Close()

	resp, err := redirectClient(server).Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected error for redirect to private IP, got nil")
	}
	if !strings.Contains(err.Error(), "private") {
		t.Errorf("expected 'private' in error, got: %v", err)
	}
}

func TestNewSecureClient_RedirectToLoopback_Blocked(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://127.0.0.1/payload", http.StatusFound)
	}))
	defer server.Close()

	resp, err := redirectClient(server).Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected error for redirect to loopback, got nil")
	}
	if !strings.Contains(err.Error(), "loopback") {
		t.Errorf("expected 'loopback' in error, got: %v", err)
	}
}

func TestRedirectChecker_TooManyRedirects(t *testing.T) {
	checker := makeRedirectChecker(3)

	via := make([]*http.Request, 3)
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/page4", nil)

	err := checker(req, via)
	if err == nil {
		t.Fatal("expected error after redirect limit, got nil")
	}
	if !strings.Contains(err.Error(), "too many redirects") {
		t.Errorf("expected 'too many redirects' in error, got: %v", err)
	}
}
