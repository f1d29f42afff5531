package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/config"
	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/media"
	"github.com/smartvideo/smartvideo/internal/platform"
	"github.com/smartvideo/smartvideo/internal/store"
)

type fakeTools struct {
	statuses []bintool.Status
}

func (f *fakeTools) Key() platform.Key {
	return "linux-x86_64"
}

func (f *fakeTools) Statuses(ctx context.Context) []bintool.Status {
	return f.statuses
}

type clipCall struct {
	in, out         string
	start, duration float64
}

type fakeClipper struct {
	mu    sync.Mutex
	calls []clipCall
	err   error
	body  string
}

func (f *fakeClipper) Extract(ctx context.Context, in, out string, start, duration float64) error {
	f.mu.Lock()
	f.calls = append(f.calls, clipCall{in: in, out: out, start: start, duration: duration})
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte(f.body), 0o644)
}

type fakeProber struct {
	info *media.Info
	err  error
}

func (f *fakeProber) Inspect(ctx context.Context, path string) (*media.Info, error) {
	return f.info, f.err
}

type testServer struct {
	srv   *Server
	ts    *httptest.Server
	lib   *store.Store
	clip  *fakeClipper
	probe *fakeProber
	tools *fakeTools
}

func newTestServer(t *testing.T, storeOpts ...store.Option) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:    dir,
		UploadsDir: filepath.Join(dir, "uploads"),
		OutputsDir: filepath.Join(dir, "outputs"),
	}
	lib, err := store.New(cfg, append([]store.Option{store.WithLogger(log.NewNoop())}, storeOpts...)...)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	tools := &fakeTools{statuses: []bintool.Status{
		{Tool: "ffmpeg", Outcome: &bintool.Outcome{Tool: "ffmpeg", Path: "/usr/bin/ffmpeg", Tier: bintool.TierPath, Version: "6.1.1"}},
		{Tool: "ffprobe", Outcome: &bintool.Outcome{Tool: "ffprobe", Path: "/usr/bin/ffprobe", Tier: bintool.TierPath, Version: "6.1.1"}},
	}}
	clip := &fakeClipper{body: "clip bytes"}
	probe := &fakeProber{info: &media.Info{Format: media.Format{FormatName: "mov,mp4,m4a", Duration: "60.000000"}}}

	srv, err := New("127.0.0.1:0", Deps{Tools: tools, Library: lib, Clipper: clip, Prober: probe}, WithLogger(log.NewNoop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{srv: srv, ts: ts, lib: lib, clip: clip, probe: probe, tools: tools}
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeJSON(t *testing.T, res *http.Response, into any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(into); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func uploadVideo(t *testing.T, d *testServer, filename, content string) uploadResponse {
	t.Helper()
	body, ctype := multipartBody(t, "file", filename, content)
	res, err := http.Post(d.ts.URL+"/api/upload", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", res.StatusCode)
	}
	var up uploadResponse
	decodeJSON(t, res, &up)
	return up
}

func errorMessage(t *testing.T, res *http.Response) string {
	t.Helper()
	var payload map[string]string
	decodeJSON(t, res, &payload)
	return payload["error"]
}

func TestNewValidatesInputs(t *testing.T) {
	deps := Deps{Tools: &fakeTools{}, Library: nil, Clipper: &fakeClipper{}, Prober: &fakeProber{}}
	if _, err := New("", deps); err == nil {
		t.Error("expected error for empty listen address")
	}
	if _, err := New("127.0.0.1:0", deps); err == nil {
		t.Error("expected error for missing dependency")
	}
}

func TestHealth(t *testing.T) {
	d := newTestServer(t)

	res, err := http.Get(d.ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}

	var health healthResponse
	decodeJSON(t, res, &health)
	if health.Status != "ok" {
		t.Errorf("status = %q, want ok", health.Status)
	}
	if health.Platform != "linux-x86_64" {
		t.Errorf("platform = %q", health.Platform)
	}
	if len(health.Tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(health.Tools))
	}
	ff := health.Tools[0]
	if !ff.Available || ff.Tier != "path" || ff.Version != "6.1.1" {
		t.Errorf("ffmpeg status = %+v", ff)
	}
}

func TestHealthDegraded(t *testing.T) {
	d := newTestServer(t)
	d.tools.statuses = []bintool.Status{
		{Tool: "ffmpeg", Outcome: &bintool.Outcome{Tool: "ffmpeg", Path: "/usr/bin/ffmpeg", Tier: bintool.TierPath}},
		{Tool: "ffprobe", Err: errors.New("no candidate produced a working binary")},
	}

	res, err := http.Get(d.ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var health healthResponse
	decodeJSON(t, res, &health)
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
	if health.Tools[1].Available || health.Tools[1].Error == "" {
		t.Errorf("ffprobe status = %+v, want unavailable with error", health.Tools[1])
	}
}

func TestHealthMethodNotAllowed(t *testing.T) {
	d := newTestServer(t)

	res, err := http.Post(d.ts.URL+"/api/health", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", res.StatusCode)
	}
	if msg := errorMessage(t, res); msg == "" {
		t.Error("error envelope is empty")
	}
}

func TestUploadAndFetch(t *testing.T) {
	d := newTestServer(t)

	up := uploadVideo(t, d, "holiday.mp4", "video bytes")
	if up.Ext != ".mp4" || up.Size != int64(len("video bytes")) {
		t.Errorf("upload response = %+v", up)
	}

	res, err := http.Get(d.ts.URL + "/api/videos/" + up.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fetch status = %d", res.StatusCode)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "video bytes" {
		t.Errorf("served content = %q", data)
	}
}

func TestUploadListed(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "a.mkv", "aaaa")

	res, err := http.Get(d.ts.URL + "/api/videos")
	if err != nil {
		t.Fatal(err)
	}
	var list listResponse
	decodeJSON(t, res, &list)
	if len(list.Videos) != 1 || list.Videos[0].ID != up.ID || list.Videos[0].Ext != ".mkv" {
		t.Errorf("list = %+v", list.Videos)
	}
}

func TestUploadRejectsExtension(t *testing.T) {
	d := newTestServer(t)

	body, ctype := multipartBody(t, "file", "script.sh", "#!/bin/sh\n")
	res, err := http.Post(d.ts.URL+"/api/upload", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
	if msg := errorMessage(t, res); !strings.Contains(msg, "unsupported file type") {
		t.Errorf("error = %q", msg)
	}
}

func TestUploadMissingFilePart(t *testing.T) {
	d := newTestServer(t)

	body, ctype := multipartBody(t, "attachment", "a.mp4", "x")
	res, err := http.Post(d.ts.URL+"/api/upload", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
	res.Body.Close()
}

func TestUploadTooLarge(t *testing.T) {
	d := newTestServer(t, store.WithMaxUploadBytes(10))

	// Over the store's limit but under the request body cap, so the
	// whole body is read and the rejection arrives as a response.
	body, ctype := multipartBody(t, "file", "big.mp4", strings.Repeat("a", 200))
	res, err := http.Post(d.ts.URL+"/api/upload", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", res.StatusCode)
	}
	if msg := errorMessage(t, res); !strings.Contains(msg, "exceeds") {
		t.Errorf("error = %q", msg)
	}
}

func TestExtract(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "in.mp4", "source video")

	reqBody, err := json.Marshal(extractRequest{VideoID: up.ID, Start: 5, Duration: 10})
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(d.ts.URL+"/api/extract", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var out extractResponse
	decodeJSON(t, res, &out)
	if !store.ValidID(out.OutputID) {
		t.Fatalf("output id %q is not a valid id", out.OutputID)
	}

	if len(d.clip.calls) != 1 {
		t.Fatalf("clipper ran %d times", len(d.clip.calls))
	}
	call := d.clip.calls[0]
	source, err := d.lib.Find(up.ID)
	if err != nil {
		t.Fatal(err)
	}
	if call.in != source.Path || call.start != 5 || call.duration != 10 {
		t.Errorf("clip call = %+v", call)
	}

	got, err := http.Get(d.ts.URL + "/api/outputs/" + out.OutputID)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Fatalf("output fetch status = %d", got.StatusCode)
	}
	data, err := io.ReadAll(got.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "clip bytes" {
		t.Errorf("output content = %q", data)
	}
}

func TestExtractBadJSON(t *testing.T) {
	d := newTestServer(t)

	res, err := http.Post(d.ts.URL+"/api/extract", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
	res.Body.Close()
}

func TestExtractVideoNotFound(t *testing.T) {
	d := newTestServer(t)

	reqBody, err := json.Marshal(extractRequest{VideoID: store.NewID(), Start: 0, Duration: 5})
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(d.ts.URL+"/api/extract", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
	res.Body.Close()

	reqBody, err = json.Marshal(extractRequest{VideoID: "../../etc/passwd", Start: 0, Duration: 5})
	if err != nil {
		t.Fatal(err)
	}
	res, err = http.Post(d.ts.URL+"/api/extract", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed id", res.StatusCode)
	}
	res.Body.Close()
}

func TestExtractInvalidRange(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "in.mp4", "source video")
	d.clip.err = fmt.Errorf("%w: start 90.000s is beyond the end of the 60.000s video", media.ErrInvalidRange)

	reqBody, err := json.Marshal(extractRequest{VideoID: up.ID, Start: 90, Duration: 10})
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(d.ts.URL+"/api/extract", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", res.StatusCode)
	}
	if msg := errorMessage(t, res); !strings.Contains(msg, "beyond the end") {
		t.Errorf("error = %q", msg)
	}
}

func TestExtractToolUnavailable(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "in.mp4", "source video")
	d.clip.err = &bintool.UnavailableError{Tool: "ffmpeg", Key: "linux-x86_64"}

	reqBody, err := json.Marshal(extractRequest{VideoID: up.ID, Start: 0, Duration: 5})
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(d.ts.URL+"/api/extract", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", res.StatusCode)
	}
	res.Body.Close()
}

func TestVideoDelete(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "gone.mp4", "xxxx")

	req, err := http.NewRequest(http.MethodDelete, d.ts.URL+"/api/videos/"+up.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", res.StatusCode)
	}
	res.Body.Close()

	got, err := http.Get(d.ts.URL + "/api/videos/" + up.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StatusCode != http.StatusNotFound {
		t.Errorf("fetch after delete = %d, want 404", got.StatusCode)
	}
	got.Body.Close()
}

func TestVideoInfo(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "in.mp4", "source video")

	res, err := http.Get(d.ts.URL + "/api/videos/" + up.ID + "/info")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var info media.Info
	decodeJSON(t, res, &info)
	if info.Format.FormatName != "mov,mp4,m4a" {
		t.Errorf("format = %+v", info.Format)
	}
}

func TestVideoInfoProbeFailure(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "in.mp4", "source video")
	d.probe.err = errors.New("ffprobe /videos/in.mp4: exit status 1")

	res, err := http.Get(d.ts.URL + "/api/videos/" + up.ID + "/info")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", res.StatusCode)
	}
	res.Body.Close()
}

func TestVideoUnknownSubpath(t *testing.T) {
	d := newTestServer(t)
	up := uploadVideo(t, d, "in.mp4", "source video")

	res, err := http.Get(d.ts.URL + "/api/videos/" + up.ID + "/thumbnails")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
	res.Body.Close()
}

func TestOutputNotFound(t *testing.T) {
	d := newTestServer(t)

	res, err := http.Get(d.ts.URL + "/api/outputs/" + store.NewID())
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
	res.Body.Close()
}

func TestServerStartStop(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:    dir,
		UploadsDir: filepath.Join(dir, "uploads"),
		OutputsDir: filepath.Join(dir, "outputs"),
	}
	lib, err := store.New(cfg, store.WithLogger(log.NewNoop()))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New("127.0.0.1:0", Deps{
		Tools:   &fakeTools{},
		Library: lib,
		Clipper: &fakeClipper{},
		Prober:  &fakeProber{},
	}, WithLogger(log.NewNoop()))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := http.Get("http://" + srv.Addr() + "/api/health")
	if err != nil {
		t.Fatalf("health over live listener: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
	res.Body.Close()

	srv.Stop()
	if _, err := http.Get("http://" + srv.Addr() + "/api/health"); err == nil {
		t.Error("server still accepting connections after Stop")
	}
	srv.Stop()
}
