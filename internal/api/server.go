// Package api exposes the video library over HTTP: uploads, clip
// extraction, playback of stored files, and tool health. Handlers take
// their dependencies as small interfaces so tests can swap in fakes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/smartvideo/smartvideo/internal/bintool"
	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/media"
	"github.com/smartvideo/smartvideo/internal/platform"
	"github.com/smartvideo/smartvideo/internal/store"
)

// maxJSONBody caps request bodies on the JSON endpoints.
const maxJSONBody = 1 << 20

// multipartOverhead is the slack added on top of the upload limit for
// multipart framing and form fields.
const multipartOverhead = 1 << 20

// Provisioner reports the availability of the external tool binaries.
type Provisioner interface {
	Key() platform.Key
	Statuses(ctx context.Context) []bintool.Status
}

// Library stores uploaded videos and extracted clips.
type Library interface {
	SaveUpload(r io.Reader, filename string) (*store.Video, error)
	Find(id string) (*store.Video, error)
	FindOutput(id string) (*store.Video, error)
	List() ([]*store.Video, error)
	Remove(id string) error
	OutputPath(ext string) (string, string, error)
	MaxUploadBytes() int64
}

// Clipper cuts a segment out of a stored video.
type Clipper interface {
	Extract(ctx context.Context, in, out string, start, duration float64) error
}

// Prober reads container and stream metadata from a stored video.
type Prober interface {
	Inspect(ctx context.Context, path string) (*media.Info, error)
}

// Deps carries the collaborators a Server needs.
type Deps struct {
	Tools   Provisioner
	Library Library
	Clipper Clipper
	Prober  Prober
}

// Server is the HTTP front end.
type Server struct {
	listen string
	log    log.Logger

	tools Provisioner
	lib   Library
	clip  Clipper
	probe Prober

	mux      *http.ServeMux
	listener net.Listener
	server   *http.Server
}

// Option adjusts Server construction.
type Option func(*Server)

// WithLogger routes server logs through l.
func WithLogger(l log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a Server bound to listen. It does not start accepting
// connections until Start is called.
func New(listen string, deps Deps, opts ...Option) (*Server, error) {
	if listen == "" {
		return nil, errors.New("api: empty listen address")
	}
	if deps.Tools == nil || deps.Library == nil || deps.Clipper == nil || deps.Prober == nil {
		return nil, errors.New("api: all dependencies must be set")
	}

	s := &Server{
		listen: listen,
		log:    log.Default(),
		tools:  deps.Tools,
		lib:    deps.Library,
		clip:   deps.Clipper,
		probe:  deps.Prober,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/extract", s.handleExtract)
	mux.HandleFunc("/api/videos", s.handleVideos)
	mux.HandleFunc("/api/videos/", s.handleVideo)
	mux.HandleFunc("/api/outputs/", s.handleOutput)
	s.mux = mux

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		// Uploads and downloads move whole video files, so the body
		// deadlines are generous.
		ReadTimeout:  15 * time.Minute,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.listen
	}
	return s.listener.Addr().String()
}

// Start begins serving in the background. The server drains and stops
// when ctx is canceled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.listen, err)
	}
	s.listener = ln
	s.log.Info("api server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop drains in-flight requests and closes the listener. Safe to call
// more than once.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("api shutdown", "error", err)
	}
}

type healthTool struct {
	Tool      string `json:"tool"`
	Available bool   `json:"available"`
	Tier      string `json:"tier,omitempty"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status   string       `json:"status"`
	Platform string       `json:"platform"`
	Tools    []healthTool `json:"tools"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := healthResponse{
		Status:   "ok",
		Platform: string(s.tools.Key()),
	}
	for _, st := range s.tools.Statuses(r.Context()) {
		ht := healthTool{Tool: st.Tool}
		if st.Outcome != nil {
			ht.Available = true
			ht.Tier = st.Outcome.Tier.String()
			ht.Path = st.Outcome.Path
			ht.Version = st.Outcome.Version
		}
		if st.Err != nil {
			ht.Error = st.Err.Error()
			resp.Status = "degraded"
		}
		resp.Tools = append(resp.Tools, ht)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type uploadResponse struct {
	ID   string `json:"id"`
	Ext  string `json:"ext"`
	Size int64  `json:"size"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.lib.MaxUploadBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds the upload limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, `multipart form needs a "file" part`)
		return
	}
	defer file.Close()

	video, err := s.lib.SaveUpload(file, header.Filename)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.log.Info("upload stored", "id", video.ID, "bytes", video.Size)
	s.writeJSON(w, http.StatusCreated, uploadResponse{ID: video.ID, Ext: video.Ext, Size: video.Size})
}

type extractRequest struct {
	VideoID  string  `json:"video_id"`
	Start    float64 `json:"start_time"`
	Duration float64 `json:"duration"`
}

type extractResponse struct {
	OutputID string `json:"output_id"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}

	video, err := s.lib.Find(req.VideoID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	outID, outPath, err := s.lib.OutputPath(video.Ext)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.clip.Extract(r.Context(), video.Path, outPath, req.Start, req.Duration); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.log.Info("clip extracted", "video", video.ID, "output", outID)
	s.writeJSON(w, http.StatusOK, extractResponse{OutputID: outID})
}

type videoInfo struct {
	ID       string    `json:"id"`
	Ext      string    `json:"ext"`
	Size     int64     `json:"size"`
	Uploaded time.Time `json:"uploaded"`
}

type listResponse struct {
	Videos []videoInfo `json:"videos"`
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	videos, err := s.lib.List()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := listResponse{Videos: make([]videoInfo, 0, len(videos))}
	for _, v := range videos {
		resp.Videos = append(resp.Videos, videoInfo{ID: v.ID, Ext: v.Ext, Size: v.Size, Uploaded: v.ModTime})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	id, sub, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "video id required")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		video, err := s.lib.Find(id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		http.ServeFile(w, r, video.Path)
	case sub == "" && r.Method == http.MethodDelete:
		if err := s.lib.Remove(id); err != nil {
			s.writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case sub == "info" && r.Method == http.MethodGet:
		video, err := s.lib.Find(id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		info, err := s.probe.Inspect(r.Context(), video.Path)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, info)
	case sub != "" && sub != "info":
		s.writeError(w, http.StatusNotFound, "not found")
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/outputs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	video, err := s.lib.FindOutput(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	http.ServeFile(w, r, video.Path)
}

// writeDomainError maps errors from the store and media layers onto
// HTTP statuses. Tool resolution failures surface as 503 so clients can
// tell "try again later" from a bad request.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var unavailable *bintool.UnavailableError
	switch {
	case errors.Is(err, store.ErrInvalidID), errors.Is(err, store.ErrUnsupportedType), errors.Is(err, media.ErrInvalidRange):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &unavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("api request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("encoding api response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
