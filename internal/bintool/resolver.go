// Package bintool locates, validates and provisions the external media
// binaries the rest of the system shells out to, ffmpeg and ffprobe.
//
// A tool is resolved by walking a fixed chain of sources: an explicit
// override variable, the system PATH, binaries packaged alongside the
// application, a per-platform disk cache, and finally download mirrors.
// Every candidate must pass the same version probe before it is accepted.
// Results are memoized for the life of the process and concurrent
// requests for the same tool share a single resolution.
package bintool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/smartvideo/smartvideo/internal/config"
	"github.com/smartvideo/smartvideo/internal/httputil"
	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/platform"
)

// lookPathFunc locates a command on PATH. Swappable in tests.
type lookPathFunc func(file string) (string, error)

// diskFreeFunc reports usable bytes on the volume holding a directory.
// Swappable in tests.
type diskFreeFunc func(dir string) (uint64, error)

// Outcome records where a tool was found and how.
type Outcome struct {
	Tool       string
	Path       string
	Tier       Tier
	Version    string
	ResolvedAt time.Time
}

// Status reports one tool's availability without failing.
type Status struct {
	Tool    string
	Outcome *Outcome // nil when unavailable
	Err     error    // why, when unavailable
}

// Registry resolves tools and remembers the results.
type Registry struct {
	cfg *config.Config
	log log.Logger
	key platform.Key

	reqs  map[string]Requirement
	order []string

	probeTimeout    time.Duration
	downloadTimeout time.Duration
	packagedDirs    []string
	showProgress    bool
	requireHTTPS    bool

	cacheDir      string
	cache         *Cache
	httpClient    *http.Client
	dl            *downloader
	verifyKeyFile string
	verifyRing    *crypto.KeyRing

	lookPath lookPathFunc
	runProbe proberFunc
	diskFree diskFreeFunc

	group    singleflight.Group
	mu       sync.Mutex
	resolved map[string]Outcome
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger routes the registry's diagnostics through l.
func WithLogger(l log.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithPlatform overrides the detected platform key.
func WithPlatform(key platform.Key) Option {
	return func(r *Registry) { r.key = key }
}

// WithProbeTimeout bounds each version probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Registry) { r.probeTimeout = d }
}

// WithDownloadTimeout bounds each download attempt.
func WithDownloadTimeout(d time.Duration) Option {
	return func(r *Registry) { r.downloadTimeout = d }
}

// WithHTTPClient substitutes the mirror HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.httpClient = c }
}

// WithCacheDir stores cached binaries under dir instead of the
// configured bin-cache directory.
func WithCacheDir(dir string) Option {
	return func(r *Registry) { r.cacheDir = dir }
}

// WithPackagedDirs replaces the directories searched for packaged
// binaries.
func WithPackagedDirs(dirs ...string) Option {
	return func(r *Registry) { r.packagedDirs = append([]string(nil), dirs...) }
}

// WithRequirements replaces the default tool set.
func WithRequirements(reqs ...Requirement) Option {
	return func(r *Registry) {
		r.reqs = make(map[string]Requirement, len(reqs))
		r.order = r.order[:0]
		for _, req := range reqs {
			r.reqs[req.Name] = req
			r.order = append(r.order, req.Name)
		}
	}
}

// WithProgress renders a download bar on stderr.
func WithProgress(show bool) Option {
	return func(r *Registry) { r.showProgress = show }
}

// WithVerifyKeyFile enables detached signature checks against the
// armored public key at path, for mirrors that declare a signature URL.
func WithVerifyKeyFile(path string) Option {
	return func(r *Registry) { r.verifyKeyFile = path }
}

func withLookPath(fn lookPathFunc) Option {
	return func(r *Registry) { r.lookPath = fn }
}

func withDiskFree(fn diskFreeFunc) Option {
	return func(r *Registry) { r.diskFree = fn }
}

func withProber(fn proberFunc) Option {
	return func(r *Registry) { r.runProbe = fn }
}

func withInsecureDownloads() Option {
	return func(r *Registry) { r.requireHTTPS = false }
}

// NewRegistry builds a resolver for the default tools, ffmpeg and
// ffprobe, honoring the configured timeouts.
func NewRegistry(cfg *config.Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bintool: nil config")
	}

	r := &Registry{
		cfg:             cfg,
		log:             log.Default(),
		key:             platform.Detect(),
		reqs:            make(map[string]Requirement),
		probeTimeout:    config.GetProbeTimeout(),
		downloadTimeout: config.GetDownloadTimeout(),
		requireHTTPS:    true,
		resolved:        make(map[string]Outcome),
		lookPath:        exec.LookPath,
		runProbe:        runProbeCommand,
		diskFree:        statfsFree,
	}
	for _, req := range DefaultRequirements() {
		r.reqs[req.Name] = req
		r.order = append(r.order, req.Name)
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.packagedDirs == nil {
		r.packagedDirs = defaultPackagedDirs()
	}
	cacheDir := cfg.BinCacheDir
	if r.cacheDir != "" {
		cacheDir = r.cacheDir
	}
	r.cache = NewCache(cacheDir, r.log)
	if r.httpClient == nil {
		r.httpClient = httputil.NewSecureClient(httputil.ClientOptions{Timeout: r.downloadTimeout})
	}
	r.dl = &downloader{
		client:       r.httpClient,
		log:          r.log,
		timeout:      r.downloadTimeout,
		requireHTTPS: r.requireHTTPS,
		showProgress: r.showProgress,
	}
	if r.verifyKeyFile != "" {
		ring, err := loadVerifyKey(r.verifyKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading signature verification key: %w", err)
		}
		r.verifyRing = ring
	}
	return r, nil
}

// defaultPackagedDirs lists where packaged binaries may ship: a bin
// directory next to the executable, then bin and src/bin under the
// working directory.
func defaultPackagedDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "bin"))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(wd, "bin"), filepath.Join(wd, "src", "bin"))
	}
	return dirs
}

// Tools returns the registered tool names in registration order.
func (r *Registry) Tools() []string {
	return append([]string(nil), r.order...)
}

// Key returns the platform key resolutions run against.
func (r *Registry) Key() platform.Key {
	return r.key
}

// Resolve finds a working binary for tool. The first success is memoized
// and returned to every later call; concurrent calls for the same tool
// share one resolution. Failures are not memoized, so a later call may
// succeed once the environment changes.
func (r *Registry) Resolve(ctx context.Context, tool string) (Outcome, error) {
	req, ok := r.reqs[tool]
	if !ok {
		return Outcome{}, newError(KindConfig, tool, "resolve", fmt.Errorf("unknown tool"))
	}

	r.mu.Lock()
	out, ok := r.resolved[tool]
	r.mu.Unlock()
	if ok {
		return out, nil
	}

	v, err, _ := r.group.Do(tool+"|"+string(r.key), func() (any, error) {
		r.mu.Lock()
		out, ok := r.resolved[tool]
		r.mu.Unlock()
		if ok {
			return out, nil
		}

		out, err := r.resolveTiers(ctx, req, r.allTiers())
		if err != nil {
			return Outcome{}, err
		}

		r.mu.Lock()
		r.resolved[tool] = out
		r.mu.Unlock()
		return out, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

// Path resolves tool and returns just the binary path.
func (r *Registry) Path(ctx context.Context, tool string) (string, error) {
	out, err := r.Resolve(ctx, tool)
	if err != nil {
		return "", err
	}
	return out.Path, nil
}

// ResolveAll resolves every registered tool, a few in flight at a time.
func (r *Registry) ResolveAll(ctx context.Context) ([]Outcome, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	outs := make([]Outcome, len(r.order))
	for i, tool := range r.order {
		g.Go(func() error {
			out, err := r.Resolve(ctx, tool)
			if err != nil {
				return err
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outs, nil
}

// Statuses reports the availability of every registered tool using local
// sources only. Nothing is downloaded or memoized on behalf of a status
// report.
func (r *Registry) Statuses(ctx context.Context) []Status {
	statuses := make([]Status, 0, len(r.order))
	for _, tool := range r.order {
		r.mu.Lock()
		out, ok := r.resolved[tool]
		r.mu.Unlock()
		if ok {
			statuses = append(statuses, Status{Tool: tool, Outcome: &out})
			continue
		}

		found, err := r.resolveTiers(ctx, r.reqs[tool], r.localTiers())
		if err != nil {
			statuses = append(statuses, Status{Tool: tool, Err: err})
			continue
		}
		statuses = append(statuses, Status{Tool: tool, Outcome: &found})
	}
	return statuses
}

// Invalidate drops the memoized resolution for tool, forcing the next
// Resolve to walk the chain again. The disk cache is left alone.
func (r *Registry) Invalidate(tool string) {
	r.mu.Lock()
	delete(r.resolved, tool)
	r.mu.Unlock()
}

// InvalidateCache drops both the memoized resolution and the cached
// binary on disk.
func (r *Registry) InvalidateCache(tool string) error {
	r.Invalidate(tool)
	return r.cache.Invalidate(r.key, tool)
}

type tierHandler struct {
	tier Tier
	run  func(ctx context.Context, req Requirement) (string, error)
}

func (r *Registry) allTiers() []tierHandler {
	return []tierHandler{
		{TierOverride, r.overrideTier},
		{TierPath, r.pathTier},
		{TierPackaged, r.packagedTier},
		{TierCache, r.cacheTier},
		{TierDownload, r.downloadTier},
	}
}

func (r *Registry) localTiers() []tierHandler {
	all := r.allTiers()
	return all[:len(all)-1]
}

// resolveTiers walks the handlers in order. Each either produces a
// candidate path or declines with a reason; candidates must then pass
// the version probe. The declined reasons ride along so the terminal
// error can say what happened at every tier.
func (r *Registry) resolveTiers(ctx context.Context, req Requirement, handlers []tierHandler) (Outcome, error) {
	var causes []TierCause
	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		candidate, err := h.run(ctx, req)
		if err != nil {
			r.log.Debug("tier declined", "tool", req.Name, "tier", h.tier.String(), "reason", err.Error())
			causes = append(causes, TierCause{Tier: h.tier, Err: err})
			continue
		}

		version, perr := r.probe(ctx, req, candidate)
		if perr == nil {
			out := Outcome{
				Tool:       req.Name,
				Path:       candidate,
				Tier:       h.tier,
				Version:    version,
				ResolvedAt: time.Now(),
			}
			r.log.Info("resolved tool",
				"tool", req.Name, "tier", h.tier.String(), "path", candidate, "version", version)
			return out, nil
		}
		causes = append(causes, TierCause{Tier: h.tier, Err: r.probeFailure(req, h.tier, candidate, perr)})
	}
	return Outcome{}, &UnavailableError{Tool: req.Name, Key: r.key, Causes: causes}
}

// probeFailure classifies a failed probe by the tier that produced the
// candidate and performs tier-specific cleanup.
func (r *Registry) probeFailure(req Requirement, tier Tier, candidate string, perr error) error {
	switch tier {
	case TierOverride:
		r.log.Warn("override binary failed probe, trying other sources",
			"tool", req.Name, "path", candidate, "error", perr.Error())
		return newError(KindConfig, req.Name, "override", perr)
	case TierPackaged:
		return newError(KindPackagedIncompatible, req.Name, "packaged", perr)
	case TierCache:
		if err := r.cache.Invalidate(r.key, req.Name); err != nil {
			r.log.Warn("could not invalidate cached binary", "tool", req.Name, "error", err.Error())
		}
		return newError(KindCacheCorrupt, req.Name, "cache", perr)
	case TierDownload:
		if err := r.cache.Invalidate(r.key, req.Name); err != nil {
			r.log.Warn("could not invalidate cached binary", "tool", req.Name, "error", err.Error())
		}
		return newError(KindProbeFailed, req.Name, "download", perr)
	default:
		return newError(KindProbeFailed, req.Name, tier.String(), perr)
	}
}

// overrideTier honors the per-tool environment override. Unset is a
// quiet decline; set but broken is a configuration error.
func (r *Registry) overrideTier(_ context.Context, req Requirement) (string, error) {
	env := config.OverrideEnv(req.Name)
	value := config.Override(req.Name)
	if value == "" {
		return "", fmt.Errorf("%s not set", env)
	}

	info, err := os.Stat(value)
	if err != nil {
		return "", newError(KindConfig, req.Name, "override", fmt.Errorf("%s: %w", env, err))
	}
	if info.IsDir() {
		return "", newError(KindConfig, req.Name, "override", fmt.Errorf("%s points at a directory: %s", env, value))
	}
	return value, nil
}

func (r *Registry) pathTier(_ context.Context, req Requirement) (string, error) {
	found, err := r.lookPath(req.Name)
	if err != nil {
		return "", newError(KindNotFound, req.Name, "path", err)
	}
	return found, nil
}

// packagedTier looks for a binary shipped alongside the application.
func (r *Registry) packagedTier(_ context.Context, req Requirement) (string, error) {
	name := req.Name + r.key.ExeSuffix()
	for _, dir := range r.packagedDirs {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !IsExecutable(candidate) {
			if err := EnsureExecutable(candidate); err != nil {
				r.log.Warn("packaged binary is not executable", "path", candidate, "error", err.Error())
				continue
			}
		}
		return candidate, nil
	}
	return "", newError(KindPackagedMissing, req.Name, "packaged",
		fmt.Errorf("not shipped in %s", strings.Join(r.packagedDirs, ", ")))
}

func (r *Registry) cacheTier(_ context.Context, req Requirement) (string, error) {
	cached, ok := r.cache.Lookup(r.key, req.Name)
	if !ok {
		return "", fmt.Errorf("not cached")
	}
	if err := EnsureExecutable(cached); err != nil {
		return "", newError(KindPermission, req.Name, "cache", err)
	}
	return cached, nil
}

// minStageBytes is the free space required before downloading: room for
// the largest archive plus its extracted binary, with headroom.
const minStageBytes = 256 << 20

// downloadTier fetches the tool archive from the first mirror that
// works, stages the binary and publishes it into the cache. A file lock
// keeps concurrent processes from downloading the same tool twice.
func (r *Registry) downloadTier(ctx context.Context, req Requirement) (string, error) {
	mirrors := req.MirrorsFor(r.key)
	if len(mirrors) == 0 {
		return "", newError(KindConfig, req.Name, "download", fmt.Errorf("no mirrors configured for %s", r.key))
	}

	keyDir := filepath.Join(r.cache.Root(), string(r.key))
	if err := os.MkdirAll(keyDir, 0o755); err != nil {
		return "", newError(KindPermission, req.Name, "download", err)
	}

	lock := flock.New(filepath.Join(keyDir, "."+req.Name+".lock"))
	locked, err := lock.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("acquiring download lock: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("download lock held by another process")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.log.Warn("releasing download lock", "tool", req.Name, "error", err.Error())
		}
	}()

	// Another process may have published the binary while we waited on
	// the lock.
	if cached, ok := r.cache.Lookup(r.key, req.Name); ok {
		return cached, nil
	}

	if r.cfg.TmpDir != "" {
		_ = os.MkdirAll(r.cfg.TmpDir, 0o755)
	}
	stageDir, err := os.MkdirTemp(r.cfg.TmpDir, "bintool-*")
	if err != nil {
		return "", fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(stageDir)

	// A full volume shows up as mirror after mirror failing partway. Skip
	// the detour when the platform can tell us up front.
	if free, ferr := r.diskFree(stageDir); ferr == nil && free < minStageBytes {
		return "", fmt.Errorf("%d MB free under %s, need %d MB to stage a download", free>>20, stageDir, minStageBytes>>20)
	}

	var failures []MirrorFailure
	for _, m := range mirrors {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		staged, attempts, err := r.tryMirror(ctx, req, m, stageDir)
		if err != nil {
			r.log.Warn("mirror failed",
				"tool", req.Name, "url", m.URL, "attempts", attempts, "error", err.Error())
			failures = append(failures, MirrorFailure{URL: m.URL, Attempts: attempts, Err: err})
			continue
		}

		published, err := r.cache.Store(r.key, req.Name, staged)
		if err != nil {
			failures = append(failures, MirrorFailure{URL: m.URL, Attempts: attempts, Err: err})
			continue
		}
		return published, nil
	}
	return "", &DownloadExhaustedError{Tool: req.Name, Failures: failures}
}

// tryMirror downloads, verifies and extracts one mirror's archive,
// returning the staged binary path.
func (r *Registry) tryMirror(ctx context.Context, req Requirement, m Mirror, stageDir string) (string, int, error) {
	base := "archive"
	if u, err := url.Parse(m.URL); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			base = b
		}
	}
	archive := filepath.Join(stageDir, base)

	attempts, err := r.dl.fetch(ctx, m.URL, archive, req.MinArchiveBytes)
	if err != nil {
		return "", attempts, err
	}

	if m.SHA256 != "" {
		if err := verifyChecksum(archive, m.SHA256); err != nil {
			return "", attempts, err
		}
	}
	if m.SigURL != "" && r.verifyRing != nil {
		sig, err := r.dl.fetchSignature(ctx, m.SigURL)
		if err != nil {
			return "", attempts, err
		}
		if err := verifySignature(r.verifyRing, archive, sig); err != nil {
			return "", attempts, err
		}
	}

	staged, err := extractBinary(archive, m, req.Name, stageDir)
	if err != nil {
		return "", attempts, newError(KindExtraction, req.Name, "extract", err)
	}
	return staged, attempts, nil
}
