package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const workDirPrefix = "trackfetch-"

// ResourceManager owns the shared network session and the private work
// directory of one orchestrator. Both are created on first use and released
// by Cleanup. All methods are safe for concurrent use.
type ResourceManager struct {
	cfg SessionConfig

	mu       sync.Mutex
	workDir  string
	client   *http.Client
	limiters map[string]*rate.Limiter
}

// NewResourceManager creates a manager; nothing touches disk or network
// until the first acquisition.
func NewResourceManager(cfg SessionConfig) *ResourceManager {
	return &ResourceManager{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// AcquireWorkDir returns the private temporary directory, creating it under
// the configured root (platform temp dir by default) if needed.
func (r *ResourceManager) AcquireWorkDir() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.workDir != "" {
		if _, err := os.Stat(r.workDir); err == nil {
			return r.workDir, nil
		}
		if err := os.MkdirAll(r.workDir, 0o700); err != nil {
			return "", fmt.Errorf("%w: recreate work directory: %v", ErrResource, err)
		}
		return r.workDir, nil
	}

	dir, err := os.MkdirTemp(r.cfg.TempRoot, workDirPrefix)
	if err != nil {
		return "", fmt.Errorf("%w: create work directory: %v", ErrResource, err)
	}
	r.workDir = dir
	Logger.Info("work directory created", "path", dir)
	return dir, nil
}

// Client returns the shared pooled HTTP client.
func (r *ResourceManager) Client() (*http.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}
	client, err := NewHTTPClient(0, r.cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResource, err)
	}
	r.client = client
	return client, nil
}

// Wait blocks until the per-host pacing allows another request.
func (r *ResourceManager) Wait(ctx context.Context, host string) error {
	if r.cfg.RequestsPerSecond <= 0 {
		return nil
	}

	r.mu.Lock()
	lim, ok := r.limiters[host]
	if !ok {
		burst := r.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), burst)
		r.limiters[host] = lim
	}
	r.mu.Unlock()

	return lim.Wait(ctx)
}

// Get issues a paced GET on the shared client. The caller closes the body.
func (r *ResourceManager) Get(ctx context.Context, rawURL string, headers http.Header) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	client, err := r.Client()
	if err != nil {
		return nil, err
	}
	if err := r.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	return client.Do(req)
}

// Contains reports whether path lies inside the current work directory.
func (r *ResourceManager) Contains(path string) bool {
	r.mu.Lock()
	dir := r.workDir
	r.mu.Unlock()

	if dir == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// RemoveArtifact deletes a single file. A missing file is not an error;
// directories are refused.
func (r *ResourceManager) RemoveArtifact(path string) error {
	if path == "" {
		return nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		Logger.Warn("failed to stat artifact", "path", path, "err", err)
		return fmt.Errorf("%w: %v", ErrResource, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: refusing to remove directory %s", ErrResource, path)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		Logger.Warn("failed to remove artifact", "path", path, "err", err)
		return fmt.Errorf("%w: %v", ErrResource, err)
	}
	Logger.Debug("artifact removed", "path", path)
	return nil
}

// Cleanup closes the shared session and removes the work directory. It is
// idempotent, never panics and never returns an error; failures are logged.
// A later acquisition lazily recreates whatever was released.
func (r *ResourceManager) Cleanup() {
	defer func() {
		if rec := recover(); rec != nil {
			Logger.Error("cleanup panicked", "panic", rec)
		}
	}()

	r.mu.Lock()
	client, dir := r.client, r.workDir
	r.client, r.workDir = nil, ""
	r.limiters = make(map[string]*rate.Limiter)
	r.mu.Unlock()

	if client != nil {
		client.CloseIdleConnections()
	}
	if dir == "" {
		return
	}

	if err := os.RemoveAll(dir); err != nil {
		Logger.Error("failed to remove work directory", "path", dir, "err", err)
		// keep the path so the next Cleanup retries it
		r.mu.Lock()
		if r.workDir == "" {
			r.workDir = dir
		}
		r.mu.Unlock()
		return
	}
	Logger.Info("work directory removed", "path", dir)
}

// writeArtifact streams body into a .part file next to target and renames
// it into place only when the transferred size exceeds minSize. Nothing is
// left behind on failure.
func writeArtifact(body io.Reader, target string, minSize int64) (int64, error) {
	part, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResource, err)
	}
	partPath := part.Name()
	defer os.Remove(partPath)

	_, copyErr := io.Copy(part, body)
	closeErr := part.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("%w: download interrupted: %v", ErrNetwork, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrResource, closeErr)
	}

	info, err := os.Stat(partPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResource, err)
	}
	if info.Size() <= minSize {
		return info.Size(), fmt.Errorf("%w: %d bytes is below the %d byte minimum", ErrValidation, info.Size(), minSize)
	}

	if err := os.Rename(partPath, target); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResource, err)
	}
	return info.Size(), nil
}
