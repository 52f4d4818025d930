package backend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	statusTTL          = 5 * time.Minute
	statusProbeTimeout = 10 * time.Second
	maxParallelProbes  = 4
)

// ServiceStatus represents the health of one adapter's upstream.
type ServiceStatus struct {
	Status    string    `json:"status"` // "up", "down", "unknown"
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// probeable is implemented by adapters backed by a website.
type probeable interface {
	ProbeURL() string
}

// toolBacked is implemented by adapters backed by a local binary.
type toolBacked interface {
	Available(ctx context.Context) (string, error)
}

// StatusChecker caches reachability of adapters' upstreams.
type StatusChecker struct {
	proxyURL string
	ttl      time.Duration

	mu      sync.RWMutex
	entries map[string]ServiceStatus
}

func NewStatusChecker(proxyURL string, ttl time.Duration) *StatusChecker {
	if ttl <= 0 {
		ttl = statusTTL
	}
	return &StatusChecker{
		proxyURL: proxyURL,
		ttl:      ttl,
		entries:  make(map[string]ServiceStatus),
	}
}

// Check returns the status of every adapter. Results are cached for the
// checker's TTL to avoid hammering external endpoints.
func (c *StatusChecker) Check(ctx context.Context, adapters []Adapter) map[string]ServiceStatus {
	result := make(map[string]ServiceStatus, len(adapters))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelProbes)

	for _, adapter := range adapters {
		name := adapter.Name()

		c.mu.RLock()
		cached, ok := c.entries[name]
		c.mu.RUnlock()
		if ok && time.Since(cached.CheckedAt) < c.ttl {
			result[name] = cached
			continue
		}

		adapter := adapter
		g.Go(func() error {
			status := c.probe(ctx, adapter)

			c.mu.Lock()
			c.entries[name] = status
			c.mu.Unlock()

			mu.Lock()
			result[name] = status
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return result
}

func (c *StatusChecker) probe(ctx context.Context, adapter Adapter) ServiceStatus {
	switch a := adapter.(type) {
	case toolBacked:
		version, err := a.Available(ctx)
		if err != nil {
			return ServiceStatus{Status: "down", Detail: err.Error(), CheckedAt: time.Now()}
		}
		return ServiceStatus{Status: "up", Detail: version, CheckedAt: time.Now()}
	case probeable:
		return probeService(ctx, a.ProbeURL(), c.proxyURL)
	}
	return ServiceStatus{Status: "unknown", CheckedAt: time.Now()}
}

func probeService(ctx context.Context, endpoint, proxyURL string) ServiceStatus {
	if endpoint == "" {
		return ServiceStatus{Status: "unknown", CheckedAt: time.Now()}
	}

	client, err := NewHTTPClient(statusProbeTimeout, proxyURL)
	if err != nil {
		client = &http.Client{Timeout: statusProbeTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return ServiceStatus{Status: "down", Detail: err.Error(), CheckedAt: time.Now()}
	}
	req.Header.Set("User-Agent", desktopUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return ServiceStatus{Status: "down", CheckedAt: time.Now()}
	}
	defer resp.Body.Close()

	status := "up"
	if resp.StatusCode >= 500 {
		status = "down"
	}
	return ServiceStatus{Status: status, CheckedAt: time.Now()}
}
