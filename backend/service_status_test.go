package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbeService_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	status := probeService(context.Background(), srv.URL, "")
	if status.Status != "up" {
		t.Errorf("expected 'up', got %q", status.Status)
	}
	if status.CheckedAt.IsZero() {
		t.Error("CheckedAt should be set")
	}
}

func TestProbeService_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	status := probeService(context.Background(), srv.URL, "")
	if status.Status != "down" {
		t.Errorf("expected 'down', got %q", status.Status)
	}
}

func TestProbeService_Unreachable(t *testing.T) {
	// Start a server then immediately close it to get a "connection refused" fast
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	status := probeService(context.Background(), addr, "")
	if status.Status != "down" {
		t.Errorf("expected 'down' for unreachable host, got %q", status.Status)
	}
}

type probeAdapter struct {
	name string
	url  string
}

func (p probeAdapter) Name() string     { return p.name }
func (p probeAdapter) ProbeURL() string { return p.url }
func (p probeAdapter) Fetch(context.Context, FetchRequest) (*ArtifactHandle, error) {
	return nil, adapterErr(p.name, ErrNetwork, "", nil)
}

type toolAdapter struct {
	probeAdapter
	version string
	err     error
}

func (t toolAdapter) Available(context.Context) (string, error) { return t.version, t.err }

func TestStatusChecker_CacheHit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	checker := NewStatusChecker("", time.Minute)
	adapters := []Adapter{probeAdapter{name: "site", url: srv.URL}}

	first := checker.Check(context.Background(), adapters)
	second := checker.Check(context.Background(), adapters)

	if first["site"].Status != "up" || second["site"].Status != "up" {
		t.Fatalf("expected 'up' twice, got %q and %q", first["site"].Status, second["site"].Status)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 probe request, got %d", got)
	}
}

func TestStatusChecker_ToolAndUnknown(t *testing.T) {
	checker := NewStatusChecker("", time.Minute)
	result := checker.Check(context.Background(), []Adapter{
		toolAdapter{probeAdapter: probeAdapter{name: "tool"}, version: "2025.01.01"},
		toolAdapter{probeAdapter: probeAdapter{name: "broken"}, err: errors.New("not found")},
		probeAdapter{name: "nourl"},
	})

	if s := result["tool"]; s.Status != "up" || s.Detail != "2025.01.01" {
		t.Errorf("tool: got %+v", s)
	}
	if s := result["broken"]; s.Status != "down" {
		t.Errorf("broken: got %+v", s)
	}
	if s := result["nourl"]; s.Status != "unknown" {
		t.Errorf("nourl: got %+v", s)
	}
}
