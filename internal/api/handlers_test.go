package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trackfetch/backend"
)

type stubAdapter struct {
	name string
	rm   *backend.ResourceManager
	size int
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Fetch(_ context.Context, req backend.FetchRequest) (*backend.ArtifactHandle, error) {
	if a.size == 0 {
		return nil, &backend.AdapterError{Adapter: a.name, Kind: backend.ErrParse, Detail: "no_candidates"}
	}
	dir, err := a.rm.AcquireWorkDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, backend.MakeArtifactName(req.Query, "mp3"))
	if err := os.WriteFile(path, make([]byte, a.size), 0o600); err != nil {
		return nil, err
	}
	return &backend.ArtifactHandle{Path: path, SizeBytes: int64(a.size), Source: a.name}, nil
}

func newTestServer(t *testing.T, sizes ...int) (*Server, *backend.ResourceManager) {
	t.Helper()
	cfg := backend.DefaultConfig()
	rm := backend.NewResourceManager(backend.SessionConfig{TempRoot: t.TempDir()})
	t.Cleanup(rm.Cleanup)

	var adapters []backend.Adapter
	for i, size := range sizes {
		adapters = append(adapters, &stubAdapter{name: "stub" + string(rune('a'+i)), rm: rm, size: size})
	}
	s := NewServer(cfg, backend.NewOrchestrator(cfg, rm, adapters...), rm)
	t.Cleanup(func() { s.wsHub.Close() })
	return s, rm
}

func doJSON(t *testing.T, s *Server, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
	return resp, out
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)
	resp, body := doJSON(t, s, "GET", "/api/health", "")
	if resp.StatusCode != 200 || body["status"] != "ok" {
		t.Errorf("unexpected response %d %v", resp.StatusCode, body)
	}
}

func TestHandleAcquire_SuccessThenFetchAndDelete(t *testing.T) {
	s, _ := newTestServer(t, 0, 150_000)

	resp, body := doJSON(t, s, "POST", "/api/acquire", `{"title":"Shape of You","artist":"Ed Sheeran","quality":"320"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["success"] != true || body["source"] != "stubb" {
		t.Fatalf("unexpected result %v", body)
	}
	path, _ := body["path"].(string)

	fileResp, err := s.app.Test(httptest.NewRequest("GET", "/api/artifacts/file?path="+url.QueryEscape(path), nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(fileResp.Body)
	fileResp.Body.Close()
	if fileResp.StatusCode != 200 || len(data) != 150_000 {
		t.Errorf("file download: status %d, %d bytes", fileResp.StatusCode, len(data))
	}

	resp, _ = doJSON(t, s, "DELETE", "/api/artifacts?path="+url.QueryEscape(path), "")
	if resp.StatusCode != 200 {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("artifact still on disk after delete")
	}
}

func TestHandleAcquire_AllFailed(t *testing.T) {
	s, _ := newTestServer(t, 0, 0)

	resp, body := doJSON(t, s, "POST", "/api/acquire", `{"title":"Unknown Song","artist":"Nobody"}`)
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	attempts, _ := body["attempts"].([]any)
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %v", body["attempts"])
	}
	first := attempts[0].(map[string]any)
	if first["adapter"] != "stuba" || first["status"] != "failure" {
		t.Errorf("first attempt = %v", first)
	}
}

func TestHandleAcquire_BadInput(t *testing.T) {
	s, _ := newTestServer(t, 150_000)

	for _, body := range []string{`{"artist":"Ed Sheeran"}`, `not json`} {
		resp, _ := doJSON(t, s, "POST", "/api/acquire", body)
		if resp.StatusCode != 400 {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestHandleArtifacts_UnmanagedPath(t *testing.T) {
	s, _ := newTestServer(t)

	resp, _ := doJSON(t, s, "GET", "/api/artifacts/file?path="+url.QueryEscape("/etc/passwd"), "")
	if resp.StatusCode != 404 {
		t.Errorf("GET status = %d, want 404", resp.StatusCode)
	}
	resp, _ = doJSON(t, s, "DELETE", "/api/artifacts?path="+url.QueryEscape("/etc/passwd"), "")
	if resp.StatusCode != 404 {
		t.Errorf("DELETE status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleGetSources(t *testing.T) {
	s, _ := newTestServer(t, 0, 0)

	resp, body := doJSON(t, s, "GET", "/api/sources", "")
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	sources, _ := body["sources"].([]any)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", body["sources"])
	}
	first := sources[0].(map[string]any)
	if first["name"] != "stuba" {
		t.Errorf("first source = %v", first)
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	s, _ := newTestServer(t)
	resp, err := s.app.Test(httptest.NewRequest("GET", "/ws", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}
