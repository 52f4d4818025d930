package backend

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// chdirTemp moves into an empty directory so no stray .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timeouts.AdapterBudget != 60*time.Second {
		t.Errorf("AdapterBudget = %v", cfg.Timeouts.AdapterBudget)
	}
	if !slices.Equal(cfg.Sources.Priority, KnownSources) {
		t.Errorf("Priority = %v", cfg.Sources.Priority)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	// defaults must not alias the package slice
	cfg.Sources.Priority[0] = "changed"
	if KnownSources[0] != SourceYtDlp {
		t.Fatal("DefaultConfig aliases KnownSources")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	chdirTemp(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.ini"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Server.Listen)
	}
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := chdirTemp(t)
	path := writeConfigFile(t, `
log_level = debug

[timeouts]
adapter_budget = 30s
search = 5s

[extractor]
cookies_browser = firefox

[sources]
priority = ytdlp, archive, tubidy
disabled = tubidy

[server]
listen = :9000
`)
	// .env beats the file, the process environment beats .env
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TRACKFETCH_LISTEN=:9100\nYTDLP_COOKIES_BROWSER=chrome\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRACKFETCH_LISTEN", ":9200")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("YTDLP_COOKIES_BROWSER") })

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Timeouts.AdapterBudget != 30*time.Second || cfg.Timeouts.Search != 5*time.Second {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.Retrieval != 20*time.Second {
		t.Errorf("unset keys should keep defaults, Retrieval = %v", cfg.Timeouts.Retrieval)
	}
	if !slices.Equal(cfg.Sources.Priority, []string{"ytdlp", "archive", "tubidy"}) {
		t.Errorf("Priority = %v", cfg.Sources.Priority)
	}
	if !slices.Equal(cfg.Sources.Disabled, []string{"tubidy"}) {
		t.Errorf("Disabled = %v", cfg.Sources.Disabled)
	}
	if cfg.Extractor.CookiesBrowser != "chrome" {
		t.Errorf("CookiesBrowser = %q, want .env value", cfg.Extractor.CookiesBrowser)
	}
	if cfg.Server.Listen != ":9200" {
		t.Errorf("Listen = %q, want environment value", cfg.Server.Listen)
	}
}

func TestLoadConfig_EnvList(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRACKFETCH_SOURCES", "archive,ytdlp")
	t.Setenv("TRACKFETCH_ADAPTER_BUDGET", "45s")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.ini"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !slices.Equal(cfg.Sources.Priority, []string{"archive", "ytdlp"}) {
		t.Errorf("Priority = %v", cfg.Sources.Priority)
	}
	if cfg.Timeouts.AdapterBudget != 45*time.Second {
		t.Errorf("AdapterBudget = %v", cfg.Timeouts.AdapterBudget)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	chdirTemp(t)
	cases := map[string]string{
		"unknown source":  "[sources]\npriority = ytdlp, napster\n",
		"system root":     "[session]\ntemp_root = /etc\n",
		"zero budget":     "[timeouts]\nadapter_budget = 0s\n",
		"negative search": "[timeouts]\nsearch = -5s\n",
		"bad retrieval":   "[timeouts]\nretrieval = soon\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfigFile(t, content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig_INITimeouts(t *testing.T) {
	chdirTemp(t)
	path := writeConfigFile(t, "[timeouts]\nadapter_budget = 90s\nsearch = 3s\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Timeouts.AdapterBudget != 90*time.Second || cfg.Timeouts.Search != 3*time.Second {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Timeouts.Retrieval != DefaultConfig().Timeouts.Retrieval {
		t.Errorf("Retrieval = %v, want the default", cfg.Timeouts.Retrieval)
	}
}

func TestGetConfigPath_Env(t *testing.T) {
	t.Setenv("TRACKFETCH_CONFIG", "/opt/trackfetch.ini")
	if got := GetConfigPath(); got != "/opt/trackfetch.ini" {
		t.Errorf("GetConfigPath() = %q", got)
	}
}
