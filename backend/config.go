package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Application configuration. Layering, lowest to highest precedence:
// defaults, INI file, .env file, process environment.

type Config struct {
	LogLevel  string          `ini:"log_level" env:"LOG_LEVEL"`
	Session   SessionConfig   `ini:"session"`
	Timeouts  TimeoutConfig   `ini:"timeouts"`
	Extractor ExtractorConfig `ini:"extractor"`
	Sources   SourcesConfig   `ini:"sources"`
	Server    ServerConfig    `ini:"server"`
}

type SessionConfig struct {
	TempRoot          string  `ini:"temp_root" env:"TRACKFETCH_TEMP_ROOT"`
	ProxyURL          string  `ini:"proxy_url" env:"PROXY_URL"`
	RequestsPerSecond float64 `ini:"requests_per_second" env:"TRACKFETCH_RPS"`
	Burst             int     `ini:"burst" env:"TRACKFETCH_BURST"`
}

type TimeoutConfig struct {
	AdapterBudget time.Duration `ini:"adapter_budget" env:"TRACKFETCH_ADAPTER_BUDGET"`
	Search        time.Duration `ini:"search" env:"TRACKFETCH_SEARCH_TIMEOUT"`
	Retrieval     time.Duration `ini:"retrieval" env:"TRACKFETCH_RETRIEVAL_TIMEOUT"`
}

type ExtractorConfig struct {
	Binary         string `ini:"binary" env:"YTDLP_PATH"`
	CookiesFile    string `ini:"cookies_file" env:"YTDLP_COOKIES"`
	CookiesBrowser string `ini:"cookies_browser" env:"YTDLP_COOKIES_BROWSER"` // "firefox", "chrome", "librewolf", ...
	Disabled       bool   `ini:"disabled" env:"YTDLP_DISABLED"`
}

type SourcesConfig struct {
	Priority []string `ini:"priority" delim:"," env:"TRACKFETCH_SOURCES" envSeparator:","`
	Disabled []string `ini:"disabled" delim:"," env:"TRACKFETCH_DISABLED_SOURCES" envSeparator:","`
}

type ServerConfig struct {
	Listen string `ini:"listen" env:"TRACKFETCH_LISTEN"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Session: SessionConfig{
			TempRoot:          "",
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Timeouts: TimeoutConfig{
			AdapterBudget: 60 * time.Second,
			Search:        15 * time.Second,
			Retrieval:     20 * time.Second,
		},
		Extractor: ExtractorConfig{
			Binary:      "yt-dlp",
			CookiesFile: "cookies.txt",
		},
		Sources: SourcesConfig{
			Priority: append([]string(nil), KnownSources...),
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
	}
}

// GetConfigPath returns the default path of the INI file.
func GetConfigPath() string {
	if p := os.Getenv("TRACKFETCH_CONFIG"); p != "" {
		return p
	}
	configDir, _ := os.UserConfigDir()
	return filepath.Join(configDir, "trackfetch", "config.ini")
}

// LoadConfig builds the effective configuration. An empty path means
// GetConfigPath; a missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = GetConfigPath()
	}
	if err := loadINI(cfg, path); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		Logger.Warn("could not read .env file", "err", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadINI(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := file.MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map config %s: %w", path, err)
	}
	return readTimeouts(file.Section("timeouts"), &cfg.Timeouts)
}

// readTimeouts re-reads the duration keys by hand. MapTo drops zero and
// negative durations, which would hide them from Validate.
func readTimeouts(section *ini.Section, t *TimeoutConfig) error {
	fields := []struct {
		key string
		dst *time.Duration
	}{
		{"adapter_budget", &t.AdapterBudget},
		{"search", &t.Search},
		{"retrieval", &t.Retrieval},
	}
	for _, f := range fields {
		if !section.HasKey(f.key) {
			continue
		}
		d, err := section.Key(f.key).Duration()
		if err != nil {
			return fmt.Errorf("invalid timeouts.%s: %w", f.key, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Timeouts.AdapterBudget <= 0 {
		return fmt.Errorf("adapter budget must be positive, got %s", c.Timeouts.AdapterBudget)
	}
	if c.Timeouts.Search <= 0 || c.Timeouts.Retrieval <= 0 {
		return fmt.Errorf("search and retrieval timeouts must be positive")
	}
	if err := ValidateTempRoot(c.Session.TempRoot); err != nil {
		return err
	}
	if err := ValidateSources(c.Sources.Priority); err != nil {
		return err
	}
	return ValidateSources(c.Sources.Disabled)
}
