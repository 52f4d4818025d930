package backend

import (
	"fmt"
	"net/url"
	"strings"
)

const maxTrackFieldLength = 300

// systemPaths are directories that must never be used as a temp root.
var systemPaths = []string{"/etc", "/root", "/proc", "/sys", "/bin", "/sbin", "/usr/bin", "/dev", "/boot"}

// ValidateTrack rejects descriptors no adapter could search for.
func ValidateTrack(track TrackDescriptor) error {
	for field, value := range map[string]string{"title": track.Title, "artist": track.Artist} {
		if strings.Contains(value, "\x00") {
			return fmt.Errorf("%s contains null bytes", field)
		}
		if len(value) > maxTrackFieldLength {
			return fmt.Errorf("%s exceeds maximum length of %d characters", field, maxTrackFieldLength)
		}
	}
	if strings.TrimSpace(track.Title) == "" {
		return fmt.Errorf("title is empty")
	}
	return nil
}

// ValidateTempRoot rejects roots that overlap with system directories.
func ValidateTempRoot(path string) error {
	if path == "" {
		return nil // empty means the platform temp dir
	}

	for _, sys := range systemPaths {
		if path == sys || strings.HasPrefix(path, sys+"/") {
			return fmt.Errorf("temp root cannot be a system path (%s)", sys)
		}
	}

	return nil
}

// ValidateSources checks that every entry is a known adapter name.
// Values are case-sensitive; only lowercase names are accepted.
func ValidateSources(sources []string) error {
	for _, s := range sources {
		if !isKnownSource(s) {
			return fmt.Errorf("unknown source %q: must be one of %s", s, strings.Join(KnownSources, ", "))
		}
	}
	return nil
}

// ValidateCandidateURL only lets http and https links through to the
// retrieval step.
func ValidateCandidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid candidate URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("candidate URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("candidate URL has no host")
	}
	return nil
}
