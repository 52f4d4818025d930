package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// librewolfProfilePath picks the profile yt-dlp should read cookies from
// inside a LibreWolf data directory such as ~/.librewolf.
func librewolfProfilePath(root string) (string, error) {
	for _, rel := range profilesFromIni(filepath.Join(root, "profiles.ini")) {
		dir := filepath.Join(root, rel)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("librewolf directory not found: %w", err)
	}
	best, bestRank := "", 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if rank := profileDirRank(entry.Name()); rank > bestRank {
			best, bestRank = entry.Name(), rank
		}
	}
	if best == "" {
		return "", fmt.Errorf("no librewolf profile in %s", root)
	}
	return filepath.Join(root, best), nil
}

// profilesFromIni lists candidate profile paths relative to the data
// directory: install defaults first, then profiles flagged Default=1.
func profilesFromIni(path string) []string {
	file, err := ini.Load(path)
	if err != nil {
		return nil
	}

	var installs, flagged []string
	for _, section := range file.Sections() {
		switch name := section.Name(); {
		case strings.HasPrefix(name, "Install"):
			if p := section.Key("Default").String(); p != "" {
				installs = append(installs, p)
			}
		case strings.HasPrefix(name, "Profile"):
			if section.Key("Default").MustBool(false) {
				if p := section.Key("Path").String(); p != "" {
					flagged = append(flagged, p)
				}
			}
		}
	}
	return append(installs, flagged...)
}

// profileDirRank scores a directory name found by scanning; 0 means it is
// not a profile.
func profileDirRank(name string) int {
	switch {
	case strings.HasSuffix(name, ".default-default"):
		return 2
	case strings.Contains(name, ".default"):
		return 1
	}
	return 0
}

// resolveCookiesBrowser maps a browser name to the --cookies-from-browser
// value. LibreWolf is read through its Firefox profile.
func resolveCookiesBrowser(browser string) (string, error) {
	if browser != "librewolf" {
		return browser, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	profile, err := librewolfProfilePath(filepath.Join(home, ".librewolf"))
	if err != nil {
		return "", fmt.Errorf("failed to find librewolf profile: %w", err)
	}
	return "firefox:" + profile, nil
}
