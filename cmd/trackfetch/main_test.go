package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitQuery(t *testing.T) {
	tests := []struct {
		in            string
		title, artist string
	}{
		{"Shape of You - Ed Sheeran", "Shape of You", "Ed Sheeran"},
		{"Anti-Hero - Taylor Swift", "Anti-Hero", "Taylor Swift"},
		{"Bohemian Rhapsody", "Bohemian Rhapsody", ""},
	}
	for _, tt := range tests {
		title, artist := splitQuery(tt.in)
		if title != tt.title || artist != tt.artist {
			t.Errorf("splitQuery(%q) = %q, %q", tt.in, title, artist)
		}
	}
}

func TestCopyArtifact(t *testing.T) {
	src := filepath.Join(t.TempDir(), "song-1234abcd.mp3")
	if err := os.WriteFile(src, []byte("ID3data"), 0o600); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(t.TempDir(), "nested", "out")

	dest, err := copyArtifact(src, outDir)
	if err != nil {
		t.Fatalf("copyArtifact: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "ID3data" {
		t.Errorf("copy mismatch: %q, %v", data, err)
	}
	if filepath.Base(dest) != "song-1234abcd.mp3" {
		t.Errorf("dest = %q", dest)
	}
}
