package backend

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Artifact naming. Every file an adapter writes is named from the search
// query so concurrent acquisitions of different tracks never collide. Each
// attempt adds its own suffix so repeated fetches of one query never share
// a file either.

const (
	artifactHashLen  = 8
	attemptIDLen     = 8
	maxSlugLength    = 80
	defaultExtension = "mp3"
	fallbackSlug     = "track"
)

var (
	unsafeSlugChars = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)
	slugSeparators  = regexp.MustCompile(`[-\s]+`)
	unsafeExtChars  = regexp.MustCompile(`[^a-z0-9]`)
)

// ArtifactHash returns the first 8 hex digits of the MD5 of the raw query.
func ArtifactHash(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])[:artifactHashLen]
}

// ArtifactBase returns "<slug>-<hash>" for a query, without extension.
// The result only contains [A-Za-z0-9_-].
func ArtifactBase(query string) string {
	return slugify(query) + "-" + ArtifactHash(query)
}

// MakeArtifactName returns "<slug>-<hash>.<ext>". The extension is reduced
// to lowercase alphanumerics and defaults to mp3.
func MakeArtifactName(query, ext string) string {
	return ArtifactBase(query) + "." + cleanExtension(ext)
}

// AttemptBase returns "<slug>-<hash>-<id>" where id is fresh for every call.
func AttemptBase(query string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ArtifactBase(query) + "-" + id[:attemptIDLen]
}

// AttemptArtifactName is MakeArtifactName with a per-attempt id.
func AttemptArtifactName(query, ext string) string {
	return AttemptBase(query) + "." + cleanExtension(ext)
}

func cleanExtension(ext string) string {
	ext = unsafeExtChars.ReplaceAllString(strings.ToLower(strings.TrimPrefix(ext, ".")), "")
	if ext == "" {
		ext = defaultExtension
	}
	return ext
}

// slugify keeps ASCII word characters, collapses separators into a single
// dash and trims the result.
func slugify(query string) string {
	slug := unsafeSlugChars.ReplaceAllString(query, "")
	slug = slugSeparators.ReplaceAllString(strings.TrimSpace(slug), "-")
	slug = strings.Trim(slug, "-_")

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-_")
	}
	if slug == "" {
		return fallbackSlug
	}
	return slug
}
