package backend

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ============================================================================
// Generic HTML scraping adapter
// ============================================================================

const maxSearchPageBytes = 4 << 20

// ScrapeProfile describes how to query one provider and recognize audio
// links in its search page.
type ScrapeProfile struct {
	Name string
	// SearchURLs returns one or more search pages for the query, tried in order.
	SearchURLs func(query string) []string
	Headers    http.Header
	// Patterns are tried in declared order; each must have one capture group.
	Patterns             []*regexp.Regexp
	CandidatesPerPattern int
	MinSize              int64
	// AcceptBinaryBySize lets generic binary responses through when their
	// size clears MinSize.
	AcceptBinaryBySize bool
	RetrievalTimeout   time.Duration
}

// ScrapeSource implements Adapter for a ScrapeProfile.
type ScrapeSource struct {
	profile   ScrapeProfile
	resources *ResourceManager
	timeouts  TimeoutConfig
}

// NewScrapeSource binds a profile to the shared session.
func NewScrapeSource(profile ScrapeProfile, resources *ResourceManager, timeouts TimeoutConfig) *ScrapeSource {
	if profile.CandidatesPerPattern <= 0 {
		profile.CandidatesPerPattern = 3
	}
	if profile.RetrievalTimeout <= 0 {
		profile.RetrievalTimeout = timeouts.Retrieval
	}
	return &ScrapeSource{profile: profile, resources: resources, timeouts: timeouts}
}

func (s *ScrapeSource) Name() string {
	return s.profile.Name
}

// ProbeURL is the page used for reachability checks.
func (s *ScrapeSource) ProbeURL() string {
	urls := s.profile.SearchURLs("test")
	if len(urls) == 0 {
		return ""
	}
	u, err := url.Parse(urls[0])
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func (s *ScrapeSource) Fetch(ctx context.Context, req FetchRequest) (*ArtifactHandle, error) {
	name := s.profile.Name

	workDir, err := s.resources.AcquireWorkDir()
	if err != nil {
		return nil, adapterErr(name, ErrResource, "work_dir", err)
	}
	target := filepath.Join(workDir, AttemptArtifactName(req.Query, "mp3"))

	var lastErr error
	matched := false

	for _, searchURL := range s.profile.SearchURLs(req.Query) {
		page, base, err := s.search(ctx, searchURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, contextFailure(name, ctx)
			}
			Logger.Debug("search failed", "source", name, "url", searchURL, "err", err)
			lastErr = err
			continue
		}

		seen := make(map[string]bool)
		for _, pattern := range s.profile.Patterns {
			candidates := extractCandidates(page, base, pattern, s.profile.CandidatesPerPattern, seen)
			if len(candidates) == 0 {
				continue
			}
			matched = true

			for _, link := range candidates {
				Logger.Debug("trying candidate", "source", name, "url", link)
				handle, err := s.retrieve(ctx, link, target)
				if err == nil {
					Logger.Info("candidate accepted", "source", name, "path", handle.Path, "size", handle.SizeBytes)
					return handle, nil
				}
				if ctx.Err() != nil {
					return nil, contextFailure(name, ctx)
				}
				Logger.Debug("candidate rejected", "source", name, "url", link, "err", err)
				lastErr = err
			}
		}
	}

	switch {
	case matched:
		return nil, adapterErr(name, ErrValidation, "no_valid_candidate", lastErr)
	case lastErr != nil:
		return nil, adapterErr(name, ErrNetwork, "bad_status", lastErr)
	default:
		return nil, adapterErr(name, ErrParse, "no_candidates", nil)
	}
}

func (s *ScrapeSource) search(ctx context.Context, searchURL string) (string, *url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Search)
	defer cancel()

	resp, err := s.resources.Get(ctx, searchURL, s.profile.Headers)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchPageBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read search page: %w", err)
	}
	return string(body), resp.Request.URL, nil
}

func (s *ScrapeSource) retrieve(ctx context.Context, link, target string) (*ArtifactHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.profile.RetrievalTimeout)
	defer cancel()

	resp, err := s.resources.Get(ctx, link, s.profile.Headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download server returned %d", ErrNetwork, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !acceptableMedia(contentType, resp.ContentLength, s.profile.MinSize, s.profile.AcceptBinaryBySize) {
		return nil, fmt.Errorf("%w: content type %q", ErrValidation, contentType)
	}

	size, err := writeArtifact(resp.Body, target, s.profile.MinSize)
	if err != nil {
		return nil, err
	}
	return &ArtifactHandle{Path: target, SizeBytes: size, Source: s.profile.Name}, nil
}

// acceptableMedia decides from headers alone whether a body is worth
// transferring. Text responses are never audio.
func acceptableMedia(contentType string, contentLength, minSize int64, binaryBySize bool) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case strings.HasPrefix(mediaType, "text/"),
		strings.Contains(mediaType, "html"),
		strings.Contains(mediaType, "json"),
		strings.Contains(mediaType, "xml"):
		return false
	case strings.HasPrefix(mediaType, "audio/"), strings.Contains(mediaType, "mpeg"):
		return true
	case binaryBySize && isGenericBinary(mediaType):
		// unknown length is settled by the post-transfer size check
		return contentLength < 0 || contentLength > minSize
	}
	return false
}

func isGenericBinary(mediaType string) bool {
	switch mediaType {
	case "", "application/octet-stream", "binary/octet-stream",
		"application/force-download", "application/download", "application/x-download":
		return true
	}
	return false
}

// extractCandidates returns up to limit absolute http(s) links captured by
// pattern, skipping any already in seen.
func extractCandidates(page string, base *url.URL, pattern *regexp.Regexp, limit int, seen map[string]bool) []string {
	var out []string
	for _, m := range pattern.FindAllStringSubmatch(page, -1) {
		if len(m) < 2 {
			continue
		}
		link, ok := normalizeCandidate(m[1], base)
		if !ok || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
		if len(out) == limit {
			break
		}
	}
	return out
}

func normalizeCandidate(raw string, base *url.URL) (string, bool) {
	raw = strings.ReplaceAll(raw, `\/`, "/")
	raw = strings.TrimSpace(html.UnescapeString(raw))
	if raw == "" {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}

	link := ref.String()
	if ValidateCandidateURL(link) != nil {
		return "", false
	}
	return link, true
}

// contextFailure classifies an ended context as a timeout or a cancellation.
func contextFailure(adapter string, ctx context.Context) *AdapterError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return adapterErr(adapter, ErrTimeout, "", ctx.Err())
	}
	return adapterErr(adapter, ErrCanceled, "", ctx.Err())
}
