package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"slices"
)

// ============================================================================
// Internet Archive Service Implementation
// ============================================================================

const archiveBaseURL = "https://archive.org"

const (
	archiveMaxItems        = 3
	archiveMaxFilesPerItem = 2
)

var archiveAudioFormats = []string{"VBR MP3", "MP3", "MPEG"}

// ArchiveSource searches the Internet Archive audio collection through its
// JSON API instead of scraping HTML.
type ArchiveSource struct {
	resources *ResourceManager
	timeouts  TimeoutConfig
	baseURL   string // overrideable for testing
	headers   http.Header
}

type archiveSearchResponse struct {
	Response struct {
		Docs []struct {
			Identifier string `json:"identifier"`
			Title      string `json:"title"`
		} `json:"docs"`
	} `json:"response"`
}

type archiveMetadataResponse struct {
	Files []struct {
		Name   string `json:"name"`
		Format string `json:"format"`
	} `json:"files"`
}

func NewArchiveSource(resources *ResourceManager, timeouts TimeoutConfig) *ArchiveSource {
	return &ArchiveSource{
		resources: resources,
		timeouts:  timeouts,
		baseURL:   archiveBaseURL,
		headers:   browserHeaders(genericUserAgent, acceptJSON),
	}
}

func (a *ArchiveSource) Name() string {
	return SourceArchive
}

func (a *ArchiveSource) ProbeURL() string {
	return a.baseURL
}

func (a *ArchiveSource) Fetch(ctx context.Context, req FetchRequest) (*ArtifactHandle, error) {
	workDir, err := a.resources.AcquireWorkDir()
	if err != nil {
		return nil, adapterErr(SourceArchive, ErrResource, "work_dir", err)
	}
	target := filepath.Join(workDir, AttemptArtifactName(req.Query, "mp3"))

	params := url.Values{}
	params.Set("q", fmt.Sprintf("title:(%s) AND mediatype:audio", req.Query))
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "creator")
	params.Set("rows", "5")
	params.Set("output", "json")

	var search archiveSearchResponse
	if err := a.getJSON(ctx, a.baseURL+"/advancedsearch.php?"+params.Encode(), &search); err != nil {
		if ctx.Err() != nil {
			return nil, contextFailure(SourceArchive, ctx)
		}
		kind := ErrNetwork
		if errors.Is(err, ErrParse) {
			kind = ErrParse
		}
		return nil, adapterErr(SourceArchive, kind, "search", err)
	}

	var lastErr error
	candidates := 0
	for i, doc := range search.Response.Docs {
		if i == archiveMaxItems {
			break
		}
		if doc.Identifier == "" {
			continue
		}

		var meta archiveMetadataResponse
		if err := a.getJSON(ctx, a.baseURL+"/metadata/"+url.PathEscape(doc.Identifier), &meta); err != nil {
			if ctx.Err() != nil {
				return nil, contextFailure(SourceArchive, ctx)
			}
			lastErr = err
			continue
		}

		tried := 0
		for _, f := range meta.Files {
			if tried == archiveMaxFilesPerItem {
				break
			}
			if !slices.Contains(archiveAudioFormats, f.Format) || f.Name == "" {
				continue
			}
			tried++
			candidates++

			link := fmt.Sprintf("%s/download/%s/%s", a.baseURL, url.PathEscape(doc.Identifier), url.PathEscape(f.Name))
			Logger.Debug("trying candidate", "source", SourceArchive, "url", link)
			handle, err := a.download(ctx, link, target)
			if err == nil {
				Logger.Info("candidate accepted", "source", SourceArchive, "path", handle.Path, "size", handle.SizeBytes)
				return handle, nil
			}
			if ctx.Err() != nil {
				return nil, contextFailure(SourceArchive, ctx)
			}
			lastErr = err
		}
	}

	if candidates == 0 {
		return nil, adapterErr(SourceArchive, ErrParse, "no_audio_files", lastErr)
	}
	return nil, adapterErr(SourceArchive, ErrValidation, "no_valid_candidate", lastErr)
}

func (a *ArchiveSource) getJSON(ctx context.Context, rawURL string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeouts.Search)
	defer cancel()

	resp, err := a.resources.Get(ctx, rawURL, a.headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchPageBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", ErrParse, err)
	}
	return nil
}

func (a *ArchiveSource) download(ctx context.Context, link, target string) (*ArtifactHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeouts.Retrieval)
	defer cancel()

	resp, err := a.resources.Get(ctx, link, a.headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download server returned %d", ErrNetwork, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !acceptableMedia(contentType, resp.ContentLength, minSizeStrict, true) {
		return nil, fmt.Errorf("%w: content type %q", ErrValidation, contentType)
	}

	size, err := writeArtifact(resp.Body, target, minSizeStrict)
	if err != nil {
		return nil, err
	}
	return &ArtifactHandle{Path: target, SizeBytes: size, Source: SourceArchive}, nil
}
