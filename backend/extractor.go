package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/wader/goutubedl"
)

// ============================================================================
// yt-dlp extraction adapter
// ============================================================================

const (
	minExtractedSize   = minSizeRelaxed
	maxDiagnosticBytes = 500
	maxCapturedOutput  = 64 << 10
)

// Extensions yt-dlp may leave behind, probed in order.
var extractedExtensions = []string{"mp3", "m4a", "webm", "ogg", "opus"}

// commandRunner runs an external tool and returns its captured output.
type commandRunner func(ctx context.Context, name string, args []string) (stdout, stderr []byte, err error)

// Extractor runs yt-dlp against its ytsearch index and re-encodes the best
// matching audio stream to mp3.
type Extractor struct {
	cfg       ExtractorConfig
	resources *ResourceManager
	run       commandRunner
}

// NewExtractor binds the yt-dlp adapter to the shared work directory.
func NewExtractor(cfg ExtractorConfig, resources *ResourceManager) *Extractor {
	return &Extractor{cfg: cfg, resources: resources, run: execCommand}
}

func (e *Extractor) Name() string {
	return SourceYtDlp
}

// Available reports whether the yt-dlp binary can be executed. goutubedl
// only knows its own Path, so another configured binary is asked directly.
func (e *Extractor) Available(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	bin := e.binary()
	if bin == goutubedl.Path {
		return goutubedl.Version(ctx)
	}
	stdout, stderr, err := e.run(ctx, bin, []string{"--version"})
	if err != nil {
		return "", fmt.Errorf("%v: %s", err, truncateDiagnostic(stderr))
	}
	return strings.TrimSpace(string(stdout)), nil
}

func (e *Extractor) Fetch(ctx context.Context, req FetchRequest) (*ArtifactHandle, error) {
	workDir, err := e.resources.AcquireWorkDir()
	if err != nil {
		return nil, adapterErr(SourceYtDlp, ErrResource, "work_dir", err)
	}
	baseName := AttemptBase(req.Query)
	base := filepath.Join(workDir, baseName)

	args := e.buildArgs(req, base+".%(ext)s")
	Logger.Debug("running yt-dlp", "binary", e.binary(), "args", strings.Join(args, " "))

	_, stderr, err := e.run(ctx, e.binary(), args)
	if err != nil {
		e.removeLeftovers(workDir, baseName)
		if ctx.Err() != nil {
			return nil, contextFailure(SourceYtDlp, ctx)
		}
		return nil, adapterErr(SourceYtDlp, ErrTool, "exit_status",
			fmt.Errorf("%v: %s", err, truncateDiagnostic(stderr)))
	}

	tooSmall := false
	for _, ext := range extractedExtensions {
		path := base + "." + ext
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() <= minExtractedSize {
			Logger.Warn("extracted file too small", "path", path, "size", info.Size())
			_ = e.resources.RemoveArtifact(path)
			tooSmall = true
			continue
		}
		return &ArtifactHandle{Path: path, SizeBytes: info.Size(), Source: SourceYtDlp}, nil
	}

	e.removeLeftovers(workDir, baseName)
	if tooSmall {
		return nil, adapterErr(SourceYtDlp, ErrValidation, "too_small", nil)
	}
	return nil, adapterErr(SourceYtDlp, ErrTool, "missing_output", nil)
}

func (e *Extractor) binary() string {
	if e.cfg.Binary != "" {
		return e.cfg.Binary
	}
	if goutubedl.Path != "" {
		return goutubedl.Path
	}
	return "yt-dlp"
}

// buildArgs assembles the fixed yt-dlp flag set for one search.
func (e *Extractor) buildArgs(req FetchRequest, outputTemplate string) []string {
	args := []string{"--no-warnings"}
	args = append(args, e.cookieArgs()...)
	args = append(args,
		"--format", req.Quality.FormatSelector(),
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--output", outputTemplate,
		"--no-playlist",
		"--user-agent", desktopUserAgent,
		"ytsearch:"+req.Track.Query(),
	)
	return args
}

// cookieArgs prefers a cookie file in the working directory, then browser
// cookies. Neither is required.
func (e *Extractor) cookieArgs() []string {
	if e.cfg.CookiesFile != "" {
		if _, err := os.Stat(e.cfg.CookiesFile); err == nil {
			return []string{"--cookies", e.cfg.CookiesFile}
		}
	}
	if e.cfg.CookiesBrowser != "" {
		browser, err := resolveCookiesBrowser(e.cfg.CookiesBrowser)
		if err != nil {
			Logger.Warn("ignoring browser cookies", "browser", e.cfg.CookiesBrowser, "err", err)
			return nil
		}
		return []string{"--cookies-from-browser", browser}
	}
	return nil
}

// removeLeftovers deletes every file this run of yt-dlp may have produced,
// including .part and intermediate container files. baseName is unique to
// the run.
func (e *Extractor) removeLeftovers(workDir, baseName string) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), baseName+".") {
			_ = e.resources.RemoveArtifact(filepath.Join(workDir, entry.Name()))
		}
	}
}

func execCommand(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// yt-dlp spawns ffmpeg; don't wait forever on inherited pipes after a kill
	cmd.WaitDelay = 2 * time.Second

	err := cmd.Run()
	if err != nil && errors.Is(err, exec.ErrNotFound) {
		err = fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

func truncateDiagnostic(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxDiagnosticBytes {
		s = s[:maxDiagnosticBytes] + "..."
	}
	if s == "" {
		s = "no diagnostic output"
	}
	return s
}
