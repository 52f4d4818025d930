package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/wader/goutubedl"

	"trackfetch/backend"
)

func main() {
	var (
		configPath string
		title      string
		artist     string
		quality    string
		outDir     string
		sources    []string
		showStatus bool
		debug      bool
	)

	pflag.StringVarP(&configPath, "config", "c", "", "Path to config.ini (default: user config dir)")
	pflag.StringVarP(&title, "title", "t", "", "Track title")
	pflag.StringVarP(&artist, "artist", "a", "", "Track artist")
	pflag.StringVarP(&quality, "quality", "q", "320", "Bitrate ceiling: 128, 192 or 320")
	pflag.StringVarP(&outDir, "output", "o", ".", "Directory to copy the acquired file into")
	pflag.StringSliceVar(&sources, "sources", nil, "Comma-separated adapter order (default: all, built-in order)")
	pflag.BoolVar(&showStatus, "status", false, "Print upstream status for each source and exit")
	pflag.BoolVar(&debug, "debug", false, "Enable debug logging")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [title - artist]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "Sources: %s\n\nOptions:\n", strings.Join(backend.KnownSources, ", "))
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if title == "" && pflag.NArg() > 0 {
		title, artist = splitQuery(strings.Join(pflag.Args(), " "))
	}

	config, err := backend.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if debug {
		config.LogLevel = "debug"
	}
	backend.InitLogger(config.LogLevel)
	if config.Extractor.Binary != "" {
		goutubedl.Path = config.Extractor.Binary
	}

	if len(sources) > 0 {
		if err := backend.ValidateSources(sources); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		config.Sources.Priority = sources
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resources := backend.NewResourceManager(config.Session)
	orchestrator := backend.NewOrchestrator(config, resources, backend.DefaultAdapters(config, resources)...)
	defer orchestrator.Shutdown()

	if showStatus {
		printStatus(ctx, orchestrator, config.Session.ProxyURL)
		return
	}

	if title == "" {
		pflag.Usage()
		os.Exit(2)
	}

	track := backend.TrackDescriptor{Title: title, Artist: artist}
	handle, err := orchestrator.Acquire(ctx, track, backend.ParseQuality(quality))
	if err != nil {
		printFailure(orchestrator.Result(track, handle, err))
		orchestrator.Shutdown()
		os.Exit(1)
	}

	dest, err := copyArtifact(handle.Path, outDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "copy:", err)
		orchestrator.Shutdown()
		os.Exit(1)
	}
	fmt.Printf("%s (%d bytes, via %s)\n", dest, handle.SizeBytes, handle.Source)
}

// splitQuery accepts "title - artist"; without a separator the whole
// string is the title.
func splitQuery(q string) (string, string) {
	if title, artist, ok := strings.Cut(q, " - "); ok {
		return strings.TrimSpace(title), strings.TrimSpace(artist)
	}
	return strings.TrimSpace(q), ""
}

func printFailure(res backend.Result) {
	fmt.Fprintln(os.Stderr, res.Error)
	for _, a := range res.Attempts {
		fmt.Fprintf(os.Stderr, "  %-12s %-8s %s\n", a.Adapter, a.Status, a.Reason)
	}
}

func printStatus(ctx context.Context, o *backend.Orchestrator, proxyURL string) {
	adapters := o.Adapters()
	statuses := backend.NewStatusChecker(proxyURL, 0).Check(ctx, adapters)
	for _, a := range adapters {
		s := statuses[a.Name()]
		fmt.Printf("%-12s %-8s %s\n", a.Name(), s.Status, s.Detail)
	}
}

// copyArtifact copies src into dir, keeping its file name. The work
// directory is removed on exit, so the copy is what the user keeps.
func copyArtifact(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, filepath.Base(src))

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", errors.Join(err, os.Remove(dest))
	}
	return dest, nil
}
