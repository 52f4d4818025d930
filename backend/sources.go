package backend

import (
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Adapter names, in default priority order.
const (
	SourceYtDlp       = "ytdlp"
	SourceMP3Juice    = "mp3juice"
	SourceMP3Juices   = "mp3juices"
	SourceTubidy      = "tubidy"
	SourceMP3Skull    = "mp3skull"
	SourceY2Mate      = "y2mate"
	SourceMP3Download = "mp3download"
	SourceDirectDL    = "directdl"
	SourceArchive     = "archive"
)

var KnownSources = []string{
	SourceYtDlp,
	SourceMP3Juice,
	SourceMP3Juices,
	SourceTubidy,
	SourceMP3Skull,
	SourceY2Mate,
	SourceMP3Download,
	SourceDirectDL,
	SourceArchive,
}

func isKnownSource(name string) bool {
	return slices.Contains(KnownSources, name)
}

const (
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	genericUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	mobileUserAgent  = "Mozilla/5.0 (Android 10; Mobile; rv:91.0) Gecko/91.0 Firefox/91.0"

	acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	acceptJSON = "application/json, text/plain, */*"

	minSizeStrict  = 100_000
	minSizeRelaxed = 50_000
)

// browserHeaders builds request headers that look like a normal browser.
// extra is a flat list of key/value pairs.
func browserHeaders(userAgent, accept string, extra ...string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", accept)
	h.Set("Accept-Language", "en-US,en;q=0.5")
	for i := 0; i+1 < len(extra); i += 2 {
		h.Set(extra[i], extra[i+1])
	}
	return h
}

// plusTerm escapes a query with '+' for spaces.
func plusTerm(query string) string {
	return url.QueryEscape(query)
}

// percentTerm escapes a query with %20 for spaces.
func percentTerm(query string) string {
	return strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Link shapes shared by most providers.
const (
	hrefMP3         = `href="([^"]*\.mp3[^"]*)"`
	hrefDownloadMP3 = `href="([^"]*download[^"]*\.mp3[^"]*)"`
	srcMP3          = `src="([^"]*\.mp3[^"]*)"`
	dataURLMP3      = `data-url="([^"]*\.mp3[^"]*)"`
	dataSrcMP3      = `data-src="([^"]*\.mp3[^"]*)"`
	dataDownloadMP3 = `data-download="([^"]*\.mp3[^"]*)"`
	downloadAttrMP3 = `download="([^"]*\.mp3[^"]*)"`
)

// ScrapeProfiles returns the provider definitions keyed by adapter name.
func ScrapeProfiles() map[string]ScrapeProfile {
	return map[string]ScrapeProfile{
		SourceMP3Juice: {
			Name: SourceMP3Juice,
			SearchURLs: func(q string) []string {
				return []string{"https://mp3juice.io/search?q=" + plusTerm(q)}
			},
			Headers:              browserHeaders(genericUserAgent, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"),
			Patterns:             patterns(hrefMP3, dataURLMP3, downloadAttrMP3),
			CandidatesPerPattern: 3,
			MinSize:              minSizeStrict,
			RetrievalTimeout:     20 * time.Second,
		},
		SourceMP3Juices: {
			Name: SourceMP3Juices,
			SearchURLs: func(q string) []string {
				return []string{"https://mp3juices.cc/search/" + plusTerm(q)}
			},
			Headers: browserHeaders(desktopUserAgent, acceptHTML,
				"Connection", "keep-alive",
				"Upgrade-Insecure-Requests", "1"),
			Patterns: patterns(
				hrefDownloadMP3,
				dataURLMP3,
				srcMP3,
				`"url":"([^"]*\.mp3[^"]*)"`,
				`download_url["\s]*:["\s]*([^"]*\.mp3[^"]*)`,
			),
			CandidatesPerPattern: 3,
			MinSize:              minSizeStrict,
			AcceptBinaryBySize:   true,
			RetrievalTimeout:     15 * time.Second,
		},
		SourceTubidy: {
			Name: SourceTubidy,
			SearchURLs: func(q string) []string {
				return []string{"https://tubidy.io/search?q=" + percentTerm(q)}
			},
			Headers: browserHeaders(mobileUserAgent, acceptHTML, "Referer", "https://tubidy.io"),
			Patterns: patterns(
				hrefDownloadMP3,
				dataDownloadMP3,
				`href="([^"]*tubidy[^"]*\.mp3[^"]*)"`,
				`"mp3":"([^"]*\.mp3[^"]*)"`,
			),
			CandidatesPerPattern: 3,
			MinSize:              minSizeStrict,
			RetrievalTimeout:     15 * time.Second,
		},
		SourceMP3Skull: {
			Name: SourceMP3Skull,
			SearchURLs: func(q string) []string {
				return []string{"https://mp3skull.to/search?q=" + plusTerm(q)}
			},
			Headers: browserHeaders(desktopUserAgent, acceptJSON, "Referer", "https://mp3skull.to"),
			Patterns: patterns(
				hrefMP3,
				dataSrcMP3,
				`"download_url":"([^"]*\.mp3[^"]*)"`,
				`downloadUrl["\s]*:["\s]*([^"]*\.mp3[^"]*)`,
			),
			CandidatesPerPattern: 3,
			MinSize:              minSizeStrict,
			RetrievalTimeout:     15 * time.Second,
		},
		SourceY2Mate: {
			Name: SourceY2Mate,
			SearchURLs: func(q string) []string {
				return []string{"https://www.y2mate.com/search/" + plusTerm(q)}
			},
			Headers:              browserHeaders(desktopUserAgent, acceptHTML),
			Patterns:             patterns(hrefMP3, srcMP3, dataSrcMP3),
			CandidatesPerPattern: 3,
			MinSize:              minSizeStrict,
			RetrievalTimeout:     20 * time.Second,
		},
		SourceMP3Download: {
			Name: SourceMP3Download,
			SearchURLs: func(q string) []string {
				return []string{"https://mp3download.to/search?q=" + plusTerm(q)}
			},
			Headers:              browserHeaders(desktopUserAgent, acceptHTML),
			Patterns:             patterns(hrefDownloadMP3, dataDownloadMP3, hrefMP3),
			CandidatesPerPattern: 3,
			MinSize:              minSizeRelaxed,
			RetrievalTimeout:     20 * time.Second,
		},
		SourceDirectDL: {
			Name: SourceDirectDL,
			SearchURLs: func(q string) []string {
				term := plusTerm(q)
				return []string{
					"https://mp3quack.lol/search?q=" + term,
					"https://musicpleer.la/search?q=" + term,
					"https://slider.kz/vk_auth.php?q=" + term,
				}
			},
			Headers:              browserHeaders(genericUserAgent, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"),
			Patterns:             patterns(hrefMP3, srcMP3, dataURLMP3, downloadAttrMP3),
			CandidatesPerPattern: 1,
			MinSize:              minSizeStrict,
			RetrievalTimeout:     20 * time.Second,
		},
	}
}
