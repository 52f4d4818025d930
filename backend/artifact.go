package backend

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// TrackDescriptor identifies what to search for.
type TrackDescriptor struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Query returns "<title> <artist>" with whitespace collapsed.
func (t TrackDescriptor) Query() string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(t.Title+" "+t.Artist, " "))
}

// ArtifactHandle is a downloaded audio file on local ephemeral storage.
// The caller owns it once Acquire returns and must release it through
// RemoveArtifact or Cleanup.
type ArtifactHandle struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	Source    string `json:"source"`
}

// FetchRequest is what the orchestrator hands to every adapter.
type FetchRequest struct {
	Query   string
	Track   TrackDescriptor
	Quality Quality
}

// Adapter obtains an audio file from exactly one provider. Implementations
// return either a handle or an *AdapterError and honor ctx cancellation.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req FetchRequest) (*ArtifactHandle, error)
}

// AttemptStatus is the terminal state of one adapter invocation.
type AttemptStatus string

const (
	StatusSuccess AttemptStatus = "success"
	StatusFailure AttemptStatus = "failure"
	StatusTimeout AttemptStatus = "timeout"
)

// AttemptOutcome records one adapter invocation inside an Acquire call.
type AttemptOutcome struct {
	Adapter  string          `json:"adapter"`
	Status   AttemptStatus   `json:"status"`
	Err      error           `json:"-"`
	Artifact *ArtifactHandle `json:"artifact,omitempty"`
	Elapsed  time.Duration   `json:"elapsed"`
}

// Reason renders the failure kind for logs and the caller boundary.
func (o AttemptOutcome) Reason() string {
	switch {
	case o.Status == StatusSuccess:
		return "ok"
	case o.Status == StatusTimeout:
		return ErrTimeout.Error()
	case o.Err == nil:
		return "unknown"
	}
	var ae *AdapterError
	if errors.As(o.Err, &ae) {
		return ae.Reason()
	}
	return o.Err.Error()
}
