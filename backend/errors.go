package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Adapters wrap one of these in an *AdapterError so the
// orchestrator and callers can classify outcomes with errors.Is.
var (
	ErrNetwork    = errors.New("network error")
	ErrParse      = errors.New("no recognizable media link")
	ErrValidation = errors.New("artifact failed validation")
	ErrTool       = errors.New("extraction tool failed")
	ErrResource   = errors.New("resource error")
	ErrTimeout    = errors.New("adapter budget exceeded")
	ErrCanceled   = errors.New("acquisition canceled")
)

// AdapterError is the only error type returned across the adapter boundary.
type AdapterError struct {
	Adapter string
	Kind    error
	Detail  string
	Err     error
}

func (e *AdapterError) Error() string {
	return e.Adapter + ": " + e.Reason()
}

// Reason renders the error without the adapter name.
func (e *AdapterError) Reason() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AdapterError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func adapterErr(adapter string, kind error, detail string, err error) *AdapterError {
	return &AdapterError{Adapter: adapter, Kind: kind, Detail: detail, Err: err}
}

// kindOf returns the taxonomy sentinel carried by err, or ErrResource for
// anything unclassified.
func kindOf(err error) error {
	for _, kind := range []error{ErrTimeout, ErrCanceled, ErrNetwork, ErrParse, ErrValidation, ErrTool, ErrResource} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrResource
}

// AggregatedFailure is returned by Acquire when every adapter failed. It is
// a normal outcome, not a fault.
type AggregatedFailure struct {
	Track    TrackDescriptor
	Attempts []AttemptOutcome
	// Invalid is set when the descriptor was rejected before any adapter ran.
	Invalid error
}

func (f *AggregatedFailure) Error() string {
	if f.Invalid != nil {
		return fmt.Sprintf("invalid track: %v", f.Invalid)
	}
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Adapter, a.Reason()))
	}
	return fmt.Sprintf("could not find %q: %s", f.Track.Query(), strings.Join(parts, "; "))
}
