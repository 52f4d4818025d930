package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Fallback Orchestrator - tries adapters in priority order
// ============================================================================

// AttemptState is published to the attempt callback on every transition.
type AttemptState string

const (
	StatePending       AttemptState = "PENDING"
	StateTrying        AttemptState = "TRYING"
	StateSucceeded     AttemptState = "SUCCEEDED"
	StateAdapterFailed AttemptState = "ADAPTER_FAILED"
	StateAllFailed     AttemptState = "ALL_FAILED"
)

// AttemptEvent describes one state transition of an Acquire call.
type AttemptEvent struct {
	RequestID string       `json:"requestId"`
	Query     string       `json:"query"`
	Adapter   string       `json:"adapter,omitempty"`
	State     AttemptState `json:"state"`
	Reason    string       `json:"reason,omitempty"`
	Time      time.Time    `json:"time"`
}

// AttemptCallback receives attempt events. It is called synchronously from
// Acquire and must not block.
type AttemptCallback func(AttemptEvent)

// Orchestrator runs one acquisition at a time per call, never two adapters
// in parallel within a call. Many calls may share one Orchestrator.
type Orchestrator struct {
	adapters  []Adapter
	resources *ResourceManager
	budget    time.Duration

	mu        sync.RWMutex
	onAttempt AttemptCallback
}

// NewOrchestrator builds an orchestrator over adapters in the given order.
func NewOrchestrator(cfg *Config, resources *ResourceManager, adapters ...Adapter) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	budget := cfg.Timeouts.AdapterBudget
	if budget <= 0 {
		budget = DefaultConfig().Timeouts.AdapterBudget
	}
	return &Orchestrator{
		adapters:  adapters,
		resources: resources,
		budget:    budget,
	}
}

// DefaultAdapters instantiates the built-in adapters in configured priority
// order, skipping disabled ones.
func DefaultAdapters(cfg *Config, resources *ResourceManager) []Adapter {
	profiles := ScrapeProfiles()

	var adapters []Adapter
	for _, name := range cfg.Sources.Priority {
		if slices.Contains(cfg.Sources.Disabled, name) {
			continue
		}
		switch name {
		case SourceYtDlp:
			if cfg.Extractor.Disabled {
				continue
			}
			adapters = append(adapters, NewExtractor(cfg.Extractor, resources))
		case SourceArchive:
			adapters = append(adapters, NewArchiveSource(resources, cfg.Timeouts))
		default:
			if profile, ok := profiles[name]; ok {
				adapters = append(adapters, NewScrapeSource(profile, resources, cfg.Timeouts))
			}
		}
	}
	return adapters
}

// Adapters returns the configured chain.
func (o *Orchestrator) Adapters() []Adapter {
	return slices.Clone(o.adapters)
}

// SetAttemptCallback installs fn (nil removes it).
func (o *Orchestrator) SetAttemptCallback(fn AttemptCallback) {
	o.mu.Lock()
	o.onAttempt = fn
	o.mu.Unlock()
}

// Acquire returns the first validated artifact, or an *AggregatedFailure
// with one outcome per adapter in priority order.
func (o *Orchestrator) Acquire(ctx context.Context, track TrackDescriptor, quality Quality) (*ArtifactHandle, error) {
	requestID := uuid.NewString()
	query := track.Query()
	log := Logger.With("request_id", requestID, "query", query)

	if err := ValidateTrack(track); err != nil {
		log.Warn("rejected track", "err", err)
		return nil, &AggregatedFailure{Track: track, Invalid: err}
	}

	req := FetchRequest{Query: query, Track: track, Quality: quality}
	o.emit(AttemptEvent{RequestID: requestID, Query: query, State: StatePending})
	log.Info("acquisition started", "quality", quality.String(), "adapters", len(o.adapters))

	attempts := make([]AttemptOutcome, 0, len(o.adapters))
	for i, adapter := range o.adapters {
		name := adapter.Name()

		if ctx.Err() != nil {
			for _, rest := range o.adapters[i:] {
				attempts = append(attempts, AttemptOutcome{
					Adapter: rest.Name(),
					Status:  StatusFailure,
					Err:     adapterErr(rest.Name(), ErrCanceled, "not_attempted", ctx.Err()),
				})
			}
			log.Warn("acquisition canceled", "remaining", len(o.adapters)-i)
			break
		}

		o.emit(AttemptEvent{RequestID: requestID, Query: query, Adapter: name, State: StateTrying})
		outcome := o.attempt(ctx, adapter, req)
		attempts = append(attempts, outcome)

		if outcome.Status == StatusSuccess {
			log.Info("acquisition succeeded", "adapter", name,
				"path", outcome.Artifact.Path, "size", outcome.Artifact.SizeBytes, "elapsed", outcome.Elapsed)
			o.emit(AttemptEvent{RequestID: requestID, Query: query, Adapter: name, State: StateSucceeded})
			return outcome.Artifact, nil
		}

		log.Warn("adapter failed", "adapter", name, "status", outcome.Status,
			"reason", outcome.Reason(), "elapsed", outcome.Elapsed)
		o.emit(AttemptEvent{RequestID: requestID, Query: query, Adapter: name,
			State: StateAdapterFailed, Reason: outcome.Reason()})
	}

	log.Warn("all adapters failed", "attempts", len(attempts))
	o.emit(AttemptEvent{RequestID: requestID, Query: query, State: StateAllFailed})
	return nil, &AggregatedFailure{Track: track, Attempts: attempts}
}

type fetchResult struct {
	handle *ArtifactHandle
	err    error
}

// attempt runs one adapter under the per-adapter budget. It returns as soon
// as the budget elapses even if the adapter ignores its context.
func (o *Orchestrator) attempt(ctx context.Context, adapter Adapter, req FetchRequest) AttemptOutcome {
	name := adapter.Name()
	start := time.Now()

	actx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fetchResult{err: adapterErr(name, ErrResource, "panic", fmt.Errorf("%v", rec))}
			}
		}()
		handle, err := adapter.Fetch(actx, req)
		done <- fetchResult{handle: handle, err: err}
	}()

	outcome := AttemptOutcome{Adapter: name}

	select {
	case res := <-done:
		outcome.Elapsed = time.Since(start)
		if res.err != nil {
			o.discard(res.handle)
			outcome.Status = StatusFailure
			outcome.Err = asAdapterError(name, res.err)
			if errors.Is(res.err, ErrTimeout) && ctx.Err() == nil {
				outcome.Status = StatusTimeout
			}
			return outcome
		}

		handle, err := o.verify(name, res.handle)
		if err != nil {
			outcome.Status = StatusFailure
			outcome.Err = err
			return outcome
		}
		outcome.Status = StatusSuccess
		outcome.Artifact = handle
		return outcome

	case <-actx.Done():
		outcome.Elapsed = time.Since(start)
		go o.drain(name, done)

		if ctx.Err() != nil {
			outcome.Status = StatusFailure
			outcome.Err = contextFailure(name, ctx)
			return outcome
		}
		outcome.Status = StatusTimeout
		outcome.Err = adapterErr(name, ErrTimeout, "budget", actx.Err())
		return outcome
	}
}

// verify re-checks an adapter's claimed artifact against the filesystem.
func (o *Orchestrator) verify(name string, handle *ArtifactHandle) (*ArtifactHandle, error) {
	if handle == nil || handle.Path == "" {
		return nil, adapterErr(name, ErrValidation, "no_artifact", nil)
	}

	info, err := os.Stat(handle.Path)
	if err != nil {
		return nil, adapterErr(name, ErrValidation, "missing_file", err)
	}
	if !info.Mode().IsRegular() {
		return nil, adapterErr(name, ErrValidation, "not_regular_file", nil)
	}
	if !o.resources.Contains(handle.Path) {
		return nil, adapterErr(name, ErrValidation, "outside_work_dir", nil)
	}
	if info.Size() == 0 {
		o.discard(handle)
		return nil, adapterErr(name, ErrValidation, "empty_file", nil)
	}

	return &ArtifactHandle{Path: handle.Path, SizeBytes: info.Size(), Source: name}, nil
}

// drain waits for an abandoned adapter and removes whatever it produced.
func (o *Orchestrator) drain(name string, done <-chan fetchResult) {
	res := <-done
	if res.handle != nil {
		Logger.Debug("discarding late artifact", "adapter", name, "path", res.handle.Path)
		o.discard(res.handle)
	}
}

// discard removes a handle's file, but only from our own work directory.
func (o *Orchestrator) discard(handle *ArtifactHandle) {
	if handle == nil || !o.resources.Contains(handle.Path) {
		return
	}
	_ = o.resources.RemoveArtifact(handle.Path)
}

func (o *Orchestrator) emit(ev AttemptEvent) {
	o.mu.RLock()
	fn := o.onAttempt
	o.mu.RUnlock()
	if fn == nil {
		return
	}
	ev.Time = time.Now()
	fn(ev)
}

// RemoveArtifact deletes an artifact previously returned by Acquire.
func (o *Orchestrator) RemoveArtifact(path string) error {
	if !o.resources.Contains(path) {
		return fmt.Errorf("%w: %s is not a managed artifact", ErrResource, path)
	}
	return o.resources.RemoveArtifact(path)
}

// Shutdown releases the shared session and the work directory. A later
// Acquire recreates them.
func (o *Orchestrator) Shutdown() {
	o.resources.Cleanup()
}

func asAdapterError(name string, err error) *AdapterError {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae
	}
	return adapterErr(name, kindOf(err), "", err)
}

// ============================================================================
// Caller boundary
// ============================================================================

// AttemptSummary is one adapter's line in a failed Result.
type AttemptSummary struct {
	Adapter string `json:"adapter"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

// Result is the serializable outcome handed to callers.
type Result struct {
	Success   bool             `json:"success"`
	Query     string           `json:"query"`
	Path      string           `json:"path,omitempty"`
	SizeBytes int64            `json:"sizeBytes,omitempty"`
	Source    string           `json:"source,omitempty"`
	Error     string           `json:"error,omitempty"`
	Attempts  []AttemptSummary `json:"attempts,omitempty"`
}

// Result renders the outcome of Acquire for a caller.
func (o *Orchestrator) Result(track TrackDescriptor, handle *ArtifactHandle, err error) Result {
	res := Result{Query: track.Query()}
	if err == nil && handle != nil {
		res.Success = true
		res.Path = handle.Path
		res.SizeBytes = handle.SizeBytes
		res.Source = handle.Source
		return res
	}

	var failure *AggregatedFailure
	if !errors.As(err, &failure) {
		res.Error = "could not find this track"
		return res
	}
	if failure.Invalid != nil {
		res.Error = failure.Error()
		return res
	}

	res.Error = fmt.Sprintf("could not find %q", track.Query())
	for _, a := range failure.Attempts {
		res.Attempts = append(res.Attempts, AttemptSummary{
			Adapter: a.Adapter,
			Status:  string(a.Status),
			Reason:  a.Reason(),
		})
	}
	return res
}
