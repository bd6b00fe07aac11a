package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MetricsRecorder receives per-operation apply observations. Implemented by
// telemetry.Metrics; a nil recorder disables metrics.
type MetricsRecorder interface {
	ObserveApply(op, status string, duration time.Duration)
}

// ExecutorOptions configures plan execution.
type ExecutorOptions struct {
	// Parallelism bounds the number of entries applied concurrently.
	// The default of 1 executes the plan strictly sequentially.
	Parallelism int

	// MaxRetries is the number of retry attempts per entry for transient
	// provider errors.
	MaxRetries int

	// BaseDelay is the initial retry backoff. Throttled errors use a
	// larger base.
	BaseDelay time.Duration

	// EntryTimeout bounds each provider operation, retries excluded.
	EntryTimeout time.Duration

	// DryRun skips provider calls and state writes, reporting every entry
	// as succeeded.
	DryRun bool
}

func (o *ExecutorOptions) applyDefaults() {
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.EntryTimeout <= 0 {
		o.EntryTimeout = 5 * time.Minute
	}
}

// Executor applies an ordered plan through the resource providers, keeping
// the state store crash-consistent: an intent marker is written before each
// provider call and the record committed immediately after, so at most one
// entry per worker can be in flight with an unrecorded outcome. The caller
// holds the run-level lock for the duration of Apply.
type Executor struct {
	store    StateStore
	resolver ProviderResolver
	logger   zerolog.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer
	opts     ExecutorOptions

	mu     sync.Mutex
	status map[string]EntryStatus // entry ID -> status
	cache  map[string]*StateRecord
}

// NewExecutor creates a new executor. metrics may be nil.
func NewExecutor(store StateStore, resolver ProviderResolver, logger zerolog.Logger, metrics MetricsRecorder, opts ExecutorOptions) *Executor {
	opts.applyDefaults()
	return &Executor{
		store:    store,
		resolver: resolver,
		logger:   logger.With().Str("component", "executor").Logger(),
		metrics:  metrics,
		tracer:   otel.Tracer("groundwork/engine"),
		opts:     opts,
	}
}

// Apply executes the plan in order. On a non-retryable entry failure it
// stops dispatching further entries, lets in-flight entries finish and
// record their outcome, and returns a partial result describing which
// entries succeeded, failed and were skipped. Cancellation behaves the same
// way: no new entries start, in-flight entries complete and record.
func (e *Executor) Apply(ctx context.Context, plan *Plan) (*ApplyResult, error) {
	result := &ApplyResult{
		RunID:     uuid.New().String(),
		PlanID:    plan.ID,
		StartedAt: time.Now(),
	}

	if len(plan.Entries) == 0 {
		result.Status = RunStatusNoChanges
		return result, nil
	}

	ctx, span := e.tracer.Start(ctx, "executor.apply",
		trace.WithAttributes(
			attribute.String("run_id", result.RunID),
			attribute.Int("entries", len(plan.Entries)),
		))
	defer span.End()

	logger := e.logger.With().Str("run_id", result.RunID).Logger()
	logger.Info().Int("entries", len(plan.Entries)).Int("parallelism", e.opts.Parallelism).Msg("applying plan")

	if err := e.preloadRecords(ctx); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.status = make(map[string]EntryStatus, len(plan.Entries))
	for i := range plan.Entries {
		e.status[plan.Entries[i].ID] = EntryStatusPending
	}
	e.mu.Unlock()

	results := e.dispatch(ctx, result.RunID, plan, logger)

	// Assemble results in plan order; anything non-terminal was skipped.
	cancelled := ctx.Err() != nil
	for i := range plan.Entries {
		entry := &plan.Entries[i]
		res, ok := results[entry.ID]
		if !ok {
			res = &EntryResult{
				EntryID: entry.ID,
				Name:    entry.Name,
				Op:      entry.Op,
				Status:  EntryStatusSkipped,
			}
		}
		result.Results = append(result.Results, *res)
	}

	result.Duration = time.Since(result.StartedAt)
	result.Status = runStatus(result.Results, cancelled)

	if recorder, ok := e.store.(RunRecorder); ok {
		if err := recorder.RecordRun(context.WithoutCancel(ctx), result); err != nil {
			logger.Warn().Err(err).Msg("failed to record run outcome")
		}
	}

	logger.Info().
		Str("status", string(result.Status)).
		Int("succeeded", len(result.Succeeded())).
		Int("failed", len(result.Failed())).
		Int("skipped", len(result.Skipped())).
		Dur("duration", result.Duration).
		Msg("apply finished")

	return result, nil
}

// preloadRecords loads every state record into the in-run cache so
// reference resolution can see unchanged dependencies.
func (e *Executor) preloadRecords(ctx context.Context) error {
	records, err := e.store.ListRecords(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cache = make(map[string]*StateRecord, len(records))
	for _, r := range records {
		e.cache[r.Name] = r
	}
	e.mu.Unlock()
	return nil
}

// dispatch runs the worker loop: entries start once every DependsOn entry
// has succeeded, bounded by parallelism. The first failure or a context
// cancellation stops new dispatches.
func (e *Executor) dispatch(ctx context.Context, runID string, plan *Plan, logger zerolog.Logger) map[string]*EntryResult {
	type completion struct {
		entryID string
		result  *EntryResult
	}

	results := make(map[string]*EntryResult, len(plan.Entries))
	completions := make(chan completion)
	inFlight := 0
	aborted := false

	ready := func() *PlanEntry {
		e.mu.Lock()
		defer e.mu.Unlock()
	next:
		for i := range plan.Entries {
			entry := &plan.Entries[i]
			if e.status[entry.ID] != EntryStatusPending {
				continue
			}
			for _, dep := range entry.DependsOn {
				if e.status[dep] != EntryStatusSucceeded {
					continue next
				}
			}
			e.status[entry.ID] = EntryStatusRunning
			return entry
		}
		return nil
	}

	for {
		// Dispatch as many ready entries as parallelism allows.
		for !aborted && inFlight < e.opts.Parallelism {
			select {
			case <-ctx.Done():
				aborted = true
			default:
			}
			if aborted {
				break
			}

			entry := ready()
			if entry == nil {
				break
			}
			inFlight++
			go func(entry *PlanEntry) {
				res := e.executeEntry(ctx, runID, entry, logger)
				completions <- completion{entryID: entry.ID, result: res}
			}(entry)
		}

		if inFlight == 0 {
			break
		}

		done := <-completions
		inFlight--
		results[done.entryID] = done.result

		e.mu.Lock()
		e.status[done.entryID] = done.result.Status
		e.mu.Unlock()

		if done.result.Status == EntryStatusFailed {
			aborted = true
		}
	}

	return results
}

// executeEntry applies one plan entry with retry and records its outcome.
// The provider call is detached from run cancellation so an in-flight
// operation can finish and commit its state write.
func (e *Executor) executeEntry(ctx context.Context, runID string, entry *PlanEntry, logger zerolog.Logger) *EntryResult {
	res := &EntryResult{
		EntryID:   entry.ID,
		Name:      entry.Name,
		Op:        entry.Op,
		StartedAt: time.Now(),
	}
	entryLogger := logger.With().Str("resource", entry.Name).Str("op", string(entry.Op)).Logger()

	_, span := e.tracer.Start(ctx, "executor.entry",
		trace.WithAttributes(
			attribute.String("resource", entry.Name),
			attribute.String("op", string(entry.Op)),
		))
	defer span.End()

	if e.opts.DryRun {
		res.Status = EntryStatusSucceeded
		res.Duration = time.Since(res.StartedAt)
		return res
	}

	var err error
	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		res.Attempts = attempt + 1
		err = e.applyOnce(ctx, runID, entry)
		if err == nil {
			break
		}
		if !IsRetryable(err) || attempt >= e.opts.MaxRetries {
			break
		}

		backoff := e.backoff(attempt, err)
		entryLogger.Warn().Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("retrying after transient provider error")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			err = NewPermanentError("cancelled while waiting to retry", ctx.Err()).
				WithCode(ErrCodeTimeout).WithResource(entry.Name)
			attempt = e.opts.MaxRetries
		}
	}

	res.Duration = time.Since(res.StartedAt)
	if err != nil {
		res.Status = EntryStatusFailed
		res.Error = classify(err, entry)
		entryLogger.Error().Err(err).Msg("entry failed")
	} else {
		res.Status = EntryStatusSucceeded
		entryLogger.Info().Dur("duration", res.Duration).Msg("entry applied")
	}

	if e.metrics != nil {
		e.metrics.ObserveApply(string(entry.Op), string(res.Status), res.Duration)
	}
	return res
}

// applyOnce performs one provider operation and the matching state store
// write. The pending marker brackets the provider call: written before,
// cleared by the record write (or explicitly on clean failure) after.
func (e *Executor) applyOnce(ctx context.Context, runID string, entry *PlanEntry) error {
	provider, err := e.resolver.Resolve(entry.Type)
	if err != nil {
		return err
	}

	// Detach from run cancellation so an in-flight operation finishes and
	// records; the timeout still bounds it.
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.EntryTimeout)
	defer cancel()

	if err := e.store.MarkPending(opCtx, entry.Name, entry.Type, string(entry.Op), runID); err != nil {
		return err
	}

	switch entry.Op {
	case OperationCreate:
		return e.applyCreate(opCtx, runID, entry, provider)
	case OperationUpdate:
		return e.applyUpdate(opCtx, runID, entry, provider)
	case OperationDelete:
		return e.applyDelete(opCtx, entry, provider)
	default:
		return NewPermanentError(
			fmt.Sprintf("plan entry has unexpected operation %q", entry.Op), nil).
			WithCode(ErrCodeOrder).WithResource(entry.Name)
	}
}

func (e *Executor) applyCreate(ctx context.Context, runID string, entry *PlanEntry, provider Provider) error {
	attrs, err := e.resolvedAttributes(entry)
	if err != nil {
		return err
	}

	resp, err := provider.Create(ctx, CreateRequest{
		Name:       entry.Name,
		Type:       entry.Type,
		Attributes: attrs,
	})
	if err != nil {
		// The create half of a replacement still has the old committed
		// record behind the pending marker; that record describes a live
		// provider resource and must survive the failure. Only a stub
		// with no provider ID is dropped.
		current, gerr := e.store.GetRecord(ctx, entry.Name)
		if gerr != nil {
			return gerr
		}
		if current != nil && current.ProviderID != "" {
			if cerr := e.store.ClearPending(ctx, entry.Name); cerr != nil {
				return cerr
			}
		} else if derr := e.store.DeleteRecord(ctx, entry.Name); derr != nil {
			return derr
		}
		return err
	}

	record := &StateRecord{
		Name:         entry.Name,
		Type:         entry.Type,
		ProviderID:   resp.ProviderID,
		Attributes:   entry.Declaration.Attributes,
		Outputs:      resp.Outputs,
		Hash:         entry.Declaration.Hash,
		Dependencies: entry.ResourceDeps,
		LastRunID:    runID,
		LastApplied:  time.Now(),
	}
	return e.commitRecord(ctx, record)
}

func (e *Executor) applyUpdate(ctx context.Context, runID string, entry *PlanEntry, provider Provider) error {
	attrs, err := e.resolvedAttributes(entry)
	if err != nil {
		return err
	}

	resp, err := provider.Update(ctx, UpdateRequest{
		Name:       entry.Name,
		Type:       entry.Type,
		ProviderID: entry.Record.ProviderID,
		Attributes: attrs,
		Diffs:      entry.Diffs,
	})
	if err != nil {
		if cerr := e.store.ClearPending(ctx, entry.Name); cerr != nil {
			return cerr
		}
		return err
	}

	record := &StateRecord{
		Name:         entry.Name,
		Type:         entry.Type,
		ProviderID:   entry.Record.ProviderID,
		Attributes:   entry.Declaration.Attributes,
		Outputs:      resp.Outputs,
		Hash:         entry.Declaration.Hash,
		Dependencies: entry.ResourceDeps,
		LastRunID:    runID,
		LastApplied:  time.Now(),
	}
	if record.Outputs == nil {
		record.Outputs = entry.Record.Outputs
	}
	return e.commitRecord(ctx, record)
}

func (e *Executor) applyDelete(ctx context.Context, entry *PlanEntry, provider Provider) error {
	err := provider.Delete(ctx, DeleteRequest{
		Type:       entry.Record.Type,
		ProviderID: entry.Record.ProviderID,
	})
	if err != nil {
		if cerr := e.store.ClearPending(ctx, entry.Name); cerr != nil {
			return cerr
		}
		return err
	}

	// A deposed entry removes the resource replaced by an earlier create;
	// the record already describes the replacement and stays.
	if entry.Deposed {
		return e.store.ClearPending(ctx, entry.Name)
	}

	if err := e.store.DeleteRecord(ctx, entry.Name); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.cache, entry.Name)
	e.mu.Unlock()
	return nil
}

// commitRecord writes the record and refreshes the in-run cache so
// dependent entries can resolve references against it.
func (e *Executor) commitRecord(ctx context.Context, record *StateRecord) error {
	if err := e.store.PutRecord(ctx, record); err != nil {
		return err
	}
	e.mu.Lock()
	e.cache[record.Name] = record
	e.mu.Unlock()
	return nil
}

// resolvedAttributes substitutes references using committed records.
func (e *Executor) resolvedAttributes(entry *PlanEntry) (map[string]any, error) {
	return ResolveAttributes(entry.Declaration, func(name string) (*StateRecord, bool) {
		e.mu.Lock()
		defer e.mu.Unlock()
		record, ok := e.cache[name]
		return record, ok
	})
}

// backoff computes exponential backoff with jitter. Throttled errors start
// from a larger base.
func (e *Executor) backoff(attempt int, err error) time.Duration {
	base := e.opts.BaseDelay
	if IsThrottled(err) {
		base = 5 * e.opts.BaseDelay
	} else if IsConflict(err) {
		base = 2 * e.opts.BaseDelay
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > time.Minute {
		delay = time.Minute
	}
	jitter := time.Duration(float64(delay) * 0.25)
	return delay + jitter/2
}

// classify wraps an arbitrary failure as a ReconcileError with entry context.
func classify(err error, entry *PlanEntry) *ReconcileError {
	if re, ok := err.(*ReconcileError); ok {
		return re
	}
	return NewPermanentError("apply failed", err).
		WithCode(ErrCodeProvider).
		WithResource(entry.Name).
		WithOperation(string(entry.Op))
}

// runStatus derives the overall run status from the entry results.
func runStatus(results []EntryResult, cancelled bool) RunStatus {
	var succeeded, failed, skipped int
	for _, res := range results {
		switch res.Status {
		case EntryStatusSucceeded:
			succeeded++
		case EntryStatusFailed:
			failed++
		case EntryStatusSkipped:
			skipped++
		}
	}

	switch {
	case cancelled && failed == 0:
		return RunStatusCancelled
	case failed == 0 && skipped == 0:
		return RunStatusSucceeded
	case succeeded > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}
