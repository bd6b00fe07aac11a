package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Differ compares desired declarations against the state store and produces
// the changeset for one run. It never mutates the store; drift checks go
// through the provider's Read capability.
type Differ struct {
	store    StateStore
	resolver ProviderResolver
	logger   zerolog.Logger
}

// DiffOptions controls a single diff computation.
type DiffOptions struct {
	// Refresh re-reads every recorded resource from its provider before
	// trusting the stored record. Records left with a pending marker by an
	// interrupted run are always re-read, regardless of this flag.
	Refresh bool
}

// NewDiffer creates a new differ.
func NewDiffer(store StateStore, resolver ProviderResolver, logger zerolog.Logger) *Differ {
	return &Differ{
		store:    store,
		resolver: resolver,
		logger:   logger.With().Str("component", "differ").Logger(),
	}
}

// Diff classifies every declaration in the graph as Create, Update, Replace
// or NoOp, and every state record with no corresponding declaration as
// Delete. Iteration is in sorted name order so the changeset is
// reproducible across runs.
func (d *Differ) Diff(ctx context.Context, graph *Graph, opts DiffOptions) (*ChangeSet, error) {
	cs := &ChangeSet{ComputedAt: time.Now()}

	names := make([]string, 0, len(graph.Nodes))
	for name := range graph.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry, err := d.diffResource(ctx, graph.Nodes[name], opts)
		if err != nil {
			return nil, err
		}
		cs.Entries = append(cs.Entries, *entry)
	}

	// Records with no declaration in the current graph are deletes.
	records, err := d.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if _, declared := graph.Nodes[record.Name]; declared {
			continue
		}
		cs.Entries = append(cs.Entries, ChangeEntry{
			ID:     uuid.New().String(),
			Name:   record.Name,
			Type:   record.Type,
			Op:     OperationDelete,
			Record: record,
		})
	}

	cs.Summary = summarize(cs.Entries)
	d.logger.Debug().
		Int("create", cs.Summary.ToCreate).
		Int("update", cs.Summary.ToUpdate).
		Int("delete", cs.Summary.ToDelete).
		Int("replace", cs.Summary.ToReplace).
		Int("noop", cs.Summary.NoChange).
		Msg("changeset computed")

	return cs, nil
}

// diffResource classifies a single declared resource.
func (d *Differ) diffResource(ctx context.Context, decl *Declaration, opts DiffOptions) (*ChangeEntry, error) {
	entry := &ChangeEntry{
		ID:          uuid.New().String(),
		Name:        decl.Name,
		Type:        decl.Type,
		Declaration: decl,
	}

	record, err := d.store.GetRecord(ctx, decl.Name)
	if err != nil {
		return nil, err
	}
	if record == nil {
		entry.Op = OperationCreate
		return entry, nil
	}
	entry.Record = record

	// A pending marker without a provider ID is a stub left by a crash
	// before the create committed; the resource never made it into a
	// trustworthy record, so recreate it.
	if record.Pending != "" && record.ProviderID == "" {
		entry.Op = OperationCreate
		entry.Drifted = true
		return entry, nil
	}

	drifted := false
	if record.Pending != "" || opts.Refresh {
		exists, err := d.refreshRecord(ctx, record)
		if err != nil {
			return nil, err
		}
		if !exists {
			// Provider-side resource is gone; recreate.
			entry.Op = OperationCreate
			entry.Drifted = true
			return entry, nil
		}
		drifted = record.Pending != ""
	}

	provider, err := d.resolver.Resolve(decl.Type)
	if err != nil {
		return nil, err
	}
	schema, err := provider.Schema(decl.Type)
	if err != nil {
		return nil, err
	}

	// A type change replaces the resource outright.
	if record.Type != decl.Type {
		entry.Op = OperationReplace
		entry.Strategy = ReplaceDeleteThenCreate
		entry.Diffs = diffAttributes(record.Attributes, decl.Attributes, schema)
		return entry, nil
	}

	if record.Hash == decl.Hash && !drifted {
		entry.Op = OperationNoop
		return entry, nil
	}

	entry.Diffs = diffAttributes(record.Attributes, decl.Attributes, schema)
	entry.Drifted = drifted

	if len(entry.Diffs) == 0 {
		// Hash mismatch can come from non-attribute fields (labels,
		// depends_on) or from drift; refresh the record in place.
		if drifted {
			entry.Op = OperationUpdate
		} else {
			entry.Op = OperationNoop
		}
		return entry, nil
	}

	for _, diff := range entry.Diffs {
		if diff.ForcesReplace {
			entry.Op = OperationReplace
			entry.Strategy = schema.Replace
			if err := entry.Strategy.Validate(); err != nil {
				return nil, NewPermanentError(
					fmt.Sprintf("type %s declares no replace strategy", decl.Type), nil).
					WithCode(ErrCodeSchema).WithResource(decl.Name)
			}
			return entry, nil
		}
	}

	entry.Op = OperationUpdate
	return entry, nil
}

// refreshRecord re-reads a resource from its provider and folds the live
// outputs into the in-memory record. Returns false when the resource no
// longer exists provider-side.
func (d *Differ) refreshRecord(ctx context.Context, record *StateRecord) (bool, error) {
	provider, err := d.resolver.Resolve(record.Type)
	if err != nil {
		return false, err
	}

	resp, err := provider.Read(ctx, ReadRequest{Type: record.Type, ProviderID: record.ProviderID})
	if err != nil {
		// Keep the provider's classification so a throttled or transient
		// read failure stays retryable for the caller.
		var rerr *ReconcileError
		if errors.As(err, &rerr) {
			return false, rerr.WithResource(record.Name).WithOperation("read")
		}
		return false, NewPermanentError("drift check failed", err).
			WithCode(ErrCodeProvider).WithResource(record.Name).WithOperation("read")
	}
	if !resp.Exists {
		d.logger.Warn().Str("resource", record.Name).Msg("recorded resource missing provider-side")
		return false, nil
	}

	if resp.Outputs != nil {
		record.Outputs = resp.Outputs
	}
	return true, nil
}

// diffAttributes computes attribute-level diffs between the last applied
// values and the declared values, flagging immutable attributes.
func diffAttributes(before, after map[string]any, schema *ResourceSchema) []AttributeDiff {
	keys := make(map[string]bool, len(before)+len(after))
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var diffs []AttributeDiff
	for _, attr := range sorted {
		b, hasBefore := before[attr]
		a, hasAfter := after[attr]
		if hasBefore && hasAfter && reflect.DeepEqual(normalize(b), normalize(a)) {
			continue
		}
		diff := AttributeDiff{Attribute: attr, Before: b, After: a}
		if as, ok := schema.Attributes[attr]; ok && as.Immutable {
			diff.ForcesReplace = true
		}
		diffs = append(diffs, diff)
	}
	return diffs
}

// normalize folds numeric types to float64 so values that round-tripped
// through JSON compare equal to their in-memory originals.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func summarize(entries []ChangeEntry) ChangeSummary {
	s := ChangeSummary{Total: len(entries)}
	for _, e := range entries {
		switch e.Op {
		case OperationCreate:
			s.ToCreate++
		case OperationUpdate:
			s.ToUpdate++
		case OperationDelete:
			s.ToDelete++
		case OperationReplace:
			s.ToReplace++
		case OperationNoop:
			s.NoChange++
		}
	}
	return s
}
