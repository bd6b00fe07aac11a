package engine

import (
	"time"
)

// Declaration is a single desired-state resource definition. Declarations are
// immutable once loaded for a run; the model loader owns construction.
type Declaration struct {
	// Name is the logical identity, unique within a deployment.
	Name string `json:"name"`

	// Type is the resource type (e.g., "azure.vnet", "mem.object").
	Type string `json:"type"`

	// Attributes maps attribute names to declared values. String values may
	// embed references of the form "${name.output}".
	Attributes map[string]any `json:"attributes"`

	// DependsOn lists explicit dependencies by logical name, in declaration
	// order. Reference-derived dependencies are added by the graph builder.
	DependsOn []string `json:"depends_on,omitempty"`

	// Labels are key-value pairs for organizing and selecting resources.
	Labels map[string]string `json:"labels,omitempty"`

	// Hash is the canonical content hash of the declaration, computed by the
	// model loader and compared against StateRecord.Hash by the differ.
	Hash string `json:"hash"`
}

// Identity returns the qualified identity string "type.name".
func (d *Declaration) Identity() string {
	return d.Type + "." + d.Name
}

// Reference is a typed pointer from one declaration's attribute to an output
// attribute of another declaration.
type Reference struct {
	// Source is the logical name of the declaration holding the reference.
	Source string `json:"source"`

	// Attribute is the attribute on the source containing the reference.
	Attribute string `json:"attribute"`

	// Target is the logical name of the referenced declaration.
	Target string `json:"target"`

	// Output is the output attribute on the target (e.g., "id").
	Output string `json:"output"`
}

// StateRecord is the durable record of a previously applied resource.
// Owned exclusively by the state store; other components read but never
// mutate records directly.
type StateRecord struct {
	// Name is the logical identity of the resource.
	Name string `json:"name"`

	// Type is the resource type at the time of apply.
	Type string `json:"type"`

	// ProviderID is the provider-assigned identifier.
	ProviderID string `json:"provider_id"`

	// Attributes are the declared attribute values last applied, with
	// references unresolved (as written in the declaration).
	Attributes map[string]any `json:"attributes"`

	// Outputs are the provider-reported output attributes after apply.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Hash is the content hash of the declaration that produced this record.
	Hash string `json:"hash"`

	// Dependencies are the logical names this resource depended on when it
	// was applied. Kept in state so deletes can be ordered even after the
	// declarations are gone.
	Dependencies []string `json:"dependencies,omitempty"`

	// Pending is the operation that was in flight when the record was last
	// touched; empty once the outcome committed. A non-empty value on load
	// means a crash interrupted an apply and the resource must be re-read
	// from the provider before the record is trusted.
	Pending string `json:"pending,omitempty"`

	// LastRunID is the run that last wrote this record.
	LastRunID string `json:"last_run_id"`

	// LastApplied is when the record was last written after a successful
	// provider operation.
	LastApplied time.Time `json:"last_applied"`
}

// AttributeDiff describes a single attribute change in an update.
type AttributeDiff struct {
	// Attribute is the attribute name.
	Attribute string `json:"attribute"`

	// Before is the previously applied value.
	Before any `json:"before,omitempty"`

	// After is the newly declared value.
	After any `json:"after,omitempty"`

	// ForcesReplace is true when the attribute is immutable per the
	// resource type schema.
	ForcesReplace bool `json:"forces_replace,omitempty"`
}

// ChangeEntry is one desired operation produced by the differ. Ephemeral:
// produced by the differ, ordered by the planner, consumed by the executor
// within a single run.
type ChangeEntry struct {
	// ID uniquely identifies the entry within the plan.
	ID string `json:"id"`

	// Name is the logical identity of the target resource.
	Name string `json:"name"`

	// Type is the resource type.
	Type string `json:"type"`

	// Op is the operation to perform.
	Op OperationType `json:"op"`

	// Declaration is the desired declaration; nil for deletes.
	Declaration *Declaration `json:"declaration,omitempty"`

	// Record is the existing state record; nil for creates.
	Record *StateRecord `json:"record,omitempty"`

	// Diffs lists attribute-level changes for updates and replaces.
	Diffs []AttributeDiff `json:"diffs,omitempty"`

	// Strategy is the replace ordering for OperationReplace entries.
	Strategy ReplaceStrategy `json:"strategy,omitempty"`

	// Drifted is true when the provider-side state diverged from the record.
	Drifted bool `json:"drifted,omitempty"`

	// Deposed marks the delete half of a create-then-delete replacement.
	// The state record by then describes the replacement, so the executor
	// removes only the old provider resource and leaves the record alone.
	Deposed bool `json:"deposed,omitempty"`
}

// ChangeSet is the unordered set of operations computed by the differ.
type ChangeSet struct {
	// Entries lists one entry per resource requiring attention, keyed in
	// deterministic identity order.
	Entries []ChangeEntry `json:"entries"`

	// Summary provides counts per operation.
	Summary ChangeSummary `json:"summary"`

	// ComputedAt is when the diff was computed.
	ComputedAt time.Time `json:"computed_at"`
}

// ChangeSummary provides statistics about a changeset or plan.
type ChangeSummary struct {
	Total     int `json:"total"`
	ToCreate  int `json:"to_create"`
	ToUpdate  int `json:"to_update"`
	ToDelete  int `json:"to_delete"`
	ToReplace int `json:"to_replace"`
	NoChange  int `json:"no_change"`
}

// HasChanges returns true if any mutating operation is present.
func (s ChangeSummary) HasChanges() bool {
	return s.ToCreate > 0 || s.ToUpdate > 0 || s.ToDelete > 0 || s.ToReplace > 0
}

// PlanEntry is a ChangeEntry placed into execution order with its
// dependency edges resolved to entry IDs.
type PlanEntry struct {
	ChangeEntry

	// DependsOn lists entry IDs whose state store writes must commit before
	// this entry may start.
	DependsOn []string `json:"depends_on,omitempty"`

	// ResourceDeps are the logical names this resource depends on in the
	// graph, recorded into the StateRecord on successful apply.
	ResourceDeps []string `json:"resource_deps,omitempty"`

	// Position is the index in the sequential plan order.
	Position int `json:"position"`
}

// Plan is the ordered sequence of operations for one run.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`

	// Entries are the operations in execution order.
	Entries []PlanEntry `json:"entries"`

	// Summary provides counts per operation, including NoOps that were
	// dropped from the entry list.
	Summary ChangeSummary `json:"summary"`
}

// EntryResult is the recorded outcome of executing one plan entry.
type EntryResult struct {
	// EntryID is the plan entry this result belongs to.
	EntryID string `json:"entry_id"`

	// Name is the logical identity of the resource.
	Name string `json:"name"`

	// Op is the operation that was attempted.
	Op OperationType `json:"op"`

	// Status is the terminal status of the entry.
	Status EntryStatus `json:"status"`

	// Attempts is the number of provider calls made, including retries.
	Attempts int `json:"attempts"`

	// StartedAt is when execution started; zero for skipped entries.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total execution time.
	Duration time.Duration `json:"duration"`

	// Error is the classified failure, if any.
	Error *ReconcileError `json:"error,omitempty"`
}

// ApplyResult reports the outcome of executing a plan.
type ApplyResult struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// PlanID is the plan that was executed.
	PlanID string `json:"plan_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// Results holds one result per plan entry, in plan order.
	Results []EntryResult `json:"results"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`
}

// Succeeded returns the names of resources whose entries succeeded.
func (r *ApplyResult) Succeeded() []string { return r.namesWithStatus(EntryStatusSucceeded) }

// Failed returns the names of resources whose entries failed.
func (r *ApplyResult) Failed() []string { return r.namesWithStatus(EntryStatusFailed) }

// Skipped returns the names of resources whose entries were not attempted.
func (r *ApplyResult) Skipped() []string { return r.namesWithStatus(EntryStatusSkipped) }

func (r *ApplyResult) namesWithStatus(status EntryStatus) []string {
	var names []string
	for _, res := range r.Results {
		if res.Status == status {
			names = append(names, res.Name)
		}
	}
	return names
}
