package engine

import "fmt"

// OperationType represents the type of operation the reconciler performs on a resource.
type OperationType string

const (
	// OperationCreate indicates a new resource should be created.
	OperationCreate OperationType = "create"

	// OperationUpdate indicates an existing resource should be updated in place.
	OperationUpdate OperationType = "update"

	// OperationDelete indicates an existing resource should be deleted.
	OperationDelete OperationType = "delete"

	// OperationNoop indicates no operation is needed (resource is in desired state).
	OperationNoop OperationType = "noop"

	// OperationReplace indicates an immutable attribute changed and the
	// resource must be deleted and recreated. The planner splits a replace
	// into its delete and create halves ordered by the type's strategy.
	OperationReplace OperationType = "replace"
)

// IsDestructive returns true if the operation removes a provider resource.
func (o OperationType) IsDestructive() bool {
	return o == OperationDelete || o == OperationReplace
}

// IsMutating returns true if the operation changes provider state.
func (o OperationType) IsMutating() bool {
	return o == OperationCreate || o == OperationUpdate ||
		o == OperationDelete || o == OperationReplace
}

// Validate checks if the operation type is valid.
func (o OperationType) Validate() error {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete,
		OperationNoop, OperationReplace:
		return nil
	default:
		return fmt.Errorf("invalid operation type: %s", o)
	}
}

// ReplaceStrategy controls how the delete and create halves of a replacement
// are interleaved. Declared per resource type in the provider schema.
type ReplaceStrategy string

const (
	// ReplaceDeleteThenCreate deletes the old resource before creating the
	// new one. Required for types with unique-name constraints.
	ReplaceDeleteThenCreate ReplaceStrategy = "delete_then_create"

	// ReplaceCreateThenDelete creates the new resource before deleting the
	// old one. Preferred for types where downtime must be avoided.
	ReplaceCreateThenDelete ReplaceStrategy = "create_then_delete"
)

// Validate checks if the replace strategy is valid.
func (s ReplaceStrategy) Validate() error {
	switch s {
	case ReplaceDeleteThenCreate, ReplaceCreateThenDelete:
		return nil
	default:
		return fmt.Errorf("invalid replace strategy: %s", s)
	}
}

// EntryStatus represents the execution status of a single plan entry.
type EntryStatus string

const (
	// EntryStatusPending indicates the entry has not started yet.
	EntryStatusPending EntryStatus = "pending"

	// EntryStatusRunning indicates the entry is currently executing.
	EntryStatusRunning EntryStatus = "running"

	// EntryStatusSucceeded indicates the entry completed and its state
	// store write committed.
	EntryStatusSucceeded EntryStatus = "succeeded"

	// EntryStatusFailed indicates the entry failed after retries.
	EntryStatusFailed EntryStatus = "failed"

	// EntryStatusSkipped indicates the entry was not attempted because an
	// earlier entry failed or the run was cancelled.
	EntryStatusSkipped EntryStatus = "skipped"
)

// IsTerminal returns true if the entry status represents a final state.
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusSucceeded || s == EntryStatusFailed || s == EntryStatusSkipped
}

// Validate checks if the entry status is valid.
func (s EntryStatus) Validate() error {
	switch s {
	case EntryStatusPending, EntryStatusRunning, EntryStatusSucceeded,
		EntryStatusFailed, EntryStatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid entry status: %s", s)
	}
}

// RunStatus represents the overall status of an apply run.
type RunStatus string

const (
	// RunStatusPending indicates the run is created but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates every entry succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run failed with no successful entries.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some entries succeeded before a failure
	// stopped the remainder of the plan.
	RunStatusPartial RunStatus = "partial"

	// RunStatusCancelled indicates the run was cancelled. In-flight entries
	// were allowed to finish and record their outcome.
	RunStatusCancelled RunStatus = "cancelled"

	// RunStatusNoChanges indicates the plan contained nothing to do.
	RunStatusNoChanges RunStatus = "no_changes"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusPartial,
		RunStatusCancelled, RunStatusNoChanges:
		return true
	default:
		return false
	}
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusPartial, RunStatusCancelled, RunStatusNoChanges:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}
