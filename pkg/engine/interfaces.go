package engine

import (
	"context"
)

// StateStore is the durable record of previously applied resource states.
// Writes for a single resource are atomic; the pending marker protocol makes
// a crash between a provider operation and its record write detectable on
// the next run.
type StateStore interface {
	// GetRecord retrieves a record by logical name. Returns (nil, nil) when
	// no record exists.
	GetRecord(ctx context.Context, name string) (*StateRecord, error)

	// ListRecords returns all records ordered by logical name.
	ListRecords(ctx context.Context) ([]*StateRecord, error)

	// PutRecord atomically writes a record, clearing any pending marker.
	PutRecord(ctx context.Context, record *StateRecord) error

	// DeleteRecord removes a record by logical name.
	DeleteRecord(ctx context.Context, name string) error

	// MarkPending records that an operation is about to be attempted for a
	// resource, before the provider call is made. For creates this writes a
	// stub record carrying only the marker.
	MarkPending(ctx context.Context, name, resourceType, op, runID string) error

	// ClearPending clears the pending marker without touching recorded
	// state, used when a provider operation fails with a known outcome.
	ClearPending(ctx context.Context, name string) error

	// AcquireLock takes the exclusive run-level lock for the deployment.
	// Fails with ErrCodeLocked while another run holds it.
	AcquireLock(ctx context.Context, owner string) error

	// ReleaseLock releases the run-level lock. Releasing an unheld lock is
	// not an error.
	ReleaseLock(ctx context.Context, owner string) error
}

// RunRecorder persists run outcomes for inspection after the fact.
// Implemented by the state store; optional for the executor.
type RunRecorder interface {
	// RecordRun persists the final result of a run.
	RecordRun(ctx context.Context, result *ApplyResult) error
}
