// Package engine provides the core types and pipeline for the Groundwork reconciler.
//
// # Overview
//
// Groundwork converges a set of declared resources toward their desired
// state through a 5-phase pipeline:
//
//  1. Model - Validate declarations against provider schemas and extract
//     references (LoadDeclarations)
//  2. Graph - Build the dependency DAG and reject cycles (GraphBuilder)
//  3. Diff - Compare declarations against recorded state (Differ)
//  4. Plan - Order the changes into an executable sequence (Planner)
//  5. Apply - Execute the plan through providers and record outcomes
//     (Executor)
//
// # Core Domain Types
//
//   - Declaration: A named, typed resource with desired attributes
//   - Reference: A dependency edge extracted from ${name.output} syntax
//   - StateRecord: The recorded outcome of the last successful apply
//   - ChangeEntry: A computed difference with its operation and diffs
//   - Plan: An ordered list of entries with dependency edges
//   - ApplyResult: Per-entry outcomes and the overall run status
//
// # Provider Interface
//
// Providers implement resource management through the Provider interface:
//
//	type Provider interface {
//	    Schema(resourceType string) (*ResourceSchema, error)
//	    Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)
//	    Read(ctx context.Context, req ReadRequest) (*ReadResponse, error)
//	    Update(ctx context.Context, req UpdateRequest) (*UpdateResponse, error)
//	    Delete(ctx context.Context, req DeleteRequest) error
//	}
//
// A ProviderResolver maps a resource type to the provider that owns it.
//
// # Error Classification
//
// Errors are classified for retry logic:
//
//   - Transient: Temporary failures that may succeed on retry
//   - Throttled: Rate limiting that requires backoff
//   - Conflict: Resource conflicts requiring retry
//   - Permanent: Non-recoverable errors
//
// Use the error helper functions to classify and inspect errors:
//
//	if IsRetryable(err) {
//	    // Retry the operation
//	}
//
// # Crash Consistency
//
// The executor writes a pending marker to the state store before every
// provider call and commits the record immediately after it returns. A
// record found pending on the next run is re-read from its provider before
// diffing, so an interrupted apply never loses track of a resource.
package engine
