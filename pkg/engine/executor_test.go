package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestExecutor(store *mockStore, provider *mockProvider, opts ExecutorOptions) *Executor {
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	return NewExecutor(store, provider.resolver(), zerolog.Nop(), nil, opts)
}

func TestExecutor_Apply_EmptyPlanNoChanges(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	result, err := exec.Apply(context.Background(), &Plan{ID: "p"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusNoChanges {
		t.Errorf("Expected no_changes, got %s", result.Status)
	}
	if len(provider.callLog()) != 0 {
		t.Errorf("Expected no provider calls, got %v", provider.callLog())
	}
}

func TestExecutor_Apply_CreatesAndRecordsState(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, networkDecls())
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusSucceeded {
		t.Fatalf("Expected succeeded, got %s", result.Status)
	}

	calls := provider.callLog()
	want := []string{"create:vnet", "create:subnet", "create:nic"}
	if len(calls) != len(want) {
		t.Fatalf("Expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}

	// The subnet's reference resolved to the committed vnet provider ID.
	if got := provider.created["subnet"].Attributes["network"]; got != "vnet-id" {
		t.Errorf("Expected resolved network attribute, got %v", got)
	}

	record, err := store.GetRecord(context.Background(), "subnet")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected subnet record")
	}
	if record.Pending != "" {
		t.Errorf("Expected pending marker cleared, got %q", record.Pending)
	}
	if record.ProviderID != "subnet-id" {
		t.Errorf("Expected provider ID recorded, got %q", record.ProviderID)
	}
	// Raw declared attributes are recorded, references unresolved.
	if got := record.Attributes["network"]; got != "${vnet.id}" {
		t.Errorf("Expected raw attribute in state, got %v", got)
	}
	if len(record.Dependencies) != 1 || record.Dependencies[0] != "vnet" {
		t.Errorf("Expected vnet dependency recorded, got %v", record.Dependencies)
	}
	if record.Hash == "" || record.LastRunID != result.RunID {
		t.Errorf("Expected hash and run ID recorded, got %+v", record)
	}

	if len(store.runs) != 1 {
		t.Errorf("Expected run outcome recorded, got %d", len(store.runs))
	}
}

func TestExecutor_Apply_PendingMarkerBracketsProviderCall(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, []*Declaration{
		decl("obj", "mem.obj", map[string]any{"value": "x"}),
	})
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	if _, err := exec.Apply(context.Background(), plan); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := []string{"pending:obj", "put:obj"}
	if len(store.ops) != len(want) {
		t.Fatalf("Expected store ops %v, got %v", want, store.ops)
	}
	for i := range want {
		if store.ops[i] != want[i] {
			t.Errorf("Op %d: expected %s, got %s", i, want[i], store.ops[i])
		}
	}
}

func TestExecutor_Apply_FailureSkipsDependents(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, networkDecls())
	provider.failWith("subnet", NewPermanentError("quota exceeded", nil).WithCode(ErrCodeProvider), -1)
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if result.Status != RunStatusPartial {
		t.Errorf("Expected partial, got %s", result.Status)
	}
	if got := result.Succeeded(); len(got) != 1 || got[0] != "vnet" {
		t.Errorf("Expected vnet succeeded, got %v", got)
	}
	if got := result.Failed(); len(got) != 1 || got[0] != "subnet" {
		t.Errorf("Expected subnet failed, got %v", got)
	}
	if got := result.Skipped(); len(got) != 1 || got[0] != "nic" {
		t.Errorf("Expected nic skipped, got %v", got)
	}

	// The vnet committed; the nic was never attempted.
	record, _ := store.GetRecord(context.Background(), "vnet")
	if record == nil || record.ProviderID != "vnet-id" {
		t.Errorf("Expected vnet record committed, got %+v", record)
	}
	for _, call := range provider.callLog() {
		if call == "create:nic" {
			t.Error("nic must not be attempted after its dependency failed")
		}
	}
}

func TestExecutor_Apply_CleanCreateFailureRemovesStub(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, []*Declaration{
		decl("obj", "mem.obj", map[string]any{"value": "x"}),
	})
	provider.failWith("obj", NewPermanentError("rejected", nil).WithCode(ErrCodeProvider), -1)
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusFailed {
		t.Errorf("Expected failed, got %s", result.Status)
	}

	record, _ := store.GetRecord(context.Background(), "obj")
	if record != nil {
		t.Errorf("Expected pending stub removed after clean create failure, got %+v", record)
	}
}

func TestExecutor_Apply_RetriesTransient(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, []*Declaration{
		decl("obj", "mem.obj", map[string]any{"value": "x"}),
	})
	provider.failWith("obj", NewTransientError("flaky backend", nil), 2)
	exec := newTestExecutor(store, provider, ExecutorOptions{MaxRetries: 3})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusSucceeded {
		t.Fatalf("Expected succeeded after retries, got %s", result.Status)
	}
	if result.Results[0].Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Results[0].Attempts)
	}
}

func TestExecutor_Apply_DoesNotRetryPermanent(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, []*Declaration{
		decl("obj", "mem.obj", map[string]any{"value": "x"}),
	})
	provider.failWith("obj", NewPermanentError("bad request", nil), -1)
	exec := newTestExecutor(store, provider, ExecutorOptions{MaxRetries: 3})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Results[0].Attempts != 1 {
		t.Errorf("Expected 1 attempt for permanent error, got %d", result.Results[0].Attempts)
	}
	if result.Results[0].Error == nil || result.Results[0].Error.Class != ErrorClassPermanent {
		t.Errorf("Expected classified permanent error, got %+v", result.Results[0].Error)
	}
}

func TestExecutor_Apply_DeleteRemovesRecord(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	model, graph := buildGraph(t, networkDecls(), provider.resolver())
	seedApplied(t, store, model, graph)

	plan, _ := planFor(t, store, provider, nil)
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusSucceeded {
		t.Fatalf("Expected succeeded, got %s", result.Status)
	}

	records, _ := store.ListRecords(context.Background())
	if len(records) != 0 {
		t.Errorf("Expected all records removed, got %d", len(records))
	}

	// Deletes ran dependents first.
	want := []string{"delete:nic-id", "delete:subnet-id", "delete:vnet-id"}
	calls := provider.callLog()
	if len(calls) != len(want) {
		t.Fatalf("Expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
}

func TestExecutor_Apply_ReplaceCreateThenDelete(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	decls := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x", "zone": "a"})}
	model, _ := buildGraph(t, decls, provider.resolver())
	store.seed(&StateRecord{
		Name:       "obj",
		Type:       "mem.obj",
		ProviderID: "obj-0",
		Attributes: model.Declarations["obj"].Attributes,
		Hash:       model.Declarations["obj"].Hash,
	})

	changed := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x", "zone": "b"})}
	plan, _ := planFor(t, store, provider, changed)
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusSucceeded {
		t.Fatalf("Expected succeeded, got %s", result.Status)
	}

	calls := provider.callLog()
	if len(calls) != 2 || calls[0] != "create:obj" || calls[1] != "delete:obj-0" {
		t.Fatalf("Expected create before delete of old resource, got %v", calls)
	}

	// The record survives the delete half and describes the replacement.
	record, _ := store.GetRecord(context.Background(), "obj")
	if record == nil {
		t.Fatal("Expected record for replaced resource")
	}
	if record.ProviderID != "obj-id" {
		t.Errorf("Expected replacement provider ID, got %q", record.ProviderID)
	}
}

func TestExecutor_Apply_ReplaceCreateFailureKeepsOldRecord(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	decls := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x", "zone": "a"})}
	model, _ := buildGraph(t, decls, provider.resolver())
	store.seed(&StateRecord{
		Name:       "obj",
		Type:       "mem.obj",
		ProviderID: "obj-0",
		Attributes: model.Declarations["obj"].Attributes,
		Hash:       model.Declarations["obj"].Hash,
	})

	changed := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x", "zone": "b"})}
	plan, _ := planFor(t, store, provider, changed)
	provider.failWith("obj", NewPermanentError("rejected", nil).WithCode(ErrCodeProvider), -1)
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusFailed {
		t.Fatalf("Expected failed, got %s", result.Status)
	}

	// The old record still describes the live resource, so a re-run can
	// plan the replacement again instead of a duplicate create.
	record, _ := store.GetRecord(context.Background(), "obj")
	if record == nil {
		t.Fatal("Expected old record to survive failed replacement create")
	}
	if record.ProviderID != "obj-0" {
		t.Errorf("Expected old provider ID obj-0, got %q", record.ProviderID)
	}
	if record.Pending != "" {
		t.Errorf("Expected pending cleared after failure, got %q", record.Pending)
	}

	// The deposed delete half must not run after the create half failed.
	for _, call := range provider.callLog() {
		if call == "delete:obj-0" {
			t.Errorf("Old resource deleted after failed create, calls: %v", provider.callLog())
		}
	}
}

func TestExecutor_Apply_DryRunTouchesNothing(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, networkDecls())
	exec := newTestExecutor(store, provider, ExecutorOptions{DryRun: true})

	result, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", result.Status)
	}
	if len(provider.callLog()) != 0 {
		t.Errorf("Dry run must not call providers, got %v", provider.callLog())
	}
	records, _ := store.ListRecords(context.Background())
	if len(records) != 0 {
		t.Errorf("Dry run must not write state, got %d records", len(records))
	}
}

func TestExecutor_Apply_CancelledBeforeDispatch(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	plan, _ := planFor(t, store, provider, networkDecls())
	exec := newTestExecutor(store, provider, ExecutorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := exec.Apply(ctx, plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Status != RunStatusCancelled {
		t.Errorf("Expected cancelled, got %s", result.Status)
	}
	if len(provider.callLog()) != 0 {
		t.Errorf("Expected no provider calls after cancellation, got %v", provider.callLog())
	}
}
