package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// seedApplied installs records as if every declaration in the model had been
// applied by a previous run.
func seedApplied(t *testing.T, store *mockStore, model *Model, graph *Graph) {
	t.Helper()
	for _, name := range model.Names {
		d := model.Declarations[name]
		store.seed(&StateRecord{
			Name:         d.Name,
			Type:         d.Type,
			ProviderID:   d.Name + "-id",
			Attributes:   d.Attributes,
			Hash:         d.Hash,
			Dependencies: graph.Dependencies(d.Name),
			LastApplied:  time.Now(),
		})
	}
}

func TestDiffer_Diff_NewResourcesCreate(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	_, graph := buildGraph(t, networkDecls(), provider.resolver())

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if cs.Summary.ToCreate != 3 {
		t.Errorf("Expected 3 creates, got %d", cs.Summary.ToCreate)
	}
	if !cs.Summary.HasChanges() {
		t.Error("Expected changes")
	}
	for _, entry := range cs.Entries {
		if entry.Op != OperationCreate {
			t.Errorf("%s: expected create, got %s", entry.Name, entry.Op)
		}
	}
}

func TestDiffer_Diff_UnchangedNoop(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	model, graph := buildGraph(t, networkDecls(), provider.resolver())
	seedApplied(t, store, model, graph)

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if cs.Summary.NoChange != 3 {
		t.Errorf("Expected 3 noops, got %+v", cs.Summary)
	}
	if cs.Summary.HasChanges() {
		t.Error("Expected no changes")
	}
	if calls := provider.callLog(); len(calls) != 0 {
		t.Errorf("Expected no provider calls without refresh, got %v", calls)
	}
}

func TestDiffer_Diff_ChangedUpdate(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	model, graph := buildGraph(t, networkDecls(), provider.resolver())
	seedApplied(t, store, model, graph)

	// Change a mutable attribute on the nic.
	changed := networkDecls()
	changed[2].Attributes["ip"] = "10.0.1.5"
	_, graph = buildGraph(t, changed, provider.resolver())

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if cs.Summary.ToUpdate != 1 || cs.Summary.NoChange != 2 {
		t.Fatalf("Expected 1 update and 2 noops, got %+v", cs.Summary)
	}
	for _, entry := range cs.Entries {
		if entry.Name != "nic" {
			continue
		}
		if entry.Op != OperationUpdate {
			t.Fatalf("Expected update for nic, got %s", entry.Op)
		}
		if len(entry.Diffs) != 1 || entry.Diffs[0].Attribute != "ip" {
			t.Errorf("Expected single ip diff, got %+v", entry.Diffs)
		}
	}
}

func TestDiffer_Diff_ImmutableChangeReplace(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	model, graph := buildGraph(t, networkDecls(), provider.resolver())
	seedApplied(t, store, model, graph)

	changed := networkDecls()
	changed[0].Attributes["cidr"] = "10.1.0.0/16"
	_, graph = buildGraph(t, changed, provider.resolver())

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if cs.Summary.ToReplace != 1 {
		t.Fatalf("Expected 1 replace, got %+v", cs.Summary)
	}
	for _, entry := range cs.Entries {
		if entry.Name != "vnet" {
			continue
		}
		if entry.Op != OperationReplace {
			t.Fatalf("Expected replace for vnet, got %s", entry.Op)
		}
		if entry.Strategy != ReplaceDeleteThenCreate {
			t.Errorf("Expected delete_then_create strategy, got %s", entry.Strategy)
		}
	}
}

func TestDiffer_Diff_RemovedDeclarationDelete(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	model, graph := buildGraph(t, networkDecls(), provider.resolver())
	seedApplied(t, store, model, graph)

	// Drop the nic from the declarations.
	_, graph = buildGraph(t, networkDecls()[:2], provider.resolver())

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if cs.Summary.ToDelete != 1 || cs.Summary.NoChange != 2 {
		t.Fatalf("Expected 1 delete and 2 noops, got %+v", cs.Summary)
	}
	for _, entry := range cs.Entries {
		if entry.Op == OperationDelete {
			if entry.Name != "nic" {
				t.Errorf("Expected delete for nic, got %s", entry.Name)
			}
			if entry.Record == nil {
				t.Error("Delete entry should carry the state record")
			}
		}
	}
}

func TestDiffer_Diff_TypeChangeReplace(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()

	decls := []*Declaration{decl("thing", "mem.obj", map[string]any{"value": "x"})}
	_, graph := buildGraph(t, decls, provider.resolver())
	store.seed(&StateRecord{
		Name:       "thing",
		Type:       "mem.net",
		ProviderID: "thing-id",
		Attributes: map[string]any{"cidr": "10.0.0.0/16"},
		Hash:       "old",
	})

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if len(cs.Entries) != 1 || cs.Entries[0].Op != OperationReplace {
		t.Fatalf("Expected replace for type change, got %+v", cs.Entries)
	}
	if cs.Entries[0].Strategy != ReplaceDeleteThenCreate {
		t.Errorf("Type change should replace delete-then-create, got %s", cs.Entries[0].Strategy)
	}
}

func TestDiffer_Diff_PendingStubBecomesCreate(t *testing.T) {
	// A crash between MarkPending and the create call leaves a stub with no
	// provider ID. The resource was never made; it diffs as a fresh create.
	provider := newMockProvider()
	store := newMockStore()
	decls := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x"})}
	_, graph := buildGraph(t, decls, provider.resolver())
	store.seed(&StateRecord{Name: "obj", Type: "mem.obj", Pending: "create"})

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if len(cs.Entries) != 1 || cs.Entries[0].Op != OperationCreate {
		t.Fatalf("Expected create for pending stub, got %+v", cs.Entries)
	}
	if !cs.Entries[0].Drifted {
		t.Error("Expected pending stub to be flagged as drifted")
	}
	if calls := provider.callLog(); len(calls) != 0 {
		t.Errorf("Stub without provider ID must not be read, got %v", calls)
	}
}

func TestDiffer_Diff_PendingRecordRereadFromProvider(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	decls := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x"})}
	model, graph := buildGraph(t, decls, provider.resolver())

	store.seed(&StateRecord{
		Name:       "obj",
		Type:       "mem.obj",
		ProviderID: "obj-id",
		Attributes: model.Declarations["obj"].Attributes,
		Hash:       model.Declarations["obj"].Hash,
		Pending:    "update",
	})

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	calls := provider.callLog()
	if len(calls) != 1 || calls[0] != "read:obj-id" {
		t.Fatalf("Expected pending record to be re-read, got %v", calls)
	}
	// The interrupted operation may or may not have landed; the record
	// cannot be trusted, so the resource is re-applied.
	if len(cs.Entries) != 1 || cs.Entries[0].Op != OperationUpdate {
		t.Fatalf("Expected update for pending record, got %+v", cs.Entries)
	}
}

func TestDiffer_Diff_RefreshKeepsErrorClass(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	decls := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x"})}
	model, graph := buildGraph(t, decls, provider.resolver())
	seedApplied(t, store, model, graph)

	provider.failWith("obj-id", NewThrottledError("rate limited", nil).WithCode(ErrCodeRateLimited), -1)

	_, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{Refresh: true})
	if err == nil {
		t.Fatal("Expected refresh to surface the read failure")
	}
	if !IsThrottled(err) {
		t.Errorf("Expected throttled classification preserved, got %v", err)
	}
	if !HasCode(err, ErrCodeRateLimited) {
		t.Errorf("Expected %s, got %v", ErrCodeRateLimited, err)
	}
}

func TestDiffer_Diff_RefreshDetectsMissingResource(t *testing.T) {
	provider := newMockProvider()
	store := newMockStore()
	decls := []*Declaration{decl("obj", "mem.obj", map[string]any{"value": "x"})}
	model, graph := buildGraph(t, decls, provider.resolver())
	seedApplied(t, store, model, graph)

	provider.reads["obj-id"] = &ReadResponse{Exists: false}

	cs, err := NewDiffer(store, provider.resolver(), zerolog.Nop()).Diff(context.Background(), graph, DiffOptions{Refresh: true})
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}

	if len(cs.Entries) != 1 || cs.Entries[0].Op != OperationCreate {
		t.Fatalf("Expected create for missing provider-side resource, got %+v", cs.Entries)
	}
	if !cs.Entries[0].Drifted {
		t.Error("Expected drifted flag")
	}
}
