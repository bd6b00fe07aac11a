package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

// Mock implementations shared by the engine tests.

type mockStore struct {
	mu        sync.Mutex
	records   map[string]*StateRecord
	runs      []*ApplyResult
	lockOwner string

	// ops records store mutations in call order, e.g. "pending:web".
	ops []string
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]*StateRecord)}
}

func (m *mockStore) GetRecord(ctx context.Context, name string) (*StateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[name]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (m *mockStore) ListRecords(ctx context.Context) ([]*StateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	sort.Strings(names)
	records := make([]*StateRecord, 0, len(names))
	for _, name := range names {
		copied := *m.records[name]
		records = append(records, &copied)
	}
	return records, nil
}

func (m *mockStore) PutRecord(ctx context.Context, record *StateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	copied.Pending = ""
	m.records[record.Name] = &copied
	m.ops = append(m.ops, "put:"+record.Name)
	return nil
}

func (m *mockStore) DeleteRecord(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	m.ops = append(m.ops, "delete:"+name)
	return nil
}

func (m *mockStore) MarkPending(ctx context.Context, name, resourceType, op, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[name]
	if !ok {
		record = &StateRecord{Name: name, Type: resourceType}
		m.records[name] = record
	}
	record.Pending = op
	record.LastRunID = runID
	m.ops = append(m.ops, "pending:"+name)
	return nil
}

func (m *mockStore) ClearPending(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[name]; ok {
		record.Pending = ""
	}
	m.ops = append(m.ops, "clear:"+name)
	return nil
}

func (m *mockStore) AcquireLock(ctx context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockOwner != "" && m.lockOwner != owner {
		return NewConflictError(fmt.Sprintf("lock held by %s", m.lockOwner), nil).WithCode(ErrCodeLocked)
	}
	m.lockOwner = owner
	return nil
}

func (m *mockStore) ReleaseLock(ctx context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockOwner == owner {
		m.lockOwner = ""
	}
	return nil
}

func (m *mockStore) RecordRun(ctx context.Context, result *ApplyResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, result)
	return nil
}

// seed installs a committed record as if a previous run applied it.
func (m *mockStore) seed(record *StateRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Name] = record
}

type providerFault struct {
	err   error
	times int // fail this many times, -1 for forever
}

type mockProvider struct {
	mu      sync.Mutex
	schemas map[string]*ResourceSchema

	// calls records provider operations in call order, e.g. "create:web".
	calls   []string
	created map[string]CreateRequest
	updated map[string]UpdateRequest
	deleted []string

	faults  map[string]*providerFault
	reads   map[string]*ReadResponse
	outputs map[string]map[string]any
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		schemas: map[string]*ResourceSchema{
			"mem.net": {
				Type:    "mem.net",
				Replace: ReplaceDeleteThenCreate,
				Attributes: map[string]AttributeSchema{
					"cidr": {Kind: KindString, Required: true, Immutable: true},
				},
			},
			"mem.subnet": {
				Type:    "mem.subnet",
				Replace: ReplaceDeleteThenCreate,
				Attributes: map[string]AttributeSchema{
					"network": {Kind: KindString, Required: true},
					"prefix":  {Kind: KindString, Required: true, Immutable: true},
				},
			},
			"mem.nic": {
				Type:    "mem.nic",
				Replace: ReplaceDeleteThenCreate,
				Attributes: map[string]AttributeSchema{
					"subnet": {Kind: KindString, Required: true},
					"ip":     {Kind: KindString},
				},
			},
			"mem.obj": {
				Type:    "mem.obj",
				Replace: ReplaceCreateThenDelete,
				Attributes: map[string]AttributeSchema{
					"value":   {Kind: KindString, Required: true},
					"size":    {Kind: KindInt},
					"enabled": {Kind: KindBool},
					"items":   {Kind: KindList},
					"tags":    {Kind: KindMap},
					"zone":    {Kind: KindString, Immutable: true},
				},
			},
		},
		created: make(map[string]CreateRequest),
		updated: make(map[string]UpdateRequest),
		faults:  make(map[string]*providerFault),
		reads:   make(map[string]*ReadResponse),
		outputs: make(map[string]map[string]any),
	}
}

// failWith injects a fault for operations on the named resource.
func (p *mockProvider) failWith(name string, err error, times int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[name] = &providerFault{err: err, times: times}
}

func (p *mockProvider) checkFault(name string) error {
	fault, ok := p.faults[name]
	if !ok || fault.times == 0 {
		return nil
	}
	if fault.times > 0 {
		fault.times--
	}
	return fault.err
}

func (p *mockProvider) resolver() ProviderResolver {
	return ResolverFunc(func(resourceType string) (Provider, error) {
		if _, ok := p.schemas[resourceType]; !ok {
			return nil, NewPermanentError(
				fmt.Sprintf("no provider for type %q", resourceType), nil).
				WithCode(ErrCodeSchema)
		}
		return p, nil
	})
}

func (p *mockProvider) Schema(resourceType string) (*ResourceSchema, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	schema, ok := p.schemas[resourceType]
	if !ok {
		return nil, NewPermanentError(
			fmt.Sprintf("unknown resource type %q", resourceType), nil).
			WithCode(ErrCodeSchema)
	}
	return schema, nil
}

func (p *mockProvider) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "create:"+req.Name)
	if err := p.checkFault(req.Name); err != nil {
		return nil, err
	}
	p.created[req.Name] = req
	return &CreateResponse{
		ProviderID: req.Name + "-id",
		Outputs:    p.outputs[req.Name],
	}, nil
}

func (p *mockProvider) Read(ctx context.Context, req ReadRequest) (*ReadResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "read:"+req.ProviderID)
	if err := p.checkFault(req.ProviderID); err != nil {
		return nil, err
	}
	if resp, ok := p.reads[req.ProviderID]; ok {
		return resp, nil
	}
	return &ReadResponse{Exists: true}, nil
}

func (p *mockProvider) Update(ctx context.Context, req UpdateRequest) (*UpdateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "update:"+req.Name)
	if err := p.checkFault(req.Name); err != nil {
		return nil, err
	}
	p.updated[req.Name] = req
	return &UpdateResponse{Outputs: p.outputs[req.Name]}, nil
}

func (p *mockProvider) Delete(ctx context.Context, req DeleteRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "delete:"+req.ProviderID)
	if err := p.checkFault(req.ProviderID); err != nil {
		return err
	}
	p.deleted = append(p.deleted, req.ProviderID)
	return nil
}

func (p *mockProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.calls...)
}

// decl builds a declaration for tests.
func decl(name, resourceType string, attrs map[string]any, dependsOn ...string) *Declaration {
	return &Declaration{
		Name:       name,
		Type:       resourceType,
		Attributes: attrs,
		DependsOn:  dependsOn,
	}
}

// networkDecls is the three-tier fixture used across the tests: a nic on a
// subnet on a network, chained by references.
func networkDecls() []*Declaration {
	return []*Declaration{
		decl("vnet", "mem.net", map[string]any{"cidr": "10.0.0.0/16"}),
		decl("subnet", "mem.subnet", map[string]any{
			"network": "${vnet.id}",
			"prefix":  "10.0.1.0/24",
		}),
		decl("nic", "mem.nic", map[string]any{"subnet": "${subnet.id}"}),
	}
}

// buildGraph loads declarations and builds the dependency graph, failing the
// test on any error.
func buildGraph(t *testing.T, decls []*Declaration, resolver ProviderResolver) (*Model, *Graph) {
	t.Helper()
	model, err := LoadDeclarations(decls, resolver)
	if err != nil {
		t.Fatalf("LoadDeclarations failed: %v", err)
	}
	graph, err := NewGraphBuilder().Build(model)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return model, graph
}
