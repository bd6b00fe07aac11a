// Package memory implements an in-process resource provider. Resources live
// in a map for the lifetime of the process. It backs local experimentation
// and the test suites, and supports fault injection to exercise the
// executor's retry and failure paths.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

// Prefix is the resource type prefix claimed by this provider.
const Prefix = "mem"

type object struct {
	id         string
	kind       string
	attributes map[string]any
	version    int
}

type fault struct {
	err   error
	times int // remaining failures, -1 for forever
}

// Provider is the in-memory resource provider.
type Provider struct {
	mu      sync.Mutex
	objects map[string]*object
	seq     int
	faults  map[string]*fault
	schemas map[string]*engine.ResourceSchema
}

// New creates an empty in-memory provider.
func New() *Provider {
	return &Provider{
		objects: make(map[string]*object),
		faults:  make(map[string]*fault),
		schemas: map[string]*engine.ResourceSchema{
			"mem.object": {
				Type:    "mem.object",
				Replace: engine.ReplaceDeleteThenCreate,
				Attributes: map[string]engine.AttributeSchema{
					"value":   {Kind: engine.KindString, Required: true},
					"size":    {Kind: engine.KindInt},
					"enabled": {Kind: engine.KindBool},
					"tags":    {Kind: engine.KindMap},
				},
			},
			"mem.volume": {
				Type:    "mem.volume",
				Replace: engine.ReplaceDeleteThenCreate,
				Attributes: map[string]engine.AttributeSchema{
					"capacity": {Kind: engine.KindInt, Required: true},
					"zone":     {Kind: engine.KindString, Required: true, Immutable: true},
					"source":   {Kind: engine.KindString},
				},
			},
			"mem.endpoint": {
				Type:    "mem.endpoint",
				Replace: engine.ReplaceCreateThenDelete,
				Attributes: map[string]engine.AttributeSchema{
					"target":  {Kind: engine.KindString, Required: true},
					"aliases": {Kind: engine.KindList},
					"port":    {Kind: engine.KindInt, Immutable: true},
				},
			},
		},
	}
}

// InjectFault makes operations on the named resource (by logical name for
// creates, provider ID otherwise) fail with the given error. times limits
// how often; -1 fails forever.
func (p *Provider) InjectFault(key string, err error, times int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[key] = &fault{err: err, times: times}
}

// Len reports the number of live objects.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

func (p *Provider) checkFault(key string) error {
	f, ok := p.faults[key]
	if !ok || f.times == 0 {
		return nil
	}
	if f.times > 0 {
		f.times--
	}
	return f.err
}

// Schema implements engine.Provider.
func (p *Provider) Schema(resourceType string) (*engine.ResourceSchema, error) {
	schema, ok := p.schemas[resourceType]
	if !ok {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("unknown resource type %q", resourceType), nil).
			WithCode(engine.ErrCodeSchema)
	}
	return schema, nil
}

// Create implements engine.Provider.
func (p *Provider) Create(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFault(req.Name); err != nil {
		return nil, err
	}

	p.seq++
	obj := &object{
		id:         fmt.Sprintf("mem-%d", p.seq),
		kind:       req.Type,
		attributes: req.Attributes,
		version:    1,
	}
	p.objects[obj.id] = obj

	return &engine.CreateResponse{
		ProviderID: obj.id,
		Outputs:    p.outputsLocked(obj),
	}, nil
}

// Read implements engine.Provider.
func (p *Provider) Read(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFault(req.ProviderID); err != nil {
		return nil, err
	}

	obj, ok := p.objects[req.ProviderID]
	if !ok {
		return &engine.ReadResponse{Exists: false}, nil
	}
	return &engine.ReadResponse{
		Exists:     true,
		Attributes: obj.attributes,
		Outputs:    p.outputsLocked(obj),
	}, nil
}

// Update implements engine.Provider.
func (p *Provider) Update(ctx context.Context, req engine.UpdateRequest) (*engine.UpdateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFault(req.ProviderID); err != nil {
		return nil, err
	}

	obj, ok := p.objects[req.ProviderID]
	if !ok {
		return nil, engine.NewConflictError(
			fmt.Sprintf("object %s does not exist", req.ProviderID), nil).
			WithCode(engine.ErrCodeNotFound)
	}

	obj.attributes = req.Attributes
	obj.version++
	return &engine.UpdateResponse{Outputs: p.outputsLocked(obj)}, nil
}

// Delete implements engine.Provider. Deleting an absent object is not an
// error.
func (p *Provider) Delete(ctx context.Context, req engine.DeleteRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFault(req.ProviderID); err != nil {
		return err
	}

	delete(p.objects, req.ProviderID)
	return nil
}

func (p *Provider) outputsLocked(obj *object) map[string]any {
	return map[string]any{
		"id":      obj.id,
		"version": obj.version,
	}
}
