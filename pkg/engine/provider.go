package engine

import (
	"context"
)

// Provider is the resource provider capability: an opaque, possibly slow,
// possibly rate-limited boundary that materializes declared resources.
// Implementations classify their failures as ReconcileError so the executor
// can decide between retrying and aborting.
type Provider interface {
	// Schema returns the attribute schema for a resource type handled by
	// this provider. Fails with ErrCodeSchema for unknown types.
	Schema(resourceType string) (*ResourceSchema, error)

	// Create materializes a new resource and returns the provider-assigned
	// identifier plus output attributes.
	Create(ctx context.Context, req CreateRequest) (*CreateResponse, error)

	// Read retrieves the current provider-side state of a resource.
	// A missing resource is reported via Exists=false, not an error.
	Read(ctx context.Context, req ReadRequest) (*ReadResponse, error)

	// Update applies an attribute diff in place and returns refreshed outputs.
	Update(ctx context.Context, req UpdateRequest) (*UpdateResponse, error)

	// Delete removes a resource. Deleting an already-absent resource is not
	// an error.
	Delete(ctx context.Context, req DeleteRequest) error
}

// ResourceSchema describes the attributes of one resource type.
type ResourceSchema struct {
	// Type is the resource type this schema describes.
	Type string `json:"type"`

	// Attributes maps attribute names to their schemas.
	Attributes map[string]AttributeSchema `json:"attributes"`

	// Replace is the replacement ordering for immutable-attribute changes.
	Replace ReplaceStrategy `json:"replace"`
}

// AttributeSchema describes a single declarable attribute.
type AttributeSchema struct {
	// Kind is the expected value kind.
	Kind AttributeKind `json:"kind"`

	// Required attributes must be present in every declaration.
	Required bool `json:"required,omitempty"`

	// Immutable attributes cannot change in place; a change forces a
	// replacement of the whole resource.
	Immutable bool `json:"immutable,omitempty"`
}

// AttributeKind is the value kind an attribute accepts.
type AttributeKind string

const (
	KindString AttributeKind = "string"
	KindInt    AttributeKind = "int"
	KindBool   AttributeKind = "bool"
	KindList   AttributeKind = "list"
	KindMap    AttributeKind = "map"
)

// CreateRequest contains the parameters for a Create operation.
type CreateRequest struct {
	// Name is the logical identity of the resource.
	Name string `json:"name"`

	// Type is the resource type.
	Type string `json:"type"`

	// Attributes are the fully resolved attribute values (no references).
	Attributes map[string]any `json:"attributes"`
}

// CreateResponse contains the result of a Create operation.
type CreateResponse struct {
	// ProviderID is the provider-assigned identifier.
	ProviderID string `json:"provider_id"`

	// Outputs are output attributes produced by the provider (e.g. "id").
	Outputs map[string]any `json:"outputs,omitempty"`
}

// ReadRequest contains the parameters for a Read operation.
type ReadRequest struct {
	// Type is the resource type.
	Type string `json:"type"`

	// ProviderID is the provider-assigned identifier.
	ProviderID string `json:"provider_id"`
}

// ReadResponse contains the result of a Read operation.
type ReadResponse struct {
	// Exists indicates whether the resource exists provider-side.
	Exists bool `json:"exists"`

	// Attributes are the current provider-side attribute values.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Outputs are the current output attributes.
	Outputs map[string]any `json:"outputs,omitempty"`
}

// UpdateRequest contains the parameters for an Update operation.
type UpdateRequest struct {
	// Name is the logical identity of the resource.
	Name string `json:"name"`

	// Type is the resource type.
	Type string `json:"type"`

	// ProviderID is the provider-assigned identifier.
	ProviderID string `json:"provider_id"`

	// Attributes are the fully resolved desired attribute values.
	Attributes map[string]any `json:"attributes"`

	// Diffs are the attribute-level changes being applied.
	Diffs []AttributeDiff `json:"diffs,omitempty"`
}

// UpdateResponse contains the result of an Update operation.
type UpdateResponse struct {
	// Outputs are the refreshed output attributes.
	Outputs map[string]any `json:"outputs,omitempty"`
}

// DeleteRequest contains the parameters for a Delete operation.
type DeleteRequest struct {
	// Type is the resource type.
	Type string `json:"type"`

	// ProviderID is the provider-assigned identifier.
	ProviderID string `json:"provider_id"`
}

// ProviderResolver maps a resource type to the provider handling it.
// The process-scoped registry in pkg/providers implements this; tests use
// single-provider resolvers.
type ProviderResolver interface {
	// Resolve returns the provider for the given resource type, or a
	// permanent ErrCodeSchema error when no provider claims the type.
	Resolve(resourceType string) (Provider, error)
}

// ResolverFunc adapts a function to the ProviderResolver interface.
type ResolverFunc func(resourceType string) (Provider, error)

// Resolve implements ProviderResolver.
func (f ResolverFunc) Resolve(resourceType string) (Provider, error) {
	return f(resourceType)
}
