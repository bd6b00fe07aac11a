// Package azure implements a resource provider over the Azure track-2 SDK.
// It manages resource groups, virtual networks, subnets, network interfaces,
// key vaults and virtual machines. Each resource's provider ID is its ARM
// resource ID.
package azure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	armcompute "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

// Prefix is the resource type prefix claimed by this provider.
const Prefix = "azure"

// Config holds the provider configuration.
type Config struct {
	// SubscriptionID is the Azure subscription to manage resources in.
	SubscriptionID string

	// Credential overrides the default credential chain; nil uses
	// DefaultAzureCredential (environment, managed identity, CLI).
	Credential azcore.TokenCredential
}

// Provider is the Azure resource provider.
type Provider struct {
	subscription string
	groups       *armresources.ResourceGroupsClient
	vnets        *armnetwork.VirtualNetworksClient
	subnets      *armnetwork.SubnetsClient
	nics         *armnetwork.InterfacesClient
	vaults       *armkeyvault.VaultsClient
	vms          *armcompute.VirtualMachinesClient
}

// New creates an Azure provider with clients for every managed service.
func New(cfg Config) (*Provider, error) {
	if cfg.SubscriptionID == "" {
		return nil, engine.NewPermanentError("azure subscription ID is required", nil).
			WithCode(engine.ErrCodeSchema)
	}

	cred := cfg.Credential
	if cred == nil {
		var err error
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, engine.NewPermanentError("failed to build azure credential", err).
				WithCode(engine.ErrCodeProvider)
		}
	}

	groups, err := armresources.NewResourceGroupsClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource groups client: %w", err)
	}
	vnets, err := armnetwork.NewVirtualNetworksClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual networks client: %w", err)
	}
	subnets, err := armnetwork.NewSubnetsClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subnets client: %w", err)
	}
	nics, err := armnetwork.NewInterfacesClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create network interfaces client: %w", err)
	}
	vaults, err := armkeyvault.NewVaultsClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vaults client: %w", err)
	}
	vms, err := armcompute.NewVirtualMachinesClient(cfg.SubscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual machines client: %w", err)
	}

	return &Provider{
		subscription: cfg.SubscriptionID,
		groups:       groups,
		vnets:        vnets,
		subnets:      subnets,
		nics:         nics,
		vaults:       vaults,
		vms:          vms,
	}, nil
}

// Schema implements engine.Provider.
func (p *Provider) Schema(resourceType string) (*engine.ResourceSchema, error) {
	schema, ok := schemas[resourceType]
	if !ok {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("unknown resource type %q", resourceType), nil).
			WithCode(engine.ErrCodeSchema)
	}
	return schema, nil
}

// Create implements engine.Provider.
func (p *Provider) Create(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	switch req.Type {
	case "azure.resource_group":
		return p.createResourceGroup(ctx, req)
	case "azure.vnet":
		return p.createVirtualNetwork(ctx, req)
	case "azure.subnet":
		return p.createSubnet(ctx, req)
	case "azure.nic":
		return p.createInterface(ctx, req)
	case "azure.keyvault":
		return p.createVault(ctx, req)
	case "azure.vm":
		return p.createVirtualMachine(ctx, req)
	default:
		return nil, engine.NewPermanentError(
			fmt.Sprintf("unknown resource type %q", req.Type), nil).
			WithCode(engine.ErrCodeSchema)
	}
}

// Read implements engine.Provider.
func (p *Provider) Read(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	switch req.Type {
	case "azure.resource_group":
		return p.readResourceGroup(ctx, req)
	case "azure.vnet":
		return p.readVirtualNetwork(ctx, req)
	case "azure.subnet":
		return p.readSubnet(ctx, req)
	case "azure.nic":
		return p.readInterface(ctx, req)
	case "azure.keyvault":
		return p.readVault(ctx, req)
	case "azure.vm":
		return p.readVirtualMachine(ctx, req)
	default:
		return nil, engine.NewPermanentError(
			fmt.Sprintf("unknown resource type %q", req.Type), nil).
			WithCode(engine.ErrCodeSchema)
	}
}

// Update implements engine.Provider. ARM create-or-update calls are upserts,
// so updates re-issue the desired shape at the existing name.
func (p *Provider) Update(ctx context.Context, req engine.UpdateRequest) (*engine.UpdateResponse, error) {
	created, err := p.Create(ctx, engine.CreateRequest{
		Name:       req.Name,
		Type:       req.Type,
		Attributes: req.Attributes,
	})
	if err != nil {
		return nil, err
	}
	return &engine.UpdateResponse{Outputs: created.Outputs}, nil
}

// Delete implements engine.Provider. Deleting an already-absent resource is
// not an error.
func (p *Provider) Delete(ctx context.Context, req engine.DeleteRequest) error {
	switch req.Type {
	case "azure.resource_group":
		return p.deleteResourceGroup(ctx, req)
	case "azure.vnet":
		return p.deleteVirtualNetwork(ctx, req)
	case "azure.subnet":
		return p.deleteSubnet(ctx, req)
	case "azure.nic":
		return p.deleteInterface(ctx, req)
	case "azure.keyvault":
		return p.deleteVault(ctx, req)
	case "azure.vm":
		return p.deleteVirtualMachine(ctx, req)
	default:
		return engine.NewPermanentError(
			fmt.Sprintf("unknown resource type %q", req.Type), nil).
			WithCode(engine.ErrCodeSchema)
	}
}

// decodeAttributes maps resolved attribute values onto a typed config
// struct via a JSON round trip.
func decodeAttributes(attrs map[string]any, v any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return engine.NewPermanentError("failed to encode attributes", err).
			WithCode(engine.ErrCodeSchema)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return engine.NewPermanentError("failed to decode attributes", err).
			WithCode(engine.ErrCodeSchema)
	}
	return nil
}

// parseID splits an ARM resource ID into its components.
func parseID(providerID string) (*arm.ResourceID, error) {
	id, err := arm.ParseResourceID(providerID)
	if err != nil {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("malformed ARM resource ID %q", providerID), err).
			WithCode(engine.ErrCodeProvider)
	}
	return id, nil
}
