package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

type vaultConfig struct {
	ResourceGroup string `json:"resource_group"`
	Location      string `json:"location"`
	TenantID      string `json:"tenant_id"`
	SKU           string `json:"sku"`
}

func (p *Provider) createVault(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	var cfg vaultConfig
	if err := decodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, err
	}

	sku := armkeyvault.SKUNameStandard
	if cfg.SKU == "premium" {
		sku = armkeyvault.SKUNamePremium
	}

	poller, err := p.vaults.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, req.Name, armkeyvault.VaultCreateOrUpdateParameters{
		Location: to.Ptr(cfg.Location),
		Properties: &armkeyvault.VaultProperties{
			TenantID: to.Ptr(cfg.TenantID),
			SKU: &armkeyvault.SKU{
				Family: to.Ptr(armkeyvault.SKUFamilyA),
				Name:   to.Ptr(sku),
			},
			AccessPolicies: []*armkeyvault.AccessPolicyEntry{},
		},
	}, nil)
	if err != nil {
		return nil, classify(err, req.Name, "key vault create")
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, classify(err, req.Name, "key vault create")
	}

	outputs := map[string]any{"id": deref(resp.ID)}
	if resp.Properties != nil {
		outputs["vault_uri"] = deref(resp.Properties.VaultURI)
	}

	return &engine.CreateResponse{
		ProviderID: deref(resp.ID),
		Outputs:    outputs,
	}, nil
}

func (p *Provider) readVault(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}

	resp, err := p.vaults.Get(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return &engine.ReadResponse{Exists: false}, nil
		}
		return nil, classify(err, id.Name, "key vault read")
	}

	attrs := map[string]any{
		"resource_group": id.ResourceGroupName,
		"location":       deref(resp.Location),
	}
	outputs := map[string]any{"id": deref(resp.ID)}
	if resp.Properties != nil {
		attrs["tenant_id"] = deref(resp.Properties.TenantID)
		if resp.Properties.SKU != nil && resp.Properties.SKU.Name != nil {
			attrs["sku"] = string(*resp.Properties.SKU.Name)
		}
		outputs["vault_uri"] = deref(resp.Properties.VaultURI)
	}

	return &engine.ReadResponse{
		Exists:     true,
		Attributes: attrs,
		Outputs:    outputs,
	}, nil
}

func (p *Provider) deleteVault(ctx context.Context, req engine.DeleteRequest) error {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return err
	}

	if _, err := p.vaults.Delete(ctx, id.ResourceGroupName, id.Name, nil); err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err, id.Name, "key vault delete")
	}
	return nil
}
