package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

type virtualNetworkConfig struct {
	ResourceGroup string            `json:"resource_group"`
	Location      string            `json:"location"`
	AddressSpace  []string          `json:"address_space"`
	Tags          map[string]string `json:"tags"`
}

type subnetConfig struct {
	ResourceGroup string `json:"resource_group"`
	VNet          string `json:"vnet"`
	Prefix        string `json:"prefix"`
}

type interfaceConfig struct {
	ResourceGroup string            `json:"resource_group"`
	Location      string            `json:"location"`
	SubnetID      string            `json:"subnet_id"`
	Tags          map[string]string `json:"tags"`
}

func (p *Provider) createVirtualNetwork(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	var cfg virtualNetworkConfig
	if err := decodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, err
	}

	prefixes := make([]*string, len(cfg.AddressSpace))
	for i, prefix := range cfg.AddressSpace {
		prefixes[i] = to.Ptr(prefix)
	}

	poller, err := p.vnets.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, req.Name, armnetwork.VirtualNetwork{
		Location: to.Ptr(cfg.Location),
		Tags:     toTags(cfg.Tags),
		Properties: &armnetwork.VirtualNetworkPropertiesFormat{
			AddressSpace: &armnetwork.AddressSpace{AddressPrefixes: prefixes},
		},
	}, nil)
	if err != nil {
		return nil, classify(err, req.Name, "virtual network create")
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, classify(err, req.Name, "virtual network create")
	}

	return &engine.CreateResponse{
		ProviderID: deref(resp.ID),
		Outputs:    map[string]any{"id": deref(resp.ID)},
	}, nil
}

func (p *Provider) readVirtualNetwork(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}

	resp, err := p.vnets.Get(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return &engine.ReadResponse{Exists: false}, nil
		}
		return nil, classify(err, id.Name, "virtual network read")
	}

	var addressSpace []any
	if resp.Properties != nil && resp.Properties.AddressSpace != nil {
		for _, prefix := range resp.Properties.AddressSpace.AddressPrefixes {
			addressSpace = append(addressSpace, deref(prefix))
		}
	}

	return &engine.ReadResponse{
		Exists: true,
		Attributes: map[string]any{
			"resource_group": id.ResourceGroupName,
			"location":       deref(resp.Location),
			"address_space":  addressSpace,
			"tags":           fromTags(resp.Tags),
		},
		Outputs: map[string]any{"id": deref(resp.ID)},
	}, nil
}

func (p *Provider) deleteVirtualNetwork(ctx context.Context, req engine.DeleteRequest) error {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return err
	}

	poller, err := p.vnets.BeginDelete(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err, id.Name, "virtual network delete")
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classify(err, id.Name, "virtual network delete")
	}
	return nil
}

func (p *Provider) createSubnet(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	var cfg subnetConfig
	if err := decodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, err
	}

	// The vnet attribute may be the vnet's logical name or its ARM ID
	// (e.g. via a ${vnet.id} reference).
	vnetName := cfg.VNet
	if id, err := parseID(cfg.VNet); err == nil {
		vnetName = id.Name
	}

	poller, err := p.subnets.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, vnetName, req.Name, armnetwork.Subnet{
		Properties: &armnetwork.SubnetPropertiesFormat{
			AddressPrefix: to.Ptr(cfg.Prefix),
		},
	}, nil)
	if err != nil {
		return nil, classify(err, req.Name, "subnet create")
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, classify(err, req.Name, "subnet create")
	}

	return &engine.CreateResponse{
		ProviderID: deref(resp.ID),
		Outputs:    map[string]any{"id": deref(resp.ID)},
	}, nil
}

func (p *Provider) readSubnet(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}
	vnetName := ""
	if id.Parent != nil {
		vnetName = id.Parent.Name
	}

	resp, err := p.subnets.Get(ctx, id.ResourceGroupName, vnetName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return &engine.ReadResponse{Exists: false}, nil
		}
		return nil, classify(err, id.Name, "subnet read")
	}

	prefix := ""
	if resp.Properties != nil {
		prefix = deref(resp.Properties.AddressPrefix)
	}

	return &engine.ReadResponse{
		Exists: true,
		Attributes: map[string]any{
			"resource_group": id.ResourceGroupName,
			"vnet":           vnetName,
			"prefix":         prefix,
		},
		Outputs: map[string]any{"id": deref(resp.ID)},
	}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, req engine.DeleteRequest) error {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return err
	}
	vnetName := ""
	if id.Parent != nil {
		vnetName = id.Parent.Name
	}

	poller, err := p.subnets.BeginDelete(ctx, id.ResourceGroupName, vnetName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err, id.Name, "subnet delete")
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classify(err, id.Name, "subnet delete")
	}
	return nil
}

func (p *Provider) createInterface(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	var cfg interfaceConfig
	if err := decodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, err
	}

	poller, err := p.nics.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, req.Name, armnetwork.Interface{
		Location: to.Ptr(cfg.Location),
		Tags:     toTags(cfg.Tags),
		Properties: &armnetwork.InterfacePropertiesFormat{
			IPConfigurations: []*armnetwork.InterfaceIPConfiguration{{
				Name: to.Ptr("primary"),
				Properties: &armnetwork.InterfaceIPConfigurationPropertiesFormat{
					Subnet:                    &armnetwork.Subnet{ID: to.Ptr(cfg.SubnetID)},
					PrivateIPAllocationMethod: to.Ptr(armnetwork.IPAllocationMethodDynamic),
				},
			}},
		},
	}, nil)
	if err != nil {
		return nil, classify(err, req.Name, "network interface create")
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, classify(err, req.Name, "network interface create")
	}

	outputs := map[string]any{"id": deref(resp.ID)}
	if ip := primaryPrivateIP(&resp.Interface); ip != "" {
		outputs["private_ip"] = ip
	}

	return &engine.CreateResponse{
		ProviderID: deref(resp.ID),
		Outputs:    outputs,
	}, nil
}

func (p *Provider) readInterface(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}

	resp, err := p.nics.Get(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return &engine.ReadResponse{Exists: false}, nil
		}
		return nil, classify(err, id.Name, "network interface read")
	}

	subnetID := ""
	if resp.Properties != nil {
		for _, ipc := range resp.Properties.IPConfigurations {
			if ipc.Properties != nil && ipc.Properties.Subnet != nil {
				subnetID = deref(ipc.Properties.Subnet.ID)
				break
			}
		}
	}

	outputs := map[string]any{"id": deref(resp.ID)}
	if ip := primaryPrivateIP(&resp.Interface); ip != "" {
		outputs["private_ip"] = ip
	}

	return &engine.ReadResponse{
		Exists: true,
		Attributes: map[string]any{
			"resource_group": id.ResourceGroupName,
			"location":       deref(resp.Location),
			"subnet_id":      subnetID,
			"tags":           fromTags(resp.Tags),
		},
		Outputs: outputs,
	}, nil
}

func (p *Provider) deleteInterface(ctx context.Context, req engine.DeleteRequest) error {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return err
	}

	poller, err := p.nics.BeginDelete(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err, id.Name, "network interface delete")
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classify(err, id.Name, "network interface delete")
	}
	return nil
}

func primaryPrivateIP(nic *armnetwork.Interface) string {
	if nic.Properties == nil {
		return ""
	}
	for _, ipc := range nic.Properties.IPConfigurations {
		if ipc.Properties != nil && ipc.Properties.PrivateIPAddress != nil {
			return *ipc.Properties.PrivateIPAddress
		}
	}
	return ""
}
