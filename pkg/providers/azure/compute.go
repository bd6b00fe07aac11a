package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

type virtualMachineConfig struct {
	ResourceGroup string            `json:"resource_group"`
	Location      string            `json:"location"`
	Size          string            `json:"size"`
	Image         map[string]string `json:"image"`
	AdminUsername string            `json:"admin_username"`
	AdminPassword string            `json:"admin_password"`
	NICID         string            `json:"nic_id"`
	Tags          map[string]string `json:"tags"`
}

func (p *Provider) createVirtualMachine(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	var cfg virtualMachineConfig
	if err := decodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, err
	}

	poller, err := p.vms.BeginCreateOrUpdate(ctx, cfg.ResourceGroup, req.Name, armcompute.VirtualMachine{
		Location: to.Ptr(cfg.Location),
		Tags:     toTags(cfg.Tags),
		Properties: &armcompute.VirtualMachineProperties{
			HardwareProfile: &armcompute.HardwareProfile{
				VMSize: to.Ptr(armcompute.VirtualMachineSizeTypes(cfg.Size)),
			},
			StorageProfile: &armcompute.StorageProfile{
				ImageReference: &armcompute.ImageReference{
					Publisher: to.Ptr(cfg.Image["publisher"]),
					Offer:     to.Ptr(cfg.Image["offer"]),
					SKU:       to.Ptr(cfg.Image["sku"]),
					Version:   to.Ptr(cfg.Image["version"]),
				},
			},
			OSProfile: &armcompute.OSProfile{
				ComputerName:  to.Ptr(req.Name),
				AdminUsername: to.Ptr(cfg.AdminUsername),
				AdminPassword: to.Ptr(cfg.AdminPassword),
			},
			NetworkProfile: &armcompute.NetworkProfile{
				NetworkInterfaces: []*armcompute.NetworkInterfaceReference{{
					ID: to.Ptr(cfg.NICID),
					Properties: &armcompute.NetworkInterfaceReferenceProperties{
						Primary: to.Ptr(true),
					},
				}},
			},
		},
	}, nil)
	if err != nil {
		return nil, classify(err, req.Name, "virtual machine create")
	}
	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, classify(err, req.Name, "virtual machine create")
	}

	outputs := map[string]any{"id": deref(resp.ID)}
	if resp.Properties != nil && resp.Properties.VMID != nil {
		outputs["vm_id"] = *resp.Properties.VMID
	}

	return &engine.CreateResponse{
		ProviderID: deref(resp.ID),
		Outputs:    outputs,
	}, nil
}

func (p *Provider) readVirtualMachine(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}

	resp, err := p.vms.Get(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return &engine.ReadResponse{Exists: false}, nil
		}
		return nil, classify(err, id.Name, "virtual machine read")
	}

	attrs := map[string]any{
		"resource_group": id.ResourceGroupName,
		"location":       deref(resp.Location),
		"tags":           fromTags(resp.Tags),
	}
	outputs := map[string]any{"id": deref(resp.ID)}
	if props := resp.Properties; props != nil {
		if props.HardwareProfile != nil && props.HardwareProfile.VMSize != nil {
			attrs["size"] = string(*props.HardwareProfile.VMSize)
		}
		if props.StorageProfile != nil && props.StorageProfile.ImageReference != nil {
			ref := props.StorageProfile.ImageReference
			attrs["image"] = map[string]any{
				"publisher": deref(ref.Publisher),
				"offer":     deref(ref.Offer),
				"sku":       deref(ref.SKU),
				"version":   deref(ref.Version),
			}
		}
		if props.OSProfile != nil {
			attrs["admin_username"] = deref(props.OSProfile.AdminUsername)
		}
		if props.NetworkProfile != nil && len(props.NetworkProfile.NetworkInterfaces) > 0 {
			attrs["nic_id"] = deref(props.NetworkProfile.NetworkInterfaces[0].ID)
		}
		if props.VMID != nil {
			outputs["vm_id"] = *props.VMID
		}
	}

	return &engine.ReadResponse{
		Exists:     true,
		Attributes: attrs,
		Outputs:    outputs,
	}, nil
}

func (p *Provider) deleteVirtualMachine(ctx context.Context, req engine.DeleteRequest) error {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return err
	}

	poller, err := p.vms.BeginDelete(ctx, id.ResourceGroupName, id.Name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err, id.Name, "virtual machine delete")
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classify(err, id.Name, "virtual machine delete")
	}
	return nil
}
