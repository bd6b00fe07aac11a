package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

type resourceGroupConfig struct {
	Location string            `json:"location"`
	Tags     map[string]string `json:"tags"`
}

func (p *Provider) createResourceGroup(ctx context.Context, req engine.CreateRequest) (*engine.CreateResponse, error) {
	var cfg resourceGroupConfig
	if err := decodeAttributes(req.Attributes, &cfg); err != nil {
		return nil, err
	}

	resp, err := p.groups.CreateOrUpdate(ctx, req.Name, armresources.ResourceGroup{
		Location: to.Ptr(cfg.Location),
		Tags:     toTags(cfg.Tags),
	}, nil)
	if err != nil {
		return nil, classify(err, req.Name, "resource group create")
	}

	return &engine.CreateResponse{
		ProviderID: *resp.ID,
		Outputs: map[string]any{
			"id":       *resp.ID,
			"location": cfg.Location,
		},
	}, nil
}

func (p *Provider) readResourceGroup(ctx context.Context, req engine.ReadRequest) (*engine.ReadResponse, error) {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return nil, err
	}

	resp, err := p.groups.Get(ctx, id.ResourceGroupName, nil)
	if err != nil {
		if isNotFound(err) {
			return &engine.ReadResponse{Exists: false}, nil
		}
		return nil, classify(err, id.ResourceGroupName, "resource group read")
	}

	return &engine.ReadResponse{
		Exists: true,
		Attributes: map[string]any{
			"location": deref(resp.Location),
			"tags":     fromTags(resp.Tags),
		},
		Outputs: map[string]any{"id": deref(resp.ID)},
	}, nil
}

func (p *Provider) deleteResourceGroup(ctx context.Context, req engine.DeleteRequest) error {
	id, err := parseID(req.ProviderID)
	if err != nil {
		return err
	}

	poller, err := p.groups.BeginDelete(ctx, id.ResourceGroupName, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify(err, id.ResourceGroupName, "resource group delete")
	}
	if _, err := poller.PollUntilDone(ctx, nil); err != nil {
		return classify(err, id.ResourceGroupName, "resource group delete")
	}
	return nil
}

func toTags(tags map[string]string) map[string]*string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = to.Ptr(v)
	}
	return out
}

func fromTags(tags map[string]*string) map[string]any {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]any, len(tags))
	for k, v := range tags {
		out[k] = deref(v)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
