package azure

import "github.com/groundwork-io/groundwork/pkg/engine"

// schemas describe the declarable attributes of every managed Azure type.
// Attributes that ARM cannot change in place are immutable and force a
// replacement.
var schemas = map[string]*engine.ResourceSchema{
	"azure.resource_group": {
		Type:    "azure.resource_group",
		Replace: engine.ReplaceDeleteThenCreate,
		Attributes: map[string]engine.AttributeSchema{
			"location": {Kind: engine.KindString, Required: true, Immutable: true},
			"tags":     {Kind: engine.KindMap},
		},
	},
	"azure.vnet": {
		Type:    "azure.vnet",
		Replace: engine.ReplaceDeleteThenCreate,
		Attributes: map[string]engine.AttributeSchema{
			"resource_group": {Kind: engine.KindString, Required: true, Immutable: true},
			"location":       {Kind: engine.KindString, Required: true, Immutable: true},
			"address_space":  {Kind: engine.KindList, Required: true},
			"tags":           {Kind: engine.KindMap},
		},
	},
	"azure.subnet": {
		Type:    "azure.subnet",
		Replace: engine.ReplaceDeleteThenCreate,
		Attributes: map[string]engine.AttributeSchema{
			"resource_group": {Kind: engine.KindString, Required: true, Immutable: true},
			"vnet":           {Kind: engine.KindString, Required: true, Immutable: true},
			"prefix":         {Kind: engine.KindString, Required: true, Immutable: true},
		},
	},
	"azure.nic": {
		Type:    "azure.nic",
		Replace: engine.ReplaceDeleteThenCreate,
		Attributes: map[string]engine.AttributeSchema{
			"resource_group": {Kind: engine.KindString, Required: true, Immutable: true},
			"location":       {Kind: engine.KindString, Required: true, Immutable: true},
			"subnet_id":      {Kind: engine.KindString, Required: true, Immutable: true},
			"tags":           {Kind: engine.KindMap},
		},
	},
	"azure.keyvault": {
		Type:    "azure.keyvault",
		Replace: engine.ReplaceDeleteThenCreate,
		Attributes: map[string]engine.AttributeSchema{
			"resource_group": {Kind: engine.KindString, Required: true, Immutable: true},
			"location":       {Kind: engine.KindString, Required: true, Immutable: true},
			"tenant_id":      {Kind: engine.KindString, Required: true, Immutable: true},
			"sku":            {Kind: engine.KindString},
		},
	},
	"azure.vm": {
		Type:    "azure.vm",
		Replace: engine.ReplaceDeleteThenCreate,
		Attributes: map[string]engine.AttributeSchema{
			"resource_group": {Kind: engine.KindString, Required: true, Immutable: true},
			"location":       {Kind: engine.KindString, Required: true, Immutable: true},
			"size":           {Kind: engine.KindString, Required: true},
			"image":          {Kind: engine.KindMap, Required: true, Immutable: true},
			"admin_username": {Kind: engine.KindString, Required: true, Immutable: true},
			"admin_password": {Kind: engine.KindString, Required: true},
			"nic_id":         {Kind: engine.KindString, Required: true, Immutable: true},
			"tags":           {Kind: engine.KindMap},
		},
	},
}
