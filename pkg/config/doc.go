// Package config loads resource declarations from CUE configuration files.
//
// A configuration declares a workspace and a set of resources:
//
//	workspace: {
//		name:        "web"
//		environment: "dev"
//	}
//
//	resources: {
//		"web-vnet": {
//			type: "azure.vnet"
//			attributes: {
//				resource_group: "web-rg"
//				location:       "westeurope"
//				address_space: ["10.0.0.0/16"]
//			}
//		}
//	}
//
// Resources may also be given as a list with explicit names. Multiple
// sources unify into a single CUE value, as do optional per-environment
// YAML overlay files, so environments can refine attribute values without
// repeating whole declarations. Decoded resources are checked with struct
// validation before becoming engine declarations.
package config
