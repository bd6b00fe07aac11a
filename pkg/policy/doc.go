// Package policy evaluates Rego policies against plans before they are
// applied.
//
// Policies are Open Policy Agent modules whose rules contribute to a deny
// set. Each member of the set becomes a violation; violations at error
// severity block the apply. The engine ships with built-in policies for
// protected resources and naming conventions, and loads additional .rego
// files from configured paths.
//
// Example policy:
//
//	package groundwork.policies.regions
//
//	import rego.v1
//
//	deny contains violation if {
//		some entry in input.plan.entries
//		entry.declaration.attributes.location == "westus"
//		violation := {
//			"message": "westus is not an approved region",
//			"severity": "error",
//			"resource": entry.name,
//		}
//	}
//
// The input document carries the full plan under input.plan and evaluation
// context under input.context.
package policy
