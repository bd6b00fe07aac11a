package policy

// BuiltinPolicies returns the policies loaded into every engine.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedResourcesPolicy(),
		resourceNamingPolicy(),
	}
}

// protectedResourcesPolicy refuses to delete or replace resources that declare
// a protected attribute. The attribute travels into the state record on
// create, so the policy still holds after the declaration is removed.
func protectedResourcesPolicy() Policy {
	return Policy{
		Name:        "protected-resources",
		Description: "Blocks delete and replace of resources with attribute protected=true",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package groundwork.policies.protected

import rego.v1

deny contains violation if {
	some entry in input.plan.entries
	entry.op in {"delete", "replace"}
	entry.record.attributes.protected == true
	violation := {
		"message": sprintf("resource %s is protected and cannot be deleted or replaced", [entry.name]),
		"severity": "error",
		"resource": entry.name,
	}
}
`,
	}
}

// resourceNamingPolicy enforces naming conventions on declared resources.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Enforces lowercase alphanumeric-with-hyphens resource names, 3 to 63 characters",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package groundwork.policies.naming

import rego.v1

deny contains violation if {
	some entry in input.plan.entries
	entry.declaration
	name := entry.declaration.name
	not regex.match("^[a-z0-9]([a-z0-9-]*[a-z0-9])?$", name)
	violation := {
		"message": sprintf("resource name %q must contain only lowercase letters, numbers, and hyphens", [name]),
		"severity": "error",
		"resource": name,
	}
}

deny contains violation if {
	some entry in input.plan.entries
	entry.declaration
	name := entry.declaration.name
	count(name) < 3
	violation := {
		"message": sprintf("resource name %q must be at least 3 characters long", [name]),
		"severity": "error",
		"resource": name,
	}
}

deny contains violation if {
	some entry in input.plan.entries
	entry.declaration
	name := entry.declaration.name
	count(name) > 63
	violation := {
		"message": sprintf("resource name %q must be at most 63 characters long", [name]),
		"severity": "error",
		"resource": name,
	}
}
`,
	}
}
