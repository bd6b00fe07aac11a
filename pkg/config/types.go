package config

import (
	"sort"
	"time"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

// WorkspaceConfig describes the workspace a declaration set belongs to.
type WorkspaceConfig struct {
	// Name identifies the workspace.
	Name string `json:"name" validate:"omitempty,max=63"`

	// Environment is the target environment (e.g., "dev", "prod"). Overlay
	// files are selected against it by the CLI.
	Environment string `json:"environment,omitempty"`

	// StatePath overrides the default state database location.
	StatePath string `json:"state_path,omitempty"`
}

// ResourceConfig is one declared resource as written in configuration.
type ResourceConfig struct {
	// Name is the logical identity. When resources are declared as a CUE
	// struct, the field name is used and this may be omitted.
	Name string `json:"name" validate:"required,max=63"`

	// Type is the resource type, prefixed by the owning provider.
	Type string `json:"type" validate:"required,contains=."`

	// Attributes are the declared attribute values. String values may embed
	// references of the form "${name.output}".
	Attributes map[string]any `json:"attributes" validate:"required"`

	// DependsOn lists explicit dependencies by logical name.
	DependsOn []string `json:"depends_on,omitempty"`

	// Labels are key-value pairs for organizing and selecting resources.
	Labels map[string]string `json:"labels,omitempty"`
}

// ValidationError is one problem found while parsing configuration.
type ValidationError struct {
	// File is the source file where the error occurred.
	File string `json:"file,omitempty"`

	// Line is the line number (1-based, 0 when unknown).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-based, 0 when unknown).
	Column int `json:"column,omitempty"`

	// Path is the configuration path (e.g., "resources.web-vnet").
	Path string `json:"path,omitempty"`

	// Message describes the error.
	Message string `json:"message"`
}

// ParsedConfig is the result of parsing one or more configuration sources.
type ParsedConfig struct {
	// Workspace is the declared workspace, zero when absent.
	Workspace WorkspaceConfig `json:"workspace"`

	// Resources are the declared resources in name order.
	Resources []ResourceConfig `json:"resources"`

	// SourceFiles lists the files that contributed to this configuration.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when parsing completed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors holds parse and validation problems. A non-empty slice means
	// the configuration must not be applied.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Declarations converts the parsed resources into engine declarations,
// sorted by name for deterministic downstream processing. Content hashes are
// computed by the model loader, not here.
func (pc *ParsedConfig) Declarations() []*engine.Declaration {
	decls := make([]*engine.Declaration, 0, len(pc.Resources))
	for i := range pc.Resources {
		rc := &pc.Resources[i]
		decls = append(decls, &engine.Declaration{
			Name:       rc.Name,
			Type:       rc.Type,
			Attributes: rc.Attributes,
			DependsOn:  rc.DependsOn,
			Labels:     rc.Labels,
		})
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}
