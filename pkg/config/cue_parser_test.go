package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const basicConfig = `
workspace: {
	name:        "web"
	environment: "dev"
}

resources: {
	"web-vnet": {
		type: "azure.vnet"
		attributes: {
			resource_group: "web-rg"
			location:       "westeurope"
			address_space: ["10.0.0.0/16"]
		}
	}
	"web-subnet": {
		type: "azure.subnet"
		attributes: {
			resource_group: "web-rg"
			vnet:           "${web-vnet.id}"
			prefix:         "10.0.1.0/24"
		}
	}
}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestParseInlineBasic(t *testing.T) {
	parser := NewCUEParser()

	parsed, err := parser.ParseInline(context.Background(), basicConfig)
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) != 0 {
		t.Fatalf("Expected no errors, got: %v", parsed.Errors)
	}

	if parsed.Workspace.Name != "web" {
		t.Errorf("Expected workspace web, got %s", parsed.Workspace.Name)
	}
	if len(parsed.Resources) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(parsed.Resources))
	}

	// Sorted by name.
	if parsed.Resources[0].Name != "web-subnet" || parsed.Resources[1].Name != "web-vnet" {
		t.Errorf("Expected resources sorted by name, got %s, %s",
			parsed.Resources[0].Name, parsed.Resources[1].Name)
	}
	if parsed.Resources[1].Type != "azure.vnet" {
		t.Errorf("Expected type azure.vnet, got %s", parsed.Resources[1].Type)
	}
	if parsed.Resources[0].Attributes["vnet"] != "${web-vnet.id}" {
		t.Errorf("Expected raw reference preserved, got %v", parsed.Resources[0].Attributes["vnet"])
	}
}

func TestParseResourceList(t *testing.T) {
	parser := NewCUEParser()

	parsed, err := parser.ParseInline(context.Background(), `
resources: [
	{
		name: "cache"
		type: "mem.object"
		attributes: {value: "a"}
	},
	{
		name: "blob"
		type: "mem.object"
		attributes: {value: "b"}
		depends_on: ["cache"]
	},
]
`)
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) != 0 {
		t.Fatalf("Expected no errors, got: %v", parsed.Errors)
	}
	if len(parsed.Resources) != 2 {
		t.Fatalf("Expected 2 resources, got %d", len(parsed.Resources))
	}
	if parsed.Resources[0].Name != "blob" {
		t.Errorf("Expected blob first after sorting, got %s", parsed.Resources[0].Name)
	}
	if len(parsed.Resources[0].DependsOn) != 1 || parsed.Resources[0].DependsOn[0] != "cache" {
		t.Errorf("Expected depends_on [cache], got %v", parsed.Resources[0].DependsOn)
	}
}

func TestParseMissingType(t *testing.T) {
	parser := NewCUEParser()

	parsed, err := parser.ParseInline(context.Background(), `
resources: {
	"no-type": {
		attributes: {value: "a"}
	}
}
`)
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) != 1 {
		t.Fatalf("Expected 1 validation error, got %d: %v", len(parsed.Errors), parsed.Errors)
	}
	if parsed.Errors[0].Path != "resources.no-type" {
		t.Errorf("Expected path resources.no-type, got %s", parsed.Errors[0].Path)
	}
}

func TestParseTypeWithoutPrefix(t *testing.T) {
	parser := NewCUEParser()

	parsed, err := parser.ParseInline(context.Background(), `
resources: {
	"bad-type": {
		type: "object"
		attributes: {value: "a"}
	}
}
`)
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) != 1 {
		t.Fatalf("Expected 1 validation error for unprefixed type, got %d", len(parsed.Errors))
	}
}

func TestParseInvalidCUE(t *testing.T) {
	parser := NewCUEParser()

	parsed, err := parser.ParseInline(context.Background(), `resources: { broken`)
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("Expected parse errors for invalid CUE")
	}
	if parsed.Errors[0].Line == 0 {
		t.Errorf("Expected position information, got %+v", parsed.Errors[0])
	}
}

func TestParseFilesUnify(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()

	base := writeFile(t, dir, "base.cue", `
resources: {
	"app-vol": {
		type: "mem.volume"
		attributes: {
			capacity: 10
			zone:     "a"
		}
	}
}
`)
	extra := writeFile(t, dir, "extra.cue", `
resources: {
	"app-obj": {
		type: "mem.object"
		attributes: {value: "x"}
	}
}
`)

	parsed, err := parser.Parse(context.Background(), []string{base, extra})
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) != 0 {
		t.Fatalf("Expected no errors, got: %v", parsed.Errors)
	}
	if len(parsed.Resources) != 2 {
		t.Fatalf("Expected 2 resources from unified files, got %d", len(parsed.Resources))
	}
	if len(parsed.SourceFiles) != 2 {
		t.Errorf("Expected 2 source files, got %v", parsed.SourceFiles)
	}
}

func TestYAMLOverlayFillsValues(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()

	base := writeFile(t, dir, "base.cue", `
resources: {
	"app-vol": {
		type: "mem.volume"
		attributes: {
			capacity: int
			zone:     "a"
		}
	}
}
`)
	overlay := writeFile(t, dir, "prod.yaml", `
resources:
  app-vol:
    attributes:
      capacity: 100
`)

	parsed, err := parser.ParseWithOverlays(context.Background(), []string{base}, []string{overlay})
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) != 0 {
		t.Fatalf("Expected no errors, got: %v", parsed.Errors)
	}
	if len(parsed.Resources) != 1 {
		t.Fatalf("Expected 1 resource, got %d", len(parsed.Resources))
	}

	capacity := parsed.Resources[0].Attributes["capacity"]
	switch v := capacity.(type) {
	case int:
		if v != 100 {
			t.Errorf("Expected capacity 100, got %d", v)
		}
	case int64:
		if v != 100 {
			t.Errorf("Expected capacity 100, got %d", v)
		}
	case float64:
		if v != 100 {
			t.Errorf("Expected capacity 100, got %v", v)
		}
	default:
		t.Errorf("Expected numeric capacity, got %T", capacity)
	}
}

func TestYAMLOverlayConflict(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()

	base := writeFile(t, dir, "base.cue", `
resources: {
	"app-vol": {
		type: "mem.volume"
		attributes: {
			capacity: 10
			zone:     "a"
		}
	}
}
`)
	overlay := writeFile(t, dir, "prod.yaml", `
resources:
  app-vol:
    attributes:
      capacity: 100
`)

	parsed, err := parser.ParseWithOverlays(context.Background(), []string{base}, []string{overlay})
	if err != nil {
		t.Fatalf("Expected parsed config, got error: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("Expected unification conflict between 10 and 100")
	}
}

func TestLoadReturnsDeclarations(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()

	path := writeFile(t, dir, "web.cue", basicConfig)

	decls, parsed, err := parser.Load(context.Background(), []string{path}, nil)
	if err != nil {
		t.Fatalf("Expected declarations, got error: %v", err)
	}
	if parsed.Workspace.Environment != "dev" {
		t.Errorf("Expected environment dev, got %s", parsed.Workspace.Environment)
	}
	if len(decls) != 2 {
		t.Fatalf("Expected 2 declarations, got %d", len(decls))
	}
	if decls[0].Name != "web-subnet" {
		t.Errorf("Expected web-subnet first, got %s", decls[0].Name)
	}
	if decls[1].Type != "azure.vnet" {
		t.Errorf("Expected azure.vnet, got %s", decls[1].Type)
	}
}

func TestLoadFailsOnErrors(t *testing.T) {
	parser := NewCUEParser()
	dir := t.TempDir()

	path := writeFile(t, dir, "bad.cue", `
resources: {
	"no-type": {
		attributes: {value: "a"}
	}
}
`)

	if _, _, err := parser.Load(context.Background(), []string{path}, nil); err == nil {
		t.Fatal("Expected error for invalid configuration")
	}
}
