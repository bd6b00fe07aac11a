package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

// CUEParser parses and validates CUE configuration files.
type CUEParser struct {
	ctx       *cue.Context
	validator *validator.Validate
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx:       cuecontext.New(),
		validator: validator.New(),
	}
}

// Load parses sources with optional YAML overlays and returns engine
// declarations, failing on any parse or validation error.
func (cp *CUEParser) Load(ctx context.Context, sources, overlays []string) ([]*engine.Declaration, *ParsedConfig, error) {
	parsed, err := cp.ParseWithOverlays(ctx, sources, overlays)
	if err != nil {
		return nil, nil, err
	}
	if len(parsed.Errors) > 0 {
		return nil, parsed, engine.NewPermanentError(
			fmt.Sprintf("configuration has %d validation errors", len(parsed.Errors)), nil).
			WithCode(engine.ErrCodeSchema)
	}
	return parsed.Declarations(), parsed, nil
}

// Parse parses CUE configuration from the given file or directory sources.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedConfig, error) {
	return cp.ParseWithOverlays(ctx, sources, nil)
}

// ParseWithOverlays parses CUE sources and unifies YAML overlay files into
// the configuration value before extraction. Overlays can constrain or fill
// in attribute values per environment; conflicting values surface as CUE
// unification errors.
func (cp *CUEParser) ParseWithOverlays(ctx context.Context, sources, overlays []string) (*ParsedConfig, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var value cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	unify := func(v cue.Value) {
		if value.Exists() {
			value = value.Unify(v)
		} else {
			value = v
		}
	}

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			val, files, errs := cp.loadDirectory(source)
			parseErrors = append(parseErrors, errs...)
			if val.Exists() {
				unify(val)
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			val, errs := cp.loadFile(source)
			parseErrors = append(parseErrors, errs...)
			if val.Exists() {
				unify(val)
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	for _, overlay := range overlays {
		val, errs := cp.loadOverlay(overlay)
		parseErrors = append(parseErrors, errs...)
		if val.Exists() {
			unify(val)
		}
		sourceFiles = append(sourceFiles, overlay)
	}

	if len(parseErrors) > 0 {
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := value.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}

	return cp.extractConfig(value, sourceFiles)
}

// ParseInline parses inline CUE content, mainly for tests.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ParsedConfig, error) {
	val := cp.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return &ParsedConfig{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      cp.convertCUEErrors(err),
		}, nil
	}
	return cp.extractConfig(val, []string{"inline"})
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:    dir,
			Message: "no CUE files found",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, cp.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// loadOverlay loads a YAML overlay file and encodes it as a CUE value.
func (cp *CUEParser) loadOverlay(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:    path,
			Message: fmt.Sprintf("failed to read overlay: %v", err),
		}}
	}

	var data map[string]any
	if err := yaml.Unmarshal(content, &data); err != nil {
		return cue.Value{}, []ValidationError{{
			File:    path,
			Message: fmt.Sprintf("failed to parse overlay YAML: %v", err),
		}}
	}
	if data == nil {
		return cue.Value{}, nil
	}

	val := cp.ctx.Encode(data)
	if err := val.Err(); err != nil {
		return cue.Value{}, cp.convertCUEErrors(err)
	}

	return val, nil
}

// extractConfig extracts the workspace and resources from a CUE value.
func (cp *CUEParser) extractConfig(val cue.Value, sourceFiles []string) (*ParsedConfig, error) {
	parsed := &ParsedConfig{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	workspaceVal := val.LookupPath(cue.ParsePath("workspace"))
	if workspaceVal.Exists() {
		if err := workspaceVal.Decode(&parsed.Workspace); err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:    "workspace",
				Message: fmt.Sprintf("failed to decode workspace: %v", err),
			})
		}
	}

	resourcesVal := val.LookupPath(cue.ParsePath("resources"))
	if !resourcesVal.Exists() {
		return parsed, nil
	}

	switch resourcesVal.Kind() {
	case cue.StructKind:
		iter, err := resourcesVal.Fields(cue.All())
		if err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:    "resources",
				Message: fmt.Sprintf("failed to iterate resources: %v", err),
			})
			break
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			resource, err := cp.extractResource(name, iter.Value())
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:    fmt.Sprintf("resources.%s", name),
					Message: err.Error(),
				})
				continue
			}
			parsed.Resources = append(parsed.Resources, resource)
		}
	case cue.ListKind:
		list, err := resourcesVal.List()
		if err != nil {
			parsed.Errors = append(parsed.Errors, ValidationError{
				Path:    "resources",
				Message: fmt.Sprintf("failed to list resources: %v", err),
			})
			break
		}
		for idx := 0; list.Next(); idx++ {
			resource, err := cp.extractResource("", list.Value())
			if err != nil {
				parsed.Errors = append(parsed.Errors, ValidationError{
					Path:    fmt.Sprintf("resources[%d]", idx),
					Message: err.Error(),
				})
				continue
			}
			parsed.Resources = append(parsed.Resources, resource)
		}
	default:
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:    "resources",
			Message: fmt.Sprintf("resources must be a struct or list, got %s", resourcesVal.Kind()),
		})
	}

	sort.Slice(parsed.Resources, func(i, j int) bool {
		return parsed.Resources[i].Name < parsed.Resources[j].Name
	})

	return parsed, nil
}

// extractResource decodes and validates one resource. When resources are
// declared as a struct, the field name becomes the resource name.
func (cp *CUEParser) extractResource(name string, val cue.Value) (ResourceConfig, error) {
	var resource ResourceConfig

	if err := val.Decode(&resource); err != nil {
		return resource, fmt.Errorf("failed to decode resource: %w", err)
	}

	if resource.Name == "" {
		resource.Name = name
	} else if name != "" && resource.Name != name {
		return resource, fmt.Errorf("resource name %q conflicts with field name %q", resource.Name, name)
	}

	if err := cp.validator.Struct(resource); err != nil {
		return resource, fmt.Errorf("validation failed: %w", err)
	}

	return resource, nil
}

// convertCUEErrors converts CUE errors into ValidationErrors with positions.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		var file string
		var line, column int
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: e.Error(),
		})
	}
	return out
}
