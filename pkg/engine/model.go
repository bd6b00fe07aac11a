package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// refPattern matches "${name}" and "${name.output}" occurrences inside
// string attribute values.
var refPattern = regexp.MustCompile(`\$\{([a-zA-Z][a-zA-Z0-9_-]*)(?:\.([a-zA-Z][a-zA-Z0-9_.-]*))?\}`)

// Model is the validated, immutable set of declarations for one run,
// together with the references extracted from attribute values. Input to
// the graph builder.
type Model struct {
	// Declarations maps logical name to declaration.
	Declarations map[string]*Declaration

	// Names lists logical names in sorted order, the iteration order used
	// everywhere plan ordering must be reproducible.
	Names []string

	// References are all attribute references found in the declarations.
	References []Reference
}

// LoadDeclarations validates a set of declarations against the provider
// schemas and computes each declaration's content hash. It fails with a
// permanent SCHEMA_ERROR when two declarations share a name, a reference or
// explicit dependency targets an unknown name, or an attribute value does
// not match its schema. No side effects.
func LoadDeclarations(decls []*Declaration, resolver ProviderResolver) (*Model, error) {
	m := &Model{
		Declarations: make(map[string]*Declaration, len(decls)),
	}

	for _, d := range decls {
		if d.Name == "" {
			return nil, NewPermanentError("declaration has empty name", nil).
				WithCode(ErrCodeSchema)
		}
		if d.Type == "" {
			return nil, NewPermanentError("declaration has empty type", nil).
				WithCode(ErrCodeSchema).WithResource(d.Name)
		}
		if _, exists := m.Declarations[d.Name]; exists {
			return nil, NewPermanentError(
				fmt.Sprintf("duplicate declaration name: %s", d.Name), nil).
				WithCode(ErrCodeSchema)
		}
		m.Declarations[d.Name] = d
		m.Names = append(m.Names, d.Name)
	}
	sort.Strings(m.Names)

	// Validate each declaration against its type schema, extract
	// references, and hash. Sorted order keeps reference ordering and
	// error reporting deterministic.
	for _, name := range m.Names {
		d := m.Declarations[name]

		provider, err := resolver.Resolve(d.Type)
		if err != nil {
			return nil, err
		}
		schema, err := provider.Schema(d.Type)
		if err != nil {
			return nil, err
		}

		if err := validateAttributes(d, schema); err != nil {
			return nil, err
		}

		refs, err := extractReferences(d)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if _, ok := m.Declarations[ref.Target]; !ok {
				return nil, NewPermanentError(
					fmt.Sprintf("attribute %q references unknown resource %q", ref.Attribute, ref.Target), nil).
					WithCode(ErrCodeSchema).WithResource(d.Name)
			}
		}
		m.References = append(m.References, refs...)

		for _, dep := range d.DependsOn {
			if _, ok := m.Declarations[dep]; !ok {
				return nil, NewPermanentError(
					fmt.Sprintf("depends_on references unknown resource %q", dep), nil).
					WithCode(ErrCodeSchema).WithResource(d.Name)
			}
		}

		hash, err := hashDeclaration(d)
		if err != nil {
			return nil, NewPermanentError("failed to hash declaration", err).
				WithCode(ErrCodeInternal).WithResource(d.Name)
		}
		d.Hash = hash
	}

	return m, nil
}

// validateAttributes checks declared attribute values against the schema:
// required attributes present, no unknown attributes, value kinds matching.
func validateAttributes(d *Declaration, schema *ResourceSchema) error {
	for attr, as := range schema.Attributes {
		if !as.Required {
			continue
		}
		if _, ok := d.Attributes[attr]; !ok {
			return NewPermanentError(
				fmt.Sprintf("missing required attribute %q", attr), nil).
				WithCode(ErrCodeSchema).WithResource(d.Name)
		}
	}

	for attr, value := range d.Attributes {
		as, ok := schema.Attributes[attr]
		if !ok {
			return NewPermanentError(
				fmt.Sprintf("unknown attribute %q for type %s", attr, d.Type), nil).
				WithCode(ErrCodeSchema).WithResource(d.Name)
		}
		if err := checkKind(value, as.Kind); err != nil {
			return NewPermanentError(
				fmt.Sprintf("attribute %q: %v", attr, err), nil).
				WithCode(ErrCodeSchema).WithResource(d.Name)
		}
	}
	return nil
}

// checkKind verifies a declared value matches the schema kind. A string
// consisting solely of a reference is accepted for any kind, since its
// value is only known after the target applies.
func checkKind(value any, kind AttributeKind) error {
	if s, ok := value.(string); ok && isWholeReference(s) {
		return nil
	}

	switch kind {
	case KindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case KindInt:
		switch value.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("expected int, got %T", value)
		}
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case KindList:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
	case KindMap:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected map, got %T", value)
		}
	default:
		return fmt.Errorf("unknown attribute kind %q", kind)
	}
	return nil
}

// extractReferences finds all "${name.output}" references in the
// declaration's string attribute values, including inside lists and maps.
func extractReferences(d *Declaration) ([]Reference, error) {
	var refs []Reference
	attrs := make([]string, 0, len(d.Attributes))
	for attr := range d.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	for _, attr := range attrs {
		walkStrings(d.Attributes[attr], func(s string) {
			for _, match := range refPattern.FindAllStringSubmatch(s, -1) {
				ref := Reference{
					Source:    d.Name,
					Attribute: attr,
					Target:    match[1],
					Output:    match[2],
				}
				if ref.Output == "" {
					ref.Output = "id"
				}
				refs = append(refs, ref)
			}
		})
	}
	return refs, nil
}

// walkStrings visits every string nested in a declared attribute value.
func walkStrings(value any, fn func(string)) {
	switch v := value.(type) {
	case string:
		fn(v)
	case []any:
		for _, item := range v {
			walkStrings(item, fn)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(v[k], fn)
		}
	}
}

// isWholeReference reports whether s is exactly one reference expression.
func isWholeReference(s string) bool {
	loc := refPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// hashDeclaration computes the canonical content hash of a declaration.
// encoding/json sorts map keys, so the encoding is stable across runs.
func hashDeclaration(d *Declaration) (string, error) {
	canonical := struct {
		Name       string            `json:"name"`
		Type       string            `json:"type"`
		Attributes map[string]any    `json:"attributes"`
		DependsOn  []string          `json:"depends_on,omitempty"`
		Labels     map[string]string `json:"labels,omitempty"`
	}{d.Name, d.Type, d.Attributes, d.DependsOn, d.Labels}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ResolveAttributes substitutes every reference in the declaration's
// attributes with the referenced resource's output, looked up through the
// given function. Called by the executor once all dependencies have
// committed. Fails with an internal error when a reference cannot be
// resolved, since the planner guarantees dependency ordering.
func ResolveAttributes(d *Declaration, lookup func(name string) (*StateRecord, bool)) (map[string]any, error) {
	resolved := make(map[string]any, len(d.Attributes))
	for attr, value := range d.Attributes {
		rv, err := resolveValue(value, d.Name, lookup)
		if err != nil {
			return nil, err
		}
		resolved[attr] = rv
	}
	return resolved, nil
}

func resolveValue(value any, source string, lookup func(name string) (*StateRecord, bool)) (any, error) {
	switch v := value.(type) {
	case string:
		return resolveString(v, source, lookup)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			rv, err := resolveValue(item, source, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			rv, err := resolveValue(item, source, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	default:
		return value, nil
	}
}

func resolveString(s, source string, lookup func(name string) (*StateRecord, bool)) (any, error) {
	if !refPattern.MatchString(s) {
		return s, nil
	}

	resolveOne := func(target, output string) (any, error) {
		record, ok := lookup(target)
		if ok {
			if output == "id" && record.ProviderID != "" {
				return record.ProviderID, nil
			}
			if v, found := record.Outputs[output]; found {
				return v, nil
			}
			if v, found := record.Attributes[output]; found {
				return v, nil
			}
		}
		return nil, NewPermanentError(
			fmt.Sprintf("unresolvable reference ${%s.%s}", target, output), nil).
			WithCode(ErrCodeInternal).WithResource(source)
	}

	// A whole-string reference keeps the referenced value's type.
	if isWholeReference(s) {
		match := refPattern.FindStringSubmatch(s)
		output := match[2]
		if output == "" {
			output = "id"
		}
		return resolveOne(match[1], output)
	}

	// Embedded references interpolate as strings.
	var resolveErr error
	result := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		match := refPattern.FindStringSubmatch(ref)
		output := match[2]
		if output == "" {
			output = "id"
		}
		v, err := resolveOne(match[1], output)
		if err != nil {
			resolveErr = err
			return ref
		}
		return fmt.Sprintf("%v", v)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	if strings.Contains(result, "${") {
		return nil, NewPermanentError(
			fmt.Sprintf("malformed reference in %q", s), nil).
			WithCode(ErrCodeSchema).WithResource(source)
	}
	return result, nil
}
