package policy

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaRegistry compiles and holds one JSON Schema per tool name,
// giving write-gate stage 5 ("input schema valid") and the policy
// engine's own input validation a uniform, declarative implementation
// instead of ad-hoc per-field type assertions.
type SchemaRegistry struct {
	compiled map[string]*jsonschema.Schema
}

// NewSchemaRegistry compiles schemas, a map of tool name to raw JSON
// Schema document. A schema that fails to compile is a startup
// configuration error, not a per-call one.
func NewSchemaRegistry(schemas map[string]string) (*SchemaRegistry, error) {
	compiler := jsonschema.NewCompiler()
	reg := &SchemaRegistry{compiled: map[string]*jsonschema.Schema{}}

	for tool, raw := range schemas {
		url := "mem://" + tool + ".json"
		if err := compiler.AddResource(url, bytes.NewReader([]byte(raw))); err != nil {
			return nil, fmt.Errorf("policy: add schema resource for %s: %w", tool, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("policy: compile schema for %s: %w", tool, err)
		}
		reg.compiled[tool] = sch
	}
	return reg, nil
}

// Validate checks args (already json.Unmarshal'd into a generic
// map[string]any/[]any/primitive tree) against the named tool's schema.
// A tool with no registered schema always passes (schemas are additive
// hardening, not a closed-world requirement on every tool).
func (r *SchemaRegistry) Validate(tool string, args any) error {
	sch, ok := r.compiled[tool]
	if !ok {
		return nil
	}
	if err := sch.Validate(args); err != nil {
		return fmt.Errorf("policy: %s: %w", tool, err)
	}
	return nil
}
