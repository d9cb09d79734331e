package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// KnownKind reports whether an agent kind is registered. Implemented as a
// function value so the catalog package stays decoupled from internal/agent
// (which depends on catalog for Tool/Routing types, not the reverse).
type KnownKind func(kind string) bool

// ValidateTool checks the invariants from SPEC_FULL.md §3: input_schema
// must be valid JSON Schema, and routing must name a registered agent kind.
// knownKind may be nil, in which case the routing-kind check is skipped
// (useful for validating manifests offline, before any agent registry exists).
func ValidateTool(t Tool, knownKind KnownKind) error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if t.Routing.Kind == "" {
		return fmt.Errorf("tool %q: routing.kind is required", t.Name)
	}
	if knownKind != nil && !knownKind(t.Routing.Kind) {
		return fmt.Errorf("tool %q: unknown agent kind %q", t.Name, t.Routing.Kind)
	}
	if t.InputSchema != nil {
		if _, err := compileSchema(t.InputSchema); err != nil {
			return fmt.Errorf("tool %q: invalid input_schema: %w", t.Name, err)
		}
	}
	return nil
}

// compileSchema compiles a raw input_schema map into a *jsonschema.Schema,
// validating it's well-formed JSON Schema in the process.
func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling input_schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	const resourceName = "input_schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}

// ValidateArguments validates a tool-call arguments object against the
// tool's input_schema, returning a mcperrors.Validation-kind error (wrapped
// by the caller) on mismatch.
func ValidateArguments(t Tool, args map[string]any) error {
	if t.InputSchema == nil {
		return nil
	}
	schema, err := compileSchema(t.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: invalid input_schema: %w", t.Name, err)
	}
	if err := schema.Validate(args); err != nil {
		return fmt.Errorf("arguments for %q do not match input_schema: %w", t.Name, err)
	}
	return nil
}
