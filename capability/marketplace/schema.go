package marketplace

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/ccos/ccoserr"
)

// ValidateAgainstSchema validates value against schema, which must already be
// a decoded JSON-Schema document (map[string]any) as produced by the plan
// synthesizer or API introspector. A nil schema always validates, matching
// §4.2's "a capability with no declared schema has nothing to enforce".
func ValidateAgainstSchema(value Value, schema any, operation string) error {
	if schema == nil {
		return nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schema); err != nil {
		return ccoserr.TypeErrorf(operation, "compilable json-schema", fmt.Sprintf("invalid schema: %v", err))
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return ccoserr.TypeErrorf(operation, "compilable json-schema", fmt.Sprintf("compile error: %v", err))
	}
	if err := compiled.Validate(value); err != nil {
		return ccoserr.TypeErrorf(operation, "value matching schema", err.Error())
	}
	return nil
}

// IsMapSchema reports whether schema describes a JSON object ("type":
// "object"), used by execute_with_validation's single-value bypass rule.
func IsMapSchema(schema any) bool {
	m, ok := schema.(map[string]any)
	if !ok {
		return false
	}
	t, _ := m["type"].(string)
	return t == "object"
}
