package scenario

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// bodyValidator checks response bodies against a compiled JSON schema.
type bodyValidator struct {
	schema *jsonschema.Schema
}

// compileSchema compiles a JSON schema document once, at scenario build time.
func compileSchema(name, schema string) (*bodyValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &bodyValidator{schema: compiled}, nil
}

// validate reports whether body is JSON accepted by the schema, and the
// first failure otherwise.
func (v *bodyValidator) validate(body []byte) (bool, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return false, firstCause(ve)
		}
		return false, err
	}
	return true, nil
}

func firstCause(err *jsonschema.ValidationError) error {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message)
}
