// Package jsonschema wraps github.com/santhosh-tekuri/jsonschema/v5 with a
// pair of functions that compile a schema and validate a JSON document
// against it in one call, returning human-readable field-level errors
// instead of the library's own error tree. internal/config uses this to
// check a run document's shape before materializing it into a plan.RunPlan.
package jsonschema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors is every field-level failure found in one validation
// pass.
type ValidationErrors []error

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate reports whether jsonStr satisfies schemaStr. A schema or JSON
// parse failure is returned as an error; a schema mismatch is reported via
// the bool return with a nil error.
func Validate(jsonStr, schemaStr string) (bool, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaStr)); err != nil {
		return false, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return false, fmt.Errorf("invalid schema: %w", err)
	}

	var jsonData interface{}
	if err := json.Unmarshal([]byte(jsonStr), &jsonData); err != nil {
		return false, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(jsonData); err != nil {
		return false, nil
	}
	return true, nil
}

// ValidateWithErrors is Validate plus the flattened list of every
// validation failure, so a caller can surface them all at once instead of
// one at a time.
func ValidateWithErrors(jsonStr, schemaStr string) (bool, ValidationErrors) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaStr)); err != nil {
		return false, ValidationErrors{fmt.Errorf("invalid schema: %w", err)}
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return false, ValidationErrors{fmt.Errorf("invalid schema: %w", err)}
	}

	var jsonData interface{}
	if err := json.Unmarshal([]byte(jsonStr), &jsonData); err != nil {
		return false, ValidationErrors{fmt.Errorf("invalid JSON: %w", err)}
	}

	if err := schema.Validate(jsonData); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			return false, extractValidationErrors(validationErr)
		}
		return false, ValidationErrors{err}
	}
	return true, nil
}

// extractValidationErrors flattens a jsonschema.ValidationError's cause
// tree into one slice, so a single nested mismatch (e.g. deep inside
// scenarios[2].request) surfaces as a readable list rather than a tree the
// caller has to walk itself.
func extractValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errors ValidationErrors

	if err.Message != "" {
		errors = append(errors, fmt.Errorf("validation error at %s: %s", err.InstanceLocation, err.Message))
	}
	for _, childErr := range err.Causes {
		errors = append(errors, extractValidationErrors(childErr)...)
	}
	return errors
}
