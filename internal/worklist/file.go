package worklist

import (
	"context"
	"fmt"
	"os"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/harvest/pkg/schema"
)

// worklistSchemaJSON is the JSON Schema for worklist files.
// Embedded as a constant to avoid filesystem dependencies.
const worklistSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://harvest.dev/schemas/worklist.json",
  "type": "array",
  "minItems": 1,
  "uniqueItems": true,
  "items": {
    "type": "string",
    "minLength": 1
  }
}`

// File loads and validates a worklist from a JSON file on every run,
// so edits to the file take effect without a restart.
type File struct {
	path     string
	compiled *jsonschema.Schema
}

// NewFile creates a file-backed provider with the worklist schema pre-compiled.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "worklist file path is required")
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(worklistSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal worklist schema: %w", err)
	}
	if err := c.AddResource("https://harvest.dev/schemas/worklist.json", doc); err != nil {
		return nil, fmt.Errorf("add worklist schema resource: %w", err)
	}
	compiled, err := c.Compile("https://harvest.dev/schemas/worklist.json")
	if err != nil {
		return nil, fmt.Errorf("compile worklist schema: %w", err)
	}

	return &File{path: path, compiled: compiled}, nil
}

func (f *File) Load(ctx context.Context) ([]string, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read worklist file: %s", err.Error()).WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse worklist file: %s", err.Error()).WithCause(err)
	}
	if err := f.compiled.Validate(doc); err != nil {
		return nil, toHarvestError(err)
	}

	entries, ok := doc.([]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "worklist file must be a JSON array")
	}
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, e.(string))
	}
	return items, nil
}

// toHarvestError converts a jsonschema.ValidationError into a HarvestError
// with leaf violation messages in the details.
func toHarvestError(err error) *schema.HarvestError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("worklist validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Provider = (*File)(nil)
