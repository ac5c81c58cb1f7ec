package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cadencehq/cadence/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for workflow definitions. Embedded as
// a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://cadencehq.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "id": { "type": "string" },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "status": {
      "type": "string",
      "enum": ["draft", "active", "paused"]
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "stats": { "$ref": "#/$defs/stats" },
    "created_at": { "type": "string" }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "kind": {
          "type": "string",
          "enum": ["trigger", "action", "condition", "wait"]
        },
        "title": { "type": "string" },
        "description": { "type": "string" },
        "config": { "type": "object" }
      }
    },
    "stats": {
      "type": "object",
      "properties": {
        "leads_processed": { "type": "integer", "minimum": 0 },
        "conversion_rate": { "type": "number", "minimum": 0 },
        "time_saved_hours": { "type": "number", "minimum": 0 },
        "roi": { "type": "number" }
      }
    }
  }
}`

// SchemaValidator checks the structural shape of a workflow against the
// embedded JSON Schema (Draft 2020-12). Safe for concurrent use; the schema
// is compiled once at construction.
type SchemaValidator struct {
	workflowSchema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded workflow schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://cadencehq.dev/schemas/workflow.json", doc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	compiled, err := c.Compile("https://cadencehq.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &SchemaValidator{workflowSchema: compiled}, nil
}

// Validate checks the workflow's JSON shape and reports each schema
// violation as an error issue.
func (v *SchemaValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if wf == nil {
		result.AddError("/", "nil_workflow", "workflow is nil")
		return result
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		result.AddError("/", "serialize", "failed to serialize workflow: "+err.Error())
		return result
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		for _, violation := range collectViolations(err) {
			result.AddError(violation.path, "schema", violation.message)
		}
	}
	return result
}

// toJSONValue round-trips a Go value through JSON encoding so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(err error) []violation {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []violation{{path: "/", message: err.Error()}}
	}
	return collectLeaves(verr)
}

func collectLeaves(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: loc, message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectLeaves(cause)...)
	}
	return out
}
