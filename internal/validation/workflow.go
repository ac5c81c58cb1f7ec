package validation

import (
	"github.com/cadencehq/cadence/internal/expressions"
	"github.com/cadencehq/cadence/pkg/schema"
)

// WorkflowValidator runs the schema pass and the semantic pass and merges
// their issues. This is the validator the engine and the MCP surface use.
type WorkflowValidator struct {
	schema   *SchemaValidator
	semantic *SemanticValidator
}

// NewWorkflowValidator builds the combined validator.
func NewWorkflowValidator(engines *expressions.Engines) (*WorkflowValidator, error) {
	sv, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		schema:   sv,
		semantic: NewSemanticValidator(engines),
	}, nil
}

// Validate checks the workflow and returns every issue found. Schema errors
// do not short-circuit the semantic pass; authors get the full picture in
// one round.
func (v *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := v.schema.Validate(wf)
	if wf == nil {
		return result
	}
	result.Merge(v.semantic.Validate(wf))
	return result
}

var _ Validator = (*WorkflowValidator)(nil)
