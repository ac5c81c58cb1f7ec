package validation

import "github.com/cadencehq/cadence/pkg/schema"

// Validator checks workflow definitions for correctness before execution.
type Validator interface {
	Validate(wf *schema.Workflow) *schema.ValidationResult
}
