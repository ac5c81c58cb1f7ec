package validation

import (
	"fmt"

	"github.com/cadencehq/cadence/internal/expressions"
	"github.com/cadencehq/cadence/pkg/schema"
)

// SemanticValidator applies the checks JSON Schema cannot express: step
// ordering, config coherence per kind, and expression compilation.
type SemanticValidator struct {
	engines *expressions.Engines
}

// NewSemanticValidator creates a SemanticValidator. The engine set is used
// to compile condition expressions; nil disables expression checks.
func NewSemanticValidator(engines *expressions.Engines) *SemanticValidator {
	return &SemanticValidator{engines: engines}
}

// Validate runs all semantic checks and aggregates the issues. Gaps the
// executors tolerate at runtime (a status update with no target status, an
// unknown fallback action) surface as warnings, not errors.
func (v *SemanticValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if wf == nil {
		result.AddError("/", "nil_workflow", "workflow is nil")
		return result
	}

	seen := make(map[string]struct{}, len(wf.Steps))
	triggers := 0

	for i := range wf.Steps {
		step := &wf.Steps[i]
		path := fmt.Sprintf("/steps/%d", i)

		if _, dup := seen[step.ID]; dup {
			result.AddError(path, "duplicate_step_id", fmt.Sprintf("duplicate step id %q", step.ID))
		}
		seen[step.ID] = struct{}{}

		if err := step.DecodeConfig(); err != nil {
			result.AddError(path+"/config", "bad_config", err.Error())
			continue
		}

		switch step.Kind {
		case schema.StepKindTrigger:
			triggers++
			if i != 0 {
				result.AddError(path, "trigger_position", "trigger steps must come first")
			}
			v.checkTrigger(step, path, result)
		case schema.StepKindCondition:
			v.checkCondition(step, path, result)
		case schema.StepKindWait:
			v.checkWait(step, path, result)
		case schema.StepKindAction:
			v.checkAction(step, path, result)
		default:
			result.AddError(path, "unknown_kind", fmt.Sprintf("unknown step kind %q", step.Kind))
		}
	}

	if triggers > 1 {
		result.AddError("/steps", "multiple_triggers", "workflow has more than one trigger step")
	}

	return result
}

func (v *SemanticValidator) checkTrigger(step *schema.Step, path string, result *schema.ValidationResult) {
	cfg := step.Trigger()
	switch cfg.TriggerType {
	case "", schema.TriggerLeadCreated, schema.TriggerScoreChange,
		schema.TriggerStatusChange, schema.TriggerTimeElapsed:
	default:
		result.AddWarning(path+"/config", "unknown_trigger_type",
			fmt.Sprintf("unknown trigger type %q", cfg.TriggerType))
	}
	if cfg.Threshold < 0 {
		result.AddWarning(path+"/config", "negative_threshold", "trigger threshold is negative")
	}
}

func (v *SemanticValidator) checkCondition(step *schema.Step, path string, result *schema.ValidationResult) {
	cfg := step.Condition()

	if cfg.Expression != "" {
		if v.engines == nil {
			return
		}
		if err := v.engines.Compile(cfg.Engine, cfg.Expression); err != nil {
			result.AddError(path+"/config/expression", "bad_expression", err.Error())
		}
		return
	}

	if cfg.Field == "" {
		result.AddError(path+"/config", "missing_field",
			"condition needs a field or an expression")
	}
	switch cfg.Operator {
	case schema.OperatorGT, schema.OperatorLT, schema.OperatorEQ:
	case "":
		result.AddError(path+"/config", "missing_operator", "condition operator is required")
	default:
		result.AddError(path+"/config", "unknown_operator",
			fmt.Sprintf("unknown condition operator %q", cfg.Operator))
	}
}

func (v *SemanticValidator) checkWait(step *schema.Step, path string, result *schema.ValidationResult) {
	if step.Wait().Days < 0 {
		result.AddWarning(path+"/config", "negative_wait", "wait days is negative, treated as zero")
	}
}

func (v *SemanticValidator) checkAction(step *schema.Step, path string, result *schema.ValidationResult) {
	cfg := step.Action()
	actionType := step.InferActionType()

	switch actionType {
	case "", schema.ActionSendEmail, schema.ActionUpdateStatus, schema.ActionAddTag,
		schema.ActionAssignUser, schema.ActionCreateAlert:
	default:
		result.AddWarning(path+"/config", "unknown_action_type",
			fmt.Sprintf("unknown action type %q, step will pass without effect", actionType))
	}

	switch actionType {
	case schema.ActionSendEmail:
		if cfg.Body == "" && cfg.TemplateID == "" {
			result.AddWarning(path+"/config", "empty_email",
				"send_email has neither a body nor a template")
		}
		switch cfg.Timing {
		case "", schema.TimingImmediate, schema.TimingOptimal,
			schema.TimingMorning, schema.TimingAfternoon:
		default:
			result.AddWarning(path+"/config", "unknown_timing",
				fmt.Sprintf("unknown send timing %q", cfg.Timing))
		}
	case schema.ActionUpdateStatus:
		if cfg.NewStatus == "" {
			result.AddWarning(path+"/config", "missing_new_status",
				"update_status has no newStatus, step will fail at run time")
		}
	case schema.ActionAddTag:
		if cfg.Tag == "" {
			result.AddWarning(path+"/config", "missing_tag",
				"add_tag has no tag, step will fail at run time")
		}
	case schema.ActionAssignUser:
		if cfg.AssigneeID == "" {
			result.AddWarning(path+"/config", "missing_assignee",
				"assign_user has no assigneeId, step will fail at run time")
		}
	}

	if cfg.FallbackEnabled {
		switch cfg.FallbackAction {
		case "", schema.FallbackCreateAlert, schema.FallbackRetry,
			schema.FallbackSkip, schema.FallbackCreateTask:
		default:
			result.AddWarning(path+"/config", "unknown_fallback",
				fmt.Sprintf("unknown fallback action %q, a followup task is recorded instead", cfg.FallbackAction))
		}
	}
}
