package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/cadencehq/cadence/internal/expressions"
	"github.com/cadencehq/cadence/pkg/schema"
)

// ConditionHandler evaluates condition steps. A satisfied condition passes;
// an unsatisfied one skips, and that skip is what the run controller
// propagates to downstream steps.
//
// Two condition forms: the field/operator/value triple, or a full expression
// evaluated by the configured engine (expr by default, cel on request).
type ConditionHandler struct{}

// NewConditionHandler creates the condition step handler.
func NewConditionHandler() *ConditionHandler {
	return &ConditionHandler{}
}

func (h *ConditionHandler) Kind() schema.StepKind {
	return schema.StepKindCondition
}

func (h *ConditionHandler) Execute(ctx context.Context, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, error) {
	cfg := step.Condition()

	if cfg.Expression != "" {
		return h.evalExpression(ctx, cfg, lead, rc)
	}

	fieldVal := h.resolveField(ctx, cfg.Field, lead, rc)

	switch cfg.Operator {
	case schema.OperatorGT:
		if expressions.ToNumber(fieldVal) > expressions.ToNumber(cfg.Value) {
			return schema.Pass(fmt.Sprintf("%s > %v", cfg.Field, cfg.Value)), nil
		}
	case schema.OperatorLT:
		if expressions.ToNumber(fieldVal) < expressions.ToNumber(cfg.Value) {
			return schema.Pass(fmt.Sprintf("%s < %v", cfg.Field, cfg.Value)), nil
		}
	case schema.OperatorEQ:
		if fmt.Sprint(fieldVal) == fmt.Sprint(cfg.Value) {
			return schema.Pass(fmt.Sprintf("%s == %v", cfg.Field, cfg.Value)), nil
		}
	default:
		return schema.Fail(fmt.Sprintf("unknown condition operator %q", cfg.Operator)), nil
	}

	return schema.Skip(fmt.Sprintf("condition not met: %s %s %v (actual %v)",
		cfg.Field, cfg.Operator, cfg.Value, fieldVal)), nil
}

// evalExpression runs the expression form through the configured engine.
// Evaluation errors are configuration gaps and surface as fail, not skip.
func (h *ConditionHandler) evalExpression(ctx context.Context, cfg *schema.ConditionConfig, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, error) {
	if rc.Engines == nil {
		return schema.Fail("expression condition configured but no engines available"), nil
	}
	ok, err := rc.Engines.EvalBool(ctx, cfg.Engine, cfg.Expression, lead.Env())
	if err != nil {
		return schema.Fail(fmt.Sprintf("condition expression error: %s", err.Error())), nil
	}
	if ok {
		return schema.Pass(fmt.Sprintf("expression satisfied: %s", cfg.Expression)), nil
	}
	return schema.Skip(fmt.Sprintf("expression not satisfied: %s", cfg.Expression)), nil
}

// resolveField reads a named field from the lead. Dotted paths go through
// the jq selector so nested knowledge structures resolve too.
func (h *ConditionHandler) resolveField(ctx context.Context, field string, lead *schema.Lead, rc *RunContext) any {
	if strings.Contains(field, ".") && rc.Fields != nil {
		if val, err := rc.Fields.SelectField(ctx, field, lead.Env()); err == nil {
			return val
		}
		return nil
	}
	val, _ := lead.Field(field)
	return val
}

var _ Handler = (*ConditionHandler)(nil)
