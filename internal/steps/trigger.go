package steps

import (
	"context"
	"fmt"

	"github.com/cadencehq/cadence/pkg/schema"
)

// TriggerHandler evaluates trigger steps. In a manual/batch run, upstream
// trigger matching already happened before the engine was invoked, so most
// trigger types document intent rather than gate execution. The one
// exception is score_change, which gates on the lead's current score.
type TriggerHandler struct{}

// NewTriggerHandler creates the trigger step handler.
func NewTriggerHandler() *TriggerHandler {
	return &TriggerHandler{}
}

func (h *TriggerHandler) Kind() schema.StepKind {
	return schema.StepKindTrigger
}

func (h *TriggerHandler) Execute(ctx context.Context, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, error) {
	cfg := step.Trigger()

	if cfg.TriggerType == schema.TriggerScoreChange {
		if lead.Score >= cfg.Threshold {
			return schema.Pass(fmt.Sprintf("score %.0f meets threshold %.0f", lead.Score, cfg.Threshold)), nil
		}
		return schema.Skip(fmt.Sprintf("score %.0f below threshold %.0f", lead.Score, cfg.Threshold)), nil
	}

	label := cfg.TriggerType
	if label == "" {
		label = "manual"
	}
	return schema.Pass(fmt.Sprintf("trigger %q acknowledged", label)), nil
}

var _ Handler = (*TriggerHandler)(nil)
