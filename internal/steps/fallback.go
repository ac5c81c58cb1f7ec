package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/cadencehq/cadence/pkg/schema"
)

// retryDelay is the fixed offset at which a fallback retry is rescheduled.
const retryDelay = time.Hour

// applyFallback intercepts a fallback-eligible action failure and degrades
// it per the configured fallback action. All fallback branches report pass;
// the original failure stays visible in the step message and the audit
// trail, not in the step status.
func (h *ActionHandler) applyFallback(ctx context.Context, cfg *schema.ActionConfig, step *schema.Step, lead *schema.Lead, rc *RunContext, failed schema.StepOutcome) (schema.StepOutcome, error) {
	rc.Log().InfoContext(ctx, "applying fallback for failed action",
		"step_id", step.ID, "lead_id", lead.ID,
		"fallback_action", cfg.FallbackAction, "failure", failed.Message)

	switch cfg.FallbackAction {
	case schema.FallbackCreateAlert:
		if rc.Audit != nil {
			detail := fmt.Sprintf("Action %q failed for lead %s: %s", step.Title, lead.Name, failed.Message)
			if err := rc.Audit.Append(ctx, rc.ActorID, "workflow_fallback_alert", detail); err != nil {
				rc.Log().WarnContext(ctx, "fallback alert write failed", "step_id", step.ID, "error", err.Error())
			}
		}
		return schema.Pass(fmt.Sprintf("fallback alert created after failure: %s", failed.Message)), nil

	case schema.FallbackRetry:
		if rc.Scheduler != nil {
			content := MessageContent{
				Subject:    cfg.Subject,
				Body:       cfg.Body,
				TemplateID: cfg.TemplateID,
			}
			at := rc.Now().Add(retryDelay)
			if _, err := rc.Scheduler.Schedule(ctx, []string{lead.ID}, content, at); err != nil {
				rc.Log().WarnContext(ctx, "fallback retry scheduling failed", "step_id", step.ID, "error", err.Error())
			}
		}
		return schema.Pass(fmt.Sprintf("retry scheduled in 1h after failure: %s", failed.Message)), nil

	case schema.FallbackSkip:
		return schema.Pass(fmt.Sprintf("skipping per fallback after failure: %s", failed.Message)), nil

	default:
		// create_task and any unrecognized fallback record a followup task
		// outside this core; the step itself is considered handled.
		return schema.Pass(fmt.Sprintf("followup task recorded after failure: %s", failed.Message)), nil
	}
}
