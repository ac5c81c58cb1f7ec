package steps

import (
	"context"
	"fmt"

	"github.com/cadencehq/cadence/internal/personalize"
	"github.com/cadencehq/cadence/pkg/schema"
)

// createAlert writes an alert entry to the audit log. The message supports
// the same {{tag}} placeholders as email content.
func (h *ActionHandler) createAlert(ctx context.Context, cfg *schema.ActionConfig, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, bool) {
	if rc.Audit == nil {
		return schema.Fail("create_alert action requires an audit log"), false
	}

	message := cfg.AlertMessage
	if message == "" {
		message = fmt.Sprintf("Alert for lead %s", lead.Name)
	}
	message = personalize.Resolve(message, lead, rc.Sender)

	if err := rc.Audit.Append(ctx, rc.ActorID, "workflow_alert", message); err != nil {
		return schema.Fail(fmt.Sprintf("alert creation failed: %s", err.Error())), true
	}
	return schema.Pass(fmt.Sprintf("alert created: %s", message)), false
}
