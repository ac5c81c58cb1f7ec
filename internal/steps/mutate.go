package steps

import (
	"context"
	"fmt"

	"github.com/cadencehq/cadence/pkg/schema"
)

// Record-mutating actions. Each builds a LeadPatch, applies it through the
// record store, and mirrors the change on the in-memory lead so later steps
// in the same run observe it.

func (h *ActionHandler) updateStatus(ctx context.Context, cfg *schema.ActionConfig, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, bool) {
	if cfg.NewStatus == "" {
		return schema.Fail("update_status action has no new_status configured"), false
	}
	if rc.Records == nil {
		return schema.Fail("update_status action requires a record store"), false
	}

	status := schema.LeadStatus(cfg.NewStatus)
	if err := rc.Records.UpdateLead(ctx, lead.ID, LeadPatch{Status: &status}); err != nil {
		return schema.Fail(fmt.Sprintf("status update failed: %s", err.Error())), true
	}
	lead.Status = status
	return schema.Pass(fmt.Sprintf("status updated to %q", status)), false
}

func (h *ActionHandler) addTag(ctx context.Context, cfg *schema.ActionConfig, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, bool) {
	if cfg.Tag == "" {
		return schema.Fail("add_tag action has no tag configured"), false
	}
	if rc.Records == nil {
		return schema.Fail("add_tag action requires a record store"), false
	}

	if err := rc.Records.UpdateLead(ctx, lead.ID, LeadPatch{AddTag: cfg.Tag}); err != nil {
		return schema.Fail(fmt.Sprintf("tag update failed: %s", err.Error())), true
	}
	if !hasTag(lead.Tags, cfg.Tag) {
		lead.Tags = append(lead.Tags, cfg.Tag)
	}
	return schema.Pass(fmt.Sprintf("tag %q added", cfg.Tag)), false
}

func (h *ActionHandler) assignUser(ctx context.Context, cfg *schema.ActionConfig, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, bool) {
	if cfg.AssigneeID == "" {
		return schema.Fail("assign_user action has no assignee_id configured"), false
	}
	if rc.Records == nil {
		return schema.Fail("assign_user action requires a record store"), false
	}

	assignee := cfg.AssigneeID
	if err := rc.Records.UpdateLead(ctx, lead.ID, LeadPatch{AssigneeID: &assignee}); err != nil {
		return schema.Fail(fmt.Sprintf("assignment failed: %s", err.Error())), true
	}
	lead.AssigneeID = assignee
	return schema.Pass(fmt.Sprintf("lead assigned to %s", assignee)), false
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
