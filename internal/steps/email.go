package steps

import (
	"context"
	"fmt"

	"github.com/cadencehq/cadence/internal/personalize"
	"github.com/cadencehq/cadence/internal/sendtime"
	"github.com/cadencehq/cadence/pkg/schema"
)

// sendEmail resolves the message content and either sends it synchronously
// or hands it to the scheduler, depending on configured timing.
//
// A lead without an email address fails before any content work happens.
// Content resolution order: template (when template_id is set) or inline
// subject/body, both run through the tag resolver; an AI-personalized body
// replaces the resolved one when requested and the generator cooperates,
// degrading silently otherwise.
func (h *ActionHandler) sendEmail(ctx context.Context, cfg *schema.ActionConfig, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, bool) {
	if lead.Email == "" {
		return schema.Fail(fmt.Sprintf("lead %q has no email address", lead.Name)), false
	}

	subject, body, outcome, ok := h.resolveContent(ctx, cfg, lead, rc)
	if !ok {
		return outcome, false
	}

	if cfg.AIPersonalization && rc.Generator != nil {
		gen, err := rc.Generator.GeneratePersonalized(ctx, lead, body)
		if err != nil {
			rc.Log().WarnContext(ctx, "content generation unavailable, using tag-resolved content",
				"lead_id", lead.ID, "error", err.Error())
		} else if gen != nil {
			if gen.Body != "" {
				body = gen.Body
			}
			if gen.Subject != "" {
				subject = gen.Subject
			}
		}
	}

	if cfg.Timing != "" && cfg.Timing != schema.TimingImmediate {
		return h.scheduleEmail(ctx, cfg, lead, rc, subject, body)
	}

	receipt, err := rc.Transport.Send(ctx, OutboundMessage{
		To:          lead.Email,
		Subject:     subject,
		Body:        body,
		TrackOpens:  cfg.TrackOpens,
		TrackClicks: cfg.TrackClicks,
	})
	if err != nil {
		return schema.Fail(fmt.Sprintf("email send failed: %s", err.Error())), true
	}
	return schema.Pass(fmt.Sprintf("email sent to %s (message %s)", lead.Email, receipt.MessageID)), false
}

// resolveContent produces the tag-resolved subject and body. The fourth
// return is false when a configuration gap stops the step, with the failure
// outcome in the third.
func (h *ActionHandler) resolveContent(ctx context.Context, cfg *schema.ActionConfig, lead *schema.Lead, rc *RunContext) (string, string, schema.StepOutcome, bool) {
	subject := cfg.Subject
	body := cfg.Body

	if cfg.TemplateID != "" {
		if rc.Templates == nil {
			return "", "", schema.Fail(fmt.Sprintf("template %q requested but no template provider configured", cfg.TemplateID)), false
		}
		tmpl, err := rc.Templates.GetTemplate(ctx, cfg.TemplateID)
		if err != nil {
			return "", "", schema.Fail(fmt.Sprintf("template %q not found: %s", cfg.TemplateID, err.Error())), false
		}
		subject = tmpl.Subject
		body = tmpl.Body
	}

	subject = personalize.Resolve(subject, lead, rc.Sender)
	body = personalize.Resolve(body, lead, rc.Sender)
	return subject, body, schema.StepOutcome{}, true
}

func (h *ActionHandler) scheduleEmail(ctx context.Context, cfg *schema.ActionConfig, lead *schema.Lead, rc *RunContext, subject, body string) (schema.StepOutcome, bool) {
	if rc.Scheduler == nil {
		return schema.Fail("deferred timing configured but no scheduler available"), false
	}

	at := sendtime.At(cfg.Timing, rc.Now())
	receipt, err := rc.Scheduler.Schedule(ctx, []string{lead.ID}, MessageContent{
		Subject:    subject,
		Body:       body,
		TemplateID: cfg.TemplateID,
	}, at)
	if err != nil {
		return schema.Fail(fmt.Sprintf("email scheduling failed: %s", err.Error())), true
	}
	if receipt.ScheduledCount == 0 {
		return schema.Fail(fmt.Sprintf("email scheduling rejected for lead %s", lead.ID)), true
	}
	return schema.Pass(fmt.Sprintf("email scheduled for %s (%s)", at.Format("2006-01-02 15:04"), cfg.Timing)), false
}
