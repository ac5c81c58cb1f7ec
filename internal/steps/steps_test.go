package steps

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/internal/expressions"
	"github.com/cadencehq/cadence/internal/personalize"
	"github.com/cadencehq/cadence/pkg/schema"
)

// ---- stub collaborators ----

type stubRecords struct {
	patches []LeadPatch
	err     error
}

func (s *stubRecords) GetLeads(ctx context.Context, filter LeadFilter) ([]*schema.Lead, error) {
	return nil, nil
}

func (s *stubRecords) UpdateLead(ctx context.Context, id string, patch LeadPatch) error {
	if s.err != nil {
		return s.err
	}
	s.patches = append(s.patches, patch)
	return nil
}

type stubTransport struct {
	sent []OutboundMessage
	err  error
}

func (s *stubTransport) Send(ctx context.Context, msg OutboundMessage) (*SendReceipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, msg)
	return &SendReceipt{MessageID: "msg-001"}, nil
}

type stubScheduler struct {
	scheduled []time.Time
	contents  []MessageContent
	err       error
}

func (s *stubScheduler) Schedule(ctx context.Context, leadIDs []string, content MessageContent, at time.Time) (*ScheduleReceipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.scheduled = append(s.scheduled, at)
	s.contents = append(s.contents, content)
	return &ScheduleReceipt{ScheduledCount: len(leadIDs)}, nil
}

type stubTemplates struct {
	templates map[string]*MessageTemplate
}

func (s *stubTemplates) GetTemplate(ctx context.Context, id string) (*MessageTemplate, error) {
	if t, ok := s.templates[id]; ok {
		return t, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "template %q not found", id)
}

type stubGenerator struct {
	msg *GeneratedMessage
	err error
}

func (s *stubGenerator) GeneratePersonalized(ctx context.Context, lead *schema.Lead, promptContext string) (*GeneratedMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.msg, nil
}

type stubAudit struct {
	entries []string
	err     error
}

func (s *stubAudit) Append(ctx context.Context, actorID, action, details string) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, action+": "+details)
	return nil
}

// ---- helpers ----

func newTestContext(t *testing.T) (*RunContext, *stubRecords, *stubTransport, *stubScheduler, *stubAudit) {
	t.Helper()
	records := &stubRecords{}
	transport := &stubTransport{}
	scheduler := &stubScheduler{}
	audit := &stubAudit{}
	rc := &RunContext{
		ActorID:   "user-1",
		Sender:    &personalize.SenderContext{Name: "Dana Cole", Company: "Cadence"},
		Records:   records,
		Transport: transport,
		Scheduler: scheduler,
		Templates: &stubTemplates{templates: map[string]*MessageTemplate{}},
		Audit:     audit,
		Engines:   expressions.NewEngines(),
		Fields:    expressions.NewGoJQEngine(),
		// Monday 2026-08-17 11:00 UTC
		Clock: func() time.Time { return time.Date(2026, 8, 17, 11, 0, 0, 0, time.UTC) },
	}
	return rc, records, transport, scheduler, audit
}

func makeStep(t *testing.T, kind schema.StepKind, title string, config map[string]any) *schema.Step {
	t.Helper()
	raw, err := json.Marshal(config)
	require.NoError(t, err)
	return &schema.Step{ID: "step-1", Kind: kind, Title: title, Config: raw}
}

func testLead() *schema.Lead {
	return &schema.Lead{
		ID:      "lead-1",
		Name:    "Ada Lovelace",
		Company: "Analytical Engines",
		Email:   "ada@example.com",
		Score:   85,
		Status:  schema.LeadStatusQualified,
		Knowledge: map[string]any{
			"industry": "fintech",
		},
	}
}

// ---- trigger ----

func TestTriggerHandler_Execute_ScoreChangeMeetsThreshold(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewTriggerHandler()
	step := makeStep(t, schema.StepKindTrigger, "Score trigger", map[string]any{
		"triggerType": "score_change",
		"threshold":   50,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
}

func TestTriggerHandler_Execute_ScoreChangeBelowThreshold(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewTriggerHandler()
	step := makeStep(t, schema.StepKindTrigger, "Score trigger", map[string]any{
		"triggerType": "score_change",
		"threshold":   90,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusSkip, out.Status)
	assert.Contains(t, out.Message, "below threshold")
}

func TestTriggerHandler_Execute_OtherTypesAlwaysPass(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewTriggerHandler()

	for _, triggerType := range []string{"lead_created", "status_change", "time_elapsed", ""} {
		step := makeStep(t, schema.StepKindTrigger, "Trigger", map[string]any{
			"triggerType": triggerType,
		})
		out, err := h.Execute(context.Background(), step, testLead(), rc)
		require.NoError(t, err)
		assert.Equal(t, schema.StepStatusPass, out.Status, "trigger type %q", triggerType)
	}
}

// ---- condition ----

func TestConditionHandler_Execute_GreaterThan(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "High score", map[string]any{
		"field":    "score",
		"operator": "gt",
		"value":    50,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
}

func TestConditionHandler_Execute_NotMetSkips(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "Very high score", map[string]any{
		"field":    "score",
		"operator": "gt",
		"value":    90,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusSkip, out.Status)
	assert.Contains(t, out.Message, "condition not met")
}

func TestConditionHandler_Execute_LessThan(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "Low score", map[string]any{
		"field":    "score",
		"operator": "lt",
		"value":    100,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
}

func TestConditionHandler_Execute_StringEquality(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "Qualified only", map[string]any{
		"field":    "status",
		"operator": "eq",
		"value":    "qualified",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
}

func TestConditionHandler_Execute_NonNumericFieldCoercesToZero(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "Status above", map[string]any{
		"field":    "status",
		"operator": "gt",
		"value":    10,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusSkip, out.Status)
}

func TestConditionHandler_Execute_UnknownOperatorFails(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "Bad operator", map[string]any{
		"field":    "score",
		"operator": "gte",
		"value":    50,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFail, out.Status)
	assert.Contains(t, out.Message, "unknown condition operator")
}

func TestConditionHandler_Execute_NestedKnowledgeField(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "Fintech only", map[string]any{
		"field":    "knowledge.industry",
		"operator": "eq",
		"value":    "fintech",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
}

func TestConditionHandler_Execute_ExpressionForm(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()

	step := makeStep(t, schema.StepKindCondition, "Hot fintech lead", map[string]any{
		"expression": `score > 50 && knowledge.industry == "fintech"`,
	})
	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)

	step = makeStep(t, schema.StepKindCondition, "Converted lead", map[string]any{
		"expression": `status == "converted"`,
	})
	out, err = h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusSkip, out.Status)
}

func TestConditionHandler_Execute_ExpressionErrorFails(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "Broken", map[string]any{
		"expression": `score >`,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFail, out.Status)
	assert.Contains(t, out.Message, "expression error")
}

func TestConditionHandler_Execute_CELEngine(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewConditionHandler()
	step := makeStep(t, schema.StepKindCondition, "CEL condition", map[string]any{
		"expression": `score > 50.0`,
		"engine":     "cel",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
}

// ---- wait ----

func TestWaitHandler_Execute_AcknowledgesWithoutBlocking(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewWaitHandler()
	step := makeStep(t, schema.StepKindWait, "Wait", map[string]any{"days": 3})

	started := time.Now()
	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	assert.Contains(t, out.Message, "3 days")
	assert.Less(t, time.Since(started), time.Second)
}

func TestWaitHandler_Execute_SingularDay(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewWaitHandler()
	step := makeStep(t, schema.StepKindWait, "Wait", map[string]any{"days": 1})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Contains(t, out.Message, "1 day")
}

// ---- action: send_email ----

func TestActionHandler_Execute_SendEmailImmediate(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send welcome email", map[string]any{
		"actionType": "send_email",
		"subject":    "Hi {{first_name}}",
		"body":       "Hello {{first_name}} from {{company}}. Regards, {{your_name}}",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "ada@example.com", transport.sent[0].To)
	assert.Equal(t, "Hi Ada", transport.sent[0].Subject)
	assert.Equal(t, "Hello Ada from Analytical Engines. Regards, Dana Cole", transport.sent[0].Body)
}

func TestActionHandler_Execute_SendEmailNoAddress(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType": "send_email",
		"body":       "Hello",
	})

	lead := testLead()
	lead.Email = ""
	out, err := h.Execute(context.Background(), step, lead, rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFail, out.Status)
	assert.Contains(t, out.Message, "no email address")
	assert.Empty(t, transport.sent)
}

func TestActionHandler_Execute_SendEmailFromTemplate(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	rc.Templates = &stubTemplates{templates: map[string]*MessageTemplate{
		"welcome": {Subject: "Welcome {{first_name}}", Body: "Glad to have {{company}} on board."},
	}}
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType": "send_email",
		"templateId": "welcome",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "Welcome Ada", transport.sent[0].Subject)
	assert.Equal(t, "Glad to have Analytical Engines on board.", transport.sent[0].Body)
}

func TestActionHandler_Execute_SendEmailMissingTemplateFails(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType": "send_email",
		"templateId": "nope",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFail, out.Status)
	assert.Contains(t, out.Message, "nope")
	assert.Empty(t, transport.sent)
}

func TestActionHandler_Execute_SendEmailAIPersonalization(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	rc.Generator = &stubGenerator{msg: &GeneratedMessage{Body: "Bespoke pitch for Ada."}}
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":        "send_email",
		"subject":           "Hi {{first_name}}",
		"body":              "Generic body",
		"aiPersonalization": true,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "Bespoke pitch for Ada.", transport.sent[0].Body)
	assert.Equal(t, "Hi Ada", transport.sent[0].Subject)
}

func TestActionHandler_Execute_SendEmailAIFailureDegrades(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	rc.Generator = &stubGenerator{err: schema.NewError(schema.ErrCodeGeneration, "provider down")}
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":        "send_email",
		"body":              "Hello {{first_name}}",
		"aiPersonalization": true,
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "Hello Ada", transport.sent[0].Body)
}

func TestActionHandler_Execute_SendEmailDeferredTiming(t *testing.T) {
	rc, _, transport, scheduler, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType": "send_email",
		"body":       "Hello {{first_name}}",
		"timing":     "morning",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	assert.Empty(t, transport.sent)

	// Invoked Monday 11:00, morning resolves to Tuesday 09:00.
	require.Len(t, scheduler.scheduled, 1)
	at := scheduler.scheduled[0]
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, 0, at.Minute())
	assert.Equal(t, 18, at.Day())
	assert.Equal(t, "Hello Ada", scheduler.contents[0].Body)
}

func TestActionHandler_Execute_SendEmailTrackingFlags(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":  "send_email",
		"body":        "Hello",
		"trackOpens":  true,
		"trackClicks": true,
	})

	_, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)
	assert.True(t, transport.sent[0].TrackOpens)
	assert.True(t, transport.sent[0].TrackClicks)
}

// ---- action: record mutations ----

func TestActionHandler_Execute_UpdateStatus(t *testing.T) {
	rc, records, _, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Update status", map[string]any{
		"actionType": "update_status",
		"newStatus":  "contacted",
	})

	lead := testLead()
	out, err := h.Execute(context.Background(), step, lead, rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)

	require.Len(t, records.patches, 1)
	require.NotNil(t, records.patches[0].Status)
	assert.Equal(t, schema.LeadStatusContacted, *records.patches[0].Status)
	assert.Equal(t, schema.LeadStatusContacted, lead.Status)
}

func TestActionHandler_Execute_UpdateStatusStorageError(t *testing.T) {
	rc, records, _, _, _ := newTestContext(t)
	records.err = schema.NewError(schema.ErrCodeStore, "write failed")
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Update status", map[string]any{
		"actionType": "update_status",
		"newStatus":  "contacted",
	})

	lead := testLead()
	out, err := h.Execute(context.Background(), step, lead, rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFail, out.Status)
	assert.Equal(t, schema.LeadStatusQualified, lead.Status)
}

func TestActionHandler_Execute_AddTag(t *testing.T) {
	rc, records, _, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Add tag", map[string]any{
		"actionType": "add_tag",
		"tag":        "hot-lead",
	})

	lead := testLead()
	out, err := h.Execute(context.Background(), step, lead, rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	require.Len(t, records.patches, 1)
	assert.Equal(t, "hot-lead", records.patches[0].AddTag)
	assert.Contains(t, lead.Tags, "hot-lead")
}

func TestActionHandler_Execute_AssignUser(t *testing.T) {
	rc, records, _, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Assign owner", map[string]any{
		"actionType": "assign_user",
		"assigneeId": "user-42",
	})

	lead := testLead()
	out, err := h.Execute(context.Background(), step, lead, rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	require.Len(t, records.patches, 1)
	require.NotNil(t, records.patches[0].AssigneeID)
	assert.Equal(t, "user-42", *records.patches[0].AssigneeID)
	assert.Equal(t, "user-42", lead.AssigneeID)
}

func TestActionHandler_Execute_MutationMissingConfigFails(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewActionHandler()

	for _, actionType := range []string{"update_status", "add_tag", "assign_user"} {
		step := makeStep(t, schema.StepKindAction, "Mutation", map[string]any{
			"actionType": actionType,
		})
		out, err := h.Execute(context.Background(), step, testLead(), rc)
		require.NoError(t, err)
		assert.Equal(t, schema.StepStatusFail, out.Status, "action %q", actionType)
	}
}

// ---- action: create_alert ----

func TestActionHandler_Execute_CreateAlert(t *testing.T) {
	rc, _, _, _, audit := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Create alert", map[string]any{
		"actionType":   "create_alert",
		"alertMessage": "{{first_name}} needs attention",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	require.Len(t, audit.entries, 1)
	assert.Contains(t, audit.entries[0], "Ada needs attention")
}

// ---- action: dispatch ----

func TestActionHandler_Execute_UnknownTypePassesPermissively(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Fire webhook", map[string]any{
		"actionType": "fire_webhook",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	assert.Contains(t, out.Message, "executed")
}

func TestActionHandler_Execute_TypeInferredFromTitle(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send follow-up email", map[string]any{
		"body": "Hi {{first_name}}",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	require.Len(t, transport.sent, 1)
}

// ---- fallback policy ----

func TestActionHandler_Execute_FallbackSkipConvertsFailureToPass(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	transport.err = schema.NewError(schema.ErrCodeTransport, "smtp unreachable")
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":      "send_email",
		"body":            "Hello",
		"fallbackEnabled": true,
		"fallbackAction":  "skip",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	assert.Contains(t, out.Message, "skipping per fallback")
}

func TestActionHandler_Execute_FallbackDisabledFails(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	transport.err = schema.NewError(schema.ErrCodeTransport, "smtp unreachable")
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType": "send_email",
		"body":       "Hello",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFail, out.Status)
	assert.Contains(t, out.Message, "smtp unreachable")
}

func TestActionHandler_Execute_FallbackCreateAlertWritesAudit(t *testing.T) {
	rc, _, transport, _, audit := newTestContext(t)
	transport.err = schema.NewError(schema.ErrCodeTransport, "smtp unreachable")
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":      "send_email",
		"body":            "Hello",
		"fallbackEnabled": true,
		"fallbackAction":  "create_alert",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	require.Len(t, audit.entries, 1)
	assert.Contains(t, audit.entries[0], "smtp unreachable")
}

func TestActionHandler_Execute_FallbackRetrySchedulesOneHourOut(t *testing.T) {
	rc, _, transport, scheduler, _ := newTestContext(t)
	transport.err = schema.NewError(schema.ErrCodeTransport, "smtp unreachable")
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":      "send_email",
		"body":            "Hello",
		"fallbackEnabled": true,
		"fallbackAction":  "retry",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)

	require.Len(t, scheduler.scheduled, 1)
	assert.Equal(t, rc.Now().Add(time.Hour), scheduler.scheduled[0])
}

func TestActionHandler_Execute_FallbackNotAppliedToConfigGaps(t *testing.T) {
	rc, _, _, _, _ := newTestContext(t)
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":      "send_email",
		"body":            "Hello",
		"fallbackEnabled": true,
		"fallbackAction":  "skip",
	})

	lead := testLead()
	lead.Email = ""
	out, err := h.Execute(context.Background(), step, lead, rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusFail, out.Status)
	assert.Contains(t, out.Message, "no email address")
}

func TestActionHandler_Execute_FallbackDefaultCreateTask(t *testing.T) {
	rc, _, transport, _, _ := newTestContext(t)
	transport.err = schema.NewError(schema.ErrCodeTransport, "smtp unreachable")
	h := NewActionHandler()
	step := makeStep(t, schema.StepKindAction, "Send email", map[string]any{
		"actionType":      "send_email",
		"body":            "Hello",
		"fallbackEnabled": true,
		"fallbackAction":  "create_task",
	})

	out, err := h.Execute(context.Background(), step, testLead(), rc)
	require.NoError(t, err)
	assert.Equal(t, schema.StepStatusPass, out.Status)
	assert.Contains(t, out.Message, "followup task")
}

// ---- registry ----

func TestRegistry_Register_DuplicateKind(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewTriggerHandler()))

	err := r.Register(NewTriggerHandler())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestRegistry_Get_UnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(schema.StepKindAction)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestDefaultRegistry_AllKindsRegistered(t *testing.T) {
	r := DefaultRegistry()
	for _, kind := range []schema.StepKind{
		schema.StepKindTrigger,
		schema.StepKindCondition,
		schema.StepKindWait,
		schema.StepKindAction,
	} {
		assert.True(t, r.Has(kind), "kind %q", kind)
	}
}
