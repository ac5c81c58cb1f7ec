package steps

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/pkg/schema"
)

// Collaborator interfaces consumed by the step executors. Implementations
// live outside the engine (managed backend, transport providers); the libSQL
// store implements AuditLog and the scheduled-message side of
// MessageScheduler for local deployments.

// RecordStore reads and mutates leads in the external record system.
type RecordStore interface {
	GetLeads(ctx context.Context, filter LeadFilter) ([]*schema.Lead, error)
	UpdateLead(ctx context.Context, id string, patch LeadPatch) error
}

// LeadFilter selects leads for a batch run.
type LeadFilter struct {
	Status   schema.LeadStatus `json:"status,omitempty"`
	MinScore float64           `json:"min_score,omitempty"`
	Limit    int               `json:"limit,omitempty"`
}

// LeadPatch is a partial lead mutation requested by an action step.
type LeadPatch struct {
	Status     *schema.LeadStatus `json:"status,omitempty"`
	AddTag     string             `json:"add_tag,omitempty"`
	AssigneeID *string            `json:"assignee_id,omitempty"`
}

// MessageTransport delivers a message synchronously.
type MessageTransport interface {
	Send(ctx context.Context, msg OutboundMessage) (*SendReceipt, error)
}

// OutboundMessage is one fully-resolved message ready for delivery.
type OutboundMessage struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	TrackOpens  bool   `json:"track_opens,omitempty"`
	TrackClicks bool   `json:"track_clicks,omitempty"`
}

// SendReceipt acknowledges a successful synchronous send.
type SendReceipt struct {
	MessageID string `json:"message_id"`
}

// MessageScheduler persists messages for deferred delivery.
type MessageScheduler interface {
	Schedule(ctx context.Context, leadIDs []string, content MessageContent, at time.Time) (*ScheduleReceipt, error)
}

// MessageContent is the unresolved-per-send payload handed to the scheduler.
type MessageContent struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TemplateID string `json:"template_id,omitempty"`
}

// ScheduleReceipt reports how many messages were queued and which lead IDs
// could not be scheduled.
type ScheduleReceipt struct {
	ScheduledCount int      `json:"scheduled_count"`
	Failures       []string `json:"failures,omitempty"`
}

// TemplateProvider fetches reusable message templates by ID.
type TemplateProvider interface {
	GetTemplate(ctx context.Context, id string) (*MessageTemplate, error)
}

// MessageTemplate is a stored subject/body pair with {{tag}} placeholders.
type MessageTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ContentGenerator produces an AI-personalized variant of a message.
// Failures are soft: callers degrade to the tag-resolved content.
type ContentGenerator interface {
	GeneratePersonalized(ctx context.Context, lead *schema.Lead, promptContext string) (*GeneratedMessage, error)
}

// GeneratedMessage is the generator's output. Empty fields fall back to the
// tag-resolved equivalents.
type GeneratedMessage struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// AuditLog appends immutable audit/alert entries.
type AuditLog interface {
	Append(ctx context.Context, actorID, action, details string) error
}
