package store

import (
	"time"

	"github.com/cadencehq/cadence/pkg/schema"
)

// WorkflowFilter selects workflow definitions for listing.
type WorkflowFilter struct {
	Status *schema.WorkflowStatus
	Since  *time.Time
	Limit  int
	Offset int
}

// AuditEntry is one immutable audit-log row.
type AuditEntry struct {
	ID        int64     `json:"id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditFilter selects audit entries for listing.
type AuditFilter struct {
	ActorID string
	Action  string
	Since   *time.Time
	Limit   int
}

// Scheduled message delivery states.
const (
	MessagePending   = "pending"
	MessageDelivered = "delivered"
	MessageFailed    = "failed"
)

// ScheduledMessage is one deferred delivery persisted by the scheduler and
// drained by the dispatcher.
type ScheduledMessage struct {
	ID          int64      `json:"id"`
	LeadID      string     `json:"lead_id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	TemplateID  string     `json:"template_id,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
