package store

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflow definitions
	SaveWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	UpdateStats(ctx context.Context, workflowID string, stats schema.Stats) error

	// Execution history (append-only)
	SaveRun(ctx context.Context, run *schema.RunResult) error
	GetRun(ctx context.Context, id string) (*schema.RunResult, error)
	ListRuns(ctx context.Context, actorID string, limit int) ([]*schema.RunResult, error)
	ListWorkflowRuns(ctx context.Context, workflowID string, limit int) ([]*schema.RunResult, error)

	// Audit log (append-only)
	Append(ctx context.Context, actorID, action, details string) error
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)

	// Scheduled messages
	Schedule(ctx context.Context, leadIDs []string, content steps.MessageContent, at time.Time) (*steps.ScheduleReceipt, error)
	DueMessages(ctx context.Context, now time.Time, limit int) ([]*ScheduledMessage, error)
	MarkDelivered(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string, retryAt *time.Time) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
