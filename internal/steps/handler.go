package steps

import (
	"context"
	"log/slog"
	"time"

	"github.com/cadencehq/cadence/internal/expressions"
	"github.com/cadencehq/cadence/internal/personalize"
	"github.com/cadencehq/cadence/pkg/schema"
)

// Handler executes one kind of workflow step against a single lead.
// Ordinary pass/fail/skip verdicts are returned as values; a non-nil error
// means an unexpected fault, which the run controller converts to a fail
// result without aborting the batch.
type Handler interface {
	Kind() schema.StepKind
	Execute(ctx context.Context, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, error)
}

// RunContext carries the caller identity and shared collaborators for one
// batch invocation. Handlers hold no state of their own; everything
// side-effecting goes through the collaborators here.
type RunContext struct {
	ActorID string
	Sender  *personalize.SenderContext

	Records   RecordStore
	Transport MessageTransport
	Scheduler MessageScheduler
	Templates TemplateProvider
	Generator ContentGenerator
	Audit     AuditLog

	Engines *expressions.Engines
	Fields  *expressions.GoJQEngine

	// Clock is injectable for deterministic scheduling tests. Nil means
	// the wall clock.
	Clock func() time.Time

	Logger *slog.Logger
}

// Now returns the context's notion of the current time.
func (rc *RunContext) Now() time.Time {
	if rc.Clock != nil {
		return rc.Clock()
	}
	return time.Now()
}

// Log returns the context logger, or a discard-equivalent default.
func (rc *RunContext) Log() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}
