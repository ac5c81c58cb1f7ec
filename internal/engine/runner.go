package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence/internal/logging"
	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/pkg/schema"
)

// RunStore persists execution history and the workflow stats aggregate.
// Satisfied by *store.LibSQLStore and test mocks.
type RunStore interface {
	SaveRun(ctx context.Context, run *schema.RunResult) error
	UpdateStats(ctx context.Context, workflowID string, stats schema.Stats) error
}

// timeSavedPerLeadHours is the fixed per-lead automation estimate accrued
// into workflow stats after each batch.
const timeSavedPerLeadHours = 0.25

// DefaultConcurrency processes leads sequentially, matching the one-batch
// one-thread reference behavior. Higher values fan leads out across the
// worker pool; per-lead state stays lead-local either way.
const DefaultConcurrency = 1

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	Concurrency int // max leads processed in parallel
}

// Runner executes a workflow against a batch of leads. It owns the
// per-lead step loop: strict step order, the condition-skip latch, panic
// containment, and the end-of-batch persistence side effects.
type Runner struct {
	registry *steps.Registry
	store    RunStore
	config   RunnerConfig
	logger   *slog.Logger
}

// NewRunner creates a Runner. The store may be nil, in which case run
// persistence and stats updates are disabled.
func NewRunner(registry *steps.Registry, store RunStore, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if registry == nil {
		registry = steps.DefaultRegistry()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		store:    store,
		config:   cfg,
		logger:   logger,
	}
}

// Execute runs the workflow against each lead and returns one RunResult per
// lead, in input order. An empty lead slice returns an empty (non-nil)
// result list. The error return covers invalid invocations only; per-lead
// failures are reported inside the results.
func (r *Runner) Execute(ctx context.Context, wf *schema.Workflow, leads []*schema.Lead, rc *steps.RunContext) ([]*schema.RunResult, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if rc == nil {
		rc = &steps.RunContext{}
	}

	ctx = logging.WithWorkflowID(ctx, wf.ID)
	r.logger.InfoContext(ctx, "starting batch run",
		"workflow", wf.Name, "steps", len(wf.Steps), "leads", len(leads))

	results := make([]*schema.RunResult, len(leads))

	if r.config.Concurrency > 1 && len(leads) > 1 {
		pool := NewWorkerPool(r.config.Concurrency)
		for i, lead := range leads {
			i, lead := i, lead
			if err := pool.Submit(ctx, func(leadCtx context.Context) {
				results[i] = r.executeLead(leadCtx, wf, lead, rc)
			}); err != nil {
				results[i] = r.cancelledResult(wf, lead, rc)
			}
		}
		pool.Shutdown()
	} else {
		for i, lead := range leads {
			results[i] = r.executeLead(ctx, wf, lead, rc)
		}
	}

	r.finishBatch(ctx, wf, leads, results, rc)
	return results, nil
}

// executeLead walks the step sequence for one lead. The skip latch and the
// failed flag are lead-local; nothing here is shared across leads.
func (r *Runner) executeLead(ctx context.Context, wf *schema.Workflow, lead *schema.Lead, rc *steps.RunContext) *schema.RunResult {
	ctx = logging.WithLeadID(ctx, lead.ID)

	run := &schema.RunResult{
		ID:          uuid.NewString(),
		WorkflowID:  wf.ID,
		LeadID:      lead.ID,
		ActorID:     rc.ActorID,
		Status:      schema.RunStatusSuccess,
		Steps:       make([]schema.StepResult, 0, len(wf.Steps)),
		TriggerType: triggerTypeOf(wf),
		StartedAt:   rc.Now(),
	}

	var (
		latched   bool
		failed    bool
		gateSkip  bool
		truncated bool
	)

	for i := range wf.Steps {
		step := &wf.Steps[i]

		if ctx.Err() != nil {
			truncated = true
			break
		}

		if latched {
			run.Steps = append(run.Steps, schema.StepResult{
				StepID:  step.ID,
				Kind:    step.Kind,
				Title:   step.Title,
				Status:  schema.StepStatusSkip,
				Message: "skipped: upstream condition not met",
			})
			continue
		}

		outcome, durationMs := r.runStep(ctx, step, lead, rc)
		run.Steps = append(run.Steps, schema.StepResult{
			StepID:     step.ID,
			Kind:       step.Kind,
			Title:      step.Title,
			Status:     outcome.Status,
			Message:    outcome.Message,
			DurationMs: durationMs,
		})

		switch outcome.Status {
		case schema.StepStatusFail:
			failed = true
		case schema.StepStatusSkip:
			// A skipped gate latches the rest of the sequence. A skipped
			// trigger additionally classifies the whole run as skipped
			// rather than successful.
			latched = true
			if step.Kind == schema.StepKindTrigger {
				gateSkip = true
			}
		}
	}

	switch {
	case failed:
		run.Status = schema.RunStatusFailed
	case truncated:
		run.Status = schema.RunStatusFailed
		run.Error = "run cancelled before completion"
	case gateSkip:
		run.Status = schema.RunStatusSkipped
	}
	run.CompletedAt = rc.Now()

	if r.store != nil && !truncated {
		if err := r.store.SaveRun(ctx, run); err != nil {
			r.logger.WarnContext(ctx, "run persistence failed", "run_id", run.ID, "error", err.Error())
		}
	}

	return run
}

// runStep dispatches one step through the registry, converting handler
// faults and panics into fail outcomes so one bad step never aborts the
// batch.
func (r *Runner) runStep(ctx context.Context, step *schema.Step, lead *schema.Lead, rc *steps.RunContext) (outcome schema.StepOutcome, durationMs int64) {
	started := time.Now()
	defer func() {
		durationMs = time.Since(started).Milliseconds()
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "step handler panicked",
				"step_id", step.ID, "panic", fmt.Sprint(rec))
			outcome = schema.Fail(fmt.Sprintf("internal fault: %v", rec))
		}
	}()

	ctx = logging.WithStepID(ctx, step.ID)

	handler, err := r.registry.Get(step.Kind)
	if err != nil {
		return schema.Fail(err.Error()), 0
	}

	outcome, err = handler.Execute(ctx, step, lead, rc)
	if err != nil {
		r.logger.ErrorContext(ctx, "step handler fault", "step_id", step.ID, "error", err.Error())
		return schema.Fail(err.Error()), 0
	}
	return outcome, 0
}

// finishBatch applies the end-of-batch side effects: the stats aggregate
// update and one audit summary entry. Both are best-effort.
func (r *Runner) finishBatch(ctx context.Context, wf *schema.Workflow, leads []*schema.Lead, results []*schema.RunResult, rc *steps.RunContext) {
	if len(leads) == 0 {
		return
	}

	successes := 0
	for _, res := range results {
		if res != nil && res.Status == schema.RunStatusSuccess {
			successes++
		}
	}

	prev := wf.Stats
	processed := prev.LeadsProcessed + len(leads)
	rate := prev.ConversionRate
	if processed > 0 {
		rate = ((float64(prev.LeadsProcessed) * prev.ConversionRate) + float64(successes)) / float64(processed)
	}
	wf.Stats = schema.Stats{
		LeadsProcessed: processed,
		ConversionRate: rate,
		TimeSavedHours: prev.TimeSavedHours + float64(len(leads))*timeSavedPerLeadHours,
		ROI:            prev.ROI,
	}

	if r.store != nil {
		if err := r.store.UpdateStats(ctx, wf.ID, wf.Stats); err != nil {
			r.logger.WarnContext(ctx, "stats update failed", "workflow_id", wf.ID, "error", err.Error())
		}
	}

	if rc.Audit != nil {
		details := fmt.Sprintf("Workflow %q processed %d leads (%d succeeded)", wf.Name, len(leads), successes)
		if err := rc.Audit.Append(ctx, rc.ActorID, "workflow_batch_completed", details); err != nil {
			r.logger.WarnContext(ctx, "batch audit entry failed", "workflow_id", wf.ID, "error", err.Error())
		}
	}
}

// cancelledResult builds the failed RunResult recorded when the pool
// rejects a lead because the batch context ended first.
func (r *Runner) cancelledResult(wf *schema.Workflow, lead *schema.Lead, rc *steps.RunContext) *schema.RunResult {
	now := rc.Now()
	return &schema.RunResult{
		ID:          uuid.NewString(),
		WorkflowID:  wf.ID,
		LeadID:      lead.ID,
		Status:      schema.RunStatusFailed,
		Error:       "run cancelled before start",
		TriggerType: triggerTypeOf(wf),
		StartedAt:   now,
		CompletedAt: now,
	}
}

// triggerTypeOf reads the trigger type from the first trigger step, if any.
func triggerTypeOf(wf *schema.Workflow) string {
	for i := range wf.Steps {
		if wf.Steps[i].Kind == schema.StepKindTrigger {
			return wf.Steps[i].Trigger().TriggerType
		}
	}
	return ""
}
