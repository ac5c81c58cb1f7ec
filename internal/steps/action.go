package steps

import (
	"context"
	"fmt"

	"github.com/cadencehq/cadence/pkg/schema"
)

// actionFunc is one action sub-case. The eligible flag reports whether a
// failed outcome came from a collaborator effect (send, storage, audit) and
// may therefore be intercepted by the fallback policy. Configuration gaps
// (missing address, missing template) always fail outright.
type actionFunc func(ctx context.Context, cfg *schema.ActionConfig, step *schema.Step, lead *schema.Lead, rc *RunContext) (outcome schema.StepOutcome, eligible bool)

// ActionHandler executes action steps by dispatching on the configured
// action type. The dispatch table is built once at construction; unknown
// types fall through to a permissive pass.
type ActionHandler struct {
	actions map[string]actionFunc
}

// NewActionHandler creates the action step handler with all built-in
// action types registered.
func NewActionHandler() *ActionHandler {
	h := &ActionHandler{}
	h.actions = map[string]actionFunc{
		schema.ActionSendEmail:    h.sendEmail,
		schema.ActionUpdateStatus: h.updateStatus,
		schema.ActionAddTag:       h.addTag,
		schema.ActionAssignUser:   h.assignUser,
		schema.ActionCreateAlert:  h.createAlert,
	}
	return h
}

func (h *ActionHandler) Kind() schema.StepKind {
	return schema.StepKindAction
}

func (h *ActionHandler) Execute(ctx context.Context, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, error) {
	cfg := step.Action()

	actionType := step.InferActionType()

	fn, ok := h.actions[actionType]
	if !ok {
		return schema.Pass(fmt.Sprintf("action %q executed", step.Title)), nil
	}

	outcome, eligible := fn(ctx, cfg, step, lead, rc)

	if outcome.Status == schema.StepStatusFail && eligible && cfg.FallbackEnabled {
		return h.applyFallback(ctx, cfg, step, lead, rc, outcome)
	}
	return outcome, nil
}

var _ Handler = (*ActionHandler)(nil)
