package steps

import (
	"context"
	"fmt"

	"github.com/cadencehq/cadence/pkg/schema"
)

// WaitHandler evaluates wait steps. The engine does not sleep: a wait step
// records the intended delay and passes, leaving deferred delivery to the
// scheduling of subsequent action steps.
type WaitHandler struct{}

// NewWaitHandler creates the wait step handler.
func NewWaitHandler() *WaitHandler {
	return &WaitHandler{}
}

func (h *WaitHandler) Kind() schema.StepKind {
	return schema.StepKindWait
}

func (h *WaitHandler) Execute(ctx context.Context, step *schema.Step, lead *schema.Lead, rc *RunContext) (schema.StepOutcome, error) {
	cfg := step.Wait()

	days := cfg.Days
	if days < 0 {
		days = 0
	}
	noun := "days"
	if days == 1 {
		noun = "day"
	}
	return schema.Pass(fmt.Sprintf("wait %d %s acknowledged", days, noun)), nil
}

var _ Handler = (*WaitHandler)(nil)
