package schema

import "time"

// StepStatus is the verdict of a single step execution.
type StepStatus string

const (
	StepStatusPass StepStatus = "pass"
	StepStatusFail StepStatus = "fail"
	StepStatusSkip StepStatus = "skip"
)

// RunStatus is the overall outcome of one (workflow, lead) execution.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped"
)

// StepOutcome is what a step executor produces: a verdict plus a
// human-readable message. Duration is filled in by the run controller.
type StepOutcome struct {
	Status  StepStatus `json:"status"`
	Message string     `json:"message"`
}

// Pass builds a passing outcome.
func Pass(message string) StepOutcome {
	return StepOutcome{Status: StepStatusPass, Message: message}
}

// Fail builds a failing outcome.
func Fail(message string) StepOutcome {
	return StepOutcome{Status: StepStatusFail, Message: message}
}

// Skip builds a skipping outcome.
func Skip(message string) StepOutcome {
	return StepOutcome{Status: StepStatusSkip, Message: message}
}

// StepResult records one step's verdict within a run. Immutable once produced.
type StepResult struct {
	StepID     string     `json:"step_id"`
	Kind       StepKind   `json:"kind"`
	Title      string     `json:"title,omitempty"`
	Status     StepStatus `json:"status"`
	Message    string     `json:"message"`
	DurationMs int64      `json:"duration_ms"`
}

// RunResult is one lead's full outcome for a workflow invocation.
// Append-only history: never mutated after the run that created it.
type RunResult struct {
	ID          string       `json:"id"`
	WorkflowID  string       `json:"workflow_id"`
	LeadID      string       `json:"lead_id"`
	ActorID     string       `json:"actor_id,omitempty"`
	Status      RunStatus    `json:"status"`
	Steps       []StepResult `json:"steps"`
	Error       string       `json:"error,omitempty"`
	TriggerType string       `json:"trigger_type,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// DurationMs returns the total wall-clock duration of the run.
func (r *RunResult) DurationMs() int64 {
	return r.CompletedAt.Sub(r.StartedAt).Milliseconds()
}
