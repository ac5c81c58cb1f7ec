package schema

import (
	"encoding/json"
	"strings"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft  WorkflowStatus = "draft"
	WorkflowStatusActive WorkflowStatus = "active"
	WorkflowStatusPaused WorkflowStatus = "paused"
)

// StepKind enumerates the kinds of steps in a workflow.
type StepKind string

const (
	StepKindTrigger   StepKind = "trigger"
	StepKindAction    StepKind = "action"
	StepKindCondition StepKind = "condition"
	StepKindWait      StepKind = "wait"
)

// Workflow is a named, versioned automation definition. Steps execute in
// array order against each lead in a batch.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Status      WorkflowStatus `json:"status"`
	Steps       []Step         `json:"steps"`
	Stats       Stats          `json:"stats"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Stats is the running performance aggregate maintained after each batch run.
type Stats struct {
	LeadsProcessed int     `json:"leads_processed"`
	ConversionRate float64 `json:"conversion_rate"`
	TimeSavedHours float64 `json:"time_saved_hours"`
	ROI            float64 `json:"roi"`
}

// Step is one node in the ordered sequence. Config is the raw kind-specific
// payload; DecodeConfig resolves it into a typed struct once at load time.
type Step struct {
	ID          string          `json:"id"`
	Kind        StepKind        `json:"kind"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`

	decoded any
}

// Trigger types understood by the trigger executor.
const (
	TriggerLeadCreated  = "lead_created"
	TriggerScoreChange  = "score_change"
	TriggerStatusChange = "status_change"
	TriggerTimeElapsed  = "time_elapsed"
)

// TriggerConfig is the config payload for trigger steps.
type TriggerConfig struct {
	TriggerType string  `json:"triggerType,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// Condition operators for the field/operator/value triple.
const (
	OperatorGT = "gt"
	OperatorLT = "lt"
	OperatorEQ = "eq"
)

// ConditionConfig is the config payload for condition steps. When Expression
// is set it takes precedence over the field/operator/value triple and is
// evaluated through the expression engine named by Engine ("expr" default).
type ConditionConfig struct {
	Field      string `json:"field,omitempty"`
	Operator   string `json:"operator,omitempty"`
	Value      any    `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
	Engine     string `json:"engine,omitempty"`
}

// WaitConfig is the config payload for wait steps.
type WaitConfig struct {
	Days int `json:"days,omitempty"`
}

// SendTiming is a symbolic send-time preference resolved by the scheduling
// calculator at execution time.
type SendTiming string

const (
	TimingImmediate SendTiming = "immediate"
	TimingOptimal   SendTiming = "optimal"
	TimingMorning   SendTiming = "morning"
	TimingAfternoon SendTiming = "afternoon"
)

// Action types dispatched by the action executor.
const (
	ActionSendEmail    = "send_email"
	ActionUpdateStatus = "update_status"
	ActionAddTag       = "add_tag"
	ActionAssignUser   = "assign_user"
	ActionCreateAlert  = "create_alert"
)

// Fallback actions applied when a primary action effect fails and
// FallbackEnabled is set.
const (
	FallbackCreateAlert = "create_alert"
	FallbackRetry       = "retry"
	FallbackSkip        = "skip"
	FallbackCreateTask  = "create_task"
)

// ActionConfig is the config payload for action steps.
type ActionConfig struct {
	ActionType string `json:"actionType,omitempty"`

	// send_email
	TemplateID        string     `json:"templateId,omitempty"`
	Subject           string     `json:"subject,omitempty"`
	Body              string     `json:"body,omitempty"`
	AIPersonalization bool       `json:"aiPersonalization,omitempty"`
	Timing            SendTiming `json:"timing,omitempty"`
	TrackOpens        bool       `json:"trackOpens,omitempty"`
	TrackClicks       bool       `json:"trackClicks,omitempty"`

	// update_status / add_tag / assign_user
	NewStatus  string `json:"newStatus,omitempty"`
	Tag        string `json:"tag,omitempty"`
	AssigneeID string `json:"assigneeId,omitempty"`

	// create_alert
	AlertMessage string `json:"alertMessage,omitempty"`

	FallbackEnabled bool   `json:"fallbackEnabled,omitempty"`
	FallbackAction  string `json:"fallbackAction,omitempty"`
}

// DecodeConfig parses the raw config into the kind-specific typed payload and
// caches it on the step. Safe to call repeatedly; the first call wins.
func (s *Step) DecodeConfig() error {
	if s.decoded != nil {
		return nil
	}

	raw := s.Config
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var (
		cfg any
		err error
	)
	switch s.Kind {
	case StepKindTrigger:
		c := &TriggerConfig{}
		err = json.Unmarshal(raw, c)
		cfg = c
	case StepKindCondition:
		c := &ConditionConfig{}
		err = json.Unmarshal(raw, c)
		cfg = c
	case StepKindWait:
		c := &WaitConfig{}
		err = json.Unmarshal(raw, c)
		cfg = c
	case StepKindAction:
		c := &ActionConfig{}
		err = json.Unmarshal(raw, c)
		cfg = c
	default:
		return NewErrorf(ErrCodeValidation, "unknown step kind %q", s.Kind).WithStep(s.ID)
	}
	if err != nil {
		return NewErrorf(ErrCodeValidation, "decode %s config: %s", s.Kind, err.Error()).
			WithStep(s.ID).WithCause(err)
	}

	s.decoded = cfg
	return nil
}

// Trigger returns the decoded trigger config, decoding on first use.
func (s *Step) Trigger() *TriggerConfig {
	_ = s.DecodeConfig()
	if c, ok := s.decoded.(*TriggerConfig); ok {
		return c
	}
	return &TriggerConfig{}
}

// Condition returns the decoded condition config, decoding on first use.
func (s *Step) Condition() *ConditionConfig {
	_ = s.DecodeConfig()
	if c, ok := s.decoded.(*ConditionConfig); ok {
		return c
	}
	return &ConditionConfig{}
}

// Wait returns the decoded wait config, decoding on first use.
func (s *Step) Wait() *WaitConfig {
	_ = s.DecodeConfig()
	if c, ok := s.decoded.(*WaitConfig); ok {
		return c
	}
	return &WaitConfig{}
}

// Action returns the decoded action config, decoding on first use.
func (s *Step) Action() *ActionConfig {
	_ = s.DecodeConfig()
	if c, ok := s.decoded.(*ActionConfig); ok {
		return c
	}
	return &ActionConfig{}
}

// InferActionType derives an action type from the step title when the config
// leaves ActionType unset. Unknown titles fall through to "" and the action
// executor's permissive default.
func (s *Step) InferActionType() string {
	if c := s.Action(); c.ActionType != "" {
		return c.ActionType
	}
	title := strings.ToLower(s.Title)
	switch {
	case strings.Contains(title, "email"):
		return ActionSendEmail
	case strings.Contains(title, "status"):
		return ActionUpdateStatus
	case strings.Contains(title, "tag"):
		return ActionAddTag
	case strings.Contains(title, "assign"):
		return ActionAssignUser
	case strings.Contains(title, "alert"), strings.Contains(title, "notify"):
		return ActionCreateAlert
	}
	return ""
}
