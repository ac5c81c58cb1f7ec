package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStep_DecodeConfig_Typed(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want any
	}{
		{
			name: "trigger",
			step: Step{ID: "s1", Kind: StepKindTrigger, Config: json.RawMessage(`{"triggerType":"score_change","threshold":75}`)},
			want: &TriggerConfig{TriggerType: "score_change", Threshold: 75},
		},
		{
			name: "condition",
			step: Step{ID: "s2", Kind: StepKindCondition, Config: json.RawMessage(`{"field":"score","operator":"gt","value":50}`)},
			want: &ConditionConfig{Field: "score", Operator: "gt", Value: float64(50)},
		},
		{
			name: "wait",
			step: Step{ID: "s3", Kind: StepKindWait, Config: json.RawMessage(`{"days":3}`)},
			want: &WaitConfig{Days: 3},
		},
		{
			name: "action",
			step: Step{ID: "s4", Kind: StepKindAction, Config: json.RawMessage(`{"actionType":"send_email","body":"hi","aiPersonalization":true}`)},
			want: &ActionConfig{ActionType: "send_email", Body: "hi", AIPersonalization: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.step.DecodeConfig())
			assert.Equal(t, tt.want, tt.step.decoded)
		})
	}
}

func TestStep_DecodeConfig_EmptyConfigDefaults(t *testing.T) {
	step := Step{ID: "s1", Kind: StepKindWait}
	require.NoError(t, step.DecodeConfig())
	assert.Equal(t, 0, step.Wait().Days)
}

func TestStep_DecodeConfig_UnknownKind(t *testing.T) {
	step := Step{ID: "s1", Kind: "loop"}
	err := step.DecodeConfig()
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestStep_DecodeConfig_MalformedJSON(t *testing.T) {
	step := Step{ID: "s1", Kind: StepKindAction, Config: json.RawMessage(`{"actionType":`)}
	require.Error(t, step.DecodeConfig())
}

func TestStep_InferActionType(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Send welcome email", ActionSendEmail},
		{"Update lead status", ActionUpdateStatus},
		{"Tag as hot lead", ActionAddTag},
		{"Assign to sales rep", ActionAssignUser},
		{"Notify account owner", ActionCreateAlert},
		{"Do something else", ""},
	}
	for _, tt := range tests {
		step := Step{Kind: StepKindAction, Title: tt.title}
		assert.Equal(t, tt.want, step.InferActionType(), tt.title)
	}
}

func TestStep_InferActionType_ConfigWins(t *testing.T) {
	step := Step{
		Kind:   StepKindAction,
		Title:  "Send welcome email",
		Config: json.RawMessage(`{"actionType":"create_alert"}`),
	}
	assert.Equal(t, ActionCreateAlert, step.InferActionType())
}

func TestLead_Field(t *testing.T) {
	lead := &Lead{
		Name:      "Ada Lovelace",
		Company:   "Analytical",
		Score:     82,
		Status:    LeadStatusQualified,
		Knowledge: map[string]any{"Industry": "saas"},
	}

	score, ok := lead.Field("Score")
	require.True(t, ok)
	assert.Equal(t, float64(82), score)

	first, ok := lead.Field("first_name")
	require.True(t, ok)
	assert.Equal(t, "Ada", first)

	industry, ok := lead.Field("industry")
	require.True(t, ok)
	assert.Equal(t, "saas", industry)

	_, ok = lead.Field("missing")
	assert.False(t, ok)
}

func TestLead_Env(t *testing.T) {
	lead := &Lead{
		Name:      "Ada Lovelace",
		Score:     82,
		Status:    LeadStatusNew,
		Knowledge: map[string]any{"Industry": "saas"},
	}
	env := lead.Env()
	assert.Equal(t, float64(82), env["score"])
	assert.Equal(t, "Ada", env["first_name"])
	assert.Equal(t, "new", env["status"])
	knowledge, ok := env["knowledge"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "saas", knowledge["industry"])
}

func TestEngineError_CodeOf(t *testing.T) {
	err := NewError(ErrCodeTransport, "smtp down").WithStep("s1")
	assert.Equal(t, ErrCodeTransport, CodeOf(err))

	wrapped := NewError(ErrCodeStore, "write failed").WithCause(errors.New("disk full"))
	assert.Equal(t, ErrCodeStore, CodeOf(wrapped))

	assert.Equal(t, ErrCodeExecution, CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestEngineError_IsRetryable(t *testing.T) {
	assert.True(t, NewError(ErrCodeTransport, "x").IsRetryable())
	assert.True(t, NewError(ErrCodeTimeout, "x").IsRetryable())
	assert.False(t, NewError(ErrCodeValidation, "x").IsRetryable())
	assert.False(t, NewError(ErrCodeNotFound, "x").IsRetryable())
}

func TestValidationResult_ToError(t *testing.T) {
	var r ValidationResult
	assert.NoError(t, r.ToError())

	r.AddWarning("/steps/0", "w", "minor")
	assert.NoError(t, r.ToError(), "warnings alone do not invalidate")

	r.AddError("/steps/1", "e", "broken")
	err := r.ToError()
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}
