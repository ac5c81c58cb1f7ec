package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_RoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithWorkflowID(ctx, "wf-1")
	ctx = WithLeadID(ctx, "lead-9")
	ctx = WithStepID(ctx, "step-3")

	assert.Equal(t, "wf-1", WorkflowID(ctx))
	assert.Equal(t, "lead-9", LeadID(ctx))
	assert.Equal(t, "step-3", StepID(ctx))
}

func TestContext_Absent(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, WorkflowID(ctx))
	assert.Empty(t, LeadID(ctx))
	assert.Empty(t, StepID(ctx))
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithWorkflowID(context.Background(), "wf-42")
	ctx = WithLeadID(ctx, "lead-7")

	logger.InfoContext(ctx, "step executed")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"workflow_id":"wf-42"`)
	assert.Contains(t, out, `"lead_id":"lead-7"`)
	assert.NotContains(t, out, "step_id")
}

func TestCorrelationHandler_NoIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.Info("no correlation")

	out := buf.String()
	assert.NotContains(t, out, "workflow_id")
	assert.NotContains(t, out, "lead_id")
}
