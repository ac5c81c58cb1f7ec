package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedWorkflow(t *testing.T, s *LibSQLStore) *schema.Workflow {
	t.Helper()
	wf := &schema.Workflow{
		ID:     uuid.NewString(),
		Name:   "Hot lead outreach",
		Status: schema.WorkflowStatusActive,
		Steps: []schema.Step{
			{ID: "s1", Kind: schema.StepKindTrigger, Config: json.RawMessage(`{"triggerType":"lead_created"}`)},
			{ID: "s2", Kind: schema.StepKindAction, Config: json.RawMessage(`{"actionType":"send_email","body":"hi"}`)},
		},
	}
	require.NoError(t, s.SaveWorkflow(context.Background(), wf))
	return wf
}

func seedRun(t *testing.T, s *LibSQLStore, workflowID, actorID string, status schema.RunStatus) *schema.RunResult {
	t.Helper()
	now := time.Now().UTC()
	run := &schema.RunResult{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		LeadID:      uuid.NewString(),
		ActorID:     actorID,
		Status:      status,
		TriggerType: "lead_created",
		Steps: []schema.StepResult{
			{StepID: "s1", Kind: schema.StepKindTrigger, Status: schema.StepStatusPass, Message: "ok"},
		},
		StartedAt:   now,
		CompletedAt: now.Add(50 * time.Millisecond),
	}
	require.NoError(t, s.SaveRun(context.Background(), run))
	return run
}

// --- Workflow Tests ---

func TestSaveAndGetWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, "Hot lead outreach", got.Name)
	assert.Equal(t, schema.WorkflowStatusActive, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, schema.StepKindTrigger, got.Steps[0].Kind)
}

func TestSaveWorkflow_UpsertReplacesDefinition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	wf.Name = "Renamed"
	wf.Status = schema.WorkflowStatusPaused
	require.NoError(t, s.SaveWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, schema.WorkflowStatusPaused, got.Status)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorkflow(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestListWorkflows_StatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := seedWorkflow(t, s)
	paused := seedWorkflow(t, s)
	paused.Status = schema.WorkflowStatusPaused
	require.NoError(t, s.SaveWorkflow(ctx, paused))

	status := schema.WorkflowStatusActive
	got, err := s.ListWorkflows(ctx, WorkflowFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestDeleteWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))

	_, err := s.GetWorkflow(ctx, wf.ID)
	require.Error(t, err)

	err = s.DeleteWorkflow(ctx, wf.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestUpdateStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	stats := schema.Stats{LeadsProcessed: 12, ConversionRate: 0.58, TimeSavedHours: 3}
	require.NoError(t, s.UpdateStats(ctx, wf.ID, stats))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Stats.LeadsProcessed)
	assert.InDelta(t, 0.58, got.Stats.ConversionRate, 1e-9)
}

// --- Run Tests ---

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	run := seedRun(t, s, wf.ID, "user-1", schema.RunStatusSuccess)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.LeadID, got.LeadID)
	assert.Equal(t, "user-1", got.ActorID)
	assert.Equal(t, schema.RunStatusSuccess, got.Status)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "ok", got.Steps[0].Message)
}

func TestListRuns_ActorFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := seedWorkflow(t, s)
	for i := 0; i < 3; i++ {
		seedRun(t, s, wf.ID, "user-1", schema.RunStatusSuccess)
	}
	seedRun(t, s, wf.ID, "user-2", schema.RunStatusFailed)

	got, err := s.ListRuns(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListWorkflowRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf1 := seedWorkflow(t, s)
	wf2 := seedWorkflow(t, s)
	seedRun(t, s, wf1.ID, "user-1", schema.RunStatusSuccess)
	seedRun(t, s, wf2.ID, "user-1", schema.RunStatusSuccess)

	got, err := s.ListWorkflowRuns(ctx, wf1.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, wf1.ID, got[0].WorkflowID)
}

// --- Audit Tests ---

func TestAuditAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "user-1", "workflow_alert", "lead needs attention"))
	require.NoError(t, s.Append(ctx, "user-2", "workflow_batch_completed", "processed 5 leads"))

	entries, err := s.ListAuditEntries(ctx, AuditFilter{ActorID: "user-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "workflow_alert", entries[0].Action)
	assert.Equal(t, "lead needs attention", entries[0].Details)

	entries, err = s.ListAuditEntries(ctx, AuditFilter{Action: "workflow_batch_completed"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "user-2", entries[0].ActorID)
}

// --- Scheduled Message Tests ---

func TestSchedule_PersistsOnePerLead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now().UTC().Add(time.Hour)
	receipt, err := s.Schedule(ctx, []string{"lead-a", "lead-b"},
		steps.MessageContent{Subject: "Hi", Body: "Hello"}, at)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.ScheduledCount)
	assert.Empty(t, receipt.Failures)

	// Not yet due.
	due, err := s.DueMessages(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Due after the scheduled time passes.
	due, err = s.DueMessages(ctx, at.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestMarkDelivered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now().UTC().Add(-time.Minute)
	_, err := s.Schedule(ctx, []string{"lead-a"}, steps.MessageContent{Body: "Hello"}, at)
	require.NoError(t, err)

	due, err := s.DueMessages(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, s.MarkDelivered(ctx, due[0].ID))

	due, err = s.DueMessages(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Unknown message id reports not found.
	err = s.MarkDelivered(ctx, 99999)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestMarkFailed_RetryKeepsPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now().UTC().Add(-time.Minute)
	_, err := s.Schedule(ctx, []string{"lead-a"}, steps.MessageContent{Body: "Hello"}, at)
	require.NoError(t, err)

	due, err := s.DueMessages(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	retryAt := time.Now().UTC().Add(30 * time.Minute)
	require.NoError(t, s.MarkFailed(ctx, due[0].ID, "smtp unreachable", &retryAt))

	// Pushed back: not due now, due after retryAt.
	due, err = s.DueMessages(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.DueMessages(ctx, retryAt.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, "smtp unreachable", due[0].LastError)
}

func TestMarkFailed_TerminalFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now().UTC().Add(-time.Minute)
	_, err := s.Schedule(ctx, []string{"lead-a"}, steps.MessageContent{Body: "Hello"}, at)
	require.NoError(t, err)

	due, err := s.DueMessages(ctx, time.Now().UTC(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, s.MarkFailed(ctx, due[0].ID, "address rejected", nil))

	due, err = s.DueMessages(ctx, time.Now().UTC().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}
