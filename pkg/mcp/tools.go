package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/internal/store"
	"github.com/cadencehq/cadence/pkg/schema"
)

// handleDefine validates and saves a workflow definition.
func (s *CadenceServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}

	raw := mcp.ParseStringMap(req, "workflow", nil)
	if raw == nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	// Round-trip through JSON to decode into the typed definition.
	wfBytes, marshalErr := json.Marshal(raw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", marshalErr)), nil
	}
	var wf schema.Workflow
	if unmarshalErr := json.Unmarshal(wfBytes, &wf); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", unmarshalErr)), nil
	}

	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Status == "" {
		wf.Status = schema.WorkflowStatusDraft
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}

	result := s.validator.Validate(&wf)
	if !result.Valid() {
		return marshalResult(map[string]any{
			"saved":  false,
			"errors": result.Errors,
		})
	}

	if saveErr := s.store.SaveWorkflow(ctx, &wf); saveErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save workflow: %v", saveErr)), nil
	}

	if auditErr := s.store.Append(ctx, actorID, "workflow_defined",
		fmt.Sprintf("Workflow %q saved with %d steps", wf.Name, len(wf.Steps))); auditErr != nil {
		s.logger.Warn("define audit entry failed", "workflow_id", wf.ID, "error", auditErr.Error())
	}

	return marshalResult(map[string]any{
		"saved":       true,
		"workflow_id": wf.ID,
		"warnings":    result.Warnings,
	})
}

// handleRun executes a workflow against a lead batch.
func (s *CadenceServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	actorID, err := req.RequireString("actor_id")
	if err != nil {
		return mcp.NewToolResultError("actor_id is required"), nil
	}

	wf, wfErr := s.store.GetWorkflow(ctx, workflowID)
	if wfErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", wfErr)), nil
	}

	rc := *s.runCtx
	rc.ActorID = actorID

	if rc.Records == nil {
		return mcp.NewToolResultError("no lead source configured"), nil
	}

	filter := leadFilter(mcp.ParseStringMap(req, "leads", nil))
	leads, leadsErr := rc.Records.GetLeads(ctx, filter)
	if leadsErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lead query failed: %v", leadsErr)), nil
	}

	// One batch gets a bounded slice of wall time; leads the deadline cuts
	// off are reported as failed runs rather than blocking the tool call.
	runCtx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	results, runErr := s.runner.Execute(runCtx, wf, leads, &rc)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow execution failed: %v", runErr)), nil
	}

	summary := map[string]any{
		"workflow_id": workflowID,
		"processed":   len(results),
		"succeeded":   countStatus(results, schema.RunStatusSuccess),
		"failed":      countStatus(results, schema.RunStatusFailed),
		"skipped":     countStatus(results, schema.RunStatusSkipped),
		"runs":        results,
	}
	return marshalResult(summary)
}

// handleQuery lists workflows, runs, or audit entries based on filters.
func (s *CadenceServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		return s.queryWorkflows(ctx, filter)
	case "runs":
		return s.queryRuns(ctx, filter)
	case "audit":
		return s.queryAudit(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleAnalytics returns the aggregate report, or the result of an ad-hoc
// jq expression when one is provided.
func (s *CadenceServer) handleAnalytics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID := req.GetString("actor_id", "")
	expression := req.GetString("expression", "")
	limit := req.GetInt("limit", 0)

	if expression != "" {
		out, queryErr := s.analytics.Query(ctx, expression, actorID, limit)
		if queryErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analytics query failed: %v", queryErr)), nil
		}
		return marshalResult(map[string]any{"result": out})
	}

	report, aggErr := s.analytics.Aggregate(ctx, actorID, limit)
	if aggErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analytics aggregation failed: %v", aggErr)), nil
	}
	return marshalResult(report)
}

// --- Query helpers ---

func (s *CadenceServer) queryWorkflows(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	wf := store.WorkflowFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		ws := schema.WorkflowStatus(status)
		wf.Status = &ws
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			wf.Since = &t
		}
	}

	workflows, err := s.store.ListWorkflows(ctx, wf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

func (s *CadenceServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	limit := extractInt(filter, "limit", 50)

	if workflowID, ok := filter["workflow_id"].(string); ok && workflowID != "" {
		runs, err := s.store.ListWorkflowRuns(ctx, workflowID, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"runs": runs})
	}

	actorID, _ := filter["actor_id"].(string)
	runs, err := s.store.ListRuns(ctx, actorID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *CadenceServer) queryAudit(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	af := store.AuditFilter{
		Limit: extractInt(filter, "limit", 100),
	}
	if actorID, ok := filter["actor_id"].(string); ok {
		af.ActorID = actorID
	}
	if action, ok := filter["action"].(string); ok {
		af.Action = action
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			af.Since = &t
		}
	}

	entries, err := s.store.ListAuditEntries(ctx, af)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"entries": entries})
}

// --- Internal helpers ---

// leadFilter converts the raw filter map into a typed lead filter.
func leadFilter(raw map[string]any) steps.LeadFilter {
	filter := steps.LeadFilter{
		Limit: extractInt(raw, "limit", 0),
	}
	if raw == nil {
		return filter
	}
	if status, ok := raw["status"].(string); ok {
		filter.Status = schema.LeadStatus(status)
	}
	switch v := raw["min_score"].(type) {
	case float64:
		filter.MinScore = v
	case int:
		filter.MinScore = float64(v)
	}
	return filter
}

func countStatus(results []*schema.RunResult, status schema.RunStatus) int {
	n := 0
	for _, r := range results {
		if r != nil && r.Status == status {
			n++
		}
	}
	return n
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
