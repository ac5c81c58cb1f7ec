package analytics

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/cadencehq/cadence/internal/expressions"
	"github.com/cadencehq/cadence/pkg/schema"
)

// ExecutionQuery reads recent execution history. Satisfied by the libSQL
// store and test mocks.
type ExecutionQuery interface {
	ListRuns(ctx context.Context, actorID string, limit int) ([]*schema.RunResult, error)
}

// DefaultWindow bounds how many recent runs an aggregation folds over when
// the caller does not specify a limit.
const DefaultWindow = 200

// NodeMetrics is the per-step aggregate across the run window.
type NodeMetrics struct {
	StepID        string          `json:"step_id"`
	Title         string          `json:"title,omitempty"`
	Kind          schema.StepKind `json:"kind"`
	Executions    int             `json:"executions"`
	Passes        int             `json:"passes"`
	SuccessRate   float64         `json:"success_rate"`
	AvgDurationMs int64           `json:"avg_duration_ms"`
}

// TriggerMetrics is the per-trigger-type conversion aggregate.
type TriggerMetrics struct {
	TriggerType    string  `json:"trigger_type"`
	Fired          int     `json:"fired"`
	Converted      int     `json:"converted"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Report is one aggregation over the bounded run window.
type Report struct {
	TotalRuns   int              `json:"total_runs"`
	Nodes       []NodeMetrics    `json:"nodes"`
	Triggers    []TriggerMetrics `json:"triggers"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Aggregator is the read-side fold over execution history. It never writes.
type Aggregator struct {
	query ExecutionQuery
	jq    *expressions.GoJQEngine
}

// NewAggregator creates an Aggregator over the given execution source.
func NewAggregator(query ExecutionQuery) *Aggregator {
	return &Aggregator{
		query: query,
		jq:    expressions.NewGoJQEngine(),
	}
}

// Aggregate folds the most recent runs into per-node and per-trigger
// metrics. A limit of zero or less uses DefaultWindow.
func (a *Aggregator) Aggregate(ctx context.Context, actorID string, limit int) (*Report, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}
	runs, err := a.query.ListRuns(ctx, actorID, limit)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list runs: %s", err.Error()).WithCause(err)
	}

	type nodeAccum struct {
		metrics       NodeMetrics
		totalDuration int64
	}
	nodeOrder := make([]string, 0)
	nodes := make(map[string]*nodeAccum)

	type triggerAccum struct {
		fired     int
		converted int
	}
	triggerOrder := make([]string, 0)
	triggers := make(map[string]*triggerAccum)

	for _, run := range runs {
		if run == nil {
			continue
		}

		for _, sr := range run.Steps {
			acc, ok := nodes[sr.StepID]
			if !ok {
				acc = &nodeAccum{metrics: NodeMetrics{StepID: sr.StepID, Title: sr.Title, Kind: sr.Kind}}
				nodes[sr.StepID] = acc
				nodeOrder = append(nodeOrder, sr.StepID)
			}
			acc.metrics.Executions++
			if sr.Status == schema.StepStatusPass {
				acc.metrics.Passes++
			}
			acc.totalDuration += sr.DurationMs
		}

		triggerType := run.TriggerType
		if triggerType == "" {
			triggerType = "manual"
		}
		tacc, ok := triggers[triggerType]
		if !ok {
			tacc = &triggerAccum{}
			triggers[triggerType] = tacc
			triggerOrder = append(triggerOrder, triggerType)
		}
		tacc.fired++
		if run.Status == schema.RunStatusSuccess {
			tacc.converted++
		}
	}

	report := &Report{
		TotalRuns:   len(runs),
		Nodes:       make([]NodeMetrics, 0, len(nodeOrder)),
		Triggers:    make([]TriggerMetrics, 0, len(triggerOrder)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, stepID := range nodeOrder {
		acc := nodes[stepID]
		m := acc.metrics
		if m.Executions > 0 {
			m.SuccessRate = math.Round(float64(m.Passes) / float64(m.Executions) * 100)
			m.AvgDurationMs = acc.totalDuration / int64(m.Executions)
		}
		report.Nodes = append(report.Nodes, m)
	}

	for _, triggerType := range triggerOrder {
		tacc := triggers[triggerType]
		tm := TriggerMetrics{TriggerType: triggerType, Fired: tacc.fired, Converted: tacc.converted}
		if tm.Fired > 0 {
			tm.ConversionRate = math.Round(float64(tm.Converted) / float64(tm.Fired) * 100)
		}
		report.Triggers = append(report.Triggers, tm)
	}

	return report, nil
}

// Query runs an ad-hoc jq expression over the run window. The runs are
// available to the expression as the .runs array.
func (a *Aggregator) Query(ctx context.Context, expression, actorID string, limit int) (any, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}
	runs, err := a.query.ListRuns(ctx, actorID, limit)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list runs: %s", err.Error()).WithCause(err)
	}

	// Round-trip through JSON so the expression sees plain maps and arrays.
	raw, err := json.Marshal(runs)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "encode runs: %s", err.Error()).WithCause(err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "decode runs: %s", err.Error()).WithCause(err)
	}

	return a.jq.Evaluate(ctx, expression, map[string]any{"runs": plain})
}
