package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cadencehq/cadence/internal/analytics"
	"github.com/cadencehq/cadence/internal/engine"
	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/internal/store"
	"github.com/cadencehq/cadence/internal/validation"
)

// CadenceServerDeps holds the dependencies for creating a CadenceServer.
type CadenceServerDeps struct {
	Store     store.Store
	Runner    *engine.Runner
	Validator validation.Validator
	Analytics *analytics.Aggregator

	// RunContext is the collaborator template for batch runs. The per-call
	// actor ID is stamped onto a copy; the template is never mutated.
	RunContext *steps.RunContext

	// BatchTimeout bounds one cadence.run invocation. Zero selects
	// DefaultBatchTimeout.
	BatchTimeout time.Duration

	Logger *slog.Logger
}

// DefaultBatchTimeout is the per-batch execution deadline applied by the run
// tool when the deployment does not configure one.
const DefaultBatchTimeout = 30 * time.Second

// CadenceServer wraps an MCP server with cadence-specific tool handlers.
type CadenceServer struct {
	store        store.Store
	runner       *engine.Runner
	validator    validation.Validator
	analytics    *analytics.Aggregator
	runCtx       *steps.RunContext
	batchTimeout time.Duration
	logger       *slog.Logger
	mcpServer    *server.MCPServer
}

// NewCadenceServer creates a new CadenceServer with all 4 tools registered.
func NewCadenceServer(deps CadenceServerDeps) *CadenceServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	runCtx := deps.RunContext
	if runCtx == nil {
		runCtx = &steps.RunContext{}
	}
	batchTimeout := deps.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = DefaultBatchTimeout
	}

	s := &CadenceServer{
		store:        deps.Store,
		runner:       deps.Runner,
		validator:    deps.Validator,
		analytics:    deps.Analytics,
		runCtx:       runCtx,
		batchTimeout: batchTimeout,
		logger:       logger,
	}

	mcpSrv := server.NewMCPServer(
		"cadence",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Cadence is a marketing workflow execution engine. Use cadence.define to register or update a workflow, cadence.run to execute a workflow against a lead batch, cadence.query to list workflows/runs/audit entries, and cadence.analytics for per-step and per-trigger performance metrics or ad-hoc jq queries over run history."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *CadenceServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CadenceServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 4 registered MCP tools as ServerTool entries.
func (s *CadenceServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: analyticsTool(), Handler: s.handleAnalytics},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("cadence.define",
		mcp.WithDescription("Register or update a workflow definition. The definition is validated before saving; validation errors block the save, warnings are returned alongside the result"),
		mcp.WithObject("workflow", mcp.Required(), mcp.Description("Workflow definition object (name, status, steps)")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the user or agent defining the workflow")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("cadence.run",
		mcp.WithDescription("Execute a workflow against a batch of leads selected by filter"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to execute")),
		mcp.WithString("actor_id", mcp.Required(), mcp.Description("ID of the user or agent initiating the run")),
		mcp.WithObject("leads", mcp.Description("Lead filter criteria (status, min_score, limit)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("cadence.query",
		mcp.WithDescription("Query workflows, runs, or audit entries"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "runs", "audit"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (status, actor_id, workflow_id, action, since, limit)")),
	)
}

func analyticsTool() mcp.Tool {
	return mcp.NewTool("cadence.analytics",
		mcp.WithDescription("Aggregate per-step and per-trigger performance over recent runs, or evaluate an ad-hoc jq expression against the run history (available as .runs)"),
		mcp.WithString("actor_id", mcp.Description("Restrict the run window to one actor")),
		mcp.WithString("expression", mcp.Description("Optional jq expression, e.g. '[.runs[] | select(.status == \"failed\")] | length'")),
		mcp.WithNumber("limit", mcp.Description("Run window size (default 200)")),
	)
}
