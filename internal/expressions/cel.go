package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/cadencehq/cadence/pkg/schema"
)

// leadVars are the top-level variables exposed to CEL conditions.
var leadVars = []string{
	"id", "name", "first_name", "company", "email",
	"score", "status", "ai_insight", "knowledge",
}

// CELEngine evaluates condition expressions with Google's Common Expression
// Language, for teams that prefer CEL's type discipline over expr.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine whose environment exposes the lead
// fields as top-level variables: score and knowledge as dyn, the string
// fields as string.
func NewCELEngine() (*CELEngine, error) {
	opts := make([]cel.EnvOption, 0, len(leadVars))
	for _, v := range leadVars {
		opts = append(opts, cel.Variable(v, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it against the lead environment.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, env map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(activation(env))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

// activation fills missing lead variables with zero values so CEL does not
// raise runtime no-such-attribute errors on sparse leads.
func activation(env map[string]any) map[string]any {
	act := make(map[string]any, len(leadVars))
	for _, v := range leadVars {
		if val, ok := env[v]; ok && val != nil {
			act[v] = val
			continue
		}
		if v == "knowledge" {
			act[v] = map[string]any{}
		} else if v == "score" {
			act[v] = 0.0
		} else {
			act[v] = ""
		}
	}
	return act
}

// Compile checks an expression without evaluating it. The compiled program
// is cached for later evaluation.
func (e *CELEngine) Compile(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeExpression, "empty CEL expression")
	}
	_, err := e.getOrCompile(expression)
	return err
}

var _ Engine = (*CELEngine)(nil)
