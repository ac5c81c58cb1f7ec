package expressions

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"github.com/cadencehq/cadence/pkg/schema"
)

// Engine evaluates condition expressions against a lead environment.
// Two implementations: Expr (default) and CEL. A third, GoJQ, serves
// nested-field selection and analytics queries rather than conditions.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, env map[string]any) (any, error)
}

// Engines bundles the condition engines behind a single lookup.
type Engines struct {
	expr *ExprEngine
	cel  *CELEngine
}

// NewEngines builds the engine set. CEL environment construction can fail;
// in that case only the expr engine is available.
func NewEngines() *Engines {
	celEngine, _ := NewCELEngine()
	return &Engines{
		expr: NewExprEngine(),
		cel:  celEngine,
	}
}

// ForName returns the engine registered under the given name.
// The empty name selects the expr engine.
func (e *Engines) ForName(name string) (Engine, error) {
	switch name {
	case "", "expr":
		return e.expr, nil
	case "cel":
		if e.cel == nil {
			return nil, schema.NewError(schema.ErrCodeExpression, "cel engine unavailable")
		}
		return e.cel, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExpression, "unknown expression engine %q", name)
	}
}

// EvalBool evaluates an expression and coerces the result to a boolean.
// Non-boolean results follow truthiness: non-zero numbers and non-empty
// strings are true.
func (e *Engines) EvalBool(ctx context.Context, engineName, expression string, env map[string]any) (bool, error) {
	engine, err := e.ForName(engineName)
	if err != nil {
		return false, err
	}
	out, err := engine.Evaluate(ctx, expression, env)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// Compile checks that an expression parses under the named engine without
// evaluating it. Used by workflow validation.
func (e *Engines) Compile(engineName, expression string) error {
	switch engineName {
	case "", "expr":
		return e.expr.Compile(expression)
	case "cel":
		if e.cel == nil {
			return schema.NewError(schema.ErrCodeExpression, "cel engine unavailable")
		}
		return e.cel.Compile(expression)
	default:
		return schema.NewErrorf(schema.ErrCodeExpression, "unknown expression engine %q", engineName)
	}
}

// Truthy converts an arbitrary evaluation result to a boolean.
func Truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		return val != ""
	case nil:
		return false
	default:
		return true
	}
}

// ToNumber coerces a value to float64 for gt/lt comparisons. Non-numeric
// values coerce to 0, keeping comparisons NaN-safe.
func ToNumber(v any) float64 {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) {
			return 0
		}
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || math.IsNaN(f) {
			return 0
		}
		return f
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return 0
	}
}
