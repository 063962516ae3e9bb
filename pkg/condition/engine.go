package condition

import (
	"fmt"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Engine evaluates computed-property expressions against a record document.
// An expression is a tengo script that reads the injected "record" map and
// assigns its result to "value", e.g.:
//
//	value := record.first_name + " " + record.last_name
//
// Compiled scripts are cached per expression and cloned per evaluation, so a
// single Engine is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	compiled map[string]*tengo.Compiled
}

func NewEngine() *Engine {
	return &Engine{compiled: make(map[string]*tengo.Compiled)}
}

// Evaluate runs the expression with the given record bound and returns the
// resulting "value" variable.
func (e *Engine) Evaluate(expression string, record map[string]interface{}) (interface{}, error) {
	base, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	run := base.Clone()
	if err := run.Set("record", Normalize(record)); err != nil {
		return nil, fmt.Errorf("failed to bind record: %w", err)
	}
	if err := run.Run(); err != nil {
		return nil, fmt.Errorf("failed to run expression: %w", err)
	}

	// Get never returns nil; an unassigned name comes back undefined
	v := run.Get("value")
	if v.IsUndefined() {
		return nil, fmt.Errorf("expression did not assign a value")
	}
	return v.Value(), nil
}

func (e *Engine) compile(expression string) (*tengo.Compiled, error) {
	e.mu.RLock()
	c, ok := e.compiled[expression]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}

	script := tengo.NewScript([]byte(expression))
	script.SetImports(stdlib.GetModuleMap("math", "text", "times"))
	// Placeholder binding so the compiled script has a "record" slot
	if err := script.Add("record", map[string]interface{}{}); err != nil {
		return nil, err
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}

	e.mu.Lock()
	e.compiled[expression] = compiled
	e.mu.Unlock()

	return compiled, nil
}

// Normalize converts bson-specific values into types tengo understands.
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time()
	case primitive.Decimal128:
		return val.String()
	case primitive.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case primitive.M:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case time.Time:
		return val
	default:
		return v
	}
}
