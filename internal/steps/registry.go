package steps

import (
	"sync"

	"github.com/cadencehq/cadence/pkg/schema"
)

// Registry is the thread-safe lookup table of step handlers, keyed by step
// kind. Built once at startup; the run controller resolves handlers through
// it instead of switching on kind strings.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.StepKind]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.StepKind]Handler),
	}
}

// DefaultRegistry returns a Registry with all four built-in handlers
// registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, h := range []Handler{
		NewTriggerHandler(),
		NewConditionHandler(),
		NewWaitHandler(),
		NewActionHandler(),
	} {
		// Built-in kinds never collide.
		_ = r.Register(h)
	}
	return r
}

// Register adds a handler. Returns an error on nil handlers or duplicate kinds.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	kind := h.Kind()
	if kind == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for kind %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Get retrieves the handler for a step kind.
func (r *Registry) Get(kind schema.StepKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no handler for step kind %q", kind)
	}
	return h, nil
}

// Has checks whether a handler is registered for the kind.
func (r *Registry) Has(kind schema.StepKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}
