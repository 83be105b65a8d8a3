package async

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/jobd/errors"
)

// Executor performs the actual work of a job. It is invoked once per
// non-deduplicated submission, outside the queue lock, and may take
// arbitrarily long.
type Executor interface {
	Execute(ctx context.Context, task string, payload json.RawMessage) (json.RawMessage, error)
}

// TaskValidator is implemented by executors that know which tasks they can
// run. Queue.Submit rejects unknown tasks and malformed payloads up front
// when the executor has it.
type TaskValidator interface {
	Supports(task string) bool
	ValidatePayload(task string, payload json.RawMessage) error
}

// PayloadValidator is optionally implemented by a JobHandler to reject a
// payload at submission instead of failing the job later.
type PayloadValidator interface {
	Validate(payload json.RawMessage) error
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, task string, payload json.RawMessage) (json.RawMessage, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, task string, payload json.RawMessage) (json.RawMessage, error) {
	return f(ctx, task, payload)
}

// JobHandler executes one task kind.
// Domain packages implement it and decode their own payload types, so the
// queue stays unaware of what the work is.
type JobHandler interface {
	// Execute runs the task and returns its JSON result.
	// The context is cancelled only when the queue shuts down; a user-level
	// cancel does not interrupt a running handler.
	Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

	// Name returns the task kind this handler serves (e.g. "detect-objects")
	Name() string
}

// HandlerRegistry manages job handlers by task name.
// Safe for concurrent registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for task: %s", name))
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a task, or nil
func (r *HandlerRegistry) Get(task string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[task]
}

// Has checks if a handler is registered for a task
func (r *HandlerRegistry) Has(task string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[task]
	return exists
}

// Names returns all registered task names, sorted
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryExecutor adapts a HandlerRegistry to the Executor interface
type RegistryExecutor struct {
	registry *HandlerRegistry
}

// NewRegistryExecutor creates an executor backed by a handler registry
func NewRegistryExecutor(registry *HandlerRegistry) *RegistryExecutor {
	return &RegistryExecutor{registry: registry}
}

// Execute dispatches to the handler registered for task
func (e *RegistryExecutor) Execute(ctx context.Context, task string, payload json.RawMessage) (json.RawMessage, error) {
	handler := e.registry.Get(task)
	if handler == nil {
		return nil, errors.Newf("no handler registered for task: %s", task)
	}
	return handler.Execute(ctx, payload)
}

// Supports implements TaskValidator
func (e *RegistryExecutor) Supports(task string) bool {
	return e.registry.Has(task)
}

// ValidatePayload implements TaskValidator
func (e *RegistryExecutor) ValidatePayload(task string, payload json.RawMessage) error {
	if v, ok := e.registry.Get(task).(PayloadValidator); ok {
		return v.Validate(payload)
	}
	return nil
}

// Registry returns the underlying registry
func (e *RegistryExecutor) Registry() *HandlerRegistry {
	return e.registry
}
