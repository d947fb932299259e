package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Record is the unit of data routed between steps.
type Record map[string]interface{}

// Reader lazily yields records for a step that acts as a data source.
type Reader interface {
	Read(ctx context.Context) ([]Record, error)
}

// ReaderFunc adapts a function to a Reader.
type ReaderFunc func(ctx context.Context) ([]Record, error)

func (f ReaderFunc) Read(ctx context.Context) ([]Record, error) { return f(ctx) }

// Processor transforms one record; returning (nil, nil) drops it.
type Processor interface {
	Process(ctx context.Context, in Record) (Record, error)
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(ctx context.Context, in Record) (Record, error)

func (f ProcessorFunc) Process(ctx context.Context, in Record) (Record, error) { return f(ctx, in) }

// Writer consumes a batch of records, with possible side effects and buffer
// emission through the step's RoutingContext.
type Writer interface {
	Write(ctx context.Context, batch []Record) error
}

// WriterFunc adapts a function to a Writer.
type WriterFunc func(ctx context.Context, batch []Record) error

func (f WriterFunc) Write(ctx context.Context, batch []Record) error { return f(ctx, batch) }

// Executor is the capability contract every registered node type satisfies.
// createReader/createProcessor/createWriter may return nil when a given
// type has no role for that stage (e.g. a pure sink has no processor).
type Executor interface {
	CreateReader(ctx *StepContext) (Reader, error)
	CreateProcessor(ctx *StepContext) (Processor, error)
	CreateWriter(ctx *StepContext) (Writer, error)
	Validate(ctx *StepContext) error
	SupportsMetrics() bool
	SupportsFailureHandling() bool
}

// RegistryError reports a registry-level failure: unknown type or an
// invalid lookup argument.
type RegistryError struct {
	Kind    string // "unknown_executor" | "argument"
	Message string
}

func (e *RegistryError) Error() string { return e.Message }

func UnknownExecutorError(nodeType string) *RegistryError {
	return &RegistryError{Kind: "unknown_executor", Message: fmt.Sprintf("no executor registered for node type %q", nodeType)}
}

func ArgumentError(message string) *RegistryError {
	return &RegistryError{Kind: "argument", Message: message}
}

// Registry is the process-wide mapping from node-type name to executor
// capability, mirroring internal/executor/actions.Registry's RWMutex-guarded
// map shape but generalized to the reader/processor/writer contract.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry. Callers register built-in
// capabilities explicitly at process init (spec §9: no reflective scanning).
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register associates a node type with its executor. Re-registering an
// existing type overwrites it deterministically (last write wins), matching
// the teacher's actions.Registry.Register semantics.
func (r *Registry) Register(nodeType string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[strings.TrimSpace(nodeType)] = exec
}

// Get resolves a node type to its executor.
func (r *Registry) Get(nodeType string) (Executor, error) {
	trimmed := strings.TrimSpace(nodeType)
	if trimmed == "" {
		return nil, ArgumentError("node type must not be blank")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[trimmed]
	if !ok {
		return nil, UnknownExecutorError(trimmed)
	}
	return exec, nil
}

// Has reports whether a node type is registered.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[strings.TrimSpace(nodeType)]
	return ok
}

// Size returns the number of registered node types.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// RegisteredTypes returns every registered node type name.
func (r *Registry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}

// SelfCheck logs a WARN for every type in usedTypes that has no registry
// entry. Intended to be run at startup against the node types seen in
// recently submitted workflows.
func (r *Registry) SelfCheck(logger *slog.Logger, usedTypes []string) {
	for _, t := range usedTypes {
		if !r.Has(t) {
			logger.Warn("node type used by recent workflows has no registered executor", "node_type", t)
		}
	}
}

// DefaultRegistry is the global executor registry used by cmd/api and
// cmd/worker unless a test substitutes its own.
var DefaultRegistry = NewRegistry()
