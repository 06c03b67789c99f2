package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for the agent run ID
	RunIDKey ContextKey = "run_id"
	// CycleKey is the context key for the 1-based cycle number
	CycleKey ContextKey = "cycle"
	// CommandKey is the context key for the command being dispatched
	CommandKey ContextKey = "command"
	// DelegateKey marks contexts of delegated model calls
	DelegateKey ContextKey = "delegate"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID  string
	RunID    string
	Cycle    int
	Command  string
	Delegate bool
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithCycle adds the cycle number to the context
func WithCycle(ctx context.Context, cycle int) context.Context {
	return context.WithValue(ctx, CycleKey, cycle)
}

// WithCommand adds the command name to the context
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, CommandKey, command)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetCycle retrieves the cycle number from the context, 0 if unset
func GetCycle(ctx context.Context) int {
	if cycle, ok := ctx.Value(CycleKey).(int); ok {
		return cycle
	}
	return 0
}

// GetCommand retrieves the command name from the context
func GetCommand(ctx context.Context) string {
	if command, ok := ctx.Value(CommandKey).(string); ok {
		return command
	}
	return ""
}

// IsDelegate reports whether the context belongs to a delegated model call
func IsDelegate(ctx context.Context) bool {
	delegate, _ := ctx.Value(DelegateKey).(bool)
	return delegate
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:  GetTraceID(ctx),
		RunID:    GetRunID(ctx),
		Cycle:    GetCycle(ctx),
		Command:  GetCommand(ctx),
		Delegate: IsDelegate(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.Cycle > 0 {
		ctx = WithCycle(ctx, tc.Cycle)
	}
	if tc.Command != "" {
		ctx = WithCommand(ctx, tc.Command)
	}
	if tc.Delegate {
		ctx = context.WithValue(ctx, DelegateKey, true)
	}
	return ctx
}

// NewRunContext creates a context for one agent run. An empty runID gets a
// fresh one.
func NewRunContext(ctx context.Context, runID string) context.Context {
	if runID == "" {
		runID = NewRunID()
	}
	return WithRunID(ctx, runID)
}
