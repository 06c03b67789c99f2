package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToDelegate(t *testing.T) {
	parentCtx := context.Background()
	parentCtx = WithTraceID(parentCtx, "trace-123")
	parentCtx = WithRunID(parentCtx, "run-parent")
	parentCtx = WithCycle(parentCtx, 2)

	childCtx := PropagateToDelegate(parentCtx)

	if GetTraceID(childCtx) != "trace-123" {
		t.Error("Trace ID not propagated")
	}
	if GetRunID(childCtx) != "run-parent" {
		t.Error("Run ID should be kept for delegated calls")
	}
	if GetCycle(childCtx) != 2 {
		t.Error("Cycle not propagated")
	}
	if !IsDelegate(childCtx) {
		t.Error("Delegate flag not set")
	}
	if IsDelegate(parentCtx) {
		t.Error("Parent context must not be marked as delegate")
	}
}

func TestPropagateToDelegateNoTraceID(t *testing.T) {
	childCtx := PropagateToDelegate(context.Background())

	if GetTraceID(childCtx) == "" {
		t.Error("Trace ID not generated when missing")
	}
}

func TestPropagateToLogger(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-456")
	ctx = WithRunID(ctx, "run-789")
	ctx = WithCycle(ctx, 5)
	ctx = WithCommand(ctx, "getTickers")

	var buf bytes.Buffer
	logger := PropagateToLogger(ctx, zerolog.New(&buf))
	logger.Info().Msg("test message")

	output := buf.String()
	for _, want := range []string{
		`"trace_id":"trace-456"`,
		`"run_id":"run-789"`,
		`"cycle":5`,
		`"command":"getTickers"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Log output missing %s: %s", want, output)
		}
	}
	if strings.Contains(output, "delegate") {
		t.Errorf("Log output should not mark delegate: %s", output)
	}
}

func TestLoggerFromContextEmpty(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	if strings.Contains(buf.String(), "run_id") {
		t.Errorf("Unexpected run_id in %s", buf.String())
	}
}

func TestMergeContext(t *testing.T) {
	source := WithCycle(WithRunID(context.Background(), "run-src"), 9)
	target := WithRunID(context.Background(), "run-target")

	merged := MergeContext(target, source)

	if GetRunID(merged) != "run-target" {
		t.Error("Existing run ID must not be overwritten")
	}
	if GetCycle(merged) != 9 {
		t.Error("Cycle not merged")
	}
}

func TestCloneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(WithRunID(context.Background(), "run-c"))
	cancel()

	clone := CloneContext(ctx)

	if clone.Err() != nil {
		t.Error("Clone must not inherit cancellation")
	}
	if GetRunID(clone) != "run-c" {
		t.Error("Run ID not cloned")
	}
}

func TestStartSpan(t *testing.T) {
	ctx := WithCommand(WithRunID(context.Background(), "run-s"), "wait")

	spanCtx, span := StartSpan(ctx, TracerAgent, "agent.cycle")
	EndSpan(span, errors.New("boom"))

	if GetRunID(spanCtx) != "run-s" {
		t.Error("Run ID lost after StartSpan")
	}
}
