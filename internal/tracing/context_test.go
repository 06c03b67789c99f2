package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	if id1 == "" {
		t.Error("NewRunID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewRunID returned duplicate IDs")
	}
}

func TestWithTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "test-trace-id")

	if got := GetTraceID(ctx); got != "test-trace-id" {
		t.Errorf("Expected trace ID test-trace-id, got %s", got)
	}
}

func TestWithRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "test-run-id")

	if got := GetRunID(ctx); got != "test-run-id" {
		t.Errorf("Expected run ID test-run-id, got %s", got)
	}
}

func TestWithCycle(t *testing.T) {
	ctx := context.Background()
	if got := GetCycle(ctx); got != 0 {
		t.Errorf("Expected cycle 0 on empty context, got %d", got)
	}

	ctx = WithCycle(ctx, 7)
	if got := GetCycle(ctx); got != 7 {
		t.Errorf("Expected cycle 7, got %d", got)
	}
}

func TestWithCommand(t *testing.T) {
	ctx := WithCommand(context.Background(), "sendOrder")

	if got := GetCommand(ctx); got != "sendOrder" {
		t.Errorf("Expected command sendOrder, got %s", got)
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithCycle(ctx, 3)
	ctx = WithCommand(ctx, "wait")

	tc := FromContext(ctx)

	if tc.TraceID != "trace-1" {
		t.Errorf("Expected trace ID trace-1, got %s", tc.TraceID)
	}
	if tc.RunID != "run-1" {
		t.Errorf("Expected run ID run-1, got %s", tc.RunID)
	}
	if tc.Cycle != 3 {
		t.Errorf("Expected cycle 3, got %d", tc.Cycle)
	}
	if tc.Command != "wait" {
		t.Errorf("Expected command wait, got %s", tc.Command)
	}
	if tc.Delegate {
		t.Error("Expected non-delegate context")
	}
}

func TestNewContext(t *testing.T) {
	tc := &TraceContext{
		TraceID:  "trace-2",
		RunID:    "run-2",
		Cycle:    4,
		Command:  "callAI",
		Delegate: true,
	}

	ctx := NewContext(context.Background(), tc)
	got := FromContext(ctx)

	if *got != *tc {
		t.Errorf("Expected %+v, got %+v", *tc, *got)
	}
}

func TestNewContextSkipsEmptyFields(t *testing.T) {
	ctx := NewContext(context.Background(), &TraceContext{RunID: "run-3"})

	if GetTraceID(ctx) != "" {
		t.Error("Trace ID should be empty")
	}
	if GetCycle(ctx) != 0 {
		t.Error("Cycle should be zero")
	}
	if GetRunID(ctx) != "run-3" {
		t.Error("Run ID not set")
	}
}

func TestNewRunContext(t *testing.T) {
	ctx := NewRunContext(context.Background(), "")
	if GetRunID(ctx) == "" {
		t.Error("Run ID not generated")
	}

	ctx = NewRunContext(context.Background(), "fixed")
	if GetRunID(ctx) != "fixed" {
		t.Errorf("Expected run ID fixed, got %s", GetRunID(ctx))
	}
}
