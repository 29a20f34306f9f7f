package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := UserID(ctx); ok {
		t.Fatalf("expected no user id on empty context")
	}

	ctx = WithTraceID(ctx, "t1")
	if got, ok := TraceID(ctx); !ok || got != "t1" {
		t.Fatalf("TraceID mismatch: %v %v", got, ok)
	}

	ctx = WithUserID(ctx, "auth0|user")
	if got, ok := UserID(ctx); !ok || got != "auth0|user" {
		t.Fatalf("UserID mismatch: %v %v", got, ok)
	}

	ctx = WithPlanID(ctx, "plan-1")
	if got, ok := PlanID(ctx); !ok || got != "plan-1" {
		t.Fatalf("PlanID mismatch: %v %v", got, ok)
	}

	ctx = WithUserID(ctx, "")
	if _, ok := UserID(ctx); ok {
		t.Fatalf("empty user id must report not-ok")
	}
}
