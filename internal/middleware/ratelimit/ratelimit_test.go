package ratelimit

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestLimiter(maxPerMinute int) *RateLimiter {
	rl := New(Config{
		MaxRequestsPerMinute: maxPerMinute,
		WindowDuration:       time.Minute,
		LearningCost:         5,
		Logger:               zap.NewNop(),
	})
	rl.Stop()
	return rl
}

func TestAllowExhaustsBucket(t *testing.T) {
	rl := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		if !rl.allow("caller", 1) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("caller", 1) {
		t.Fatal("request beyond the budget should be rejected")
	}
}

func TestAllowIsolatesCallers(t *testing.T) {
	rl := newTestLimiter(1)

	if !rl.allow("alice", 1) {
		t.Fatal("first caller should be allowed")
	}
	if !rl.allow("bob", 1) {
		t.Fatal("second caller has an independent bucket")
	}
	if rl.allow("alice", 1) {
		t.Fatal("first caller is out of budget")
	}
}

func TestLearningCostDrainsFaster(t *testing.T) {
	rl := newTestLimiter(10)

	// Two learning triggers at cost 5 exhaust the whole budget.
	if !rl.allow("caller", 5) || !rl.allow("caller", 5) {
		t.Fatal("expected two learning triggers to be allowed")
	}
	if rl.allow("caller", 1) {
		t.Fatal("expected budget to be exhausted")
	}
}

func TestCostByPath(t *testing.T) {
	rl := newTestLimiter(10)

	if got := rl.cost("/api/v1/feedback", "POST"); got != 1 {
		t.Fatalf("feedback cost = %d, want 1", got)
	}
	if got := rl.cost("/api/v1/learning/trigger", "POST"); got != 5 {
		t.Fatalf("trigger cost = %d, want 5", got)
	}
	if got := rl.cost("/api/v1/learning/prune", "POST"); got != 5 {
		t.Fatalf("prune cost = %d, want 5", got)
	}
	if got := rl.cost("/api/v1/learning/stats", "GET"); got != 1 {
		t.Fatalf("stats cost = %d, want 1", got)
	}
}
