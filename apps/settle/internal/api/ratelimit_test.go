package api

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, 1, responder{logger: zap.NewNop()})
	limiter.now = func() time.Time { return current }
	limiter.lastSweep = current

	for i := 0; i < 100; i++ {
		limiter.limiter(fmt.Sprintf("198.51.100.%d", i))
	}
	if len(limiter.limiters) != 100 {
		t.Fatalf("Expected 100 tracked clients, got %d", len(limiter.limiters))
	}

	current = current.Add(limiterIdleTTL / 2)
	active := limiter.limiter("198.51.100.7")

	current = current.Add(limiterIdleTTL / 2)
	if got := limiter.limiter("203.0.113.1"); got == nil {
		t.Fatal("Expected a limiter for a new client")
	}
	if len(limiter.limiters) != 2 {
		t.Errorf("Expected idle clients swept leaving 2, got %d", len(limiter.limiters))
	}
	if limiter.limiter("198.51.100.7") != active {
		t.Error("Expected the recently seen client to keep its bucket")
	}
}
