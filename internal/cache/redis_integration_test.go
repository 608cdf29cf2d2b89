//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/aldikf/airfare-price-service/internal/circuitbreaker"
)

// Requires redis on localhost:6379: go test -tags=integration ./internal/cache/
func TestRedisCache_GetSet_Integration(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.Config{Name: "redis"})
	c := NewRedisCache("localhost:6379", "", 0, 500*time.Millisecond, b)
	defer c.Close()

	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	val := testPrediction(1250000)
	val.Cached = true
	if err := c.Set(ctx, "integration:CGK-DPS", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "integration:CGK-DPS")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if got.Estimate != val.Estimate || got.Cached {
		t.Errorf("Get() = %+v, want estimate %v without cached flag", got, val.Estimate)
	}

	if _, ok, err := c.Get(ctx, "integration:missing"); err != nil || ok {
		t.Errorf("Get(missing) = ok %v, err %v; want miss", ok, err)
	}
}
