package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
	if got := parseAddrs(""); got != nil {
		t.Errorf("parseAddrs(\"\") = %v, want nil", got)
	}
}

func TestMemcachedKey(t *testing.T) {
	got := memcachedKey("linear@1:Garuda Indonesia\n")
	if !strings.HasPrefix(got, keyPrefix) {
		t.Errorf("memcachedKey() = %q, want %q prefix", got, keyPrefix)
	}
	if strings.ContainsAny(got, " \n") {
		t.Errorf("memcachedKey() = %q contains whitespace", got)
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{10 * time.Minute, 600},
		{500 * time.Millisecond, 1},
		{0, 1},
		{60 * 24 * time.Hour, maxRelativeExp},
	}
	for _, tc := range tests {
		if got := expirationSeconds(tc.ttl); got != tc.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tc.ttl, got, tc.want)
		}
	}
}

// openBreaker rejects every call, as an open circuit would.
type openBreaker struct{ calls int }

var errBreakerOpen = errors.New("open")

func (b *openBreaker) Do(ctx context.Context, fn func() error) error {
	b.calls++
	return errBreakerOpen
}

// TestMemcachedCache_BreakerShortCircuits verifies an open breaker fails fast without dialing.
func TestMemcachedCache_BreakerShortCircuits(t *testing.T) {
	b := &openBreaker{}
	c := NewMemcachedCache("127.0.0.1:1", 10*time.Millisecond, 1, b)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "k"); ok || !errors.Is(err, errBreakerOpen) {
		t.Errorf("Get() = ok %v, err %v; want breaker error", ok, err)
	}
	if err := c.Set(ctx, "k", testPrediction(1), time.Minute); !errors.Is(err, errBreakerOpen) {
		t.Errorf("Set() error = %v, want breaker error", err)
	}
	if err := c.Ping(ctx); !errors.Is(err, errBreakerOpen) {
		t.Errorf("Ping() error = %v, want breaker error", err)
	}
	if b.calls != 3 {
		t.Errorf("breaker calls = %d, want 3", b.calls)
	}
}

func TestMemcachedCache_CancelledContext(t *testing.T) {
	c := NewMemcachedCache("127.0.0.1:1", 10*time.Millisecond, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}
