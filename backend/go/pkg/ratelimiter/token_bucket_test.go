package ratelimiter

import (
	"testing"
	"time"

	"NoteFlow/backend/go/internal/config"
)

func TestTokenBucketAllowsBurstUpToCapacity(t *testing.T) {
	tb := NewTokenBucket(0.0001, 3)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d within capacity should be allowed", i+1)
		}
	}
	if tb.Allow() {
		t.Error("request beyond capacity should be rejected")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	// 100 tokens/second so a short sleep is enough to refill one token.
	tb := NewTokenBucket(100, 1)

	if !tb.Allow() {
		t.Fatal("first request should be allowed")
	}
	if tb.Allow() {
		t.Fatal("bucket should be empty immediately after")
	}

	time.Sleep(50 * time.Millisecond)
	if !tb.Allow() {
		t.Error("bucket should have refilled after waiting")
	}
}

func TestFixedWindowCounterResets(t *testing.T) {
	fwc := NewFixedWindowCounter(2, 30*time.Millisecond)

	if !fwc.Allow() || !fwc.Allow() {
		t.Fatal("requests within the limit should be allowed")
	}
	if fwc.Allow() {
		t.Fatal("request over the limit should be rejected")
	}

	time.Sleep(40 * time.Millisecond)
	if !fwc.Allow() {
		t.Error("a new window should allow requests again")
	}
}

func TestFromConfig(t *testing.T) {
	limiter, err := FromConfig(config.RateLimiterConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter != nil {
		t.Error("disabled config should yield a nil limiter")
	}

	limiter, err = FromConfig(config.RateLimiterConfig{
		Enabled:     true,
		Algorithm:   "tokenBucket",
		TokenBucket: config.TokenBucketConfig{Rate: 10, Capacity: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := limiter.(*TokenBucket); !ok {
		t.Errorf("expected a TokenBucket, got %T", limiter)
	}

	if _, err := FromConfig(config.RateLimiterConfig{Enabled: true, Algorithm: "nope"}); err == nil {
		t.Error("unknown algorithm should fail")
	}
}
