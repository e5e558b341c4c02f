package ratelimiter

import (
	"fmt"
	"time"

	"NoteFlow/backend/go/internal/config"
)

// RateLimiter is the interface for rate limiting.
// It defines a single method, Allow, which returns true if a request is allowed,
// and false otherwise.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

// FromConfig builds a RateLimiter from the middleware configuration.
// Returns (nil, nil) when the limiter is disabled.
func FromConfig(cfg config.RateLimiterConfig) (RateLimiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Algorithm {
	case "tokenBucket":
		return NewTokenBucket(cfg.TokenBucket.Rate, cfg.TokenBucket.Capacity), nil
	case "fixedWindow":
		window, err := time.ParseDuration(cfg.FixedWindow.Window)
		if err != nil {
			return nil, fmt.Errorf("解析限流窗口时长失败: %w", err)
		}
		return NewFixedWindowCounter(cfg.FixedWindow.Limit, window), nil
	default:
		return nil, fmt.Errorf("未知的限流算法: %s", cfg.Algorithm)
	}
}
