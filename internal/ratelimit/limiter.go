// Package ratelimit throttles MCP tool calls with per-tool token buckets.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a token bucket. It starts full, refills continuously at rate
// tokens per second, and never holds more than burst tokens.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rate    float64
	burst   int
	tokens  float64
	last    time.Time
	nowFunc func() time.Time // injectable clock for testing
}

// NewLimiter creates a full bucket with the given refill rate (tokens/sec) and burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiterAt(rate, burst, time.Now)
}

func newLimiterAt(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		rate:    rate,
		burst:   burst,
		tokens:  float64(burst),
		last:    now(),
		nowFunc: now,
	}
}

// Allow takes one token if available.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
		l.tokens = min(l.tokens+l.rate*elapsed, float64(l.burst))
		l.last = now
	}

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Limit describes a per-tool allowance.
type Limit struct {
	PerMinute float64
	Burst     int
}

// DefaultLimits are generous for interactive use. A run is cheap, but each
// one writes a database row.
var DefaultLimits = map[string]Limit{
	"fieldspace_run":     {PerMinute: 30, Burst: 5},
	"fieldspace_sweep":   {PerMinute: 6, Burst: 2},
	"fieldspace_runs":    {PerMinute: 60, Burst: 10},
	"fieldspace_show":    {PerMinute: 60, Burst: 10},
	"fieldspace_table":   {PerMinute: 60, Burst: 10},
	"fieldspace_backup":  {PerMinute: 5, Burst: 2},
	"fieldspace_restore": {PerMinute: 5, Burst: 2},
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates one limiter per entry in limits.
func NewToolLimiters(limits map[string]Limit) ToolLimiters {
	tl := make(ToolLimiters, len(limits))
	for tool, lim := range limits {
		tl[tool] = NewLimiter(lim.PerMinute/60.0, lim.Burst)
	}
	return tl
}

// Check returns an error if the tool is over its limit.
// Tools without a limiter are always allowed.
func (tl ToolLimiters) Check(tool string) error {
	l, ok := tl[tool]
	if !ok {
		return nil
	}
	if !l.Allow() {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
	}
	return nil
}
