// Package backoff provides delay strategies for retry and polling loops.
package backoff

import (
	"math"
	"time"
)

// Strategy returns the delay to wait before the given attempt.
// Attempt 1 is the first retry.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant waits the same duration before every attempt.
type Constant time.Duration

// Delay implements Strategy.
func (c Constant) Delay(int) time.Duration {
	return time.Duration(c)
}

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
}

// Delay implements Strategy using Exponential.
func (c Config) Delay(attempt int) time.Duration {
	return Exponential(attempt, &c)
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 100 * time.Millisecond
	maxBackoff := 5 * time.Second
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
	}

	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxBackoff) {
		delay = float64(maxBackoff)
	}
	return time.Duration(delay)
}

// Parse returns the named strategy. "exponential" grows from interval up to
// maxDelay; anything else is a constant interval.
func Parse(name string, interval, maxDelay time.Duration) Strategy {
	if name == "exponential" {
		return Config{Initial: interval, Max: maxDelay}
	}
	return Constant(interval)
}
