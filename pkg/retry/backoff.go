package retry

import (
	"math"
	"time"
)

// Constant waits d before every retry.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}

// Linear waits attempt*step before each retry.
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Exponential waits initial before the first retry and multiplies the delay
// by multiplier for each subsequent one, capped at max. With max 0 the
// delay saturates at the largest time.Duration.
func Exponential(initial time.Duration, multiplier float64, max time.Duration) Backoff {
	if multiplier < 1 {
		multiplier = 1
	}
	return func(attempt int) time.Duration {
		delay := float64(initial)
		for i := 1; i < attempt; i++ {
			delay *= multiplier
			if max > 0 && delay > float64(max) {
				return max
			}
			if delay >= math.MaxInt64 {
				return time.Duration(math.MaxInt64)
			}
		}
		d := time.Duration(delay)
		if max > 0 && d > max {
			return max
		}
		return d
	}
}
