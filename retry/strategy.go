// Package retry provides exponential backoff strategies for hub publishes
// and client reconnection. It implements configurable retry logic with an
// abandon threshold for permanent publish failures.
package retry

import (
	"fmt"
	"math"
	"time"
)

// Strategy defines the retry behavior for failed operations.
// It implements exponential backoff with configurable parameters.
//
// The retry schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with the publish defaults (30s base, 2.0 exponential, 30m max):
//
//	Attempt 1: 30s
//	Attempt 2: 1m
//	Attempt 3: 2m
//	Attempt 4: 4m
//	Attempt 5: 8m (→ abandoned)
type Strategy struct {
	MaxAttempts      int           // Maximum attempts before giving up
	BaseDelay        time.Duration // Initial delay (first attempt)
	MaxDelay         time.Duration // Maximum delay cap
	ExponentialBase  float64       // Backoff multiplier (e.g., 2.0 for doubling)
	AbandonThreshold int           // Record a delivery failure after this many attempts
}

// DefaultStrategy returns the default strategy for hub publish retries.
// Configuration: 10 max attempts, 30s→30m exponential backoff, abandon after 5.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:      10,
		BaseDelay:        30 * time.Second,
		MaxDelay:         30 * time.Minute,
		ExponentialBase:  2.0,
		AbandonThreshold: 5,
	}
}

// ConnectStrategy returns the default strategy for subscription-client
// reconnection backoff. Short base delay with a low cap: reconnects should be
// quick but must not hammer the hub during an outage. MaxAttempts bounds how
// long a client keeps retrying before surfacing the connection loss.
func ConnectStrategy() Strategy {
	return Strategy{
		MaxAttempts:      20,
		BaseDelay:        500 * time.Millisecond,
		MaxDelay:         30 * time.Second,
		ExponentialBase:  2.0,
		AbandonThreshold: 20,
	}
}

// CalculateRetryDelay calculates the delay for a given attempt using
// exponential backoff.
// Formula: delay = min(BaseDelay * ExponentialBase^attemptNumber, MaxDelay)
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldAbandon determines if an operation should stop being retried and be
// recorded as a permanent failure.
// Returns true when the attempt count reaches or exceeds the threshold.
func (s Strategy) ShouldAbandon(attemptCount int) bool {
	return attemptCount >= s.AbandonThreshold
}

// IsRetryable checks if another attempt is allowed.
// Returns true if the attempt count is below the maximum attempts limit.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
// Useful for debugging and displaying retry behavior to operators.
func (s Strategy) GetRetrySchedule() string {
	schedule := "Retry Schedule:\n"
	for i := 1; i <= s.MaxAttempts; i++ {
		delay := s.CalculateRetryDelay(i)
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i, delay)
		if i == s.AbandonThreshold {
			schedule += "  → Abandon\n"
		}
	}
	return schedule
}
