package util

import (
	"time"
)

// DefaultMaxBackoffSeconds caps any computed backoff interval regardless of
// attempt count — a misbehaving origin should never push a retry out past
// this ceiling.
const DefaultMaxBackoffSeconds = 30 * time.Second

// ConnectionRetryBackoffMultiplier is the per-failure linear step used by
// CalculateConnectionRetryBackoff.
const ConnectionRetryBackoffMultiplier = 2

// CalculateClientRetryBackoff computes the backoff interval before a client
// pool entry is re-probed after being retired by its circuit breaker.
// Uses exponential multiplier for proper backoff progression.
func CalculateClientRetryBackoff(checkInterval time.Duration, backoffMultiplier int) time.Duration {
	if backoffMultiplier <= 0 {
		return checkInterval
	}

	// Use the provided multiplier directly (already exponential: 1, 2, 4, 8...)
	backoffInterval := checkInterval * time.Duration(backoffMultiplier)

	if backoffInterval > DefaultMaxBackoffSeconds {
		backoffInterval = DefaultMaxBackoffSeconds
	}

	return backoffInterval
}

// CalculateConnectionRetryBackoff computes backoff for transport retry attempts.
// Linear progression: consecutiveFailures * ConnectionRetryBackoffMultiplier seconds, capped at DefaultMaxBackoffSeconds
func CalculateConnectionRetryBackoff(consecutiveFailures int) time.Duration {
	backoffDuration := time.Duration(consecutiveFailures*ConnectionRetryBackoffMultiplier) * time.Second
	if backoffDuration > DefaultMaxBackoffSeconds {
		backoffDuration = DefaultMaxBackoffSeconds
	}
	return backoffDuration
}
