package task

import (
	"math"
	"math/rand"
)

// Default retry scheduling parameters, matching the worker configuration
// defaults.
const (
	DefaultRetryBaseSeconds  = 10
	DefaultRetryMaxSeconds   = 21600 // 6 hours
	DefaultRetryJitterFactor = 0.3
	retryBackoffFactor       = 4
)

// CalculateRetryDelay computes the delay in whole seconds before the next
// attempt: baseSeconds * 4^(attempts-1), capped at maxSeconds, then
// perturbed by a uniform +/- jitterFactor fraction. The un-jittered mean
// is monotonically non-decreasing in attempts, and the result never
// exceeds maxSeconds * (1 + jitterFactor).
func CalculateRetryDelay(attempts int, baseSeconds, maxSeconds int64, jitterFactor float64) int64 {
	if attempts < 1 {
		attempts = 1
	}
	if baseSeconds < 1 {
		baseSeconds = DefaultRetryBaseSeconds
	}
	if maxSeconds < baseSeconds {
		maxSeconds = baseSeconds
	}

	delay := float64(baseSeconds) * math.Pow(retryBackoffFactor, float64(attempts-1))
	if delay > float64(maxSeconds) {
		delay = float64(maxSeconds)
	}

	if jitterFactor > 0 {
		// Uniform in [-jitterFactor, +jitterFactor].
		jitter := (rand.Float64()*2 - 1) * jitterFactor
		delay *= 1 + jitter
	}

	if delay < 0 {
		return 0
	}

	return int64(math.Floor(delay))
}
