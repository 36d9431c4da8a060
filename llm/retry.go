package llm

import "time"

// RetryConfig bounds how hard the client leans on a single endpoint
// before giving up and letting the fallback chain take over.
type RetryConfig struct {
	// MaxAttempts is how many times one endpoint is tried.
	MaxAttempts int

	// BackoffBase is the wait after the first failed attempt.
	BackoffBase time.Duration

	// BackoffMultiplier grows the wait on each further failure.
	BackoffMultiplier float64

	// MaxBackoff caps the wait regardless of attempt count.
	MaxBackoff time.Duration
}

// DefaultRetryConfig is the policy used when the caller supplies none.
// Settlement generation tolerates seconds of delay, so the backoff is
// generous rather than aggressive.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}
