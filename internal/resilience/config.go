package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Non-positive
// values keep the defaults.
func FromRetryConfig(maxAttempts int, backoffBaseSecs, rateLimitBaseSecs, maxBackoffSecs float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if backoffBaseSecs > 0 {
		cfg.BackoffBase = seconds(backoffBaseSecs)
	}
	if rateLimitBaseSecs > 0 {
		cfg.RateLimitBase = seconds(rateLimitBaseSecs)
	}
	if maxBackoffSecs > 0 {
		cfg.MaxBackoff = seconds(maxBackoffSecs)
	}
	return cfg
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
