package resilience

import "time"

// Config drives one Executor. Zero values fall back to DefaultConfig.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryAfterMax caps server-requested delays (Retry-After).
	RetryAfterMax time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,
		RetryAfterMax:       10 * time.Second,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.RetryAfterMax <= 0 {
		out.RetryAfterMax = def.RetryAfterMax
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return out
}

// backoff is the delay before retry number attempt (1-based), ignoring any
// server hint.
func (c Config) backoff(attempt int) time.Duration {
	wait := c.RetryInitialBackoff
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * c.RetryMultiplier)
		if wait >= c.RetryMaxBackoff {
			return c.RetryMaxBackoff
		}
	}
	if wait > c.RetryMaxBackoff {
		return c.RetryMaxBackoff
	}
	return wait
}

// delay prefers a server-requested wait when it is longer than the local
// backoff, bounded by RetryAfterMax.
func (c Config) delay(attempt int, retryAfter time.Duration) time.Duration {
	wait := c.backoff(attempt)
	if retryAfter > wait {
		wait = retryAfter
		if wait > c.RetryAfterMax {
			wait = c.RetryAfterMax
		}
	}
	return wait
}
