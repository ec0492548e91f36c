package saga

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultBaseDelay is the wait before the first retry when a policy does not set one.
const DefaultBaseDelay = 3 * time.Second

// RetryPolicy controls how often a step is re-attempted and how long to wait in between.
// Attempts counts retries, so a policy with Attempts N runs the step at most N+1 times.
// The wait before retry k (0-based) is BaseDelay * Scale^k.
type RetryPolicy struct {
	Attempts  int           `json:"attempts" yaml:"attempts"`
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
	Scale     float64       `json:"scale" yaml:"scale"`
}

// DefaultRetryPolicy never retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 0, BaseDelay: DefaultBaseDelay, Scale: 1.0}
}

// Retries expands a bare retry count into a policy with default timing.
func Retries(n int) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Attempts = n
	return p
}

// Validate rejects negative attempts, delays and scales.
func (p RetryPolicy) Validate() error {
	if p.Attempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("retry base delay cannot be negative")
	}
	if p.Scale < 0 {
		return fmt.Errorf("retry scale cannot be negative")
	}
	return nil
}

// Delay returns the wait before retry number attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Scale, float64(attempt))
	if d > math.MaxInt64 || math.IsInf(d, 0) || math.IsNaN(d) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// backoff adapts the policy to go-retry. The sequence stops after Attempts retries.
func (p RetryPolicy) backoff() retry.Backoff {
	var (
		mu      sync.Mutex
		attempt int
	)
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		mu.Lock()
		defer mu.Unlock()
		d := p.Delay(attempt)
		attempt++
		return d, false
	})
	return retry.WithMaxRetries(uint64(p.Attempts), next)
}
