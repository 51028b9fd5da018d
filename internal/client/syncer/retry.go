package syncer

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy computes when a failed entry may be sent again. There is no
// attempt limit: an entry stays queued until it succeeds or is rejected.
type RetryPolicy struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:     time.Second,
		MaxDelay:      5 * time.Minute,
		JitterPercent: 20,
	}
}

// Delay returns the wait before attempt number attempt+1, i.e. after attempt
// failures.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	// the cap wraps the jitter so MaxDelay is a hard ceiling
	b := retry.NewExponential(base)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}

	var d time.Duration
	for i := 0; i < min(attempt, p.maxSteps(base)); i++ {
		d, _ = b.Next()
	}
	return d
}

// maxSteps stops the exponential one doubling past MaxDelay, keeping the
// jittered value far from overflow before the cap clamps it.
func (p RetryPolicy) maxSteps(base time.Duration) int {
	if p.MaxDelay <= 0 {
		return 40
	}
	n := 1
	for d := base; d < p.MaxDelay && n < 40; d *= 2 {
		n++
	}
	return n + 1
}
