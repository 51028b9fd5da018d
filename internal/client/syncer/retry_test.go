package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 9, want: 256 * time.Second},
		{attempt: 10, want: 5 * time.Minute},
		{attempt: 500, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_JitterStaysInBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	for i := 0; i < 50; i++ {
		d := p.Delay(3)
		assert.GreaterOrEqual(t, d, 3200*time.Millisecond)
		assert.LessOrEqual(t, d, 4800*time.Millisecond)
	}
}

func TestRetryPolicy_JitterNeverExceedsMaxDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	for _, attempt := range []int{9, 10, 12, 64, 1000} {
		for i := 0; i < 50; i++ {
			d := p.Delay(attempt)
			assert.Greater(t, d, time.Duration(0), "attempt %d", attempt)
			assert.LessOrEqual(t, d, p.MaxDelay, "attempt %d", attempt)
		}
	}
}

func TestRetryPolicy_ZeroBaseFallsBack(t *testing.T) {
	assert.Equal(t, time.Second, RetryPolicy{}.Delay(1))
}
