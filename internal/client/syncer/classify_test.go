package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/techtrack/internal/client/client"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
		is   error
	}{
		{name: "success", err: nil, want: OutcomeSuccess},
		{name: "network", err: fmt.Errorf("%w: dial tcp: connection refused", client.ErrUnavailable), want: OutcomeRetryable, is: common.ErrRetryableTransport},
		{name: "timeout", err: fmt.Errorf("request: %w", context.DeadlineExceeded), want: OutcomeRetryable, is: common.ErrRetryableTransport},
		{name: "server error", err: &client.StatusError{Code: http.StatusBadGateway}, want: OutcomeRetryable, is: common.ErrRetryableTransport},
		{name: "throttled", err: &client.StatusError{Code: http.StatusTooManyRequests}, want: OutcomeRetryable, is: common.ErrRetryableTransport},
		{name: "unauthorized", err: &client.StatusError{Code: http.StatusUnauthorized}, want: OutcomeRetryable, is: common.ErrRetryableTransport},
		{name: "expired token", err: fmt.Errorf("%w: %w", client.ErrUnauthorized, common.ErrTokenExpired), want: OutcomeRetryable, is: common.ErrTokenExpired},
		{name: "bad response", err: client.ErrInvalidResponse, want: OutcomeRetryable, is: client.ErrInvalidResponse},
		{name: "validation", err: &client.StatusError{Code: http.StatusUnprocessableEntity}, want: OutcomeTerminal, is: common.ErrTerminalRemote},
		{name: "not found", err: &client.StatusError{Code: http.StatusNotFound}, want: OutcomeTerminal, is: client.ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(context.Background(), tt.err)
			assert.Equal(t, tt.want, got)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.err == nil {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassify_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := Classify(ctx, context.Canceled)
	assert.Equal(t, OutcomeCanceled, got)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, common.ErrRetryableTransport))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "terminal", OutcomeTerminal.String())
	assert.Equal(t, "unknown", Outcome(42).String())
	assert.Equal(t, "in flight", StateInFlight.String())
}
