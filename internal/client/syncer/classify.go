package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/techtrack/internal/client/client"
	"github.com/dmitrijs2005/techtrack/internal/common"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeTerminal
	// OutcomeCanceled means the pass itself was stopped; the result of the
	// call is unknown.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps the result of one remote call. parent is the pass context:
// when it is done the call was cut short by us, not by the backend. The
// returned error wraps common.ErrRetryableTransport or
// common.ErrTerminalRemote so callers can match the class with errors.Is.
func Classify(parent context.Context, err error) (Outcome, error) {
	switch {
	case err == nil:
		return OutcomeSuccess, nil
	case parent.Err() != nil:
		return OutcomeCanceled, err
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeRetryable, fmt.Errorf("%w: %w", common.ErrRetryableTransport, err)
	case errors.Is(err, client.ErrRejected):
		return OutcomeTerminal, fmt.Errorf("%w: %w", common.ErrTerminalRemote, err)
	default:
		return OutcomeRetryable, fmt.Errorf("%w: %w", common.ErrRetryableTransport, err)
	}
}
