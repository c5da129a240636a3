package syncengine

import (
	"context"
	stderrors "errors"

	derrors "github.com/riddopic/distcloud/internal/errors"
)

// outcome classifies the result of a single sync handler invocation.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTimeout
	outcomeFailedRetry
	outcomeFailed
)

// classify maps a handler error to a retry outcome per §4.4/§7. Drivers
// and handlers are expected to wrap one of the three sentinel sync
// errors. A context deadline bubbling up from the driver's session
// timeout is treated as a timeout, and any other unrecognized error as
// retryable, matching the source's conservative
// "assume transient unless told otherwise" posture.
func classify(err error) outcome {
	if err == nil {
		return outcomeSuccess
	}
	switch {
	case stderrors.Is(err, derrors.SyncRequestTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case stderrors.Is(err, derrors.SyncRequestFailed):
		return outcomeFailed
	case stderrors.Is(err, derrors.SyncRequestFailedRetry):
		return outcomeFailedRetry
	default:
		return outcomeFailedRetry
	}
}
