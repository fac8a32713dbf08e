package rabbitmq

import (
	stderrors "errors"
	"fmt"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// Action is what the consumer does with a delivery after its handler returns.
type Action int

const (
	// ActionAck acknowledges the delivery.
	ActionAck Action = iota
	// ActionRetry republishes a copy with an incremented retry count, then acks.
	ActionRetry
	// ActionRequeue nacks with requeue.
	ActionRequeue
	// ActionReject nacks without requeue, routing to the dead-letter queue.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionRetry:
		return "retry"
	case ActionRequeue:
		return "requeue"
	case ActionReject:
		return "reject"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

type retryError struct{ err error }

func (e *retryError) Error() string { return e.err.Error() }
func (e *retryError) Unwrap() error { return e.err }

type dropError struct{ err error }

func (e *dropError) Error() string { return e.err.Error() }
func (e *dropError) Unwrap() error { return e.err }

// Retry marks err as transient: the message is redelivered until the
// retry budget is spent.
func Retry(err error) error {
	if err == nil {
		return nil
	}
	return &retryError{err: err}
}

// Drop marks err as terminal for the message: it is acked and logged.
func Drop(err error) error {
	if err == nil {
		return nil
	}
	return &dropError{err: err}
}

// IsRetryable reports whether err carries the Retry marker.
func IsRetryable(err error) bool {
	var r *retryError
	return stderrors.As(err, &r)
}

// Decide maps a handler result to an Action. Rules, first match wins:
// nil acks; Drop or an unsupported file type acks; an unavailable broker
// requeues; Retry within budget retries; anything else is rejected.
func Decide(err error, retryCount, maxRetries int) Action {
	if err == nil {
		return ActionAck
	}

	var drop *dropError
	if stderrors.As(err, &drop) || stderrors.Is(err, errors.ErrUnsupportedFileType) {
		return ActionAck
	}
	if stderrors.Is(err, errors.ErrBrokerUnavailable) {
		return ActionRequeue
	}
	if IsRetryable(err) && retryCount < maxRetries {
		return ActionRetry
	}
	return ActionReject
}
