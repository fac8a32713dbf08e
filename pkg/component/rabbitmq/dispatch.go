package rabbitmq

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/chunkflow/pkg/infra/tracing"
)

type acknowledger interface {
	Ack() error
	Nack(requeue bool) error
}

// republishFunc publishes a retry copy of d.
type republishFunc func(ctx context.Context, d *Delivery) error

// dispatch runs h and settles the delivery exactly once.
func dispatch(ctx context.Context, d *Delivery, h Handler, ack acknowledger, republish republishFunc) Action {
	ctx = tracing.ExtractHeaders(ctx, d.Headers)
	ctx, span := tracing.StartSpan(ctx, "consume "+d.Queue, trace.SpanKindConsumer,
		attribute.String(tracing.MessagingSystem, "rabbitmq"),
		attribute.String(tracing.MessagingDestination, d.Queue),
		attribute.String(tracing.MessagingMessageID, d.MessageID),
		attribute.Int(tracing.RetryCount, d.retryCount),
	)
	defer span.End()

	panicked, err := safeHandle(ctx, h, d)

	var action Action
	switch {
	case panicked:
		action = ActionReject
	case err != nil && ctx.Err() != nil:
		// Shutdown interrupted the handler; let another consumer pick it up.
		action = ActionRequeue
	default:
		action = Decide(err, d.retryCount, d.maxRetries)
	}
	tracing.RecordError(ctx, err)

	fields := []any{
		"queue", d.Queue,
		"message_id", d.MessageID,
		"attempt", d.Attempt(),
		"action", action.String(),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}

	var settleErr error
	switch action {
	case ActionAck:
		if err != nil {
			logger.Warnw("Dropping message", fields...)
		}
		settleErr = ack.Ack()
	case ActionRetry:
		logger.Warnw("Retrying message", fields...)
		if pubErr := republish(context.WithoutCancel(ctx), d); pubErr != nil {
			logger.Errorw("Retry republish failed, requeueing", append(fields, "publish_error", pubErr.Error())...)
			action = ActionRequeue
			settleErr = ack.Nack(true)
		} else {
			settleErr = ack.Ack()
		}
	case ActionRequeue:
		logger.Warnw("Requeueing message", fields...)
		settleErr = ack.Nack(true)
	case ActionReject:
		logger.Errorw("Rejecting message to dead-letter queue", fields...)
		settleErr = ack.Nack(false)
	}
	if settleErr != nil {
		logger.Errorw("Failed to settle delivery", append(fields, "settle_error", settleErr.Error())...)
	}
	return action
}

func safeHandle(ctx context.Context, h Handler, d *Delivery) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("Handler panic recovered",
				"queue", d.Queue,
				"message_id", d.MessageID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			panicked = true
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return false, h(ctx, d)
}

// retryPublishOptions builds the publish options for a retry copy of d.
func retryPublishOptions(d *Delivery) PublishOptions {
	headers := copyHeaders(d.Headers)
	delete(headers, HeaderRetryCount)
	delete(headers, HeaderSchemaVersion)
	return PublishOptions{
		MessageID:     d.MessageID,
		SchemaVersion: d.SchemaVersion(),
		Headers:       headers,
		retryCount:    d.retryCount + 1,
	}
}
