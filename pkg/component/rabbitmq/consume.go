package rabbitmq

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kart-io/logger"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// Consume subscribes to queue and dispatches deliveries to h until ctx is
// done. After a connection loss it resubscribes once the client is ready
// again; it returns ErrBrokerUnavailable when reconnecting gives up.
func (c *Client) Consume(ctx context.Context, queue, consumerTag string, h Handler) error {
	for {
		if err := c.Ready(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err := c.consumeOnce(ctx, queue, consumerTag, h)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warnw("Consumer interrupted, resubscribing",
			"queue", queue,
			"consumer", consumerTag,
			"error", errString(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return errors.ErrBrokerUnavailable.WithMessage("client closed")
		case <-time.After(c.opts.ReconnectInitialInterval):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, queue, consumerTag string, h Handler) error {
	conn := c.connection()
	if conn == nil {
		return errors.ErrBrokerUnavailable.WithMessage("not connected")
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() {
		if !ch.IsClosed() {
			_ = ch.Close()
		}
	}()

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	logger.Infow("Consumer started", "queue", queue, "consumer", consumerTag, "prefetch", c.opts.Prefetch)

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(consumerTag, false)
			return nil
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return amqp.ErrClosed
		case msg, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			d := newDelivery(queue, msg.Body, map[string]any(msg.Headers), msg.MessageId,
				msg.ContentType, msg.Timestamp, c.opts.MaxRetries)
			dispatch(ctx, d, h, amqpAcknowledger{msg: msg}, c.republish)
		}
	}
}

type amqpAcknowledger struct {
	msg amqp.Delivery
}

func (a amqpAcknowledger) Ack() error {
	return a.msg.Ack(false)
}

func (a amqpAcknowledger) Nack(requeue bool) error {
	return a.msg.Nack(false, requeue)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	var amqpErr *amqp.Error
	if stderrors.As(err, &amqpErr) {
		return amqpErr.Reason
	}
	return err.Error()
}
