package rabbitmq

import (
	"context"
	stderrors "errors"

	"github.com/kart-io/logger"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kart-io/chunkflow/pkg/errors"
)

// DeclareQueue declares name (and its dead-letter queue) and records it so
// the declaration is replayed after a reconnect.
func (c *Client) DeclareQueue(ctx context.Context, name string, opts QueueOptions) error {
	if err := c.Ready(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.queues[name] = opts
	c.mu.Unlock()

	conn := c.connection()
	if conn == nil {
		return errors.ErrBrokerUnavailable.WithMessage("not connected")
	}
	degraded, err := declareOn(conn, name, opts)
	if err != nil {
		return errors.ErrBrokerUnavailable.WithCause(err)
	}
	logger.Infow("Queue declared", "queue", name, "dead_letter", opts.DeadLetter && !degraded, "degraded", degraded)
	return nil
}

// declareOn declares the queue on a short-lived channel. It reports
// degraded=true when the server kept an earlier incompatible declaration and
// the queue runs without dead-lettering.
func declareOn(conn *amqp.Connection, name string, opts QueueOptions) (degraded bool, err error) {
	ch, err := conn.Channel()
	if err != nil {
		return false, err
	}
	defer func() { _ = ch.Close() }()

	if !opts.DeadLetter {
		_, err = ch.QueueDeclare(name, opts.Durable, false, false, false, nil)
		return false, err
	}

	dlq := DeadLetterQueue(name)
	if _, err := ch.QueueDeclare(dlq, opts.Durable, false, false, false, nil); err != nil {
		return false, err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	_, err = ch.QueueDeclare(name, opts.Durable, false, false, false, args)
	if err == nil {
		return false, nil
	}

	var amqpErr *amqp.Error
	if !stderrors.As(err, &amqpErr) || amqpErr.Code != amqp.PreconditionFailed {
		return false, err
	}

	// The server closes the channel on a precondition failure.
	logger.Warnw("Queue exists with incompatible arguments, continuing without dead-lettering",
		"queue", name,
		"dead_letter_queue", dlq,
		"error", amqpErr.Reason,
	)
	retry, err := conn.Channel()
	if err != nil {
		return true, err
	}
	defer func() { _ = retry.Close() }()

	if _, err := retry.QueueDeclare(name, opts.Durable, false, false, false, nil); err == nil {
		return true, nil
	}

	passive, err := conn.Channel()
	if err != nil {
		return true, err
	}
	defer func() { _ = passive.Close() }()
	_, err = passive.QueueDeclarePassive(name, opts.Durable, false, false, false, nil)
	return true, err
}
