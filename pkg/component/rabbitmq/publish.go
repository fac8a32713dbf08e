package rabbitmq

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/infra/tracing"
)

// Publish sends payload to queue on the default exchange and waits for the
// publisher confirm.
func (c *Client) Publish(ctx context.Context, queue string, payload any, opts PublishOptions) error {
	body, err := encodeBody(payload)
	if err != nil {
		return err
	}
	if err := c.Ready(ctx); err != nil {
		return err
	}

	msg := c.buildPublishing(ctx, body, opts)

	ch, err := c.publishChannel()
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.opts.PublishTimeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(pubCtx, "", queue, false, false, msg)
	if err != nil {
		if stderrors.Is(err, amqp.ErrClosed) {
			return errors.ErrBrokerUnavailable.WithCause(err)
		}
		return errors.ErrPublishFailed.WithCause(err)
	}

	acked, err := dc.WaitContext(pubCtx)
	if err != nil {
		return errors.ErrPublishFailed.WithMessagef("confirm for %s: %v", queue, err)
	}
	if !acked {
		return errors.ErrPublishFailed.WithMessagef("broker nacked message %s on %s", msg.MessageId, queue)
	}
	return nil
}

func (c *Client) buildPublishing(ctx context.Context, body []byte, opts PublishOptions) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	headers[HeaderSchemaVersion] = opts.schemaVersion()
	headers[HeaderRetryCount] = int32(opts.retryCount)
	tracing.InjectHeaders(ctx, headers)

	id := opts.MessageID
	if id == "" {
		id = ulid.Make().String()
	}
	mode := amqp.Persistent
	if opts.Transient {
		mode = amqp.Transient
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: mode,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
}

// publishChannel returns the confirm channel, reopening it if a previous
// publish closed it.
func (c *Client) publishChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn, ch := c.conn, c.pubCh
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, errors.ErrBrokerUnavailable.WithMessage("not connected")
	}
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.RLock()
	ch = c.pubCh
	c.mu.RUnlock()
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	ch, err := openConfirmChannel(conn)
	if err != nil {
		return nil, errors.ErrBrokerUnavailable.WithCause(err)
	}
	c.mu.Lock()
	c.pubCh = ch
	c.mu.Unlock()
	return ch, nil
}

func (c *Client) republish(ctx context.Context, d *Delivery) error {
	return c.Publish(ctx, d.Queue, d.Body, retryPublishOptions(d))
}
