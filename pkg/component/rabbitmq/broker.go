// Package rabbitmq provides a reconnect-aware AMQP client and the
// at-least-once delivery policy shared by every pipeline consumer.
package rabbitmq

import (
	"context"

	"github.com/kart-io/chunkflow/pkg/errors"
	options "github.com/kart-io/chunkflow/pkg/options/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

// Options is re-exported from pkg/options/rabbitmq for convenience.
type Options = options.Options

// NewOptions is re-exported from pkg/options/rabbitmq for convenience.
var NewOptions = options.NewOptions

// Message headers set on every publish.
const (
	HeaderSchemaVersion = "x-schema-version"
	HeaderRetryCount    = "x-retry-count"
)

// DeadLetterSuffix is appended to a queue name to form its dead-letter queue.
const DeadLetterSuffix = "-dlq"

// DeadLetterQueue returns the dead-letter queue name for queue.
func DeadLetterQueue(queue string) string {
	return queue + DeadLetterSuffix
}

// QueueOptions controls queue declaration.
type QueueOptions struct {
	Durable    bool
	DeadLetter bool
}

// PublishOptions controls a single publish.
type PublishOptions struct {
	// MessageID defaults to a new ULID.
	MessageID string
	// SchemaVersion defaults to 1.
	SchemaVersion int
	// Transient disables persistent delivery mode.
	Transient bool
	Headers   map[string]any

	retryCount int
}

// Handler processes one delivery. The returned error selects the outcome:
// see Decide.
type Handler func(ctx context.Context, d *Delivery) error

// Broker is the queue surface pipeline workers depend on.
type Broker interface {
	DeclareQueue(ctx context.Context, name string, opts QueueOptions) error
	Publish(ctx context.Context, queue string, payload any, opts PublishOptions) error
	// Consume blocks until ctx is done or the broker gives up reconnecting.
	Consume(ctx context.Context, queue, consumerTag string, h Handler) error
}

// encodeBody marshals payload to JSON. Raw bytes are sent unchanged.
func encodeBody(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.ErrInvalidMessage.WithCause(err)
	}
	return body, nil
}

func (o PublishOptions) schemaVersion() int32 {
	if o.SchemaVersion <= 0 {
		return 1
	}
	return int32(o.SchemaVersion)
}
