package rabbitmq

import (
	"strconv"
	"time"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

// Delivery is a received message. Handlers never see the raw channel.
type Delivery struct {
	Queue       string
	Body        []byte
	Headers     map[string]any
	MessageID   string
	ContentType string
	Timestamp   time.Time

	retryCount int
	maxRetries int
}

// RetryCount is the number of earlier attempts.
func (d *Delivery) RetryCount() int {
	return d.retryCount
}

// Attempt is the 1-based attempt number.
func (d *Delivery) Attempt() int {
	return d.retryCount + 1
}

// IsLastAttempt reports whether a Retry outcome would dead-letter instead.
func (d *Delivery) IsLastAttempt() bool {
	return d.retryCount >= d.maxRetries
}

// SchemaVersion returns the x-schema-version header, or 0.
func (d *Delivery) SchemaVersion() int {
	return headerInt(d.Headers, HeaderSchemaVersion)
}

// Decode unmarshals the JSON body into v.
func (d *Delivery) Decode(v any) error {
	if len(d.Body) == 0 {
		return errors.ErrInvalidMessage.WithMessage("empty message body")
	}
	if err := json.Unmarshal(d.Body, v); err != nil {
		return errors.ErrInvalidMessage.WithCause(err)
	}
	return nil
}

func newDelivery(queue string, body []byte, headers map[string]any, id, contentType string, ts time.Time, maxRetries int) *Delivery {
	return &Delivery{
		Queue:       queue,
		Body:        body,
		Headers:     headers,
		MessageID:   id,
		ContentType: contentType,
		Timestamp:   ts,
		retryCount:  headerInt(headers, HeaderRetryCount),
		maxRetries:  maxRetries,
	}
}

// headerInt reads an integer header regardless of the AMQP field type the
// publisher chose.
func headerInt(headers map[string]any, key string) int {
	switch v := headers[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func copyHeaders(h map[string]any) map[string]any {
	out := make(map[string]any, len(h)+2)
	for k, v := range h {
		out[k] = v
	}
	return out
}
