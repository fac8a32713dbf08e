package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/chunkflow/pkg/errors"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

func TestHeaderInt(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want int
	}{
		{"int32", int32(2), 2},
		{"int64", int64(3), 3},
		{"uint8", uint8(4), 4},
		{"float64", float64(5), 5},
		{"string", "6", 6},
		{"garbage string", "x", 0},
		{"missing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := map[string]any{}
			if tt.v != nil {
				h[HeaderRetryCount] = tt.v
			}
			assert.Equal(t, tt.want, headerInt(h, HeaderRetryCount))
		})
	}
}

func TestDeliveryDecode(t *testing.T) {
	d := newDelivery("q", nil, nil, "m", "", time.Now(), 3)
	var v map[string]any
	assert.ErrorIs(t, d.Decode(&v), errors.ErrInvalidMessage)

	d.Body = []byte(`{"a":1}`)
	assert.NoError(t, d.Decode(&v))
	assert.EqualValues(t, 1, v["a"])
}

func TestRetryPublishOptions(t *testing.T) {
	d := newDelivery("q", []byte(`{}`), map[string]any{
		HeaderRetryCount:    int32(1),
		HeaderSchemaVersion: int32(2),
		"traceparent":       "00-abc-def-01",
	}, "m1", "", time.Now(), 3)

	opts := retryPublishOptions(d)
	assert.Equal(t, "m1", opts.MessageID)
	assert.Equal(t, 2, opts.SchemaVersion)
	assert.Equal(t, 2, opts.retryCount)
	assert.Equal(t, "00-abc-def-01", opts.Headers["traceparent"])
	assert.NotContains(t, opts.Headers, HeaderRetryCount)
	assert.Equal(t, int32(1), d.Headers[HeaderRetryCount], "source headers are not mutated")
}

func TestEncodeBody(t *testing.T) {
	raw := []byte(`{"x":1}`)
	got, err := encodeBody(raw)
	assert.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = encodeBody(json.RawMessage(raw))
	assert.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = encodeBody(struct {
		A int `json:"a"`
	}{A: 1})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestDeadLetterQueue(t *testing.T) {
	assert.Equal(t, "chunking-queue-dlq", DeadLetterQueue("chunking-queue"))
}
