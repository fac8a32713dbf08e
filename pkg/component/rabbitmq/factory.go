package rabbitmq

import (
	"context"

	"github.com/kart-io/chunkflow/pkg/component/storage"
)

// Factory creates connected RabbitMQ clients for the storage manager.
type Factory struct {
	opts *Options
}

var _ storage.Factory = (*Factory)(nil)

// NewFactory creates a new Factory.
func NewFactory(opts *Options) *Factory {
	return &Factory{opts: opts}
}

// Create validates options and connects.
func (f *Factory) Create(ctx context.Context) (storage.Client, error) {
	if err := f.opts.Validate(); err != nil {
		return nil, storage.ErrInvalidConfig.WithCause(err)
	}
	c := NewClient(f.opts)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
