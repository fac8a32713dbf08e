package postgres

import (
	"context"

	"github.com/kart-io/chunkflow/pkg/component/storage"
)

// Factory implements storage.Factory for PostgreSQL clients.
type Factory struct {
	opts *Options
}

var _ storage.Factory = (*Factory)(nil)

// NewFactory creates a new PostgreSQL client factory.
func NewFactory(opts *Options) *Factory {
	return &Factory{opts: opts}
}

// Create connects a new client.
func (f *Factory) Create(ctx context.Context) (storage.Client, error) {
	return NewWithContext(ctx, f.opts)
}
