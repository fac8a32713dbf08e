package store

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/kart-io/chunkflow/pkg/component/postgres"
	"github.com/kart-io/logger"
)

var (
	clientFactory Factory
	once          sync.Once
)

// datastore implements the Factory interface.
type datastore struct {
	db *gorm.DB
}

var _ Factory = (*datastore)(nil)

// GetFactory returns the process-wide storage factory backed by client.
func GetFactory(client *postgres.Client) (Factory, error) {
	var err error

	once.Do(func() {
		if client == nil || client.DB() == nil {
			err = fmt.Errorf("postgres client is not initialized")
			logger.Errorf("failed to get postgres connection: %s", err.Error())
			return
		}
		clientFactory = &datastore{client.DB()}
	})

	if clientFactory == nil || err != nil {
		return nil, fmt.Errorf("failed to get postgres factory: %w", err)
	}

	return clientFactory, nil
}

// NewFactory returns a Factory over db without touching the process-wide
// instance.
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db}
}

// Documents returns the document store.
func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

// Chunks returns the chunk store.
func (ds *datastore) Chunks() ChunkStore {
	return newChunks(ds.db)
}

// Components returns the chunk component store.
func (ds *datastore) Components() ComponentStore {
	return newComponents(ds.db)
}

// Tags returns the tag store.
func (ds *datastore) Tags() TagStore {
	return newTags(ds.db)
}

// TX runs fn in a database transaction.
func (ds *datastore) TX(ctx context.Context, fn func(ctx context.Context, tx Factory) error) error {
	return ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &datastore{tx})
	})
}

// DB returns the underlying gorm handle.
func (ds *datastore) DB() *gorm.DB {
	return ds.db
}

// Close closes the factory. The connection is owned by the postgres client.
func (ds *datastore) Close() error {
	return nil
}
