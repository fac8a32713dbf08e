// Package postgres provides the gorm-backed PostgreSQL client.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/chunkflow/pkg/component/storage"
	options "github.com/kart-io/chunkflow/pkg/options/postgres"
)

// Options is re-exported from pkg/options/postgres for convenience.
type Options = options.Options

// NewOptions is re-exported from pkg/options/postgres for convenience.
var NewOptions = options.NewOptions

// Client wraps gorm.DB and implements storage.Client.
type Client struct {
	db   *gorm.DB
	opts *Options
}

var _ storage.Client = (*Client)(nil)

// New creates a new PostgreSQL client from the provided options.
func New(opts *Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext opens the pool, applies pool limits and verifies
// connectivity within ctx.
func NewWithContext(ctx context.Context, opts *Options) (*Client, error) {
	if opts == nil {
		return nil, storage.ErrInvalidConfig.WithMessage("postgres options cannot be nil")
	}
	if err := opts.Validate(); err != nil {
		return nil, storage.ErrInvalidConfig.WithCause(err)
	}

	db, err := gorm.Open(postgresdriver.Open(BuildDSN(opts)), &gorm.Config{
		Logger: NewGormLogger(gormlogger.LogLevel(opts.LogLevel), opts.SlowThreshold, true),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, storage.ErrConnectionFailed.WithCause(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(opts.MaxConnectionLifeTime)

	client := &Client{db: db, opts: opts}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, storage.ErrConnectionFailed.WithCause(err)
	}
	return client, nil
}

// NewFromDB wraps an already opened gorm.DB.
func NewFromDB(db *gorm.DB) *Client {
	return &Client{db: db, opts: NewOptions()}
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Options returns the options the client was built from.
func (c *Client) Options() *Options {
	return c.opts
}

// Name returns the name of the storage client.
func (c *Client) Name() string {
	return "postgres"
}

// Ping verifies the connection to the PostgreSQL database.
func (c *Client) Ping(ctx context.Context) error {
	if c.db == nil {
		return storage.ErrNotConnected
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// Close closes the database connection and releases resources.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for closing: %w", err)
	}
	return sqlDB.Close()
}

// Health returns a HealthChecker bound to this client.
func (c *Client) Health() storage.HealthChecker {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.Ping(ctx)
	}
}

// Stats returns database connection statistics.
func (c *Client) Stats() (sql.DBStats, error) {
	sqlDB, err := c.db.DB()
	if err != nil {
		return sql.DBStats{}, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Stats(), nil
}
