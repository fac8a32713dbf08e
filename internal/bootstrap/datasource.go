package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/chunkflow/internal/store"
	"github.com/kart-io/chunkflow/pkg/blob"
	"github.com/kart-io/chunkflow/pkg/blob/gcs"
	"github.com/kart-io/chunkflow/pkg/blob/local"
	"github.com/kart-io/chunkflow/pkg/component/postgres"
	"github.com/kart-io/chunkflow/pkg/component/rabbitmq"
	"github.com/kart-io/chunkflow/pkg/component/redis"
	"github.com/kart-io/chunkflow/pkg/component/storage"
	blobopts "github.com/kart-io/chunkflow/pkg/options/blob"
)

// Datasources holds the opened backends. Fields for backends that were not
// configured stay nil.
type Datasources struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Broker   *rabbitmq.Client
	Blobs    blob.Store

	// Manager tracks every opened backend for health checks and shutdown.
	Manager *storage.Manager
}

// RedisClient returns the go-redis client, or nil when Redis is disabled.
func (d *Datasources) RedisClient() goredis.UniversalClient {
	if d.Redis == nil {
		return nil
	}
	return d.Redis.Client()
}

// NewDatasources returns an empty set with a fresh manager.
func NewDatasources() *Datasources {
	return &Datasources{Manager: storage.NewManager()}
}

// Shutdown closes every registered backend.
func (d *Datasources) Shutdown(context.Context) error {
	if err := d.Manager.CloseAll(); err != nil {
		logger.Errorw("Failed to close datasources during shutdown", "error", err.Error())
		return fmt.Errorf("failed to close datasources: %w", err)
	}
	logger.Info("All datasources closed")
	return nil
}

// PostgresInitializer opens Postgres and optionally migrates the schema.
type PostgresInitializer struct {
	opts *postgres.Options
	ds   *Datasources
}

// NewPostgresInitializer creates a new PostgresInitializer.
func NewPostgresInitializer(opts *postgres.Options, ds *Datasources) *PostgresInitializer {
	return &PostgresInitializer{opts: opts, ds: ds}
}

// Name returns the name of the initializer.
func (pi *PostgresInitializer) Name() string { return "postgres" }

// Dependencies returns the names of initializers this one depends on.
func (pi *PostgresInitializer) Dependencies() []string { return []string{"logging"} }

// Initialize connects and runs migrations when auto-migrate is set.
func (pi *PostgresInitializer) Initialize(ctx context.Context) error {
	client, err := postgres.NewWithContext(ctx, pi.opts)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	if err := pi.ds.Manager.Register("postgres", client); err != nil {
		_ = client.Close()
		return err
	}
	pi.ds.Postgres = client

	if pi.opts.AutoMigrate {
		if err := store.Migrate(ctx, client.DB()); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	logger.Infow("Postgres connected", "host", pi.opts.Host, "database", pi.opts.Database)
	return nil
}

// RedisInitializer opens Redis when the search cache is enabled.
type RedisInitializer struct {
	opts *redis.Options
	ds   *Datasources
}

// NewRedisInitializer creates a new RedisInitializer.
func NewRedisInitializer(opts *redis.Options, ds *Datasources) *RedisInitializer {
	return &RedisInitializer{opts: opts, ds: ds}
}

// Name returns the name of the initializer.
func (ri *RedisInitializer) Name() string { return "redis" }

// Dependencies returns the names of initializers this one depends on.
func (ri *RedisInitializer) Dependencies() []string { return []string{"logging"} }

// Initialize connects to Redis. A disabled cache is a no-op.
func (ri *RedisInitializer) Initialize(ctx context.Context) error {
	if !ri.opts.Enabled {
		logger.Info("Redis cache disabled")
		return nil
	}
	client, err := redis.NewWithContext(ctx, ri.opts)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	if err := ri.ds.Manager.Register("redis", client); err != nil {
		_ = client.Close()
		return err
	}
	ri.ds.Redis = client
	logger.Infow("Redis connected", "addr", ri.opts.Addr(), "ttl", ri.opts.CacheTTL.String())
	return nil
}

// RabbitMQInitializer connects the shared broker client.
type RabbitMQInitializer struct {
	opts *rabbitmq.Options
	ds   *Datasources
}

// NewRabbitMQInitializer creates a new RabbitMQInitializer.
func NewRabbitMQInitializer(opts *rabbitmq.Options, ds *Datasources) *RabbitMQInitializer {
	return &RabbitMQInitializer{opts: opts, ds: ds}
}

// Name returns the name of the initializer.
func (mi *RabbitMQInitializer) Name() string { return "rabbitmq" }

// Dependencies returns the names of initializers this one depends on.
func (mi *RabbitMQInitializer) Dependencies() []string { return []string{"logging"} }

// Initialize dials the broker within the bounded reconnect window.
func (mi *RabbitMQInitializer) Initialize(ctx context.Context) error {
	client := rabbitmq.NewClient(mi.opts)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := mi.ds.Manager.Register("rabbitmq", client); err != nil {
		_ = client.Close()
		return err
	}
	mi.ds.Broker = client
	return nil
}

// BlobInitializer opens the configured blob backend.
type BlobInitializer struct {
	opts *blobopts.Options
	ds   *Datasources
}

// NewBlobInitializer creates a new BlobInitializer.
func NewBlobInitializer(opts *blobopts.Options, ds *Datasources) *BlobInitializer {
	return &BlobInitializer{opts: opts, ds: ds}
}

// Name returns the name of the initializer.
func (bi *BlobInitializer) Name() string { return "blob" }

// Dependencies returns the names of initializers this one depends on.
func (bi *BlobInitializer) Dependencies() []string { return []string{"logging"} }

// Initialize opens the local or GCS backend.
func (bi *BlobInitializer) Initialize(ctx context.Context) error {
	var (
		s   blob.Store
		err error
	)
	switch bi.opts.Backend {
	case blobopts.BackendGCS:
		s, err = gcs.New(ctx, bi.opts)
	default:
		s, err = local.New(bi.opts.Root, bi.opts.Bucket, bi.opts.PublicBaseURL)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s blob store: %w", bi.opts.Backend, err)
	}
	if err := bi.ds.Manager.Register("blob", &blobClient{Store: s}); err != nil {
		return err
	}
	bi.ds.Blobs = s
	logger.Infow("Blob store ready", "backend", bi.opts.Backend, "bucket", s.Bucket())
	return nil
}

// blobClient adapts a blob.Store to the storage manager.
type blobClient struct {
	blob.Store
}

func (c *blobClient) Name() string { return "blob" }

func (c *blobClient) Close() error {
	if closer, ok := c.Store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *blobClient) Health() storage.HealthChecker {
	return func() error { return c.Ping(context.Background()) }
}
