package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kart-io/chunkflow/pkg/component/storage"
	"github.com/kart-io/chunkflow/pkg/errors"
)

// Client is a reconnect-aware AMQP client. It owns one connection and a
// confirm-mode publish channel; every consumer gets its own channel.
type Client struct {
	opts *Options

	mu     sync.RWMutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	queues map[string]QueueOptions
	ready  chan struct{}
	failed chan struct{}

	pubMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

var (
	_ Broker         = (*Client)(nil)
	_ storage.Client = (*Client)(nil)
)

// NewClient creates an unconnected client. Call Connect before use.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = NewOptions()
	}
	return &Client{
		opts:   opts,
		queues: make(map[string]QueueOptions),
		ready:  make(chan struct{}),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Connect dials the broker with bounded exponential backoff. Failure is
// reported as ErrBrokerUnavailable.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx)
}

func (c *Client) backoff() wait.Backoff {
	return wait.Backoff{
		Duration: c.opts.ReconnectInitialInterval,
		Factor:   2,
		Jitter:   0.1,
		Steps:    c.opts.ReconnectAttempts,
		Cap:      c.opts.ReconnectMaxInterval,
	}
}

func (c *Client) connect(ctx context.Context) error {
	var lastErr error
	attempt := 0
	err := wait.ExponentialBackoffWithContext(ctx, c.backoff(), func(context.Context) (bool, error) {
		select {
		case <-c.closed:
			return false, errors.ErrBrokerUnavailable.WithMessage("client closed")
		default:
		}

		attempt++
		if err := c.dial(); err != nil {
			lastErr = err
			logger.Warnw("RabbitMQ connection attempt failed",
				"attempt", attempt,
				"max_attempts", c.opts.ReconnectAttempts,
				"error", err.Error(),
			)
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return errors.ErrBrokerUnavailable.WithCause(lastErr)
	}
	logger.Infow("RabbitMQ connected", "attempts", attempt)
	return nil
}

func (c *Client) dial() error {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.opts.ConnectionName)

	conn, err := amqp.DialConfig(c.opts.AMQPURL(), amqp.Config{
		Heartbeat:  c.opts.Heartbeat,
		Locale:     "en_US",
		Properties: props,
	})
	if err != nil {
		return err
	}

	pubCh, err := openConfirmChannel(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.RLock()
	queues := make(map[string]QueueOptions, len(c.queues))
	for name, qo := range c.queues {
		queues[name] = qo
	}
	c.mu.RUnlock()

	for name, qo := range queues {
		if _, err := declareOn(conn, name, qo); err != nil {
			_ = conn.Close()
			return err
		}
	}

	notify := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.mu.Lock()
	c.conn = conn
	c.pubCh = pubCh
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()

	go c.watch(notify)
	return nil
}

func openConfirmChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// watch reconnects after transport loss. Consumers observe the closed
// delivery channel and resubscribe once Ready unblocks.
func (c *Client) watch(notify <-chan *amqp.Error) {
	var reason *amqp.Error
	select {
	case <-c.closed:
		return
	case reason = <-notify:
	}

	select {
	case <-c.closed:
		return
	default:
	}

	fields := []any{"reconnect_attempts", c.opts.ReconnectAttempts}
	if reason != nil {
		fields = append(fields, "error", reason.Error())
	}
	logger.Warnw("RabbitMQ connection lost, reconnecting", fields...)

	c.mu.Lock()
	c.conn = nil
	c.pubCh = nil
	c.ready = make(chan struct{})
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer cancel()

	if err := c.connect(ctx); err != nil {
		logger.Errorw("RabbitMQ reconnect window exhausted", "error", err.Error())
		c.mu.Lock()
		close(c.failed)
		c.mu.Unlock()
	}
}

// Ready blocks until the client is connected. It returns
// ErrBrokerUnavailable once the reconnect window is exhausted or the
// client is closed.
func (c *Client) Ready(ctx context.Context) error {
	c.mu.RLock()
	ready, failed := c.ready, c.failed
	c.mu.RUnlock()

	select {
	case <-ready:
		return nil
	default:
	}

	select {
	case <-ready:
		return nil
	case <-failed:
		return errors.ErrBrokerUnavailable.WithMessage("reconnect window exhausted")
	case <-c.closed:
		return errors.ErrBrokerUnavailable.WithMessage("client closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) connection() *amqp.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "rabbitmq"
}

// Ping reports whether the connection is open.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := c.connection()
	if conn == nil || conn.IsClosed() {
		return errors.ErrBrokerUnavailable.WithMessage("not connected")
	}
	return nil
}

// Health returns a HealthChecker bound to this client.
func (c *Client) Health() storage.HealthChecker {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return c.Ping(ctx)
	}
}

// Close stops reconnecting and closes the connection. Active consumers
// return once their channels close.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		conn, pubCh := c.conn, c.pubCh
		c.conn, c.pubCh = nil, nil
		c.mu.Unlock()

		if pubCh != nil {
			_ = pubCh.Close()
		}
		if conn != nil && !conn.IsClosed() {
			err = conn.Close()
		}
		logger.Infow("RabbitMQ client closed")
	})
	return err
}
