// Package rabbitmq provides configuration options for the AMQP broker client.
package rabbitmq

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chunkflow/pkg/options"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

const redactedPassword = "[REDACTED]"

// Options defines configuration options for RabbitMQ.
type Options struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`
	VHost    string `json:"vhost" mapstructure:"vhost"`
	// URL overrides the individual connection fields when set.
	URL string `json:"-" mapstructure:"url"`

	ConnectionName string        `json:"connection-name" mapstructure:"connection-name"`
	Heartbeat      time.Duration `json:"heartbeat" mapstructure:"heartbeat"`

	// Bounded reconnect window.
	ReconnectAttempts        int           `json:"reconnect-attempts" mapstructure:"reconnect-attempts"`
	ReconnectInitialInterval time.Duration `json:"reconnect-initial-interval" mapstructure:"reconnect-initial-interval"`
	ReconnectMaxInterval     time.Duration `json:"reconnect-max-interval" mapstructure:"reconnect-max-interval"`

	Prefetch       int           `json:"prefetch" mapstructure:"prefetch"`
	MaxRetries     int           `json:"max-retries" mapstructure:"max-retries"`
	PublishTimeout time.Duration `json:"publish-timeout" mapstructure:"publish-timeout"`
	DeadLetter     bool          `json:"dead-letter" mapstructure:"dead-letter"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Host:                     "127.0.0.1",
		Port:                     5672,
		Username:                 "guest",
		VHost:                    "/",
		ConnectionName:           "chunkflow",
		Heartbeat:                10 * time.Second,
		ReconnectAttempts:        5,
		ReconnectInitialInterval: time.Second,
		ReconnectMaxInterval:     30 * time.Second,
		Prefetch:                 1,
		MaxRetries:               3,
		PublishTimeout:           10 * time.Second,
		DeadLetter:               true,
	}
}

// AddFlags adds flags for RabbitMQ options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rabbitmq."
	fs.StringVar(&o.Host, p+"host", o.Host, "RabbitMQ host")
	fs.IntVar(&o.Port, p+"port", o.Port, "RabbitMQ port")
	fs.StringVar(&o.Username, p+"username", o.Username, "RabbitMQ username")
	fs.StringVar(&o.Password, p+"password", o.Password, "RabbitMQ password (prefer RABBITMQ_PASSWORD env var)")
	fs.StringVar(&o.VHost, p+"vhost", o.VHost, "RabbitMQ virtual host")
	fs.StringVar(&o.URL, p+"url", o.URL, "Full AMQP URL, overrides host/port/credentials (or RABBITMQ_URL env var)")
	fs.StringVar(&o.ConnectionName, p+"connection-name", o.ConnectionName, "Client-provided connection name shown in the management UI")
	fs.DurationVar(&o.Heartbeat, p+"heartbeat", o.Heartbeat, "AMQP heartbeat interval")
	fs.IntVar(&o.ReconnectAttempts, p+"reconnect-attempts", o.ReconnectAttempts, "Reconnect attempts before giving up")
	fs.DurationVar(&o.ReconnectInitialInterval, p+"reconnect-initial-interval", o.ReconnectInitialInterval, "Initial reconnect backoff")
	fs.DurationVar(&o.ReconnectMaxInterval, p+"reconnect-max-interval", o.ReconnectMaxInterval, "Maximum reconnect backoff")
	fs.IntVar(&o.Prefetch, p+"prefetch", o.Prefetch, "Unacknowledged deliveries per consumer")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Redeliveries of a retryable message before dead-lettering")
	fs.DurationVar(&o.PublishTimeout, p+"publish-timeout", o.PublishTimeout, "Publisher confirm timeout")
	fs.BoolVar(&o.DeadLetter, p+"dead-letter", o.DeadLetter, "Declare dead-letter queues for pipeline queues")
}

// Complete fills credentials from the environment.
func (o *Options) Complete() error {
	if o.URL == "" {
		o.URL = os.Getenv("RABBITMQ_URL")
	}
	if o.Password == "" {
		o.Password = os.Getenv("RABBITMQ_PASSWORD")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.URL != "" {
		u, err := url.Parse(o.URL)
		if err != nil {
			return fmt.Errorf("invalid rabbitmq url: %w", err)
		}
		if u.Scheme != "amqp" && u.Scheme != "amqps" {
			return fmt.Errorf("rabbitmq url scheme must be amqp or amqps, got %q", u.Scheme)
		}
	} else if o.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}
	if o.ReconnectAttempts < 1 {
		return fmt.Errorf("rabbitmq reconnect-attempts must be >= 1")
	}
	if o.Prefetch < 1 {
		return fmt.Errorf("rabbitmq prefetch must be >= 1")
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("rabbitmq max-retries must be >= 0")
	}
	return nil
}

// AMQPURL returns the connection URL.
func (o *Options) AMQPURL() string {
	if o.URL != "" {
		return o.URL
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(o.Username, o.Password),
		Host:   fmt.Sprintf("%s:%d", o.Host, o.Port),
		Path:   "/" + url.PathEscape(o.vhostName()),
	}
	return u.String()
}

func (o *Options) vhostName() string {
	if o.VHost == "/" {
		return ""
	}
	return o.VHost
}

// MarshalJSON implements json.Marshaler with password redaction.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	out := struct {
		*plain
		Password string `json:"password"`
	}{plain: (*plain)(o)}
	if o.Password != "" || o.URL != "" {
		out.Password = redactedPassword
	}
	return json.Marshal(out)
}
