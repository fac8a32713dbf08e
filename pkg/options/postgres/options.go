// Package postgres provides configuration options for the PostgreSQL client.
package postgres

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/chunkflow/pkg/options"
	"github.com/kart-io/chunkflow/pkg/utils/json"
)

const redactedPassword = "[REDACTED]"

var sslModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

// Options defines configuration options for PostgreSQL.
type Options struct {
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	// LogLevel maps to gorm logger levels: 1 silent, 2 error, 3 warn, 4 info.
	LogLevel      int           `json:"log-level" mapstructure:"log-level"`
	SlowThreshold time.Duration `json:"slow-threshold" mapstructure:"slow-threshold"`
	// AutoMigrate runs schema migrations on startup.
	AutoMigrate bool `json:"auto-migrate" mapstructure:"auto-migrate"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Host:                  "127.0.0.1",
		Port:                  5432,
		Username:              "postgres",
		Database:              "chunkflow",
		SSLMode:               "disable",
		MaxIdleConnections:    10,
		MaxOpenConnections:    50,
		MaxConnectionLifeTime: 30 * time.Minute,
		LogLevel:              2,
		SlowThreshold:         200 * time.Millisecond,
		AutoMigrate:           true,
	}
}

// AddFlags adds flags for PostgreSQL options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "postgres."
	fs.StringVar(&o.Host, p+"host", o.Host, "PostgreSQL host")
	fs.IntVar(&o.Port, p+"port", o.Port, "PostgreSQL port")
	fs.StringVar(&o.Username, p+"username", o.Username, "PostgreSQL username")
	fs.StringVar(&o.Password, p+"password", o.Password, "PostgreSQL password (prefer POSTGRES_PASSWORD env var)")
	fs.StringVar(&o.Database, p+"database", o.Database, "PostgreSQL database")
	fs.StringVar(&o.SSLMode, p+"ssl-mode", o.SSLMode, "PostgreSQL SSL mode")
	fs.IntVar(&o.MaxIdleConnections, p+"max-idle-connections", o.MaxIdleConnections, "PostgreSQL max idle connections")
	fs.IntVar(&o.MaxOpenConnections, p+"max-open-connections", o.MaxOpenConnections, "PostgreSQL max open connections")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"max-connection-life-time", o.MaxConnectionLifeTime, "PostgreSQL max connection life time")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "GORM log level (1 silent, 2 error, 3 warn, 4 info)")
	fs.DurationVar(&o.SlowThreshold, p+"slow-threshold", o.SlowThreshold, "Queries slower than this are logged as warnings")
	fs.BoolVar(&o.AutoMigrate, p+"auto-migrate", o.AutoMigrate, "Run schema migrations on startup")
}

// Complete reads the password from POSTGRES_PASSWORD when unset.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("POSTGRES_PASSWORD")
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("postgres host is required")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("postgres port %d out of range", o.Port)
	}
	if o.Database == "" {
		return fmt.Errorf("postgres database is required")
	}
	if !sslModes[o.SSLMode] {
		return fmt.Errorf("postgres ssl-mode %q is not supported", o.SSLMode)
	}
	if o.LogLevel < 1 || o.LogLevel > 4 {
		return fmt.Errorf("postgres log-level must be between 1 and 4")
	}
	if o.MaxIdleConnections > o.MaxOpenConnections {
		return fmt.Errorf("postgres max-idle-connections exceeds max-open-connections")
	}
	return nil
}

// String returns a string representation with password redacted.
func (o *Options) String() string {
	return fmt.Sprintf("Postgres{host=%s, port=%d, user=%s, password=%s, database=%s}",
		o.Host, o.Port, o.Username, o.redacted(), o.Database)
}

// MarshalJSON implements json.Marshaler with password redaction.
func (o *Options) MarshalJSON() ([]byte, error) {
	type plain Options
	return json.Marshal(struct {
		*plain
		Password string `json:"password"`
	}{plain: (*plain)(o), Password: o.redacted()})
}

func (o *Options) redacted() string {
	if o.Password == "" {
		return ""
	}
	return redactedPassword
}
