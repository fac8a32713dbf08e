package storage

import (
	"context"
	"time"
)

// HealthChecker reports whether a backend is reachable.
type HealthChecker func() error

// Client is the lifecycle contract every backend client implements.
type Client interface {
	// Name returns the backend type, e.g. "postgres".
	Name() string

	// Ping performs a lightweight connectivity check.
	Ping(ctx context.Context) error

	// Close releases the client's resources.
	Close() error

	// Health returns a checker bound to this client.
	Health() HealthChecker
}

// Factory builds a connected client from its options.
type Factory interface {
	Create(ctx context.Context) (Client, error)
}

// HealthStatus is the result of a single health probe.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   error         `json:"-"`
}

// Message returns the error text, or "ok".
func (s HealthStatus) Message() string {
	if s.Error != nil {
		return s.Error.Error()
	}
	return "ok"
}
