// Package bootstrap opens the infrastructure shared by the ingest API and
// the ingest workers: logging, tracing, Postgres, Redis, RabbitMQ and the
// blob store.
package bootstrap

import "context"

// Initializer sets up one subsystem.
type Initializer interface {
	// Name identifies the initializer in logs and in Dependencies.
	Name() string

	// Dependencies names initializers that must run first.
	Dependencies() []string

	// Initialize performs the initialization logic.
	Initialize(ctx context.Context) error
}

// Shutdowner is implemented by initializers that hold resources.
type Shutdowner interface {
	// Shutdown releases the resources. ctx may carry a deadline.
	Shutdown(ctx context.Context) error
}
