// Package storage defines the lifecycle contract shared by the backend
// clients (postgres, redis, rabbitmq) and a Manager that registers them,
// probes their health and closes them on shutdown.
//
// Typical wiring:
//
//	mgr := storage.NewManager()
//	mgr.MustRegister("postgres", pgClient)
//	mgr.MustRegister("rabbitmq", mqClient)
//	defer mgr.CloseAll()
//
//	for name, st := range mgr.HealthCheckAll(ctx) {
//	    logger.Infow("health", "client", name, "healthy", st.Healthy)
//	}
package storage
