/*
Package httpserver hosts the registry HTTP API.

Besides the routes contributed by RouteRegistrar implementations (see api/handlers), the
server always exposes the operational endpoints:

  - GET /livez - Liveness check
  - GET /readyz - Readiness check, fails while the server is drained
  - GET /drain - Mark the server as not ready
  - GET /undrain - Mark the server as ready
  - /debug/pprof/* - Go profiling endpoints, only with EnablePprof

When MetricsAddr is set, Prometheus metrics are served on a separate listener.

# Example Usage

	cfg := &api.HTTPServerConfig{
		ListenAddr:               "0.0.0.0:3000",
		MetricsAddr:              "127.0.0.1:8090",
		Log:                      logger,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	srv := httpserver.New(cfg, handlers.NewHandler(store, engine, hostname, logger))
	if err := srv.Run(ctx); err != nil {
		logger.Error("HTTP server failed", "err", err)
	}

Run returns once ctx is cancelled and both listeners have shut down.
*/
package httpserver
