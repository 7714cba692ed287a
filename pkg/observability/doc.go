// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health checks for the engine and its binaries.
//
// Logging is JSON through logrus:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("invitation_id", id).Info("invitation revoked")
//
// Metrics are nil-safe so components can run without a registry:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordPermissionCheck(granted)
//
// Tracing spans are started from the global tracer provider, which is a
// no-op unless InitOTel has installed an OTLP exporter.
package observability
