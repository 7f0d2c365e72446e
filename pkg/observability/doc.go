// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and dependency health checks.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("subject", "Document:42").Debug("loaded sharing entries")
//
// # Prometheus Metrics
//
// Metrics register on a caller provided registry. Every Record* method is a
// no-op on a nil *Metrics, so components accept an optional instance:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("permission", "role", true, started)
//
// # OpenTelemetry
//
//	tp, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
//	defer observability.ShutdownOTel(ctx, tp, logger)
//	ctx, span := observability.StartSpan(ctx, observability.Tracer(tp), "sharing.sharing_entries")
//	defer observability.EndSpan(span, err)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(5 * time.Second)
//	checker.Register("database", cm.HealthCheck, true)
//	status := checker.Check(ctx)
package observability
