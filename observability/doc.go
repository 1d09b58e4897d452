// Package observability wires structured logging and metrics for the
// assessment service.
//
// Components ask the Provider for a Logger and a Metrics instance by name
// ("executor", "scheduler", "store", ...). The Provider caches one instance
// per component. Logs are JSON lines ready for Loki; metrics default to
// Prometheus and can be switched to CloudWatch through Config.MetricsFactory.
package observability
