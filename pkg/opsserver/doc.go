// Package opsserver serves the maintenance process's operational endpoints:
// liveness and readiness probes, Prometheus metrics, the invitation sweep
// trigger and the development-only role simulation preview.
//
// Callers identify themselves with the X-Actor-ID header set by the identity
// proxy in front of the service.
package opsserver
