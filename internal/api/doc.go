// Package api hosts the status HTTP server used by operators and uptime
// monitors. Routes:
//   - GET / renders a self-refreshing HTML dashboard.
//   - GET /health for keep-alive pings and uptime probes.
//   - GET /status for a machine-readable summary.
//   - GET /metrics for Prometheus scraping.
package api
