// Package api hosts the supervisor's HTTP surface. Notable routes:
//   - GET / and /overlay serve the operator and overlay pages.
//   - GET /status reports the worker; POST /start, /stop, /shutdown,
//     /login/complete, /highlight and /env drive it.
//   - GET /logs and /overlay/stream are server-sent event streams that replay
//     recent items before going live.
//   - POST /overlay/message accepts overlay items from the worker.
//   - GET /healthz and /metrics for probes and Prometheus scraping.
package api
