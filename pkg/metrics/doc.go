/*
Package metrics exposes Cutover's observability surface.

Prometheus collectors track deployment operations (counts by outcome,
durations), the color state (which slot is live, when it last switched),
and live health (per-color backends, the public route, probe latency). The
Server serves them over HTTP together with a liveness endpoint and a JSON
status view.

# Metrics

	cutover_operations_total{operation,outcome}     finished operations
	cutover_operation_duration_seconds{operation}   operation latency
	cutover_operation_in_flight                     0/1 single-flight gauge
	cutover_active_color{color}                     1 for the live slot
	cutover_last_switch_timestamp_seconds           last verified cutover
	cutover_color_healthy{color}                    backend health, 0/1
	cutover_routed_healthy                          public route health, 0/1
	cutover_probe_duration_seconds{color}           probe latency

Counters are recorded by the orchestrator as operations finish; the health
gauges are refreshed by the monitor loop.

# HTTP Surface

The serve command runs the Server:

	GET /healthz   orchestrator's own liveness (uptime, always 200)
	GET /status    JSON: durable state + per-color health + recent events
	GET /metrics   Prometheus exposition

The application stack's /health endpoint is a contract Cutover consumes;
it is never served from here.
*/
package metrics
