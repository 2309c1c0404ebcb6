/*
Package monitor runs the continuous dual-color health loop.

Each cycle probes both colors' backends directly and the public route
through the proxy, with bounded concurrency. Results refresh the
Prometheus health gauges, and health transitions (ready to failing or
back) are logged and published as health.changed events.

The monitor observes; it never mutates deployment state and never triggers
a rollback on its own. Acting on a bad color is the operator's call,
through the rollback command.

Used two ways: the watch command runs RunOnce on its own cadence and
prints each cycle; the serve command starts the loop in the background
behind the status API.
*/
package monitor
