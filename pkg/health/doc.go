/*
Package health provides the readiness checks that gate Cutover promotions.

A deployment is only ever promoted after its health has been confirmed, not
assumed. This package supplies the single-shot checkers (HTTP, TCP, exec)
and the Prober that turns them into a bounded-retry readiness gate with a
settle delay and fixed or exponential backoff.

# Architecture

	┌──────────────────── HEALTH SYSTEM ────────────────────┐
	│                                                       │
	│  ┌───────────────────────────────────────┐            │
	│  │         Checker Interface             │            │
	│  │  Check(ctx) types.ProbeResult         │            │
	│  │  Type() CheckType                     │            │
	│  └───────┬──────────┬──────────┬─────────┘            │
	│          │          │          │                      │
	│     ┌────▼───┐ ┌────▼───┐ ┌────▼───┐                  │
	│     │  HTTP  │ │  TCP   │ │  Exec  │                  │
	│     │ 2xx ⇒  │ │ dialed │ │ exit 0 │                  │
	│     │ ready  │ │ ⇒ ready│ │ ⇒ ready│                  │
	│     └────────┘ └────────┘ └────────┘                  │
	│          │                                            │
	│  ┌───────▼───────────────────────────────┐            │
	│  │            Prober                     │            │
	│  │  settle delay → check → backoff →     │            │
	│  │  check → ... (≤ MaxAttempts)          │            │
	│  └───────────────────────────────────────┘            │
	│                                                       │
	│  ProbeAll: bounded-concurrency fan-out for status     │
	│  and monitor views (never for the readiness gate)     │
	└───────────────────────────────────────────────────────┘

# Readiness Gate

The historical deployment scripts slept a fixed 30 seconds and issued a
single curl; a slow-starting service was falsely failed and a transient 200
falsely promoted. The Prober keeps the settle delay but retries a bounded
number of times, so readiness is confirmed by an actual 2xx rather than a
lucky sample:

	prober := health.NewProber().
		WithSettleDelay(30 * time.Second).
		WithMaxAttempts(5).
		WithBackoff(2 * time.Second)

	result := prober.WaitReady(ctx, health.NewHTTPChecker(backendURL))
	if !result.Healthy {
		// abort the deploy; the live color is untouched
	}

A single attempt reproduces the legacy behavior but is deliberately not the
default.

# Checker Types

HTTP checks GET a health endpoint and accept 2xx by default; the expected
range, method, headers, and timeout are tunable. TCP checks confirm a port
accepts connections, for services without a health route. Exec checks run a
command and treat exit code 0 as healthy, for services reachable only
through a CLI (database pings and the like).
*/
package health
