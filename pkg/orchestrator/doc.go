/*
Package orchestrator implements the blue/green deployment state machine.

One Orchestrator composes the color state store, the stack controller, the
health prober, and the traffic switch into four operator commands:

	deploy    stage the inactive color: build, start, confirm health
	switch    flip public traffic to the staged color and commit state
	rollback  restore routing and state to the last known-good color
	status    read-only: durable state plus live probes of both slots
	cleanup   stop the inactive stack after a confirmed switch

# The Deploy State Machine

	IDLE ──deploy──► BUILDING ──► HEALTH_CHECKING ──► PROMOTING ──► IDLE
	                    │                │
	                    └── ABORTING ◄───┘
	                           │
	                           ▼
	               target torn down, live color untouched

Deploy and switch are deliberately separate commands: deploy leaves the
verified target running and reports "ready to switch", giving the operator
a manual verification window before any traffic moves. The target color is
never operator-supplied; it is always computed as the inactive complement
of the persisted active color, which is what keeps the two-slot invariant.

# Failure Policy

Build, start, and health-check failures abort locally: the target stack is
torn down, the failure is recorded, and production is untouched; re-running
deploy retries from scratch. Switch and verify failures trigger an
automatic rollback to the previous color. A failed rollback is fatal and
loud; both colors may then be in an inconsistent routing state and the
operator must intervene.

# Single-Flight

The orchestrator performs no locking of its own: it requires an open
state.Store, whose exclusive file lock already guarantees one operation in
flight across processes. All collaborator calls are blocking and carry the
timeouts configured per phase; a timeout is the same as a failure.
*/
package orchestrator
