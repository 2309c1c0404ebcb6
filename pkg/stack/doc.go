/*
Package stack drives the application stack for one deployment color.

Cutover never looks inside the stack: it is an opaque unit with a build
step, a start/stop lifecycle, and a health endpoint probed elsewhere. This
package is the Stack Controller: a Docker Compose driver that keeps the two
colors in fully separate compose projects ("<project>-blue" and
"<project>-green") sharing one compose file.

# Color Isolation

Both colors run the same compose file; the differences are injected through
the environment of every compose invocation:

	CUTOVER_COLOR      the color being driven ("blue" or "green")
	CUTOVER_PORT       the host port this color's public service binds
	CUTOVER_BUILD_TAG  the per-deploy tag minted by Build

A compose file references these to give each slot its own port mapping and
image tag, so old and new versions run side by side.

# Idempotence

Every operation converges rather than errors: Build on an already-built
color produces a fresh tag, Start on a running stack is a no-op "up", and
Stop on a stopped stack succeeds. Re-running a failed deploy therefore
needs no manual cleanup.

# Failure Semantics

Operations carry the timeout configured for their phase and classify
failures with the typed taxonomy (BuildError, StartError, StopError,
PullError). A failed Build or Start aborts a deploy before traffic is ever
touched; this is the safety property the orchestrator relies on.
*/
package stack
