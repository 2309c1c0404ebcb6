/*
Package types defines the core data structures used throughout Cutover.

This package contains the fundamental types that represent Cutover's domain
model: deployment colors, the durable deployment state record, stack handles,
probe results, and the audit history of deployment attempts. These types are
used by all other packages for state management, orchestration logic, and
operator reporting.

# Architecture

The types package is the foundation of Cutover's data model. It defines:

  - The two-slot color model (blue, green)
  - The single durable DeploymentState record
  - Opaque handles for built stacks
  - Health probe results and readiness accounting
  - The deploy state machine phases
  - The per-attempt audit record
  - The failure taxonomy used for error classification

All types are designed to be:
  - Serializable (JSON, for BoltDB storage and the status API)
  - Small and copyable (single-record state, not a graph)
  - Self-documenting (clear field names and comments)
  - Validated (typed string enums with parse helpers)

# Core Types

Color Model:
  - Color: One of the two deployment slots ("blue", "green")
  - ParseColor: Strict parsing, rejects anything else
  - Color.Other: The complementary slot

Durable State:
  - DeploymentState: Which color is live, when it was switched, and the
    rollback target (LastKnownGoodColor)
  - DeploymentState.InactiveColor: The standby slot, always computed as
    the complement of the active one

Stack Lifecycle:
  - StackHandle: Opaque reference to one color's built stack, carrying
    the compose project name and the per-deploy build tag

Health Probing:
  - ProbeResult: Outcome of a single check or a full readiness gate,
    including the number of attempts consumed

State Machine:
  - Phase: idle → building → health_checking → {promoting, aborting} → idle
  - Operation: deploy, switch, rollback, cleanup
  - Outcome: succeeded, failed, aborted, noop

Reporting:
  - DeploymentRecord: One row of the audit history
  - ColorStatus / StatusReport: The read-only answer to the status query

# Usage

Computing the deploy target:

	state, err := store.Get(ctx)
	if err != nil {
		return err
	}
	target := state.InactiveColor()

Classifying a failure at the CLI boundary:

	if kind, ok := types.FailureKindOf(err); ok {
		switch kind {
		case types.FailBuild:
			os.Exit(2)
		case types.FailHealth:
			os.Exit(4)
		}
	}

Recording an attempt:

	rec := &types.DeploymentRecord{
		ID:        uuid.New().String(),
		Operation: types.OperationDeploy,
		Color:     target,
		Outcome:   types.OutcomeSucceeded,
		StartedAt: started,
	}

# State Machine

Deployments follow a fixed phase sequence:

	idle → building → health_checking → promoting → idle
	          ↓              ↓
	       aborting       aborting
	          ↓              ↓
	        idle           idle

Valid transitions:
  - idle → building (deploy command accepted)
  - building → health_checking (build and start succeeded)
  - building → aborting (build or start failed)
  - health_checking → promoting (readiness gate passed)
  - health_checking → aborting (readiness gate exhausted)
  - promoting → idle (target left running, "ready to switch")
  - aborting → idle (target torn down, live state untouched)

Promotion never flips traffic: the switch operation is a separate,
explicitly invoked step so an operator can verify the staged color first.

# Error Taxonomy

Failures from external collaborators are classified with OpError and a
FailureKind (build, start, stop, pull, health, switch, verify, rollback).
Classification survives wrapping, so callers use FailureKindOf or
IsFailure rather than string matching. Two sentinel errors cover the
store: ErrStateCorrupt (undecodable persisted state, recovered with the
documented default) and ErrLockBusy (another process holds the
single-flight lock).

# Integration Points

This package integrates with:

  - pkg/state: Persists DeploymentState and DeploymentRecord to BoltDB
  - pkg/stack: Creates and consumes StackHandle
  - pkg/health: Produces ProbeResult
  - pkg/proxy: Reports SwitchError/VerifyError through the taxonomy
  - pkg/orchestrator: Drives Phase transitions and Outcome recording
  - pkg/metrics: Labels collectors by Color and Operation
  - cmd/cutover: Maps FailureKind to process exit codes

# Invariants

  - Exactly one of {blue, green} is active at any time; the inactive
    color is always the complement.
  - DeploymentState.ActiveColor must equal the color the traffic switch
    currently routes to; only the orchestrator mutates it.
  - A DeploymentRecord is append-only; history is never rewritten.

# See Also

  - pkg/state for the persistence layer
  - pkg/orchestrator for the state machine implementation
*/
package types
