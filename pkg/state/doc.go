/*
Package state persists which deployment color is live.

The state package is Cutover's Color State Store: a single durable
DeploymentState record (active color, rollback target, switch timestamp)
plus an append-only history of deployment attempts, both kept in one BoltDB
file under the configured data directory. It replaces the shell-script era's
sed-edited .env flag with atomic, fsynced transactions.

# Architecture

	┌──────────────────── STATE STORE ─────────────────────┐
	│                                                      │
	│  <data_dir>/cutover.db  (exclusive flock)            │
	│                                                      │
	│  ┌─────────────────────┐  ┌───────────────────────┐  │
	│  │ deployment_state    │  │ deployment_history    │  │
	│  │  "current" → JSON   │  │  seq(020d) → JSON     │  │
	│  │  DeploymentState    │  │  DeploymentRecord     │  │
	│  └─────────────────────┘  └───────────────────────┘  │
	└──────────────────────────────────────────────────────┘

# Single-Flight Locking

BoltDB holds an exclusive file lock on the open database. Cutover leans on
this for its single-flight discipline: one open Store means one in-flight
deploy/switch/rollback. A second process opening the store fails fast with
types.ErrLockBusy instead of queueing.

# Bootstrap and Corruption

A missing record yields the documented default (blue live, blue as rollback
target) with a warning. A corrupt record yields the same default with an
error-level log; the next successful update overwrites it with a valid
record. Neither condition is fatal.

# Legacy Import

When configured with the legacy .env file path, an empty database imports
ACTIVE_COLOR from it once, so a cutover upgrade inherits the color the
shell scripts last switched to.

# Usage

	store, err := state.Open(state.Options{DataDir: cfg.DataDir})
	if err != nil {
		return err // types.ErrLockBusy if another operation is running
	}
	defer store.Close()

	st, err := store.Get(ctx)
	target := st.InactiveColor()

	// After a verified cutover:
	err = store.CommitSwitch(ctx, target)
*/
package state
