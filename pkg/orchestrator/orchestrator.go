package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quayside/cutover/pkg/events"
	"github.com/quayside/cutover/pkg/health"
	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/metrics"
	"github.com/quayside/cutover/pkg/proxy"
	"github.com/quayside/cutover/pkg/stack"
	"github.com/quayside/cutover/pkg/state"
	"github.com/quayside/cutover/pkg/types"
	"github.com/rs/zerolog"
)

// Options wires the orchestrator's collaborators. Store, Stack, Switcher,
// and BackendChecker are required; the rest default sensibly.
type Options struct {
	Store    state.Store
	Stack    stack.Controller
	Switcher proxy.Switcher

	// Prober gates promotion during a deploy
	Prober *health.Prober

	// BackendChecker probes a color's backend directly, bypassing the proxy
	BackendChecker func(color types.Color) health.Checker

	// RoutedChecker probes the public endpoint through the proxy
	RoutedChecker func() health.Checker

	// Broker receives lifecycle events; nil disables publishing
	Broker *events.Broker

	// PullFirst refreshes base images before each build
	PullFirst bool

	// ProbeConcurrency bounds the status fan-out
	ProbeConcurrency int
}

// Orchestrator is the deploy/switch/rollback/status state machine. It is a
// single-threaded sequencer: every external call blocks, and the open
// store's exclusive lock guarantees only one operation is in flight across
// processes.
type Orchestrator struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New creates an orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	if opts.Prober == nil {
		opts.Prober = health.NewProber()
	}
	if opts.ProbeConcurrency < 1 {
		opts.ProbeConcurrency = 4
	}
	return &Orchestrator{
		opts:   opts,
		logger: log.WithComponent("orchestrator"),
		now:    time.Now,
	}
}

// Deploy stages the inactive color: build, start, and confirm health. It
// deliberately does NOT touch routing or the active color; the operator
// verifies the staged stack and then runs switch. On any failure the target
// stack is torn down and the live color is untouched.
func (o *Orchestrator) Deploy(ctx context.Context) (types.Color, error) {
	st, err := o.opts.Store.Get(ctx)
	if err != nil {
		return "", err
	}
	target := st.InactiveColor()

	rec := o.newRecord(types.OperationDeploy, target)
	timer := metrics.NewTimer()
	metrics.OperationInFlight.Set(1)
	defer metrics.OperationInFlight.Set(0)

	logger := o.logger.With().Str("operation", "deploy").Str("target", target.String()).Logger()
	logger.Info().Str("active", st.ActiveColor.String()).Msg("deploying to inactive color")
	o.publish(events.EventDeployStarted, target, "deploy started")

	// BUILDING
	if o.opts.PullFirst {
		if err := o.opts.Stack.Pull(ctx, target); err != nil {
			return target, o.abortDeploy(ctx, rec, timer, nil, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return target, o.abortDeploy(ctx, rec, timer, nil, fmt.Errorf("deploy cancelled: %w", err))
	}

	handle, err := o.opts.Stack.Build(ctx, target)
	if err != nil {
		o.publish(events.EventBuildFailed, target, err.Error())
		// A failed build can leave partial containers; tear them down.
		return target, o.abortDeploy(ctx, rec, timer, o.handleFor(target), err)
	}
	rec.BuildTag = handle.BuildTag
	o.publish(events.EventBuildSucceeded, target, "build "+handle.BuildTag)

	if err := ctx.Err(); err != nil {
		return target, o.abortDeploy(ctx, rec, timer, handle, fmt.Errorf("deploy cancelled: %w", err))
	}
	if err := o.opts.Stack.Start(ctx, handle); err != nil {
		return target, o.abortDeploy(ctx, rec, timer, handle, err)
	}

	// HEALTH_CHECKING: probe the backend directly, bypassing the router.
	result := o.opts.Prober.WaitReady(ctx, o.opts.BackendChecker(target))
	metrics.ObserveProbe(target, result.Latency)
	if !result.Healthy {
		o.publish(events.EventHealthFailed, target, result.Message)
		err := types.NewOpError(types.FailHealth, target, fmt.Errorf("%s", result.Message))
		return target, o.abortDeploy(ctx, rec, timer, handle, err)
	}
	o.publish(events.EventHealthPassed, target,
		fmt.Sprintf("healthy after %d attempt(s)", result.Attempts))

	// PROMOTING: the target stays running and verified; flipping traffic is
	// the separate switch command, so the operator can inspect it first.
	o.finishRecord(ctx, rec, types.OutcomeSucceeded, nil, timer)
	o.publish(events.EventDeployReady, target, "ready to switch")
	logger.Info().
		Str("build_tag", handle.BuildTag).
		Int("attempts", result.Attempts).
		Msg("target staged and healthy; run switch to promote")
	return target, nil
}

// Switch flips public traffic to the staged inactive color, verifies the
// flip through the public route, and only then commits the new active
// color. Switch or verify failure triggers automatic rollback.
func (o *Orchestrator) Switch(ctx context.Context) (types.Color, error) {
	st, err := o.opts.Store.Get(ctx)
	if err != nil {
		return "", err
	}
	target := st.InactiveColor()
	previous := st.ActiveColor

	rec := o.newRecord(types.OperationSwitch, target)
	timer := metrics.NewTimer()
	metrics.OperationInFlight.Set(1)
	defer metrics.OperationInFlight.Set(0)

	logger := o.logger.With().Str("operation", "switch").Str("target", target.String()).Logger()

	// Pre-flight: refuse to touch routing unless the staged stack still
	// answers. Rollback assumes stacks are kept warm; the same holds here.
	pre := o.opts.BackendChecker(target).Check(ctx)
	if !pre.Healthy {
		err := types.NewOpError(types.FailHealth, target,
			fmt.Errorf("refusing to switch, staged stack is not healthy: %s", pre.Message))
		o.finishRecord(ctx, rec, types.OutcomeFailed, err, timer)
		return target, err
	}

	o.publish(events.EventSwitchStarted, target, "switching traffic")
	logger.Info().Str("from", previous.String()).Msg("flipping public traffic")

	if err := o.opts.Switcher.SwitchTo(ctx, target); err != nil {
		o.publish(events.EventSwitchFailed, target, err.Error())
		return target, o.failSwitch(ctx, rec, timer, previous, err)
	}

	ok, verr := o.opts.Switcher.Verify(ctx, target)
	if verr != nil || !ok {
		err := types.NewOpError(types.FailVerify, target, verifyErr(verr))
		o.publish(events.EventSwitchFailed, target, err.Error())
		return target, o.failSwitch(ctx, rec, timer, previous, err)
	}

	if err := o.opts.Store.CommitSwitch(ctx, target); err != nil {
		return target, o.failSwitch(ctx, rec, timer, previous, err)
	}

	metrics.SetActiveColor(target)
	metrics.LastSwitchTimestamp.Set(float64(o.now().Unix()))
	o.finishRecord(ctx, rec, types.OutcomeSucceeded, nil, timer)
	o.publish(events.EventSwitchCompleted, target, "traffic switched")
	logger.Info().Msg("switch verified and committed")
	return target, nil
}

// Rollback restores routing and state to the last known-good color. It is
// idempotent: once the system is back on that color and verified, repeated
// rollbacks are no-ops. A rollback failure is fatal; there is no further
// automatic recovery.
func (o *Orchestrator) Rollback(ctx context.Context) (types.Color, error) {
	st, err := o.opts.Store.Get(ctx)
	if err != nil {
		return "", err
	}
	target := st.LastKnownGoodColor

	rec := o.newRecord(types.OperationRollback, target)
	timer := metrics.NewTimer()
	metrics.OperationInFlight.Set(1)
	defer metrics.OperationInFlight.Set(0)

	logger := o.logger.With().Str("operation", "rollback").Str("target", target.String()).Logger()

	if st.ActiveColor == target {
		if ok, verr := o.opts.Switcher.Verify(ctx, target); verr == nil && ok {
			logger.Info().Msg("already on last known-good color; nothing to roll back")
			o.finishRecord(ctx, rec, types.OutcomeNoop, nil, timer)
			return target, nil
		}
		// State says we are on the good color but the route disagrees;
		// reapply the routing config.
		logger.Warn().Msg("state and routing disagree; reapplying routing")
	}

	o.publish(events.EventRollbackStarted, target, "rolling back")
	if err := o.rollbackTo(ctx, target); err != nil {
		o.publish(events.EventRollbackFailed, target, err.Error())
		o.finishRecord(ctx, rec, types.OutcomeFailed, err, timer)
		logger.Error().Err(err).Msg("ROLLBACK FAILED; manual intervention required")
		return target, err
	}

	metrics.SetActiveColor(target)
	o.finishRecord(ctx, rec, types.OutcomeSucceeded, nil, timer)
	o.publish(events.EventRollbackCompleted, target, "rolled back")
	logger.Info().Msg("rollback complete")
	return target, nil
}

// Status reports durable state plus a live look at both stacks and the
// routed public endpoint. Read-only: no records, no events, no mutation.
func (o *Orchestrator) Status(ctx context.Context) (*types.StatusReport, error) {
	st, err := o.opts.Store.Get(ctx)
	if err != nil {
		return nil, err
	}

	report := &types.StatusReport{
		State:       st,
		GeneratedAt: o.now(),
	}

	targets := []health.Target{
		{Name: "app", Color: types.ColorBlue, Checker: o.opts.BackendChecker(types.ColorBlue)},
		{Name: "app", Color: types.ColorGreen, Checker: o.opts.BackendChecker(types.ColorGreen)},
	}
	results := health.ProbeAll(ctx, targets, o.opts.ProbeConcurrency)

	for _, tr := range results {
		color := tr.Target.Color
		running, rerr := o.opts.Stack.Running(ctx, color)
		if rerr != nil {
			o.logger.Warn().Err(rerr).Str("color", color.String()).Msg("could not determine stack state")
		}
		probe := tr.Result
		report.Colors = append(report.Colors, types.ColorStatus{
			Color:   color,
			Active:  color == st.ActiveColor,
			Running: running,
			Probe:   &probe,
		})
	}

	if o.opts.RoutedChecker != nil {
		routed := o.opts.RoutedChecker().Check(ctx)
		report.RoutedProbe = &routed
	}
	return report, nil
}

// Cleanup stops the inactive color's stack. Meant for after a switch has
// been confirmed; it refuses, by construction, to ever stop the live color.
func (o *Orchestrator) Cleanup(ctx context.Context) (types.Color, error) {
	st, err := o.opts.Store.Get(ctx)
	if err != nil {
		return "", err
	}
	target := st.InactiveColor()

	rec := o.newRecord(types.OperationCleanup, target)
	timer := metrics.NewTimer()

	o.logger.Info().Str("color", target.String()).Msg("stopping inactive stack")
	if err := o.opts.Stack.Stop(ctx, o.handleFor(target)); err != nil {
		o.finishRecord(ctx, rec, types.OutcomeFailed, err, timer)
		return target, err
	}

	o.finishRecord(ctx, rec, types.OutcomeSucceeded, nil, timer)
	o.publish(events.EventCleanupCompleted, target, "inactive stack stopped")
	return target, nil
}

// abortDeploy is the ABORTING phase: tear down whatever came up for the
// target, record the failure, and surface the original error. The live
// color is never touched here.
func (o *Orchestrator) abortDeploy(ctx context.Context, rec *types.DeploymentRecord, timer *metrics.Timer, handle *types.StackHandle, cause error) error {
	o.logger.Warn().Err(cause).Str("target", rec.Color.String()).Msg("aborting deploy")

	if handle != nil {
		// Teardown runs even when ctx is cancelled; give it its own grace.
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stack.DefaultStopTimeout)
		defer cancel()
		if err := o.opts.Stack.Stop(stopCtx, handle); err != nil {
			o.logger.Error().Err(err).Str("target", rec.Color.String()).
				Msg("failed to tear down aborted target stack")
		}
	}

	o.finishRecord(ctx, rec, types.OutcomeAborted, cause, timer)
	o.publish(events.EventDeployAborted, rec.Color, cause.Error())
	return cause
}

// failSwitch handles a switch/verify failure: automatic rollback to the
// previous color. If the rollback itself fails, that is escalated as the
// fatal error; the original failure rides along in the message.
func (o *Orchestrator) failSwitch(ctx context.Context, rec *types.DeploymentRecord, timer *metrics.Timer, previous types.Color, cause error) error {
	o.logger.Warn().Err(cause).Str("previous", previous.String()).Msg("switch failed; rolling back")
	o.publish(events.EventRollbackStarted, previous, "automatic rollback")

	if rberr := o.rollbackTo(ctx, previous); rberr != nil {
		fatal := types.NewOpError(types.FailRollback, previous,
			fmt.Errorf("automatic rollback failed after switch failure (%v): %w", cause, rberr))
		o.publish(events.EventRollbackFailed, previous, fatal.Error())
		o.finishRecord(ctx, rec, types.OutcomeFailed, fatal, timer)
		o.logger.Error().Err(fatal).Msg("ROLLBACK FAILED; routing state is inconsistent, manual intervention required")
		return fatal
	}

	o.publish(events.EventRollbackCompleted, previous, "automatic rollback complete")
	o.finishRecord(ctx, rec, types.OutcomeFailed, cause, timer)
	return cause
}

// rollbackTo reapplies routing for color, re-verifies the restored path,
// and records it as active. Restored stacks are assumed kept warm: deploys
// only tear down their own aborted target, never the previous color.
func (o *Orchestrator) rollbackTo(ctx context.Context, color types.Color) error {
	if err := o.opts.Switcher.SwitchTo(ctx, color); err != nil {
		return types.NewOpError(types.FailRollback, color, err)
	}
	ok, err := o.opts.Switcher.Verify(ctx, color)
	if err != nil || !ok {
		return types.NewOpError(types.FailRollback, color,
			fmt.Errorf("restored routing did not verify: %w", verifyErr(err)))
	}
	if err := o.opts.Store.SetActive(ctx, color); err != nil {
		return types.NewOpError(types.FailRollback, color, err)
	}
	return nil
}

func (o *Orchestrator) handleFor(color types.Color) *types.StackHandle {
	project := ""
	if c, ok := o.opts.Stack.(*stack.ComposeController); ok {
		project = c.ProjectName(color)
	}
	return &types.StackHandle{Color: color, Project: project, CreatedAt: o.now()}
}

func (o *Orchestrator) newRecord(op types.Operation, color types.Color) *types.DeploymentRecord {
	return &types.DeploymentRecord{
		ID:        uuid.NewString(),
		Operation: op,
		Color:     color,
		StartedAt: o.now(),
	}
}

func (o *Orchestrator) finishRecord(ctx context.Context, rec *types.DeploymentRecord, outcome types.Outcome, cause error, timer *metrics.Timer) {
	rec.Outcome = outcome
	rec.FinishedAt = o.now()
	if cause != nil {
		rec.Error = cause.Error()
	}
	metrics.RecordOperation(rec.Operation, outcome, timer.Duration())

	// History is best-effort; losing a record must not fail the operation.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.opts.Store.Record(recordCtx, rec); err != nil {
		o.logger.Warn().Err(err).Msg("failed to append history record")
	}
}

func (o *Orchestrator) publish(eventType events.EventType, color types.Color, message string) {
	if o.opts.Broker == nil {
		return
	}
	o.opts.Broker.Publish(&events.Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Color:   color,
		Message: message,
	})
}

func verifyErr(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("public route does not answer for the expected color")
}
