package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quayside/cutover/pkg/health"
	"github.com/quayside/cutover/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory state.Store.
type fakeStore struct {
	st      *types.DeploymentState
	records []*types.DeploymentRecord
	getErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{st: &types.DeploymentState{
		ActiveColor:        types.ColorBlue,
		LastKnownGoodColor: types.ColorBlue,
	}}
}

func (f *fakeStore) Get(ctx context.Context) (*types.DeploymentState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copied := *f.st
	return &copied, nil
}

func (f *fakeStore) SetActive(ctx context.Context, color types.Color) error {
	f.st.ActiveColor = color
	f.st.LastSwitchTime = time.Now()
	return nil
}

func (f *fakeStore) CommitSwitch(ctx context.Context, color types.Color) error {
	if f.st.ActiveColor != color {
		f.st.LastKnownGoodColor = f.st.ActiveColor
	}
	f.st.ActiveColor = color
	f.st.LastSwitchTime = time.Now()
	return nil
}

func (f *fakeStore) Record(ctx context.Context, rec *types.DeploymentRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) History(ctx context.Context, limit int) ([]*types.DeploymentRecord, error) {
	return f.records, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeStack records lifecycle calls per color.
type fakeStack struct {
	buildErr error
	startErr error
	stopErr  error
	pullErr  error

	built   []types.Color
	started []types.Color
	stopped []types.Color
	pulled  []types.Color
	running map[types.Color]bool
}

func (f *fakeStack) Build(ctx context.Context, color types.Color) (*types.StackHandle, error) {
	if f.buildErr != nil {
		return nil, types.NewOpError(types.FailBuild, color, f.buildErr)
	}
	f.built = append(f.built, color)
	return &types.StackHandle{Color: color, Project: "test-" + color.String(), BuildTag: "tag01"}, nil
}

func (f *fakeStack) Start(ctx context.Context, handle *types.StackHandle) error {
	if f.startErr != nil {
		return types.NewOpError(types.FailStart, handle.Color, f.startErr)
	}
	f.started = append(f.started, handle.Color)
	if f.running == nil {
		f.running = make(map[types.Color]bool)
	}
	f.running[handle.Color] = true
	return nil
}

func (f *fakeStack) Stop(ctx context.Context, handle *types.StackHandle) error {
	if f.stopErr != nil {
		return types.NewOpError(types.FailStop, handle.Color, f.stopErr)
	}
	f.stopped = append(f.stopped, handle.Color)
	if f.running != nil {
		f.running[handle.Color] = false
	}
	return nil
}

func (f *fakeStack) Pull(ctx context.Context, color types.Color) error {
	if f.pullErr != nil {
		return types.NewOpError(types.FailPull, color, f.pullErr)
	}
	f.pulled = append(f.pulled, color)
	return nil
}

func (f *fakeStack) Running(ctx context.Context, color types.Color) (bool, error) {
	return f.running[color], nil
}

// fakeSwitcher scripts routing behavior.
type fakeSwitcher struct {
	routed     types.Color
	switchErr  error
	verifyOK   bool
	verifyErr  error
	switchedTo []types.Color
	verified   []types.Color

	// verifyFailFor fails verification only for one color, so automatic
	// rollback to the other color can still verify
	verifyFailFor types.Color

	// failSwitchOnce fails only the first SwitchTo, so the automatic
	// rollback's reapply can succeed
	failSwitchOnce bool
}

func newFakeSwitcher() *fakeSwitcher {
	return &fakeSwitcher{routed: types.ColorBlue, verifyOK: true}
}

func (f *fakeSwitcher) SwitchTo(ctx context.Context, color types.Color) error {
	if f.switchErr != nil {
		err := f.switchErr
		if f.failSwitchOnce {
			f.switchErr = nil
		}
		return types.NewOpError(types.FailSwitch, color, err)
	}
	f.switchedTo = append(f.switchedTo, color)
	f.routed = color
	return nil
}

func (f *fakeSwitcher) Verify(ctx context.Context, color types.Color) (bool, error) {
	f.verified = append(f.verified, color)
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	if !f.verifyOK {
		return false, nil
	}
	if f.verifyFailFor != "" && color == f.verifyFailFor {
		return false, nil
	}
	return f.routed == color, nil
}

func (f *fakeSwitcher) Active(ctx context.Context) (types.Color, bool) {
	return f.routed, true
}

// fakeChecker reports health per color.
type fakeChecker struct {
	healthy bool
}

func (f *fakeChecker) Check(ctx context.Context) types.ProbeResult {
	if f.healthy {
		return types.ProbeResult{Healthy: true, StatusCode: 200, Attempts: 1}
	}
	return types.ProbeResult{Healthy: false, StatusCode: 503, Message: "HTTP 503", Attempts: 1}
}

func (f *fakeChecker) Type() health.CheckType { return health.CheckTypeHTTP }

type fixture struct {
	store    *fakeStore
	stack    *fakeStack
	switcher *fakeSwitcher
	backends map[types.Color]*fakeChecker
	routed   *fakeChecker
	orch     *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		stack:    &fakeStack{},
		switcher: newFakeSwitcher(),
		backends: map[types.Color]*fakeChecker{
			types.ColorBlue:  {healthy: true},
			types.ColorGreen: {healthy: true},
		},
		routed: &fakeChecker{healthy: true},
	}
	f.orch = New(Options{
		Store:    f.store,
		Stack:    f.stack,
		Switcher: f.switcher,
		Prober:   health.NewProber().WithMaxAttempts(2).WithBackoff(time.Millisecond).WithSettleDelay(0),
		BackendChecker: func(color types.Color) health.Checker {
			return f.backends[color]
		},
		RoutedChecker: func() health.Checker { return f.routed },
	})
	return f
}

func TestDeployStagesInactiveWithoutTouchingTraffic(t *testing.T) {
	f := newFixture()

	target, err := f.orch.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorGreen, target)

	// Built and started the standby slot only.
	assert.Equal(t, []types.Color{types.ColorGreen}, f.stack.built)
	assert.Equal(t, []types.Color{types.ColorGreen}, f.stack.started)

	// Deploy never flips traffic or active color.
	assert.Empty(t, f.switcher.switchedTo)
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
	assert.Equal(t, types.ColorBlue, f.store.st.LastKnownGoodColor)

	require.Len(t, f.store.records, 1)
	assert.Equal(t, types.OutcomeSucceeded, f.store.records[0].Outcome)
	assert.Equal(t, "tag01", f.store.records[0].BuildTag)
}

func TestScenarioADeployThenSwitchPromotesGreen(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Deploy(context.Background())
	require.NoError(t, err)

	target, err := f.orch.Switch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorGreen, target)

	assert.Equal(t, types.ColorGreen, f.store.st.ActiveColor)
	assert.Equal(t, types.ColorBlue, f.store.st.LastKnownGoodColor)
	assert.Equal(t, types.ColorGreen, f.switcher.routed)
	assert.Equal(t, []types.Color{types.ColorGreen}, f.switcher.verified)
}

func TestScenarioBUnhealthyDeployAbortsAndTearsDown(t *testing.T) {
	f := newFixture()
	f.backends[types.ColorGreen].healthy = false

	_, err := f.orch.Deploy(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailHealth))

	// Safety: active color unchanged after a failed deploy.
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
	// The partial green stack is torn down.
	assert.Equal(t, []types.Color{types.ColorGreen}, f.stack.stopped)
	assert.Empty(t, f.switcher.switchedTo)

	require.Len(t, f.store.records, 1)
	assert.Equal(t, types.OutcomeAborted, f.store.records[0].Outcome)
}

func TestBuildFailureAbortsBeforeTraffic(t *testing.T) {
	f := newFixture()
	f.stack.buildErr = errors.New("compile error")

	_, err := f.orch.Deploy(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailBuild))
	assert.Empty(t, f.stack.started)
	assert.Empty(t, f.switcher.switchedTo)
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
}

func TestStartFailureAbortsAndTearsDown(t *testing.T) {
	f := newFixture()
	f.stack.startErr = errors.New("port already bound")

	_, err := f.orch.Deploy(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailStart))
	assert.Equal(t, []types.Color{types.ColorGreen}, f.stack.stopped)
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
}

func TestDeployWithPullFirst(t *testing.T) {
	f := newFixture()
	f.orch.opts.PullFirst = true

	_, err := f.orch.Deploy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []types.Color{types.ColorGreen}, f.stack.pulled)
}

func TestDeployCancelledBeforeBuild(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Deploy(ctx)
	require.Error(t, err)
	assert.Empty(t, f.stack.built)
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
}

func TestSwitchRefusesWhenStagedStackUnhealthy(t *testing.T) {
	f := newFixture()
	f.backends[types.ColorGreen].healthy = false

	_, err := f.orch.Switch(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailHealth))
	// Routing was never touched.
	assert.Empty(t, f.switcher.switchedTo)
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
}

func TestScenarioCVerifyFailureRollsBack(t *testing.T) {
	f := newFixture()
	require.NoError(t, errNil(f.orch.Deploy(context.Background())))

	// The flip happens but the public route keeps answering as blue.
	f.switcher.verifyFailFor = types.ColorGreen

	_, err := f.orch.Switch(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailVerify))

	// Automatic rollback restored blue routing and state.
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
	last := f.switcher.switchedTo[len(f.switcher.switchedTo)-1]
	assert.Equal(t, types.ColorBlue, last)
}

func TestSwitchErrorRollsBack(t *testing.T) {
	f := newFixture()
	f.switcher.switchErr = errors.New("nginx reload failed")
	f.switcher.failSwitchOnce = true

	_, err := f.orch.Switch(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailSwitch))
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
	// The rollback reapplied blue routing.
	assert.Equal(t, []types.Color{types.ColorBlue}, f.switcher.switchedTo)
}

func TestRollbackFailureIsFatal(t *testing.T) {
	f := newFixture()
	// Every SwitchTo fails: the switch fails and so does the rollback.
	f.switcher.switchErr = errors.New("routing layer unreachable")

	_, err := f.orch.Switch(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsFailure(err, types.FailRollback))
}

func TestRollbackIdempotent(t *testing.T) {
	f := newFixture()
	require.NoError(t, errNil(f.orch.Deploy(context.Background())))
	require.NoError(t, errNil(f.orch.Switch(context.Background())))

	// First rollback restores blue.
	target, err := f.orch.Rollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorBlue, target)
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
	assert.Equal(t, types.ColorBlue, f.switcher.routed)

	stateAfterFirst := *f.store.st
	switches := len(f.switcher.switchedTo)

	// Second rollback is a no-op.
	target, err = f.orch.Rollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorBlue, target)
	assert.Equal(t, stateAfterFirst.ActiveColor, f.store.st.ActiveColor)
	assert.Equal(t, stateAfterFirst.LastKnownGoodColor, f.store.st.LastKnownGoodColor)
	assert.Equal(t, switches, len(f.switcher.switchedTo), "no extra routing reloads")

	noop := f.store.records[len(f.store.records)-1]
	assert.Equal(t, types.OutcomeNoop, noop.Outcome)
}

func TestRoundTripRestoresPreDeployState(t *testing.T) {
	f := newFixture()
	before := f.store.st.ActiveColor

	require.NoError(t, errNil(f.orch.Deploy(context.Background())))
	require.NoError(t, errNil(f.orch.Switch(context.Background())))
	require.NoError(t, errNil(f.orch.Rollback(context.Background())))

	assert.Equal(t, before, f.store.st.ActiveColor)
	assert.Equal(t, before, f.switcher.routed, "routing matches restored state")
}

func TestRollbackReappliesRoutingWhenRouteDisagrees(t *testing.T) {
	f := newFixture()
	// State says blue but the proxy answers green.
	f.switcher.routed = types.ColorGreen

	_, err := f.orch.Rollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorBlue, f.switcher.routed)
	assert.Equal(t, types.ColorBlue, f.store.st.ActiveColor)
}

func TestScenarioDStatusOnFreshSystem(t *testing.T) {
	f := newFixture()

	report, err := f.orch.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorBlue, report.State.ActiveColor)
	assert.Equal(t, types.ColorGreen, report.State.InactiveColor())
	require.Len(t, report.Colors, 2)
	assert.True(t, report.Colors[0].Active)  // blue
	assert.False(t, report.Colors[1].Active) // green
	require.NotNil(t, report.RoutedProbe)
	assert.True(t, report.Healthy())
}

func TestStatusIsReadOnly(t *testing.T) {
	f := newFixture()

	_, err := f.orch.Status(context.Background())
	require.NoError(t, err)

	assert.Empty(t, f.store.records)
	assert.Empty(t, f.switcher.switchedTo)
	assert.Empty(t, f.stack.built)
	assert.Empty(t, f.stack.stopped)
}

func TestExactlyOneColorActiveThroughLifecycle(t *testing.T) {
	f := newFixture()

	checkInvariant := func() {
		st, err := f.store.Get(context.Background())
		require.NoError(t, err)
		assert.True(t, st.ActiveColor.Valid())
		assert.Equal(t, st.ActiveColor.Other(), st.InactiveColor())
	}

	checkInvariant()
	_, _ = f.orch.Deploy(context.Background())
	checkInvariant()
	_, _ = f.orch.Switch(context.Background())
	checkInvariant()
	_, _ = f.orch.Rollback(context.Background())
	checkInvariant()
}

func TestCleanupStopsOnlyInactive(t *testing.T) {
	f := newFixture()
	require.NoError(t, errNil(f.orch.Deploy(context.Background())))
	require.NoError(t, errNil(f.orch.Switch(context.Background())))

	// Green is live; cleanup must stop blue.
	target, err := f.orch.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.ColorBlue, target)
	assert.Contains(t, f.stack.stopped, types.ColorBlue)
	assert.NotContains(t, f.stack.stopped, types.ColorGreen)
}

func TestStoreErrorPropagates(t *testing.T) {
	f := newFixture()
	f.store.getErr = errors.New("db locked")

	_, err := f.orch.Deploy(context.Background())
	assert.Error(t, err)
	_, err = f.orch.Switch(context.Background())
	assert.Error(t, err)
	_, err = f.orch.Rollback(context.Background())
	assert.Error(t, err)
	_, err = f.orch.Status(context.Background())
	assert.Error(t, err)
}

// errNil drops the color so require.NoError reads cleanly.
func errNil(_ types.Color, err error) error { return err }
