package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quayside/cutover/pkg/types"
)

// scriptedChecker returns canned results in order, repeating the last one.
type scriptedChecker struct {
	results []types.ProbeResult
	calls   int
}

func (s *scriptedChecker) Check(ctx context.Context) types.ProbeResult {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

func (s *scriptedChecker) Type() CheckType { return CheckTypeHTTP }

func healthyResult() types.ProbeResult {
	return types.ProbeResult{Healthy: true, StatusCode: 200, CheckedAt: time.Now()}
}

func unhealthyResult() types.ProbeResult {
	return types.ProbeResult{Healthy: false, StatusCode: 503, Message: "HTTP 503", CheckedAt: time.Now()}
}

func testProber() *Prober {
	return NewProber().WithBackoff(time.Millisecond).WithSettleDelay(0)
}

func TestWaitReadyFirstAttemptHealthy(t *testing.T) {
	checker := &scriptedChecker{results: []types.ProbeResult{healthyResult()}}

	result := testProber().WaitReady(context.Background(), checker)

	if !result.Healthy {
		t.Fatalf("Expected ready, got: %s", result.Message)
	}
	if result.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", result.Attempts)
	}
	if checker.calls != 1 {
		t.Errorf("Expected 1 check, got %d", checker.calls)
	}
}

func TestWaitReadyRecoversWithinAttempts(t *testing.T) {
	checker := &scriptedChecker{results: []types.ProbeResult{
		unhealthyResult(),
		unhealthyResult(),
		healthyResult(),
	}}

	result := testProber().WithMaxAttempts(5).WaitReady(context.Background(), checker)

	if !result.Healthy {
		t.Fatalf("Expected ready after recovery, got: %s", result.Message)
	}
	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}
}

func TestWaitReadyExhaustsAttempts(t *testing.T) {
	checker := &scriptedChecker{results: []types.ProbeResult{unhealthyResult()}}

	result := testProber().WithMaxAttempts(4).WaitReady(context.Background(), checker)

	if result.Healthy {
		t.Fatal("Expected unhealthy after exhausting attempts")
	}
	if result.Attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", result.Attempts)
	}
	if checker.calls != 4 {
		t.Errorf("Expected 4 checks, got %d", checker.calls)
	}
}

func TestWaitReadySingleShot(t *testing.T) {
	// MaxAttempts=1 reproduces the legacy one-curl behavior.
	checker := &scriptedChecker{results: []types.ProbeResult{
		unhealthyResult(),
		healthyResult(),
	}}

	result := testProber().WithMaxAttempts(1).WaitReady(context.Background(), checker)

	if result.Healthy {
		t.Fatal("Expected single-shot probe to fail without retrying")
	}
	if checker.calls != 1 {
		t.Errorf("Expected exactly 1 check, got %d", checker.calls)
	}
}

func TestWaitReadyZeroAttemptsClampedToOne(t *testing.T) {
	checker := &scriptedChecker{results: []types.ProbeResult{healthyResult()}}

	result := testProber().WithMaxAttempts(0).WaitReady(context.Background(), checker)

	if !result.Healthy {
		t.Fatal("Expected the clamped single attempt to run")
	}
	if checker.calls != 1 {
		t.Errorf("Expected 1 check, got %d", checker.calls)
	}
}

func TestWaitReadyCancelledDuringSettle(t *testing.T) {
	checker := &scriptedChecker{results: []types.ProbeResult{healthyResult()}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	prober := testProber().WithSettleDelay(5 * time.Second)
	start := time.Now()
	result := prober.WaitReady(ctx, checker)

	if result.Healthy {
		t.Fatal("Expected cancellation during settle delay")
	}
	if checker.calls != 0 {
		t.Errorf("Expected no checks after cancellation, got %d", checker.calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected prompt cancellation, waited %v", elapsed)
	}
}

func TestWaitReadyCancelledBetweenAttempts(t *testing.T) {
	checker := &scriptedChecker{results: []types.ProbeResult{unhealthyResult()}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	prober := testProber().WithMaxAttempts(100).WithBackoff(10 * time.Millisecond).WithExponential(false)
	result := prober.WaitReady(ctx, checker)

	if result.Healthy {
		t.Fatal("Expected cancellation to abort the gate")
	}
	if checker.calls >= 100 {
		t.Errorf("Expected cancellation to stop the loop early, got %d checks", checker.calls)
	}
}

func TestProbeAllPreservesOrder(t *testing.T) {
	targets := []Target{
		{Name: "app", Color: types.ColorBlue, Checker: &scriptedChecker{results: []types.ProbeResult{healthyResult()}}},
		{Name: "api", Color: types.ColorBlue, Checker: &scriptedChecker{results: []types.ProbeResult{unhealthyResult()}}},
		{Name: "app", Color: types.ColorGreen, Checker: &scriptedChecker{results: []types.ProbeResult{healthyResult()}}},
	}

	results := ProbeAll(context.Background(), targets, 2)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Target.Name != "app" || !results[0].Result.Healthy {
		t.Error("Expected first target healthy in place")
	}
	if results[1].Result.Healthy {
		t.Error("Expected second target unhealthy in place")
	}
	if results[2].Target.Color != types.ColorGreen {
		t.Error("Expected target metadata preserved")
	}
}

func TestProbeAllBoundedConcurrency(t *testing.T) {
	const n = 8
	gate := &countingChecker{}

	targets := make([]Target, n)
	for i := range targets {
		targets[i] = Target{Name: "svc", Checker: gate}
	}

	ProbeAll(context.Background(), targets, 2)

	if gate.maxSeen > 2 {
		t.Errorf("Expected at most 2 probes in flight, saw %d", gate.maxSeen)
	}
}

type countingChecker struct {
	mu      sync.Mutex
	active  int
	maxSeen int
}

func (c *countingChecker) Check(ctx context.Context) types.ProbeResult {
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	c.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return types.ProbeResult{Healthy: true}
}

func (c *countingChecker) Type() CheckType { return CheckTypeHTTP }
