package health

import (
	"context"
	"sync"

	"github.com/quayside/cutover/pkg/types"
)

// Target names one endpoint to probe in a fan-out.
type Target struct {
	// Name identifies the endpoint in reports (e.g., "app", "api")
	Name string

	// Color is the slot the endpoint belongs to; empty for the public route
	Color types.Color

	Checker Checker
}

// TargetResult pairs a probed target with its result.
type TargetResult struct {
	Target Target
	Result types.ProbeResult
}

// ProbeAll checks every target once with at most concurrency probes in
// flight. Results preserve target order. Only status and monitor paths fan
// out like this; a deploy's readiness gate stays a sequential retry loop.
func ProbeAll(ctx context.Context, targets []Target, concurrency int) []TargetResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]TargetResult, len(targets))
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = TargetResult{
				Target: target,
				Result: target.Checker.Check(ctx),
			}
		}(i, target)
	}
	wg.Wait()

	return results
}
