package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quayside/cutover/pkg/events"
	"github.com/quayside/cutover/pkg/health"
	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/metrics"
	"github.com/quayside/cutover/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultInterval is the probe loop cadence
	DefaultInterval = 15 * time.Second

	// routedTarget names the public-route probe in results and logs
	routedTarget = "routed"
)

// Options configures a Monitor.
type Options struct {
	// Interval is the time between probe cycles
	Interval time.Duration

	// BackendChecker probes a color's backend directly
	BackendChecker func(color types.Color) health.Checker

	// RoutedChecker probes the public endpoint through the proxy; nil
	// disables the routed probe
	RoutedChecker func() health.Checker

	// ExtraTargets supplies additional per-service probes (secondary
	// endpoints from config) appended to every cycle
	ExtraTargets func() []health.Target

	// Broker receives health.changed events; nil disables publishing
	Broker *events.Broker

	// Concurrency bounds parallel probes per cycle
	Concurrency int
}

// Monitor continuously probes both colors' backends and the public route,
// refreshing the health gauges and publishing transition events. It
// observes only; it never mutates deployment state.
type Monitor struct {
	opts   Options
	logger zerolog.Logger
	stopCh chan struct{}

	mu   sync.Mutex
	last map[string]bool
}

// NewMonitor creates a monitor from its probe sources.
func NewMonitor(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	return &Monitor{
		opts:   opts,
		logger: log.WithComponent("monitor"),
		stopCh: make(chan struct{}),
		last:   make(map[string]bool),
	}
}

// Start begins the probe loop
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop stops the monitor
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run(ctx context.Context) {
	// Probe immediately on start, then on the ticker.
	m.RunOnce(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs one probe cycle and returns its results. Exposed for
// the watch command, which prints each cycle to the console.
func (m *Monitor) RunOnce(ctx context.Context) []health.TargetResult {
	targets := []health.Target{
		{Name: "app", Color: types.ColorBlue, Checker: m.opts.BackendChecker(types.ColorBlue)},
		{Name: "app", Color: types.ColorGreen, Checker: m.opts.BackendChecker(types.ColorGreen)},
	}
	if m.opts.ExtraTargets != nil {
		targets = append(targets, m.opts.ExtraTargets()...)
	}
	if m.opts.RoutedChecker != nil {
		targets = append(targets, health.Target{Name: routedTarget, Checker: m.opts.RoutedChecker()})
	}

	results := health.ProbeAll(ctx, targets, m.opts.Concurrency)

	for _, tr := range results {
		switch {
		case tr.Target.Name == routedTarget:
			metrics.SetRoutedHealth(tr.Result.Healthy)
		case tr.Target.Name == "app":
			// Only the primary endpoint drives the per-color gauge.
			metrics.SetColorHealth(tr.Target.Color, tr.Result.Healthy)
			metrics.ObserveProbe(tr.Target.Color, tr.Result.Latency)
		default:
			metrics.ObserveProbe(tr.Target.Color, tr.Result.Latency)
		}
		m.noteTransition(tr)
	}
	return results
}

// noteTransition logs and publishes when a target's health flips.
func (m *Monitor) noteTransition(tr health.TargetResult) {
	key := tr.Target.Name + "/" + tr.Target.Color.String()

	m.mu.Lock()
	previous, seen := m.last[key]
	m.last[key] = tr.Result.Healthy
	m.mu.Unlock()

	if seen && previous == tr.Result.Healthy {
		return
	}

	event := m.logger.Info()
	if !tr.Result.Healthy {
		event = m.logger.Warn()
	}
	event.
		Str("target", tr.Target.Name).
		Str("color", tr.Target.Color.String()).
		Bool("healthy", tr.Result.Healthy).
		Str("message", tr.Result.Message).
		Msg("health state changed")

	if m.opts.Broker != nil {
		m.opts.Broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    events.EventHealthChanged,
			Color:   tr.Target.Color,
			Message: fmt.Sprintf("%s healthy=%t: %s", tr.Target.Name, tr.Result.Healthy, tr.Result.Message),
		})
	}
}
