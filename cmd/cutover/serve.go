package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quayside/cutover/pkg/config"
	"github.com/quayside/cutover/pkg/events"
	"github.com/quayside/cutover/pkg/health"
	"github.com/quayside/cutover/pkg/metrics"
	"github.com/quayside/cutover/pkg/monitor"
	"github.com/quayside/cutover/pkg/types"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status API and background health monitor",
	Long: `Serve runs the long-lived observer process: a background monitor that
continuously probes both colors and the public route, plus an HTTP
surface exposing /healthz, /status (JSON state, health, and recent
events), and /metrics (Prometheus exposition).

Serve never mutates deployment state; deploy, switch, and rollback stay
separate operator-invoked commands and can run while serve is up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		ring := events.NewRing(broker, 50)
		defer ring.Stop()

		mon := newMonitor(cfg, broker)

		ctx := cmd.Context()
		mon.Start(ctx)
		defer mon.Stop()

		server := metrics.NewServer(cfg.Serve.Addr, statusFunc(cfg), ring)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		fmt.Printf("✓ Status server listening on %s\n", cfg.Serve.Addr)
		fmt.Println("Press Ctrl+C to stop")

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously probe and print health to the console",
	Long: `Watch runs the same probe cycle as serve but prints each result to the
console instead of serving HTTP. Useful while babysitting a switch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		mon := newMonitor(cfg, nil)
		interval := config.ParseDuration(cfg.Serve.MonitorInterval, config.DefaultMonitorInterval)

		ctx := cmd.Context()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		printCycle := func() error {
			active, err := activeColor(ctx, cfg)
			if err != nil {
				return err
			}
			results := mon.RunOnce(ctx)
			fmt.Printf("[%s] active=%s\n", time.Now().Format("15:04:05"), active)
			for _, tr := range results {
				mark := "✓"
				detail := fmt.Sprintf("%v", tr.Result.Latency.Round(timePrecision))
				if !tr.Result.Healthy {
					mark = "✗"
					detail = tr.Result.Message
				}
				label := tr.Target.Name
				if tr.Target.Color != "" {
					label = fmt.Sprintf("%s/%s", tr.Target.Color, tr.Target.Name)
				}
				fmt.Printf("  %s %-20s %s\n", mark, label, detail)
			}
			return nil
		}

		if err := printCycle(); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nStopped")
				return nil
			case <-ticker.C:
				if err := printCycle(); err != nil {
					return err
				}
			}
		}
	},
}

// statusFunc builds the /status answer. The store is opened per query and
// closed right after: holding it open would hold the single-flight lock and
// block every deploy, switch, and rollback for serve's lifetime.
func statusFunc(cfg *config.Config) metrics.StatusFunc {
	return func(ctx context.Context) (*types.StatusReport, error) {
		store, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return newOrchestrator(cfg, store, nil).Status(ctx)
	}
}

// activeColor reads the active color without keeping the lock. A busy lock
// means an operation is mid-flight; watch keeps probing instead of failing.
func activeColor(ctx context.Context, cfg *config.Config) (string, error) {
	store, err := openStore(cfg)
	if errors.Is(err, types.ErrLockBusy) {
		return "(operation in flight)", nil
	}
	if err != nil {
		return "", err
	}
	defer store.Close()

	st, err := store.Get(ctx)
	if err != nil {
		return "", err
	}
	return string(st.ActiveColor), nil
}

func newMonitor(cfg *config.Config, broker *events.Broker) *monitor.Monitor {
	return monitor.NewMonitor(monitor.Options{
		Interval:       config.ParseDuration(cfg.Serve.MonitorInterval, config.DefaultMonitorInterval),
		BackendChecker: backendChecker(cfg),
		RoutedChecker:  routedChecker(cfg),
		ExtraTargets: func() []health.Target {
			return extraTargets(cfg)
		},
		Broker: broker,
	})
}
