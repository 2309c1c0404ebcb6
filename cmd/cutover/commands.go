package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/quayside/cutover/pkg/events"
	"github.com/quayside/cutover/pkg/types"
	"github.com/spf13/cobra"
)

// timePrecision trims sub-millisecond noise from durations shown to operators.
const timePrecision = time.Millisecond

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build and stage the inactive color",
	Long: `Deploy builds the inactive color's stack, starts it, and waits for its
health endpoint to confirm readiness. Traffic is NOT touched: the staged
stack runs alongside the live one until you run switch.

On any failure the staged stack is torn down and the live color is left
exactly as it was; re-run deploy to retry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		orch := newOrchestrator(cfg, store, broker)

		fmt.Println("Deploying to the inactive color...")
		target, err := orch.Deploy(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("✓ %s built, started, and healthy\n", target)
		fmt.Println()
		fmt.Printf("Ready to switch. Verify %s manually if desired, then run:\n", target)
		fmt.Println("  cutover switch")
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Flip public traffic to the staged color",
	Long: `Switch points the reverse proxy at the staged (inactive) color, verifies
the flip through the public route, and commits the new active color.

A switch or verification failure triggers an automatic rollback to the
previous color. The previous color's stack keeps running until cleanup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		orch := newOrchestrator(cfg, store, broker)

		fmt.Println("Switching traffic to the staged color...")
		target, err := orch.Switch(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("✓ Traffic switched to %s and verified\n", target)
		fmt.Println()
		fmt.Printf("The %s stack is kept warm for rollback. Once satisfied, run:\n", target.Other())
		fmt.Println("  cutover cleanup")
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the last known-good color",
	Long: `Rollback reloads routing to the last known-good color and restores the
persisted state to match. It assumes that stack was kept warm (cutover
only ever stops a stack on a failed deploy or an explicit cleanup) and
re-verifies the restored route before reporting success.

Rollback is idempotent: once the system is back on the known-good color,
running it again is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		orch := newOrchestrator(cfg, store, broker)

		fmt.Println("Rolling back to the last known-good color...")
		target, err := orch.Rollback(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("✓ Active color is %s, routing verified\n", target)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deployment state and live health",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		orch := newOrchestrator(cfg, store, nil)
		report, err := orch.Status(cmd.Context())
		if err != nil {
			return err
		}

		printReport(report)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Stop the inactive color's stack",
	Long: `Cleanup stops the inactive color's stack, typically after a switch has
been confirmed and the old color is no longer needed as a rollback
target. The active color is never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		orch := newOrchestrator(cfg, store, broker)

		target, err := orch.Cleanup(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("✓ Stopped the inactive %s stack\n", target)
		fmt.Println("Note: rollback now requires a fresh deploy of that color.")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent deployment operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No operations recorded yet.")
			return nil
		}

		fmt.Printf("%-20s  %-9s  %-6s  %-9s  %-9s  %s\n",
			"STARTED", "OPERATION", "COLOR", "OUTCOME", "DURATION", "ERROR")
		for _, rec := range records {
			errText := rec.Error
			if len(errText) > 60 {
				errText = errText[:57] + "..."
			}
			fmt.Printf("%-20s  %-9s  %-6s  %-9s  %-9s  %s\n",
				rec.StartedAt.Format("2006-01-02 15:04:05"),
				rec.Operation,
				rec.Color,
				rec.Outcome,
				rec.Duration().Round(timePrecision),
				errText,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of records to show")
}

func printReport(report *types.StatusReport) {
	fmt.Printf("Active color:    %s\n", report.State.ActiveColor)
	fmt.Printf("Inactive color:  %s\n", report.State.InactiveColor())
	fmt.Printf("Known good:      %s\n", report.State.LastKnownGoodColor)
	if !report.State.LastSwitchTime.IsZero() {
		fmt.Printf("Last switch:     %s\n", report.State.LastSwitchTime.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Println("Last switch:     never")
	}
	fmt.Println()

	for _, cs := range report.Colors {
		marker := " "
		if cs.Active {
			marker = "*"
		}
		parts := []string{}
		if cs.Running {
			parts = append(parts, "running")
		} else {
			parts = append(parts, "stopped")
		}
		if cs.Probe != nil {
			if cs.Probe.Healthy {
				parts = append(parts, "healthy")
			} else {
				parts = append(parts, fmt.Sprintf("unhealthy (%s)", cs.Probe.Message))
			}
		}
		fmt.Printf("%s %-6s %s\n", marker, cs.Color, strings.Join(parts, ", "))
	}

	fmt.Println()
	if report.RoutedProbe != nil {
		if report.RoutedProbe.Healthy {
			fmt.Printf("✓ Public route healthy (HTTP %d, %v)\n",
				report.RoutedProbe.StatusCode, report.RoutedProbe.Latency.Round(timePrecision))
		} else {
			fmt.Printf("✗ Public route unhealthy: %s\n", report.RoutedProbe.Message)
		}
	}
}
