package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quayside/cutover/pkg/config"
	"github.com/quayside/cutover/pkg/events"
	"github.com/quayside/cutover/pkg/health"
	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/orchestrator"
	"github.com/quayside/cutover/pkg/proxy"
	"github.com/quayside/cutover/pkg/stack"
	"github.com/quayside/cutover/pkg/state"
	"github.com/quayside/cutover/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Exit codes by error class, so scripts wrapping cutover can branch on
// what failed without parsing stderr.
const (
	exitGeneric  = 1
	exitBuild    = 2
	exitStart    = 3
	exitHealth   = 4
	exitSwitch   = 5
	exitVerify   = 6
	exitRollback = 7
	exitState    = 8
	exitLockBusy = 9
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "cutover",
	Short: "Cutover - blue/green deployment orchestrator",
	Long: `Cutover manages two side-by-side deployment slots (blue and green) of a
container-composed application stack behind a reload-capable reverse proxy.

A release is three deliberate steps: deploy builds and starts the inactive
color and confirms its health; switch flips public traffic to it and
verifies the flip through the public route; cleanup retires the old color
once the operator is satisfied. rollback restores the last known-good
color at any time.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Cutover version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cutover.yaml", "Path to the cutover config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Cutover version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// exitCode maps an error chain onto the documented exit codes.
func exitCode(err error) int {
	if errors.Is(err, types.ErrLockBusy) {
		return exitLockBusy
	}
	if errors.Is(err, types.ErrStateCorrupt) {
		return exitState
	}
	kind, ok := types.FailureKindOf(err)
	if !ok {
		return exitGeneric
	}
	switch kind {
	case types.FailBuild, types.FailPull:
		return exitBuild
	case types.FailStart, types.FailStop:
		return exitStart
	case types.FailHealth:
		return exitHealth
	case types.FailSwitch:
		return exitSwitch
	case types.FailVerify:
		return exitVerify
	case types.FailRollback:
		return exitRollback
	default:
		return exitGeneric
	}
}

// loadConfig reads the config file and initializes logging from it plus
// the command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: logJSON || cfg.Log.JSON,
	})
	return cfg, nil
}

// openStore opens the state database, which also takes the single-flight
// lock for the duration of the command.
func openStore(cfg *config.Config) (*state.BoltStore, error) {
	return state.Open(state.Options{
		DataDir:       cfg.DataDir,
		LegacyEnvFile: cfg.Compose.EnvFile,
	})
}

func newController(cfg *config.Config) *stack.ComposeController {
	return stack.NewComposeController(stack.Options{
		Project:      cfg.Project,
		ComposeFile:  cfg.Compose.File,
		Command:      cfg.Compose.Command,
		ColorPort:    cfg.ColorPort,
		BuildTimeout: config.ParseDuration(cfg.Compose.BuildTimeout, config.DefaultBuildTimeout),
		StartTimeout: config.ParseDuration(cfg.Compose.StartTimeout, config.DefaultStartTimeout),
		StopTimeout:  config.ParseDuration(cfg.Compose.StopTimeout, config.DefaultStopTimeout),
	})
}

func newSwitcher(cfg *config.Config) *proxy.NginxSwitcher {
	return proxy.NewNginxSwitcher(proxy.Options{
		ConfPath:        cfg.Proxy.ConfPath,
		TemplatePath:    cfg.Proxy.TemplatePath,
		ListenPort:      cfg.Proxy.ListenPort,
		ServerName:      cfg.Proxy.ServerName,
		BackendHost:     cfg.Health.Host,
		ColorPort:       cfg.ColorPort,
		ValidateCommand: cfg.Proxy.ValidateCommand,
		ReloadCommand:   cfg.Proxy.ReloadCommand,
		VerifyURL:       cfg.PublicHealthURL(),
		CommandTimeout:  config.ParseDuration(cfg.Proxy.CommandTimeout, config.DefaultCommandTimeout),
		VerifyTimeout:   config.ParseDuration(cfg.Proxy.VerifyTimeout, proxy.DefaultVerifyTimeout),
	})
}

func probeTimeout(cfg *config.Config) time.Duration {
	return config.ParseDuration(cfg.Health.Timeout, config.DefaultProbeTimeout)
}

func backendChecker(cfg *config.Config) func(types.Color) health.Checker {
	return func(color types.Color) health.Checker {
		return health.NewHTTPChecker(cfg.BackendURL(color)).WithTimeout(probeTimeout(cfg))
	}
}

func routedChecker(cfg *config.Config) func() health.Checker {
	return func() health.Checker {
		return health.NewHTTPChecker(cfg.PublicHealthURL()).WithTimeout(probeTimeout(cfg))
	}
}

// endpointChecker builds the checker for one configured endpoint of a
// color; the endpoint type selects HTTP, TCP, or exec probing.
func endpointChecker(cfg *config.Config, ep config.EndpointConfig, color types.Color) health.Checker {
	switch ep.Type {
	case "tcp":
		return health.NewTCPChecker(cfg.EndpointAddr(ep, color)).WithTimeout(probeTimeout(cfg))
	case "exec":
		return health.NewExecChecker(cfg.EndpointCommand(ep, color)).WithTimeout(probeTimeout(cfg))
	default:
		return health.NewHTTPChecker(cfg.EndpointURL(ep, color)).WithTimeout(probeTimeout(cfg))
	}
}

// extraTargets lists the secondary configured endpoints for both colors
// (the implicit primary "app" endpoint is probed separately).
func extraTargets(cfg *config.Config) []health.Target {
	var targets []health.Target
	for _, ep := range cfg.Health.Endpoints {
		for _, color := range []types.Color{types.ColorBlue, types.ColorGreen} {
			targets = append(targets, health.Target{
				Name:    ep.Name,
				Color:   color,
				Checker: endpointChecker(cfg, ep, color),
			})
		}
	}
	return targets
}

func newProber(cfg *config.Config) *health.Prober {
	return health.NewProber().
		WithMaxAttempts(cfg.Health.MaxAttempts).
		WithBackoff(config.ParseDuration(cfg.Health.Backoff, config.DefaultProbeBackoff)).
		WithExponential(cfg.ProbeExponential()).
		WithSettleDelay(config.ParseDuration(cfg.Health.SettleDelay, config.DefaultSettleDelay))
}

func newOrchestrator(cfg *config.Config, store state.Store, broker *events.Broker) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Options{
		Store:            store,
		Stack:            newController(cfg),
		Switcher:         newSwitcher(cfg),
		Prober:           newProber(cfg),
		BackendChecker:   backendChecker(cfg),
		RoutedChecker:    routedChecker(cfg),
		Broker:           broker,
		PullFirst:        cfg.Compose.Pull,
		ProbeConcurrency: cfg.Health.Concurrency,
	})
}
