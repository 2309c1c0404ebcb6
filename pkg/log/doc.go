/*
Package log provides structured logging for Cutover using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

Cutover's logging system provides structured logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stderr, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("orchestrator")            │          │
	│  │  - WithColor("green")                       │          │
	│  │  - WithOperation("deploy")                  │          │
	│  │  - WithBuildTag("9f3c1a2e")                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                             │          │
	│  │  JSON Format:                               │          │
	│  │  {                                          │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "orchestrator",             │          │
	│  │    "color": "green",                        │          │
	│  │    "time": "2026-05-11T10:30:00Z",          │          │
	│  │    "message": "readiness gate passed"       │          │
	│  │  }                                          │          │
	│  │                                             │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF readiness gate passed \        │          │
	│  │      component=orchestrator color=green     │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Cutover packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (defaults to stderr so that
    operator progress lines on stdout stay machine-consumable)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithColor: Add deployment color context
  - WithOperation: Add operation (deploy/switch/rollback) context
  - WithBuildTag: Add build tag context

# Usage

Initializing the Logger:

	import "github.com/quayside/cutover/pkg/log"

	// Console output (interactive CLI)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

	// JSON output (serve mode, log aggregation)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Simple Logging:

	log.Info("deployment ready to switch")
	log.Warn("state file missing, defaulting to blue")
	log.Error("proxy reload failed")

Structured Logging:

	log.Logger.Info().
		Str("color", "green").
		Int("attempts", 3).
		Msg("readiness gate passed")

	log.Logger.Error().
		Err(err).
		Str("color", "blue").
		Msg("stack build failed")

Component Loggers:

	orchLog := log.WithComponent("orchestrator")
	orchLog.Info().Str("target", "green").Msg("starting deploy")

	deployLog := log.WithComponent("stack").
		With().Str("color", "green").Logger()
	deployLog.Debug().Msg("compose build starting")

# Integration Points

This package integrates with:

  - pkg/state: Logs bootstrap defaults and legacy imports
  - pkg/stack: Logs compose command execution
  - pkg/health: Logs probe attempts and gate outcomes
  - pkg/proxy: Logs config rendering, validation, and reloads
  - pkg/orchestrator: Logs phase transitions and failures
  - pkg/monitor: Logs health transitions of both colors
  - cmd/cutover: Initializes the logger from CLI flags

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to long-lived components
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data (color, operation, attempts)
  - Create component-specific loggers for long-lived components
  - Log errors with .Err()

Don't:
  - Log secrets or credentials from the deployment environment
  - Use Debug level in production
  - Concatenate strings (use .Str, .Int)
  - Write progress output through the logger (that belongs on stdout)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
