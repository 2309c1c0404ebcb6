/*
Package config loads and validates Cutover's YAML configuration.

The config package defines the operator-facing configuration surface: compose
project naming, per-color ports, readiness gate tuning, proxy commands, and
the serve/monitor settings. A single YAML file is overlaid on documented
defaults, ${ENV} references are expanded, and the result is validated before
any command runs.

# Architecture

	┌────────────────── CONFIG PIPELINE ───────────────────┐
	│                                                      │
	│  cutover.yaml ──► expandEnv ──► yaml.Unmarshal       │
	│                                  (over Default())    │
	│                        │                             │
	│                        ▼                             │
	│                    Validate                          │
	│            - struct tags (validator/v10)             │
	│            - distinct color ports                    │
	│            - parseable durations                     │
	│            - complete exec endpoints                 │
	│                        │                             │
	│                        ▼                             │
	│              *Config (read-only after load)          │
	└──────────────────────────────────────────────────────┘

# Configuration File

A complete example:

	project: quayside
	data_dir: /var/lib/cutover

	compose:
	  file: /srv/app/docker-compose.yml
	  env_file: /srv/app/.env        # legacy active-color flag, imported once
	  pull: true
	  build_timeout: 15m
	  start_timeout: 5m

	colors:
	  blue:
	    port: 8081
	  green:
	    port: 8082

	health:
	  path: /health
	  settle_delay: 30s
	  max_attempts: 5
	  backoff: 2s
	  exponential: true
	  timeout: 10s
	  endpoints:
	    - name: data-manager
	      type: http
	      path: /health
	      port_offset: 1
	    - name: task-worker
	      type: exec
	      command: ["docker", "compose", "-p", "quayside-{{color}}", "exec", "-T", "worker", "celery", "inspect", "ping"]

	proxy:
	  conf_path: /etc/nginx/conf.d/cutover.conf
	  listen_port: 8080
	  public_url: http://localhost:8080
	  validate_command: nginx -t
	  reload_command: nginx -s reload

	serve:
	  addr: 127.0.0.1:9600
	  monitor_interval: 15s

	log:
	  level: info
	  json: false

# Design Notes

Durations are Go duration strings. Empty values fall back to defaults at the
call site through ParseDuration; Validate rejects malformed non-empty values
up front so a typo fails the command instead of silently using a default.

${NAME} references expand from the environment only when NAME is set. Unset
references stay literal, which keeps dollar signs in embedded command strings
safe.

The target color never appears in configuration: deploys always target the
inactive slot, so the only per-color inputs are the two port bindings.

# Integration Points

  - pkg/state: DataDir locates the BoltDB file, EnvFile the legacy flag
  - pkg/stack: compose command, file, timeouts, per-color ports
  - pkg/health: gate tuning and endpoint resolution
  - pkg/proxy: conf path, template, commands, public URL
  - cmd/cutover: --config flag selects the file; log settings seed pkg/log

# See Also

  - pkg/orchestrator for how the loaded values drive operations
*/
package config
