package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/quayside/cutover/pkg/types"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSettleDelay is the initial wait before the first readiness probe,
	// matching the settle time the deployment scripts historically used.
	DefaultSettleDelay = 30 * time.Second

	// DefaultProbeBackoff is the base delay between readiness probe attempts
	DefaultProbeBackoff = 2 * time.Second

	// DefaultProbeTimeout is the per-request probe timeout
	DefaultProbeTimeout = 10 * time.Second

	// DefaultCommandTimeout bounds proxy validate/reload commands
	DefaultCommandTimeout = 30 * time.Second

	// DefaultBuildTimeout bounds a compose build
	DefaultBuildTimeout = 15 * time.Minute

	// DefaultStartTimeout bounds a compose up
	DefaultStartTimeout = 5 * time.Minute

	// DefaultStopTimeout bounds a compose down
	DefaultStopTimeout = 5 * time.Minute

	// DefaultMonitorInterval is the monitor loop cadence
	DefaultMonitorInterval = 15 * time.Second
)

// Config is the root configuration for the cutover binary, loaded from YAML.
// Durations are Go duration strings ("30s", "2m"); empty values fall back to
// the documented defaults.
type Config struct {
	// Project is the compose project prefix; the per-color project names are
	// derived as "<project>-blue" and "<project>-green".
	Project string `yaml:"project" validate:"required"`

	// DataDir holds the BoltDB state file and is created on first use.
	DataDir string `yaml:"data_dir" validate:"required"`

	Compose ComposeConfig `yaml:"compose"`
	Colors  ColorsConfig  `yaml:"colors"`
	Health  HealthConfig  `yaml:"health"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Serve   ServeConfig   `yaml:"serve"`
	Log     LogConfig     `yaml:"log"`
}

// ComposeConfig describes how the application stack is driven.
type ComposeConfig struct {
	// File is the compose file shared by both colors.
	File string `yaml:"file" validate:"required"`

	// Command is the compose invocation prefix (default: docker compose).
	Command []string `yaml:"command"`

	// EnvFile is the legacy .env file the shell-script era kept the active
	// color in; imported once on first run if the state database is empty.
	EnvFile string `yaml:"env_file"`

	// Pull refreshes base images before building.
	Pull bool `yaml:"pull"`

	BuildTimeout string `yaml:"build_timeout"`
	StartTimeout string `yaml:"start_timeout"`
	StopTimeout  string `yaml:"stop_timeout"`
}

// ColorConfig is the per-slot configuration.
type ColorConfig struct {
	// Port is the host port the color's public-facing service binds.
	Port int `yaml:"port" validate:"required,min=1,max=65535"`
}

// ColorsConfig holds both deployment slots.
type ColorsConfig struct {
	Blue  ColorConfig `yaml:"blue"`
	Green ColorConfig `yaml:"green"`
}

// EndpointConfig describes one health check endpoint of the stack. The
// primary application endpoint is implicit; extra entries cover stacks whose
// services expose separate health surfaces (or none, via exec checks).
type EndpointConfig struct {
	Name string `yaml:"name" validate:"required"`

	// Type selects the checker: http (default), tcp, or exec.
	Type string `yaml:"type" validate:"omitempty,oneof=http tcp exec"`

	// Path is the HTTP path probed (http type).
	Path string `yaml:"path"`

	// PortOffset is added to the color's base port to find this service.
	PortOffset int `yaml:"port_offset"`

	// Command is the exec check command; occurrences of {{color}} are
	// replaced with the probed color (exec type).
	Command []string `yaml:"command"`
}

// HealthConfig tunes the readiness gate and status probing.
type HealthConfig struct {
	// Host is where the backends are reachable, bypassing the proxy.
	Host string `yaml:"host"`

	// Path is the application health endpoint.
	Path string `yaml:"path"`

	// SettleDelay is the wait before the first readiness probe.
	SettleDelay string `yaml:"settle_delay"`

	// MaxAttempts bounds the readiness gate retry loop.
	MaxAttempts int `yaml:"max_attempts" validate:"omitempty,min=1"`

	// Backoff is the base delay between attempts.
	Backoff string `yaml:"backoff"`

	// Exponential doubles the backoff each failed attempt when true.
	Exponential *bool `yaml:"exponential"`

	// Timeout bounds each individual probe request.
	Timeout string `yaml:"timeout"`

	// Concurrency bounds parallel probing in status and monitor paths.
	Concurrency int `yaml:"concurrency" validate:"omitempty,min=1"`

	// Endpoints lists extra per-service checks beyond the primary one.
	Endpoints []EndpointConfig `yaml:"endpoints" validate:"dive"`
}

// ProxyConfig describes the routing layer and how to drive it.
type ProxyConfig struct {
	// ConfPath is where the rendered routing config is written.
	ConfPath string `yaml:"conf_path" validate:"required"`

	// TemplatePath overrides the built-in nginx config template.
	TemplatePath string `yaml:"template_path"`

	// ListenPort is the public port the proxy serves.
	ListenPort int `yaml:"listen_port" validate:"required,min=1,max=65535"`

	// ServerName is the nginx server_name (default "_").
	ServerName string `yaml:"server_name"`

	// ValidateCommand checks a candidate config (default "nginx -t").
	ValidateCommand string `yaml:"validate_command"`

	// ReloadCommand applies the config without dropping connections
	// (default "nginx -s reload").
	ReloadCommand string `yaml:"reload_command"`

	// PublicURL is the address of the proxy as clients see it; switch
	// verification probes the health path through it.
	PublicURL string `yaml:"public_url" validate:"required,url"`

	CommandTimeout string `yaml:"command_timeout"`
	VerifyTimeout  string `yaml:"verify_timeout"`
}

// ServeConfig tunes the serve command's status API and background monitor.
type ServeConfig struct {
	Addr            string `yaml:"addr"`
	MonitorInterval string `yaml:"monitor_interval"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns a configuration with every tunable at its documented
// default. Required fields (project, ports, proxy paths) stay empty and fail
// validation until the operator provides them.
func Default() *Config {
	return &Config{
		DataDir: "/var/lib/cutover",
		Compose: ComposeConfig{
			File:    "docker-compose.yml",
			Command: []string{"docker", "compose"},
		},
		Health: HealthConfig{
			Host:        "127.0.0.1",
			Path:        "/health",
			MaxAttempts: 5,
			Concurrency: 4,
		},
		Proxy: ProxyConfig{
			ServerName:      "_",
			ValidateCommand: "nginx -t",
			ReloadCommand:   "nginx -s reload",
		},
		Serve: ServeConfig{
			Addr: "127.0.0.1:9600",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path, expands ${ENV} references, overlays it on
// the defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references with the environment value. Unset
// references are left literal so nginx-style dollar text survives untouched.
func expandEnv(data []byte) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRefPattern.FindSubmatch(ref)[1])
		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		return ref
	})
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express: distinct ports per color, parseable durations, and complete exec
// endpoints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Colors.Blue.Port == c.Colors.Green.Port {
		return fmt.Errorf("invalid config: blue and green must use distinct ports (both %d)", c.Colors.Blue.Port)
	}
	for _, color := range []types.Color{types.ColorBlue, types.ColorGreen} {
		if c.ColorPort(color) == c.Proxy.ListenPort {
			return fmt.Errorf("invalid config: %s port %d collides with proxy listen port", color, c.Proxy.ListenPort)
		}
	}

	durations := map[string]string{
		"compose.build_timeout":  c.Compose.BuildTimeout,
		"compose.start_timeout":  c.Compose.StartTimeout,
		"compose.stop_timeout":   c.Compose.StopTimeout,
		"health.settle_delay":    c.Health.SettleDelay,
		"health.backoff":         c.Health.Backoff,
		"health.timeout":         c.Health.Timeout,
		"proxy.command_timeout":  c.Proxy.CommandTimeout,
		"proxy.verify_timeout":   c.Proxy.VerifyTimeout,
		"serve.monitor_interval": c.Serve.MonitorInterval,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid config: %s: %w", field, err)
		}
	}

	for _, ep := range c.Health.Endpoints {
		if ep.Type == "exec" && len(ep.Command) == 0 {
			return fmt.Errorf("invalid config: endpoint %q is exec type but has no command", ep.Name)
		}
	}

	if len(c.Compose.Command) == 0 {
		return fmt.Errorf("invalid config: compose.command must not be empty")
	}
	return nil
}

// ParseDuration parses a duration string, falling back to def when the value
// is empty or unparseable. Validate has already rejected malformed values in
// loaded configs, so the fallback only covers hand-constructed ones.
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// ColorPort returns the host port of the color's public-facing service.
func (c *Config) ColorPort(color types.Color) int {
	if color == types.ColorGreen {
		return c.Colors.Green.Port
	}
	return c.Colors.Blue.Port
}

// BackendURL is the color's primary health endpoint, reached directly and
// bypassing the proxy.
func (c *Config) BackendURL(color types.Color) string {
	return fmt.Sprintf("http://%s:%d%s", c.Health.Host, c.ColorPort(color), c.Health.Path)
}

// PublicHealthURL is the health endpoint as seen through the proxy; switch
// verification probes this route.
func (c *Config) PublicHealthURL() string {
	return strings.TrimRight(c.Proxy.PublicURL, "/") + c.Health.Path
}

// HealthEndpoints returns the configured endpoint list, prepending the
// implicit primary application endpoint.
func (c *Config) HealthEndpoints() []EndpointConfig {
	endpoints := []EndpointConfig{{
		Name: "app",
		Type: "http",
		Path: c.Health.Path,
	}}
	return append(endpoints, c.Health.Endpoints...)
}

// EndpointURL resolves an http endpoint against the color's base port.
func (c *Config) EndpointURL(ep EndpointConfig, color types.Color) string {
	path := ep.Path
	if path == "" {
		path = c.Health.Path
	}
	return fmt.Sprintf("http://%s:%d%s", c.Health.Host, c.ColorPort(color)+ep.PortOffset, path)
}

// EndpointAddr resolves a tcp endpoint against the color's base port.
func (c *Config) EndpointAddr(ep EndpointConfig, color types.Color) string {
	return fmt.Sprintf("%s:%d", c.Health.Host, c.ColorPort(color)+ep.PortOffset)
}

// EndpointCommand resolves an exec endpoint's command for the color,
// substituting {{color}} placeholders.
func (c *Config) EndpointCommand(ep EndpointConfig, color types.Color) []string {
	command := make([]string, len(ep.Command))
	for i, arg := range ep.Command {
		command[i] = strings.ReplaceAll(arg, "{{color}}", color.String())
	}
	return command
}

// ProbeExponential reports whether readiness backoff doubles per attempt
// (the default).
func (c *Config) ProbeExponential() bool {
	if c.Health.Exponential == nil {
		return true
	}
	return *c.Health.Exponential
}
