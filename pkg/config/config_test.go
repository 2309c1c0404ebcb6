package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quayside/cutover/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
project: quayside
data_dir: /tmp/cutover-test
compose:
  file: docker-compose.yml
colors:
  blue:
    port: 8081
  green:
    port: 8082
proxy:
  conf_path: /etc/nginx/conf.d/cutover.conf
  listen_port: 8080
  public_url: http://localhost:8080
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cutover.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "quayside", cfg.Project)
	assert.Equal(t, 8081, cfg.ColorPort(types.ColorBlue))
	assert.Equal(t, 8082, cfg.ColorPort(types.ColorGreen))

	// Defaults survive the overlay.
	assert.Equal(t, "/health", cfg.Health.Path)
	assert.Equal(t, 5, cfg.Health.MaxAttempts)
	assert.Equal(t, []string{"docker", "compose"}, cfg.Compose.Command)
	assert.Equal(t, "nginx -t", cfg.Proxy.ValidateCommand)
	assert.Equal(t, "nginx -s reload", cfg.Proxy.ReloadCommand)
	assert.True(t, cfg.ProbeExponential())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	_, err := Load(writeConfig(t, "project: p\n"))
	assert.Error(t, err)
}

func TestValidateRejectsDuplicateColorPorts(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Colors.Green.Port = cfg.Colors.Blue.Port
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "distinct ports")
}

func TestValidateRejectsProxyPortCollision(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Colors.Blue.Port = cfg.Proxy.ListenPort
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadDuration(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Health.SettleDelay = "half an hour"
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "settle_delay")
}

func TestValidateRejectsExecEndpointWithoutCommand(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Health.Endpoints = []EndpointConfig{{Name: "worker", Type: "exec"}}
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CUTOVER_TEST_DIR", "/srv/data")

	yaml := `
project: quayside
data_dir: ${CUTOVER_TEST_DIR}
compose:
  file: docker-compose.yml
colors:
  blue:
    port: 8081
  green:
    port: 8082
health:
  host: ${CUTOVER_TEST_HOST}
proxy:
  conf_path: /etc/nginx/conf.d/cutover.conf
  listen_port: 8080
  public_url: http://localhost:8080
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "/srv/data", cfg.DataDir)
	// Unset references stay literal rather than collapsing to empty.
	assert.Equal(t, "${CUTOVER_TEST_HOST}", cfg.Health.Host)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		def   time.Duration
		want  time.Duration
	}{
		{name: "empty uses default", value: "", def: 30 * time.Second, want: 30 * time.Second},
		{name: "valid value wins", value: "2m", def: 30 * time.Second, want: 2 * time.Minute},
		{name: "garbage uses default", value: "soon", def: 5 * time.Second, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDuration(tt.value, tt.def))
		})
	}
}

func TestURLHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8081/health", cfg.BackendURL(types.ColorBlue))
	assert.Equal(t, "http://127.0.0.1:8082/health", cfg.BackendURL(types.ColorGreen))
	assert.Equal(t, "http://localhost:8080/health", cfg.PublicHealthURL())
}

func TestHealthEndpointsIncludesPrimary(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Health.Endpoints = []EndpointConfig{
		{Name: "data-manager", Type: "http", Path: "/health", PortOffset: 1},
		{Name: "worker", Type: "exec", Command: []string{"compose", "-p", "app-{{color}}", "exec", "worker", "ping"}},
	}

	endpoints := cfg.HealthEndpoints()
	require.Len(t, endpoints, 3)
	assert.Equal(t, "app", endpoints[0].Name)

	assert.Equal(t, "http://127.0.0.1:8082/health", cfg.EndpointURL(endpoints[1], types.ColorBlue))
	assert.Equal(t, "127.0.0.1:8083", cfg.EndpointAddr(endpoints[1], types.ColorGreen))

	command := cfg.EndpointCommand(endpoints[2], types.ColorGreen)
	assert.Equal(t, "app-green", command[2])
	// The configured template slice is not mutated.
	assert.Equal(t, "app-{{color}}", cfg.Health.Endpoints[1].Command[2])
}
