package proxy

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// ColorHeader is stamped on proxied responses so a switch can be
	// verified through the public path, not trusted blindly.
	ColorHeader = "X-Cutover-Color"

	// DefaultCommandTimeout bounds validate and reload commands
	DefaultCommandTimeout = 30 * time.Second

	// DefaultVerifyTimeout bounds the post-switch verification probe
	DefaultVerifyTimeout = 10 * time.Second
)

// Switcher flips the routing layer between colors. SwitchTo must be a
// reload, not a restart: established connections survive the flip.
type Switcher interface {
	// SwitchTo routes public traffic to color
	SwitchTo(ctx context.Context, color types.Color) error

	// Verify re-probes through the public routing path and reports whether
	// the switch took effect
	Verify(ctx context.Context, color types.Color) (bool, error)

	// Active is a best-effort readback of the currently routed color
	Active(ctx context.Context) (types.Color, bool)
}

// defaultTemplate is the built-in nginx routing config. Operators with
// bespoke proxy setups override it via Options.TemplatePath; the managed
// marker and the color header should be kept for Active and Verify to work.
const defaultTemplate = `# Managed by cutover. Do not edit; color: {{.Color}}
upstream cutover_backend {
    server {{.BackendHost}}:{{.Port}};
}

server {
    listen {{.ListenPort}};
    server_name {{.ServerName}};

    location / {
        proxy_pass http://cutover_backend;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_http_version 1.1;
        add_header {{.ColorHeader}} {{.Color}} always;
    }
}
`

// activePattern extracts the color from the managed marker line.
var activePattern = regexp.MustCompile(`color: (blue|green)`)

// Options configures an NginxSwitcher.
type Options struct {
	// ConfPath is where the rendered routing config lives
	ConfPath string

	// TemplatePath overrides the built-in config template
	TemplatePath string

	// ListenPort is the public port the proxy serves
	ListenPort int

	// ServerName is the rendered server_name (default "_")
	ServerName string

	// BackendHost is where the color backends listen (default 127.0.0.1)
	BackendHost string

	// ColorPort maps a color to its backend port
	ColorPort func(types.Color) int

	// ValidateCommand checks a candidate config (default "nginx -t")
	ValidateCommand string

	// ReloadCommand applies the config without dropping connections
	// (default "nginx -s reload")
	ReloadCommand string

	// VerifyURL is the health endpoint as reached through the proxy
	VerifyURL string

	CommandTimeout time.Duration
	VerifyTimeout  time.Duration
}

// NginxSwitcher implements Switcher by rendering a per-color nginx config,
// validating it, and reloading nginx. A failed validate or reload restores
// the previous config before the error returns.
type NginxSwitcher struct {
	opts   Options
	runner commandRunner
	client *http.Client
	logger zerolog.Logger
}

// commandRunner executes a validate/reload command line; a seam for tests.
type commandRunner interface {
	Run(ctx context.Context, commandLine string) error
}

// NewNginxSwitcher creates a switcher driving nginx through its reload
// primitive.
func NewNginxSwitcher(opts Options) *NginxSwitcher {
	if opts.ServerName == "" {
		opts.ServerName = "_"
	}
	if opts.BackendHost == "" {
		opts.BackendHost = "127.0.0.1"
	}
	if opts.ValidateCommand == "" {
		opts.ValidateCommand = "nginx -t"
	}
	if opts.ReloadCommand == "" {
		opts.ReloadCommand = "nginx -s reload"
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.VerifyTimeout == 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	return &NginxSwitcher{
		opts:   opts,
		runner: &execCommandRunner{},
		client: &http.Client{Timeout: opts.VerifyTimeout},
		logger: log.WithComponent("proxy"),
	}
}

func (s *NginxSwitcher) SwitchTo(ctx context.Context, color types.Color) error {
	s.logger.Info().Str("color", color.String()).Msg("switching traffic")

	rendered, err := s.render(color)
	if err != nil {
		return types.NewOpError(types.FailSwitch, color, err)
	}

	previous, hadPrevious, err := s.readConf()
	if err != nil {
		return types.NewOpError(types.FailSwitch, color, err)
	}

	if err := writeAtomic(s.opts.ConfPath, rendered); err != nil {
		return types.NewOpError(types.FailSwitch, color, fmt.Errorf("failed to write config: %w", err))
	}

	if err := s.run(ctx, s.opts.ValidateCommand); err != nil {
		s.restore(previous, hadPrevious)
		return types.NewOpError(types.FailSwitch, color, fmt.Errorf("config validation failed: %w", err))
	}

	if err := s.run(ctx, s.opts.ReloadCommand); err != nil {
		// nginx is still serving the old config; put the matching file back.
		s.restore(previous, hadPrevious)
		return types.NewOpError(types.FailSwitch, color, fmt.Errorf("reload failed: %w", err))
	}

	s.logger.Info().Str("color", color.String()).Msg("routing reloaded")
	return nil
}

func (s *NginxSwitcher) Verify(ctx context.Context, color types.Color) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.VerifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.VerifyURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create verify request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn().
			Int("status", resp.StatusCode).
			Str("url", s.opts.VerifyURL).
			Msg("verify probe returned non-2xx through the public route")
		return false, nil
	}

	// When the routing config stamps the color header, require it to match.
	// Custom templates may omit it; absence downgrades to a warning.
	if routed := resp.Header.Get(ColorHeader); routed != "" {
		if routed != color.String() {
			s.logger.Warn().
				Str("expected", color.String()).
				Str("routed", routed).
				Msg("public route still answers with the previous color")
			return false, nil
		}
	} else {
		s.logger.Warn().
			Str("header", ColorHeader).
			Msg("routed response carries no color header; verifying by status only")
	}

	return true, nil
}

func (s *NginxSwitcher) Active(ctx context.Context) (types.Color, bool) {
	data, _, err := s.readConf()
	if err != nil || data == nil {
		return "", false
	}
	match := activePattern.FindSubmatch(data)
	if match == nil {
		return "", false
	}
	color, err := types.ParseColor(string(match[1]))
	if err != nil {
		return "", false
	}
	return color, true
}

// render produces the routing config for color.
func (s *NginxSwitcher) render(color types.Color) ([]byte, error) {
	text := defaultTemplate
	if s.opts.TemplatePath != "" {
		data, err := os.ReadFile(s.opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read template: %w", err)
		}
		text = string(data)
	}

	tmpl, err := template.New("routing").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]interface{}{
		"Color":       color.String(),
		"Port":        s.opts.ColorPort(color),
		"ListenPort":  s.opts.ListenPort,
		"ServerName":  s.opts.ServerName,
		"BackendHost": s.opts.BackendHost,
		"ColorHeader": ColorHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *NginxSwitcher) readConf() ([]byte, bool, error) {
	data, err := os.ReadFile(s.opts.ConfPath)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read current config: %w", err)
	}
	return data, true, nil
}

// restore puts the pre-switch config back (or removes the file if there was
// none). Best effort: the original error is what the operator needs to see.
func (s *NginxSwitcher) restore(previous []byte, hadPrevious bool) {
	var err error
	if hadPrevious {
		err = writeAtomic(s.opts.ConfPath, previous)
	} else {
		err = os.Remove(s.opts.ConfPath)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("conf", s.opts.ConfPath).Msg("failed to restore previous routing config")
	}
}

func (s *NginxSwitcher) run(ctx context.Context, commandLine string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()
	return s.runner.Run(ctx, commandLine)
}

// writeAtomic writes data via a temp file in the same directory followed by
// a rename, so the proxy never sees a half-written config.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cutover-conf-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// execCommandRunner runs a space-separated command line on the host.
type execCommandRunner struct{}

func (e *execCommandRunner) Run(ctx context.Context, commandLine string) error {
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out: %w", parts[0], ctx.Err())
		}
		return fmt.Errorf("%s: %w\n%s", commandLine, err, output.String())
	}
	return nil
}
