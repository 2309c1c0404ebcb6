package stack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// DefaultBuildTimeout bounds a full image build
	DefaultBuildTimeout = 15 * time.Minute

	// DefaultStartTimeout bounds bringing a stack up
	DefaultStartTimeout = 5 * time.Minute

	// DefaultStopTimeout bounds tearing a stack down
	DefaultStopTimeout = 5 * time.Minute

	// errTailLimit bounds how much command output is attached to errors
	errTailLimit = 2048
)

// Controller drives one color's application stack as an opaque unit. All
// operations are idempotent: rebuilding an already-built color re-tags it,
// starting a running stack converges it, stopping a stopped stack succeeds.
type Controller interface {
	// Build builds the color's images and returns a handle carrying the
	// fresh build tag. A build failure must abort the deploy before any
	// traffic is touched.
	Build(ctx context.Context, color types.Color) (*types.StackHandle, error)

	// Start brings the handle's stack up in the background
	Start(ctx context.Context, handle *types.StackHandle) error

	// Stop tears the handle's stack down
	Stop(ctx context.Context, handle *types.StackHandle) error

	// Pull refreshes the base images the build starts from
	Pull(ctx context.Context, color types.Color) error

	// Running reports whether the color has any running containers
	Running(ctx context.Context, color types.Color) (bool, error)
}

// runner executes one external command; a seam for tests.
type runner interface {
	// Run executes name with args and extra environment, returning stdout
	Run(ctx context.Context, name string, args []string, env []string) (string, error)
}

// Options configures a ComposeController.
type Options struct {
	// Project is the compose project prefix; per-color projects are
	// "<project>-blue" and "<project>-green"
	Project string

	// ComposeFile is the compose file shared by both colors
	ComposeFile string

	// Command is the compose invocation prefix (default: docker compose)
	Command []string

	// ColorPort maps a color to the host port its public service binds;
	// exported to the stack as CUTOVER_PORT
	ColorPort func(types.Color) int

	BuildTimeout time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// ComposeController implements Controller by shelling out to Docker
// Compose. Each color runs under its own compose project, so blue and green
// never share containers, networks, or volumes.
type ComposeController struct {
	opts   Options
	runner runner
	logger zerolog.Logger
}

// NewComposeController creates a controller that drives docker compose.
func NewComposeController(opts Options) *ComposeController {
	if len(opts.Command) == 0 {
		opts.Command = []string{"docker", "compose"}
	}
	if opts.BuildTimeout == 0 {
		opts.BuildTimeout = DefaultBuildTimeout
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &ComposeController{
		opts:   opts,
		runner: &execRunner{},
		logger: log.WithComponent("stack"),
	}
}

// ProjectName returns the compose project for a color.
func (c *ComposeController) ProjectName(color types.Color) string {
	return fmt.Sprintf("%s-%s", c.opts.Project, color)
}

func (c *ComposeController) Build(ctx context.Context, color types.Color) (*types.StackHandle, error) {
	handle := &types.StackHandle{
		Color:     color,
		Project:   c.ProjectName(color),
		BuildTag:  uuid.NewString()[:8],
		CreatedAt: time.Now(),
	}

	c.logger.Info().
		Str("color", color.String()).
		Str("build_tag", handle.BuildTag).
		Msg("building stack")

	ctx, cancel := context.WithTimeout(ctx, c.opts.BuildTimeout)
	defer cancel()

	if _, err := c.compose(ctx, handle, "build"); err != nil {
		return nil, types.NewOpError(types.FailBuild, color, err)
	}
	return handle, nil
}

func (c *ComposeController) Start(ctx context.Context, handle *types.StackHandle) error {
	c.logger.Info().
		Str("color", handle.Color.String()).
		Str("build_tag", handle.BuildTag).
		Msg("starting stack")

	ctx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()

	if _, err := c.compose(ctx, handle, "up", "-d", "--remove-orphans"); err != nil {
		return types.NewOpError(types.FailStart, handle.Color, err)
	}
	return nil
}

func (c *ComposeController) Stop(ctx context.Context, handle *types.StackHandle) error {
	c.logger.Info().
		Str("color", handle.Color.String()).
		Msg("stopping stack")

	ctx, cancel := context.WithTimeout(ctx, c.opts.StopTimeout)
	defer cancel()

	if _, err := c.compose(ctx, handle, "down", "--remove-orphans"); err != nil {
		return types.NewOpError(types.FailStop, handle.Color, err)
	}
	return nil
}

func (c *ComposeController) Pull(ctx context.Context, color types.Color) error {
	c.logger.Info().Str("color", color.String()).Msg("pulling latest images")

	ctx, cancel := context.WithTimeout(ctx, c.opts.BuildTimeout)
	defer cancel()

	handle := &types.StackHandle{Color: color, Project: c.ProjectName(color)}
	if _, err := c.compose(ctx, handle, "pull"); err != nil {
		return types.NewOpError(types.FailPull, color, err)
	}
	return nil
}

func (c *ComposeController) Running(ctx context.Context, color types.Color) (bool, error) {
	handle := &types.StackHandle{Color: color, Project: c.ProjectName(color)}
	out, err := c.compose(ctx, handle, "ps", "--quiet", "--status", "running")
	if err != nil {
		return false, fmt.Errorf("failed to list %s containers: %w", color, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// compose runs one compose subcommand scoped to the handle's project, with
// the color's identity exported to the stack's environment.
func (c *ComposeController) compose(ctx context.Context, handle *types.StackHandle, args ...string) (string, error) {
	command := c.opts.Command
	full := append([]string{}, command[1:]...)
	full = append(full, "--project-name", handle.Project, "--file", c.opts.ComposeFile)
	full = append(full, args...)

	env := []string{
		"CUTOVER_COLOR=" + handle.Color.String(),
		"CUTOVER_BUILD_TAG=" + handle.BuildTag,
	}
	if c.opts.ColorPort != nil {
		env = append(env, fmt.Sprintf("CUTOVER_PORT=%d", c.opts.ColorPort(handle.Color)))
	}

	return c.runner.Run(ctx, command[0], full, env)
}

// execRunner runs commands on the host, streaming output to the operator
// and keeping a tail for error reporting.
type execRunner struct{}

func (e *execRunner) Run(ctx context.Context, name string, args []string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stdout bytes.Buffer
	tail := &tailBuffer{limit: errTailLimit}
	cmd.Stdout = io.MultiWriter(os.Stdout, &stdout, tail)
	cmd.Stderr = io.MultiWriter(os.Stderr, tail)

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.String(), fmt.Errorf("%s timed out: %w", name, ctx.Err())
		}
		return stdout.String(), fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, tail.String())
	}
	return stdout.String(), nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.limit {
		t.buf = t.buf[len(t.buf)-t.limit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
